package resolver

import "strings"

const slugNameFragmentLen = 20

// GenerateSlug derives a unique, URL-safe slug for a coin. The lowercased
// symbol is the base; when the display name differs from the symbol, a
// sanitized name fragment is appended to disambiguate colliding symbols.
func GenerateSlug(symbol, name string) string {
	base := strings.ToLower(strings.TrimSpace(symbol))

	if name != "" && strings.ToUpper(name) != strings.ToUpper(strings.TrimSpace(symbol)) {
		fragment := sanitizeNameFragment(name)
		if fragment != "" {
			return base + "-" + fragment
		}
	}

	return base
}

func sanitizeNameFragment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}

	fragment := b.String()
	if len(fragment) > slugNameFragmentLen {
		fragment = fragment[:slugNameFragmentLen]
	}

	return fragment
}
