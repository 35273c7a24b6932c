package extractor

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field access helpers for raw records decoded from JSON or CSV.

func stringField(r RawRecord, key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func numberField(r RawRecord, key string) decimal.NullDecimal {
	v, ok := r[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}
	}

	switch n := v.(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(n))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(n))
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return decimal.NewNullDecimal(d)
		}
	}

	return decimal.NullDecimal{}
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func timeField(r RawRecord, key string) (time.Time, bool) {
	s, ok := stringField(r, key)
	if !ok {
		return time.Time{}, false
	}
	return parseTimestamp(s)
}

// filterSince drops records whose timestamp field is at or before since.
// Records with a missing or unparseable timestamp are kept, matching the
// at-least-once posture of the pipeline.
func filterSince(records []RawRecord, key string, since *time.Time) []RawRecord {
	if since == nil {
		return records
	}

	filtered := make([]RawRecord, 0, len(records))
	for _, r := range records {
		if t, ok := timeField(r, key); ok && !t.After(*since) {
			continue
		}
		filtered = append(filtered, r)
	}

	return filtered
}
