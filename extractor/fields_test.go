package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberField(t *testing.T) {
	r := RawRecord{
		"float":   42.5,
		"int":     7,
		"int64":   int64(9),
		"string":  "123.45",
		"garbage": "not a number",
		"null":    nil,
	}

	assert.Equal(t, "42.5", numberField(r, "float").Decimal.String())
	assert.Equal(t, "7", numberField(r, "int").Decimal.String())
	assert.Equal(t, "9", numberField(r, "int64").Decimal.String())
	assert.Equal(t, "123.45", numberField(r, "string").Decimal.String())
	assert.False(t, numberField(r, "garbage").Valid)
	assert.False(t, numberField(r, "null").Valid)
	assert.False(t, numberField(r, "missing").Valid)
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)

	for _, raw := range []string{
		"2026-08-30T12:30:00Z",
		"2026-08-30T12:30:00",
		"2026-08-30 12:30:00",
	} {
		got, ok := parseTimestamp(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	dateOnly, ok := parseTimestamp("2026-08-30")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), dateOnly)

	_, ok = parseTimestamp("30/08/2026")
	assert.False(t, ok)
}

func TestFilterSince(t *testing.T) {
	records := []RawRecord{
		{"date": "2026-08-28"},
		{"date": "2026-08-29"},
		{"date": "2026-08-30"},
		{"date": "garbage"},
		{},
	}

	assert.Len(t, filterSince(records, "date", nil), 5)

	since := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	filtered := filterSince(records, "date", &since)

	// Newer rows pass; rows without a usable timestamp are kept rather
	// than silently dropped.
	require.Len(t, filtered, 3)
	assert.Equal(t, "2026-08-30", filtered[0]["date"])
	assert.Equal(t, "garbage", filtered[1]["date"])
}
