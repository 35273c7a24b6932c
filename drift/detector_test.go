package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector() *Detector {
	return NewDetector(Config{
		ExpectedColumns: []string{"id", "symbol", "name", "price"},
	})
}

func batchOf(records ...map[string]interface{}) Batch {
	return BatchFromRecords(records)
}

func findByType(results []Result, driftType string) (Result, bool) {
	for _, r := range results {
		if r.Type == driftType {
			return r, true
		}
	}
	return Result{}, false
}

func TestDetectCleanBatch(t *testing.T) {
	d := newTestDetector()

	hasCritical, results := d.Detect(batchOf(
		map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin", "price": 50000.0},
	))

	assert.False(t, hasCritical)
	assert.Empty(t, results)
}

func TestCheckSchemaMissingColumnIsCritical(t *testing.T) {
	d := newTestDetector()

	hasCritical, results := d.Detect(batchOf(
		map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin"},
	))

	assert.True(t, hasCritical)

	missing, ok := findByType(results, TypeSchemaMissing)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, missing.Severity)
	assert.Equal(t, 1.0, missing.Confidence)
	assert.Equal(t, "price", missing.Details["missing_column"])
}

func TestCheckSchemaRenameDetection(t *testing.T) {
	d := newTestDetector()

	results := d.CheckSchema(batchOf(
		map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin", "prices": 50000.0},
	))

	rename, ok := findByType(results, TypeSchemaRename)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, rename.Severity)
	assert.Equal(t, "price", rename.Details["expected_column"])
	assert.Equal(t, "prices", rename.Details["matched_column"])
	assert.GreaterOrEqual(t, rename.Confidence, DefaultFuzzyMatchThreshold)

	_, missing := findByType(results, TypeSchemaMissing)
	assert.False(t, missing, "a fuzzy match must not also report the column as missing")
}

func TestCheckSchemaExtraColumnsAreInfo(t *testing.T) {
	d := newTestDetector()

	results := d.CheckSchema(batchOf(
		map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin", "price": 1.0, "rank": 1, "ath": 2.0},
	))

	extra, ok := findByType(results, TypeSchemaExtra)
	require.True(t, ok)
	assert.Equal(t, SeverityInfo, extra.Severity)
	assert.Equal(t, []string{"ath", "rank"}, extra.Details["extra_columns"])
}

func TestCheckQualitySeverityScalesWithNullRatio(t *testing.T) {
	d := NewDetector(Config{ExpectedColumns: []string{"price"}})

	rows := func(nulls, total int) []map[string]interface{} {
		records := make([]map[string]interface{}, total)
		for i := range records {
			if i < nulls {
				records[i] = map[string]interface{}{"price": nil}
			} else {
				records[i] = map[string]interface{}{"price": 1.0}
			}
		}
		return records
	}

	// 80% nulls: critical.
	results := d.CheckQuality(BatchFromRecords(rows(8, 10)))
	require.Len(t, results, 1)
	assert.Equal(t, TypeQualityNulls, results[0].Type)
	assert.Equal(t, SeverityCritical, results[0].Severity)
	assert.Equal(t, 0.8, results[0].Details["null_ratio"])
	assert.Equal(t, 10, results[0].Details["row_count"])
	assert.Equal(t, 8, results[0].Details["null_count"])
	assert.InDelta(t, 0.2, results[0].Confidence, 1e-9)

	// 30% nulls: warning.
	results = d.CheckQuality(BatchFromRecords(rows(3, 10)))
	require.Len(t, results, 1)
	assert.Equal(t, SeverityWarning, results[0].Severity)

	// 20% nulls: above threshold but mild, info.
	results = d.CheckQuality(BatchFromRecords(rows(2, 10)))
	require.Len(t, results, 1)
	assert.Equal(t, SeverityInfo, results[0].Severity)

	// 5% nulls: under threshold, no finding.
	results = d.CheckQuality(BatchFromRecords(rows(1, 20)))
	assert.Empty(t, results)
}

func TestCheckQualityEmptyBatch(t *testing.T) {
	d := newTestDetector()
	assert.Empty(t, d.CheckQuality(BatchFromRecords(nil)))
}

func TestCheckTypes(t *testing.T) {
	d := NewDetector(Config{
		ExpectedColumns: []string{"price"},
		ExpectedTypes:   map[string]string{"price": "float64", "symbol": "string"},
	})

	results := d.CheckTypes(batchOf(
		map[string]interface{}{"price": "50000", "symbol": "BTC"},
	))

	require.Len(t, results, 1)
	assert.Equal(t, TypeTypeChange, results[0].Type)
	assert.Equal(t, SeverityWarning, results[0].Severity)
	assert.Equal(t, "price", results[0].Details["column"])
	assert.Equal(t, "float64", results[0].Details["expected_type"])
	assert.Equal(t, "string", results[0].Details["actual_type"])
}

func TestCheckTypesSkippedWithoutExpectations(t *testing.T) {
	d := newTestDetector()
	assert.Nil(t, d.CheckTypes(batchOf(map[string]interface{}{"price": "oops"})))
}

func TestSummaryAggregatesHistory(t *testing.T) {
	d := newTestDetector()

	d.Detect(batchOf(map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin"}))
	d.Detect(batchOf(map[string]interface{}{"id": "btc", "symbol": "BTC", "name": "Bitcoin", "price": 1.0, "rank": 1}))

	summary := d.Summary()
	assert.Equal(t, 2, summary.TotalIssues)
	assert.Equal(t, 1, summary.BySeverity[SeverityCritical])
	assert.Equal(t, 1, summary.BySeverity[SeverityInfo])
	assert.Equal(t, 1, summary.ByType[TypeSchemaMissing])
	assert.Equal(t, 1, summary.ByType[TypeSchemaExtra])
	assert.False(t, summary.LatestDrift.IsZero())

	d.ClearHistory()
	assert.Zero(t, d.Summary().TotalIssues)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("price", "price"))
	assert.Greater(t, similarity("price", "prices"), 0.9)
	assert.Less(t, similarity("price", "zzz"), 0.2)
}
