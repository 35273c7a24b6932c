// Package drift classifies schema and quality anomalies in incoming
// batches before they are trusted by the ingestion pipeline.
package drift

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

// Severity levels for drift findings.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Drift types reported by the detector.
const (
	TypeSchemaRename  = "schema_rename"
	TypeSchemaMissing = "schema_missing"
	TypeSchemaExtra   = "schema_extra"
	TypeQualityNulls  = "quality_nulls"
	TypeTypeChange    = "type_change"
)

const (
	DefaultNullThreshold       = 0.1
	DefaultFuzzyMatchThreshold = 0.8
)

// Result is one drift finding over a batch.
type Result struct {
	Type       string
	Severity   Severity
	Confidence float64 // 0.0 to 1.0
	Message    string
	Details    map[string]interface{}
	Timestamp  time.Time
}

// Config sets up a detector for one source.
type Config struct {
	ExpectedColumns []string
	// ExpectedTypes optionally maps column names to expected Go type
	// names; when empty the type check is skipped.
	ExpectedTypes       map[string]string
	NullThreshold       float64
	FuzzyMatchThreshold float64
}

// Detector runs schema, quality and type checks over one batch at a time.
// Findings accumulate into an in-memory history. The detector never
// decides whether a run should abort; that is the orchestrator's policy.
type Detector struct {
	expectedColumns     []string
	expectedTypes       map[string]string
	nullThreshold       float64
	fuzzyMatchThreshold float64

	mu      sync.Mutex
	history []Result
}

// Summary aggregates the accumulated findings.
type Summary struct {
	TotalIssues int
	BySeverity  map[Severity]int
	ByType      map[string]int
	LatestDrift time.Time
}

func NewDetector(cfg Config) *Detector {
	nullThreshold := cfg.NullThreshold
	if nullThreshold == 0 {
		nullThreshold = DefaultNullThreshold
	}

	fuzzyThreshold := cfg.FuzzyMatchThreshold
	if fuzzyThreshold == 0 {
		fuzzyThreshold = DefaultFuzzyMatchThreshold
	}

	return &Detector{
		expectedColumns:     cfg.ExpectedColumns,
		expectedTypes:       cfg.ExpectedTypes,
		nullThreshold:       nullThreshold,
		fuzzyMatchThreshold: fuzzyThreshold,
	}
}

// Detect runs all checks over the batch and reports whether any finding
// is critical.
func (d *Detector) Detect(batch Batch) (bool, []Result) {
	var all []Result

	all = append(all, d.CheckSchema(batch)...)
	all = append(all, d.CheckQuality(batch)...)
	all = append(all, d.CheckTypes(batch)...)

	hasCritical := false
	var criticalMessages []string
	for _, r := range all {
		if r.Severity == SeverityCritical {
			hasCritical = true
			criticalMessages = append(criticalMessages, r.Message)
		}
	}

	if hasCritical {
		logger.Error("Critical drift detected: %v", criticalMessages)
	}

	return hasCritical, all
}

// CheckSchema finds missing, possibly renamed and unexpected columns.
func (d *Detector) CheckSchema(batch Batch) []Result {
	var results []Result

	actual := batch.Columns()
	actualSet := make(map[string]bool, len(actual))
	for _, col := range actual {
		actualSet[col] = true
	}

	for _, expected := range d.expectedColumns {
		if actualSet[expected] {
			continue
		}

		bestMatch, bestScore := closestColumn(expected, actual)
		if bestMatch != "" && bestScore >= d.fuzzyMatchThreshold {
			results = append(results, Result{
				Type:       TypeSchemaRename,
				Severity:   SeverityWarning,
				Confidence: bestScore,
				Message:    fmt.Sprintf("Column '%s' may have been renamed to '%s'", expected, bestMatch),
				Details: map[string]interface{}{
					"expected_column":  expected,
					"matched_column":   bestMatch,
					"similarity_score": round(bestScore, 3),
				},
				Timestamp: time.Now().UTC(),
			})
			logger.Warn("Schema Drift: Column rename detected - '%s' -> '%s' (confidence: %.2f)", expected, bestMatch, bestScore)
			continue
		}

		results = append(results, Result{
			Type:       TypeSchemaMissing,
			Severity:   SeverityCritical,
			Confidence: 1.0,
			Message:    fmt.Sprintf("Required column '%s' is missing", expected),
			Details: map[string]interface{}{
				"missing_column":    expected,
				"available_columns": actual,
			},
			Timestamp: time.Now().UTC(),
		})
		logger.Warn("Schema Drift: Missing column '%s'", expected)
	}

	expectedSet := make(map[string]bool, len(d.expectedColumns))
	for _, col := range d.expectedColumns {
		expectedSet[col] = true
	}

	var extra []string
	for _, col := range actual {
		if !expectedSet[col] {
			extra = append(extra, col)
		}
	}
	sort.Strings(extra)

	if len(extra) > 0 {
		results = append(results, Result{
			Type:       TypeSchemaExtra,
			Severity:   SeverityInfo,
			Confidence: 1.0,
			Message:    fmt.Sprintf("New columns detected: %v", extra),
			Details:    map[string]interface{}{"extra_columns": extra},
			Timestamp:  time.Now().UTC(),
		})
		logger.Info("Schema Change: New columns detected - %v", extra)
	}

	d.record(results)
	return results
}

// CheckQuality flags columns whose null ratio exceeds the threshold.
// Confidence is the inverse of the null ratio.
func (d *Detector) CheckQuality(batch Batch) []Result {
	var results []Result

	if batch.Rows() == 0 {
		return results
	}

	for _, col := range batch.Columns() {
		ratio := batch.NullRatio(col)
		if ratio <= d.nullThreshold {
			continue
		}

		severity := SeverityInfo
		switch {
		case ratio > 0.5:
			severity = SeverityCritical
		case ratio > 0.25:
			severity = SeverityWarning
		}

		results = append(results, Result{
			Type:       TypeQualityNulls,
			Severity:   severity,
			Confidence: 1.0 - ratio,
			Message:    fmt.Sprintf("Column '%s' has %.1f%% null values", col, ratio*100),
			Details: map[string]interface{}{
				"column":     col,
				"null_ratio": round(ratio, 4),
				"threshold":  d.nullThreshold,
				"row_count":  batch.Rows(),
				"null_count": batch.NullCount(col),
			},
			Timestamp: time.Now().UTC(),
		})
		logger.Warn("Quality Drift: Column '%s' has %.1f%% nulls (threshold: %.1f%%)", col, ratio*100, d.nullThreshold*100)
	}

	d.record(results)
	return results
}

// CheckTypes compares observed column types against the configured
// expectations. Skipped when no expected types were supplied.
func (d *Detector) CheckTypes(batch Batch) []Result {
	if len(d.expectedTypes) == 0 {
		return nil
	}

	var results []Result

	cols := make([]string, 0, len(d.expectedTypes))
	for col := range d.expectedTypes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		expectedType := d.expectedTypes[col]
		if !batch.HasColumn(col) {
			continue
		}

		value, ok := batch.FirstValue(col)
		if !ok {
			continue
		}

		actualType := fmt.Sprintf("%T", value)
		if strings.Contains(strings.ToLower(actualType), strings.ToLower(expectedType)) {
			continue
		}

		msg := fmt.Sprintf("Column '%s' type changed from '%s' to '%s'", col, expectedType, actualType)
		results = append(results, Result{
			Type:       TypeTypeChange,
			Severity:   SeverityWarning,
			Confidence: 1.0,
			Message:    msg,
			Details: map[string]interface{}{
				"column":        col,
				"expected_type": expectedType,
				"actual_type":   actualType,
			},
			Timestamp: time.Now().UTC(),
		})
		logger.Warn("Type Drift: %s", msg)
	}

	d.record(results)
	return results
}

// Summary reports accumulated findings by severity and type.
func (d *Detector) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	summary := Summary{
		TotalIssues: len(d.history),
		BySeverity:  make(map[Severity]int),
		ByType:      make(map[string]int),
	}

	for _, r := range d.history {
		summary.BySeverity[r.Severity]++
		summary.ByType[r.Type]++
		if r.Timestamp.After(summary.LatestDrift) {
			summary.LatestDrift = r.Timestamp
		}
	}

	return summary
}

// ClearHistory drops all accumulated findings.
func (d *Detector) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = nil
}

func (d *Detector) record(results []Result) {
	if len(results) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, results...)
}

// closestColumn returns the candidate with the highest similarity ratio
// to the wanted column name.
func closestColumn(wanted string, candidates []string) (string, float64) {
	bestMatch := ""
	bestScore := 0.0

	for _, candidate := range candidates {
		score := similarity(wanted, candidate)
		if score > bestScore {
			bestMatch = candidate
			bestScore = score
		}
	}

	return bestMatch, bestScore
}

func similarity(a, b string) float64 {
	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return matcher.Ratio()
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
