package drift

import "sort"

// Batch is a column-oriented view of one incoming set of raw records.
// Every column holds one cell per input record; a record that lacks a
// key contributes a nil cell, which counts as null for quality checks.
type Batch struct {
	columns map[string][]interface{}
	rows    int
}

// BatchFromRecords builds a batch from raw upstream records. The column
// set is the union of all keys seen across the records.
func BatchFromRecords(records []map[string]interface{}) Batch {
	columns := make(map[string][]interface{})

	for _, record := range records {
		for key := range record {
			if _, ok := columns[key]; !ok {
				columns[key] = make([]interface{}, 0, len(records))
			}
		}
	}

	for _, record := range records {
		for key := range columns {
			value, ok := record[key]
			if !ok {
				value = nil
			}
			columns[key] = append(columns[key], value)
		}
	}

	return Batch{columns: columns, rows: len(records)}
}

// Rows returns the number of records in the batch.
func (b Batch) Rows() int {
	return b.rows
}

// Columns returns the sorted column names present in the batch.
func (b Batch) Columns() []string {
	names := make([]string, 0, len(b.columns))
	for name := range b.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NullCount returns the number of nil cells in a column.
func (b Batch) NullCount(column string) int {
	count := 0
	for _, value := range b.columns[column] {
		if value == nil {
			count++
		}
	}
	return count
}

// NullRatio returns the fraction of nil cells in a column.
func (b Batch) NullRatio(column string) float64 {
	if b.rows == 0 {
		return 0
	}
	return float64(b.NullCount(column)) / float64(b.rows)
}

// FirstValue returns the first non-nil cell of a column, if any.
func (b Batch) FirstValue(column string) (interface{}, bool) {
	for _, value := range b.columns[column] {
		if value != nil {
			return value, true
		}
	}
	return nil, false
}

// HasColumn reports whether the batch contains the column.
func (b Batch) HasColumn(column string) bool {
	_, ok := b.columns[column]
	return ok
}
