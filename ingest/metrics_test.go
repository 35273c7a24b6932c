package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRun(database.SourceCoinGecko, database.RunStatusSuccess)
	m.IncRun(database.SourceCoinGecko, database.RunStatusSuccess)
	m.IncRun(database.SourceCoinGecko, database.RunStatusFailure)
	m.IncRun(database.SourceCSV, database.RunStatusSuccess)

	assert.EqualValues(t, 2, m.RunCount(database.SourceCoinGecko, database.RunStatusSuccess))
	assert.EqualValues(t, 1, m.RunCount(database.SourceCoinGecko, database.RunStatusFailure))
	assert.EqualValues(t, 1, m.RunCount(database.SourceCSV, database.RunStatusSuccess))
	assert.Zero(t, m.RunCount(database.SourceCoinPaprika, database.RunStatusSuccess))
}

func TestMetricsLastDuration(t *testing.T) {
	m := NewMetrics()

	_, ok := m.LastDuration(database.SourceCSV)
	assert.False(t, ok)

	m.SetLastDuration(database.SourceCSV, 1500*time.Millisecond)
	m.SetLastDuration(database.SourceCSV, 2*time.Second)

	d, ok := m.LastDuration(database.SourceCSV)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestMetricsRender(t *testing.T) {
	m := NewMetrics()

	m.IncRun(database.SourceCoinGecko, database.RunStatusSuccess)
	m.IncRun(database.SourceCSV, database.RunStatusFailure)
	m.SetLastDuration(database.SourceCoinGecko, 250*time.Millisecond)

	out := m.Render()

	assert.Contains(t, out, `etl_runs_total{source="coingecko",status="success"} 1`)
	assert.Contains(t, out, `etl_runs_total{source="csv",status="failure"} 1`)
	assert.Contains(t, out, `etl_run_duration_seconds{source="coingecko"} 0.250000`)
}
