package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
)

type runKey struct {
	source database.Source
	status database.RunStatus
}

// Metrics holds run counters keyed by (source, status) and the duration
// of each source's most recent run. All methods are safe for concurrent
// use by parallel runs.
type Metrics struct {
	mu           sync.Mutex
	runs         map[runKey]uint64
	lastDuration map[database.Source]time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{
		runs:         make(map[runKey]uint64),
		lastDuration: make(map[database.Source]time.Duration),
	}
}

func (m *Metrics) IncRun(source database.Source, status database.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runKey{source: source, status: status}]++
}

func (m *Metrics) SetLastDuration(source database.Source, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDuration[source] = d
}

// RunCount returns the number of finished runs recorded for a source
// with the given terminal status.
func (m *Metrics) RunCount(source database.Source, status database.RunStatus) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runKey{source: source, status: status}]
}

// LastDuration returns the wall time of the source's most recent run and
// whether one has been recorded.
func (m *Metrics) LastDuration(source database.Source) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.lastDuration[source]
	return d, ok
}

// Render produces the counters in Prometheus text exposition format,
// with labels sorted for stable output.
func (m *Metrics) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder

	keys := make([]runKey, 0, len(m.runs))
	for k := range m.runs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].status < keys[j].status
	})

	b.WriteString("# TYPE etl_runs_total counter\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "etl_runs_total{source=%q,status=%q} %d\n", k.source, k.status, m.runs[k])
	}

	sources := make([]database.Source, 0, len(m.lastDuration))
	for s := range m.lastDuration {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	b.WriteString("# TYPE etl_run_duration_seconds gauge\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "etl_run_duration_seconds{source=%q} %.6f\n", s, m.lastDuration[s].Seconds())
	}

	return b.String()
}
