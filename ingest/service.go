// Package ingest orchestrates extraction, drift checking, entity
// resolution, persistence and run bookkeeping for every source.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/drift"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/extractor"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/resolver"
)

// defaultExpectedColumns configures drift detection per source when the
// config file does not override it.
var defaultExpectedColumns = map[database.Source][]string{
	database.SourceCoinPaprika: {"id", "symbol", "name", "quotes"},
	database.SourceCoinGecko:   {"id", "symbol", "name", "current_price"},
	database.SourceCSV:         {"ticker", "price", "vol", "date"},
}

// Service coordinates ingestion runs. Each source run owns its own
// transaction; the resolver caches and metrics are shared across runs.
type Service struct {
	db              *gorm.DB
	extractors      map[database.Source]extractor.Extractor
	detectors       map[database.Source]*drift.Detector
	abortOnCritical map[database.Source]bool
	resolver        *resolver.Resolver
	metrics         *Metrics
}

// RunResult is the joinable outcome of one source run. Run is non-nil
// whenever a ledger row was created, including failed runs.
type RunResult struct {
	Source database.Source
	Run    *database.RunRecord
	Err    error
}

func NewService(db *gorm.DB, cfg *config.Config, extractors map[database.Source]extractor.Extractor) *Service {
	detectors := make(map[database.Source]*drift.Detector)
	abort := make(map[database.Source]bool)

	for source := range extractors {
		driftCfg := cfg.Drift[string(source)]
		detectors[source] = drift.NewDetector(drift.Config{
			ExpectedColumns:     defaultExpectedColumns[source],
			NullThreshold:       driftCfg.NullThreshold,
			FuzzyMatchThreshold: driftCfg.FuzzyMatchThreshold,
		})
		abort[source] = driftCfg.AbortOnCritical
	}

	return &Service{
		db:              db,
		extractors:      extractors,
		detectors:       detectors,
		abortOnCritical: abort,
		resolver:        resolver.New(),
		metrics:         NewMetrics(),
	}
}

// Resolver exposes the shared resolver, for cache warm-up at bootstrap.
func (s *Service) Resolver() *resolver.Resolver {
	return s.resolver
}

// Metrics exposes the shared run counters.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Detector returns the drift detector for a source, or nil.
func (s *Service) Detector(source database.Source) *drift.Detector {
	return s.detectors[source]
}

// RunSource executes one ingestion run for a single source. The ledger
// row is committed up front and finalized exactly once; all persistence
// effects between extraction and the final commit roll back together on
// failure, leaving the checkpoint untouched for the next attempt.
func (s *Service) RunSource(ctx context.Context, source database.Source, forceFull bool) (*database.RunRecord, error) {
	startTime := time.Now()

	ext, ok := s.extractors[source]
	if !ok {
		return nil, errors.Errorf("no extractor registered for source: %s", source)
	}

	run, err := database.CreateRun(ctx, s.db, source)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: create run", source)
	}

	// The prior checkpoint is read even for forced full runs, so an
	// empty result never finalizes a success row with a regressed
	// checkpoint.
	checkpoint, err := database.LastCheckpoint(ctx, s.db, source)
	if err != nil {
		return run, s.fail(ctx, run, startTime, err)
	}

	since := checkpoint
	if forceFull {
		since = nil
	} else if checkpoint != nil {
		logger.Info("%s: incremental load from %s", source, checkpoint.Format(time.RFC3339))
	}

	raw, candidates, err := extractor.Extract(ctx, ext, since)
	if err != nil {
		return run, s.fail(ctx, run, startTime, err)
	}

	if len(candidates) == 0 {
		logger.Info("%s: no new data to process", source)

		// Carry the prior checkpoint forward so it stays monotonic
		// across empty successful runs.
		if err := database.FinalizeRun(ctx, s.db, run, database.RunStatusSuccess, 0, checkpoint, ""); err != nil {
			return run, errors.Wrapf(err, "%s: finalize empty run", source)
		}

		s.metrics.IncRun(source, database.RunStatusSuccess)
		s.metrics.SetLastDuration(source, time.Since(startTime))
		return run, nil
	}

	if len(raw) > 0 {
		if err := s.checkDrift(source, raw); err != nil {
			return run, s.fail(ctx, run, startTime, err)
		}
	}

	// Resolutions stage their cache entries and publish them only after
	// the transaction commits; a rollback leaves the shared caches
	// untouched.
	stage := s.resolver.NewStage()

	recordsProcessed := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveRawRecords(tx, source, raw); err != nil {
			return err
		}

		resolved, err := resolveCandidates(tx, stage, candidates)
		if err != nil {
			return err
		}

		deduped := dedupeResolved(source, resolved)

		recordsProcessed, err = upsertPricePoints(tx, deduped)
		return err
	})
	if err != nil {
		return run, s.fail(ctx, run, startTime, err)
	}

	stage.Commit()

	maxTimestamp := maxCandidateTimestamp(candidates)
	if checkpoint != nil && checkpoint.After(maxTimestamp) {
		maxTimestamp = *checkpoint
	}
	if err := database.FinalizeRun(ctx, s.db, run, database.RunStatusSuccess, recordsProcessed, &maxTimestamp, ""); err != nil {
		return run, errors.Wrapf(err, "%s: finalize run", source)
	}

	logger.Info("%s: ingestion completed, %d records processed", source, recordsProcessed)
	s.metrics.IncRun(source, database.RunStatusSuccess)
	s.metrics.SetLastDuration(source, time.Since(startTime))

	return run, nil
}

// checkDrift runs the source's drift detector over the raw batch. A
// critical finding aborts the run only when the source is configured
// with abort_on_critical; otherwise it is logged and the run proceeds.
func (s *Service) checkDrift(source database.Source, raw []extractor.RawRecord) error {
	detector := s.detectors[source]
	if detector == nil {
		logger.Warn("No drift detector configured for %s", source)
		return nil
	}

	records := make([]map[string]interface{}, len(raw))
	for i, r := range raw {
		records[i] = r
	}

	hasCritical, _ := detector.Detect(drift.BatchFromRecords(records))
	if hasCritical && s.abortOnCritical[source] {
		return errors.Errorf("critical drift detected for %s, aborting run", source)
	}

	return nil
}

func resolveCandidates(
	tx *gorm.DB, stage *resolver.Stage, candidates []extractor.Candidate,
) ([]resolvedCandidate, error) {
	resolved := make([]resolvedCandidate, 0, len(candidates))

	for _, c := range candidates {
		var coinID uint64
		var err error

		if c.SourceID != "" {
			coinID, err = stage.Resolve(tx, c.Source, c.SourceID, c.Symbol, c.Name)
		} else {
			coinID, err = stage.ResolveBySymbol(tx, c.Symbol, c.Source)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "resolve asset %s", c.Symbol)
		}

		resolved = append(resolved, resolvedCandidate{coinID: coinID, candidate: c})
	}

	return resolved, nil
}

// fail finalizes a run as failure with a bounded error message. The
// original error is always propagated, even if finalization itself fails.
func (s *Service) fail(ctx context.Context, run *database.RunRecord, startTime time.Time, runErr error) error {
	logger.Error("%s: ingestion failed - %s", run.Source, runErr)

	if err := database.FinalizeRun(ctx, s.db, run, database.RunStatusFailure, 0, nil, runErr.Error()); err != nil {
		logger.Error("%s: failed to finalize failed run %d: %s", run.Source, run.ID, err)
	}

	s.metrics.IncRun(run.Source, database.RunStatusFailure)
	s.metrics.SetLastDuration(run.Source, time.Since(startTime))

	return runErr
}

// RunAll executes one independent run per source. In parallel mode a
// failure in one run never cancels or delays a sibling; in sequential
// mode a failure does not stop processing of subsequent sources. All
// outcomes are collected and returned to the caller.
func (s *Service) RunAll(
	ctx context.Context, sources []database.Source, forceFull, parallel bool,
) map[database.Source]RunResult {
	targets := sources
	if len(targets) == 0 {
		for _, source := range database.AllSources() {
			if _, ok := s.extractors[source]; ok {
				targets = append(targets, source)
			}
		}
	}

	results := make(map[database.Source]RunResult, len(targets))

	if parallel {
		var wg sync.WaitGroup
		var mu sync.Mutex

		for _, source := range targets {
			wg.Add(1)
			go func(source database.Source) {
				defer wg.Done()

				run, err := s.RunSource(ctx, source, forceFull)
				if err != nil {
					logger.Error("%s: %s", source, err)
				}

				mu.Lock()
				results[source] = RunResult{Source: source, Run: run, Err: err}
				mu.Unlock()
			}(source)
		}

		wg.Wait()
		return results
	}

	for _, source := range targets {
		run, err := s.RunSource(ctx, source, forceFull)
		if err != nil {
			logger.Error("%s: %s", source, err)
		}
		results[source] = RunResult{Source: source, Run: run, Err: err}
	}

	return results
}

// SourceHealth is the most recent run state exposed per source.
type SourceHealth struct {
	Status      database.RunStatus
	Error       string
	CompletedAt *time.Time
}

// Health reports the latest run status and error text per configured
// source. Sources that never ran are omitted.
func (s *Service) Health(ctx context.Context) map[database.Source]SourceHealth {
	health := make(map[database.Source]SourceHealth)

	for source := range s.extractors {
		run, err := database.LatestRun(ctx, s.db, source)
		if err != nil {
			continue
		}

		h := SourceHealth{Status: run.Status, CompletedAt: run.CompletedAt}
		if run.ErrorMessage != nil {
			h.Error = *run.ErrorMessage
		}
		health[source] = h
	}

	return health
}

func maxCandidateTimestamp(candidates []extractor.Candidate) time.Time {
	var max time.Time
	for _, c := range candidates {
		if c.Timestamp.After(max) {
			max = c.Timestamp
		}
	}
	return max
}
