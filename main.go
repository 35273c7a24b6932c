package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/extractor"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/ingest"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

func main() {
	if err := run(context.Background()); err != nil {
		logger.Fatal("Fatal error: %s", err)
	}
}

func run(ctx context.Context) error {
	flag.Parse()
	cfg, err := config.BuildConfig()
	if err != nil {
		return errors.Wrap(err, "config error")
	}

	config.GlobalConfigCallback.Call(cfg)

	db, err := database.ConnectAndInitialize(ctx, &cfg.DB)
	if err != nil {
		return errors.Wrap(err, "database connect and initialize errors")
	}

	extractors := extractor.FromConfig(cfg)
	if len(extractors) == 0 {
		return errors.New("no sources enabled")
	}

	service := ingest.NewService(db, cfg, extractors)

	if cfg.Pipeline.PreloadResolve {
		service.Resolver().Preload(ctx, db)
	}

	if cfg.DB.RawRetentionDays > 0 {
		go database.PruneRawRecords(ctx, db, cfg.DB.RawRetentionDays, database.RetentionCheckInterval)
	}

	return runScheduler(ctx, cfg, service)
}

// runScheduler drives ingestion cycles until the interval elapses into a
// shutdown signal. A zero interval runs a single cycle and exits. An
// in-flight cycle is never interrupted by shutdown; pending work is
// allowed to finalize its run ledger rows before the process exits.
func runScheduler(ctx context.Context, cfg *config.Config, service *ingest.Service) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second

	if interval == 0 || cfg.Scheduler.RunAtStart {
		runCycle(signalCtx, cfg, service)
	}

	if interval == 0 {
		logger.Info("single cycle finished")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			runCycle(signalCtx, cfg, service)
		}
	}
}

func runCycle(ctx context.Context, cfg *config.Config, service *ingest.Service) {
	// Runs detach from signal cancellation so a cycle that already
	// started always reaches a terminal ledger state.
	runCtx := context.WithoutCancel(ctx)

	startTime := time.Now()
	results := service.RunAll(runCtx, nil, cfg.Pipeline.ForceFull, cfg.Pipeline.Parallel)

	succeeded := 0
	for _, result := range results {
		if result.Err == nil {
			succeeded++
		}
	}

	logger.Info("cycle finished in %s: %d/%d sources succeeded",
		time.Since(startTime), succeeded, len(results))
}
