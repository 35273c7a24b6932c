package database

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"gorm.io/gorm"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

// Only delete up to 1000 rows in a single statement to avoid lock
// timeouts on large backlogs.
const deleteBatchSize = 1000

// RetentionCheckInterval is how often the retention loop looks for
// expired audit rows.
const RetentionCheckInterval = time.Hour

// PruneRawRecords periodically deletes audit rows older than the
// retention window. It runs until ctx is cancelled.
func PruneRawRecords(ctx context.Context, db *gorm.DB, retentionDays int, checkInterval time.Duration) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		logger.Info("starting raw record retention iteration")

		startTime := time.Now()
		deleted, err := PruneRawRecordsIteration(ctx, db, retentionDays)
		if err != nil {
			logger.Error("raw record retention error: %s", err)
		} else {
			logger.Info("raw record retention deleted %d rows in %v", deleted, time.Since(startTime))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PruneRawRecordsIteration deletes one backlog of expired audit rows in
// bounded batches and returns the number of rows removed.
func PruneRawRecordsIteration(ctx context.Context, db *gorm.DB, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	db = db.WithContext(ctx)

	var deleted int64
	for {
		result := db.Limit(deleteBatchSize).Where("created_at < ?", cutoff).Delete(&RawRecord{})
		if result.Error != nil {
			return deleted, errors.Wrap(result.Error, "failed to delete expired raw records")
		}

		deleted += result.RowsAffected
		if result.RowsAffected < deleteBatchSize {
			return deleted, nil
		}
	}
}
