package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// maxErrorMessageLen bounds error text so it always fits the
// run_records.error_message column.
const maxErrorMessageLen = 1000

// CreateRun inserts a ledger row with status running. The insert commits
// independently of any ingestion transaction so the row is visible to
// observers even if the run later fails.
func CreateRun(ctx context.Context, db *gorm.DB, source Source) (*RunRecord, error) {
	run := &RunRecord{
		RunUID:    uuid.New(),
		Source:    source,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, errors.Wrap(err, "CreateRun: Create")
	}

	return run, nil
}

// FinalizeRun marks a run terminal. It updates the stored row and the
// in-memory record; a run is finalized exactly once.
func FinalizeRun(
	ctx context.Context,
	db *gorm.DB,
	run *RunRecord,
	status RunStatus,
	recordsProcessed int,
	checkpoint *time.Time,
	errorMessage string,
) error {
	completedAt := time.Now().UTC()

	updates := map[string]interface{}{
		"status":            status,
		"records_processed": recordsProcessed,
		"checkpoint":        checkpoint,
		"completed_at":      completedAt,
		"error_message":     nil,
	}

	var boundedErr *string
	if errorMessage != "" {
		truncated := TruncateError(errorMessage)
		boundedErr = &truncated
		updates["error_message"] = boundedErr
	}

	err := db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", run.ID).Updates(updates).Error
	if err != nil {
		return errors.Wrap(err, "FinalizeRun: Updates")
	}

	run.Status = status
	run.RecordsProcessed = recordsProcessed
	run.Checkpoint = checkpoint
	run.CompletedAt = &completedAt
	run.ErrorMessage = boundedErr

	return nil
}

// LastCheckpoint returns the checkpoint of the most recent successful run
// for the source, or nil when the source has never completed a run.
func LastCheckpoint(ctx context.Context, db *gorm.DB, source Source) (*time.Time, error) {
	var run RunRecord
	err := db.WithContext(ctx).
		Where("source = ? AND status = ?", source, RunStatusSuccess).
		Order("completed_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "LastCheckpoint: First")
	}

	return run.Checkpoint, nil
}

// LatestRun returns the most recent run for the source regardless of
// status. Health surfaces use it to expose last status and error text.
func LatestRun(ctx context.Context, db *gorm.DB, source Source) (*RunRecord, error) {
	var run RunRecord
	err := db.WithContext(ctx).
		Where("source = ?", source).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		return nil, errors.Wrap(err, "LatestRun: First")
	}

	return &run, nil
}

// TruncateError bounds an error message to the ledger column length.
func TruncateError(msg string) string {
	if len(msg) > maxErrorMessageLen-10 {
		return msg[:maxErrorMessageLen-10] + "..."
	}
	return msg
}
