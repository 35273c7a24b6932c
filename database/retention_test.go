package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database/dbtest"
)

func TestPruneRawRecordsIteration(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rows := []*database.RawRecord{
		{Source: database.SourceCoinGecko, Payload: datatypes.JSON(`{}`), CreatedAt: now.AddDate(0, 0, -10)},
		{Source: database.SourceCoinGecko, Payload: datatypes.JSON(`{}`), CreatedAt: now.AddDate(0, 0, -8)},
		{Source: database.SourceCSV, Payload: datatypes.JSON(`{}`), CreatedAt: now.AddDate(0, 0, -1)},
		{Source: database.SourceCSV, Payload: datatypes.JSON(`{}`), CreatedAt: now},
	}
	require.NoError(t, db.Create(&rows).Error)

	deleted, err := database.PruneRawRecordsIteration(ctx, db, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining int64
	require.NoError(t, db.Model(&database.RawRecord{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)

	// Idempotent once the backlog is gone.
	deleted, err = database.PruneRawRecordsIteration(ctx, db, 7)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
