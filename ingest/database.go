package ingest

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/extractor"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/resolver"
)

type resolvedCandidate struct {
	coinID    uint64
	candidate extractor.Candidate
}

// saveRawRecords persists the upstream batch verbatim for the audit trail.
func saveRawRecords(tx *gorm.DB, source database.Source, raw []extractor.RawRecord) error {
	if len(raw) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*database.RawRecord, 0, len(raw))
	for _, r := range raw {
		payload, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "saveRawRecords: marshal payload")
		}
		rows = append(rows, &database.RawRecord{
			Source:    source,
			Payload:   datatypes.JSON(payload),
			CreatedAt: now,
		})
	}

	err := tx.CreateInBatches(rows, database.DBTransactionBatchesSize).Error
	if err != nil {
		return errors.Wrap(err, "saveRawRecords: CreateInBatches")
	}

	return nil
}

// dedupeResolved collapses candidates sharing (coin, timestamp) within one
// batch. The later occurrence wins; winners keep first-appearance order.
func dedupeResolved(source database.Source, resolved []resolvedCandidate) []resolvedCandidate {
	type pointKey struct {
		coinID    uint64
		timestamp int64
	}

	order := make([]pointKey, 0, len(resolved))
	latest := make(map[pointKey]resolvedCandidate, len(resolved))

	for _, rc := range resolved {
		key := pointKey{coinID: rc.coinID, timestamp: rc.candidate.Timestamp.UTC().UnixNano()}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = rc
	}

	if dropped := len(resolved) - len(order); dropped > 0 {
		logger.Warn("%s: dropped %d duplicate records within batch", source, dropped)
	}

	deduped := make([]resolvedCandidate, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, latest[key])
	}

	return deduped
}

// upsertPricePoints writes the deduplicated batch, inserting new
// observations and overwriting the market fields of existing ones.
// Identity columns are never touched by the update path, so replaying a
// batch is a no-op beyond refreshed ingestion timestamps.
func upsertPricePoints(tx *gorm.DB, resolved []resolvedCandidate) (int, error) {
	if len(resolved) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	points := make([]*database.PricePoint, 0, len(resolved))
	for _, rc := range resolved {
		coinID := rc.coinID
		points = append(points, &database.PricePoint{
			CoinID:     &coinID,
			Symbol:     resolver.NormalizeSymbol(rc.candidate.Symbol),
			PriceUSD:   rc.candidate.PriceUSD,
			MarketCap:  rc.candidate.MarketCap,
			Volume24h:  rc.candidate.Volume24h,
			Source:     rc.candidate.Source,
			Timestamp:  rc.candidate.Timestamp.UTC(),
			IngestedAt: now,
		})
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "coin_id"}, {Name: "source"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price_usd", "market_cap", "volume_24h", "ingested_at",
		}),
	}).CreateInBatches(points, database.DBTransactionBatchesSize).Error
	if err != nil {
		return 0, errors.Wrap(err, "upsertPricePoints: CreateInBatches")
	}

	return len(points), nil
}
