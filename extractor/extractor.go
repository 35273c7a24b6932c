// Package extractor produces raw records and validated candidate records
// from upstream sources. Each extractor honors the pipeline's retry
// contract: transient and rate-limit errors back off exponentially and
// become a terminal ExtractionError once attempts are exhausted.
package extractor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
)

// RawRecord is one upstream payload, opaque to the pipeline.
type RawRecord map[string]interface{}

// Candidate is a validated record ready for entity resolution and upsert.
// SourceID is empty for sources without durable per-asset identifiers;
// those resolve through the symbol-only path.
type Candidate struct {
	Symbol    string
	SourceID  string
	Name      string
	PriceUSD  decimal.NullDecimal
	MarketCap decimal.NullDecimal
	Volume24h decimal.NullDecimal
	Source    database.Source
	Timestamp time.Time
}

// Extractor is the capability contract every source implements.
type Extractor interface {
	Source() database.Source
	// Fetch returns raw records, bounded below by since for incremental
	// extraction. A nil since requests a full fetch.
	Fetch(ctx context.Context, since *time.Time) ([]RawRecord, error)
	// Normalize transforms raw records into candidates. Malformed
	// records are skipped, never failing the whole batch.
	Normalize(raw []RawRecord) []Candidate
}

// Extract runs the full extraction pipeline: fetch then normalize.
func Extract(ctx context.Context, e Extractor, since *time.Time) ([]RawRecord, []Candidate, error) {
	raw, err := e.Fetch(ctx, since)
	if err != nil {
		return nil, nil, err
	}

	return raw, e.Normalize(raw), nil
}

// FromConfig builds the extractor set for all enabled sources.
func FromConfig(cfg *config.Config) map[database.Source]Extractor {
	extractors := make(map[database.Source]Extractor)

	if cfg.Sources.CoinPaprika.Enabled {
		extractors[database.SourceCoinPaprika] = NewCoinPaprika(cfg.Sources.CoinPaprika)
	}
	if cfg.Sources.CoinGecko.Enabled {
		extractors[database.SourceCoinGecko] = NewCoinGecko(cfg.Sources.CoinGecko)
	}
	if cfg.Sources.CSV.Enabled {
		extractors[database.SourceCSV] = NewCSV(cfg.Sources.CSV)
	}

	return extractors
}
