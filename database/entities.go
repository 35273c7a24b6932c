package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BaseEntity is an abstract entity, all other entities should be derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

// Source is the closed set of supported upstream data sources. It is used
// as a map key throughout the pipeline and stored as a short varchar.
type Source string

const (
	SourceCoinPaprika Source = "coinpaprika"
	SourceCoinGecko   Source = "coingecko"
	SourceCSV         Source = "csv"
)

// AllSources lists every supported source in a stable order.
func AllSources() []Source {
	return []Source{SourceCoinPaprika, SourceCoinGecko, SourceCSV}
}

// IsValid reports whether s is a known source tag.
func (s Source) IsValid() bool {
	switch s {
	case SourceCoinPaprika, SourceCoinGecko, SourceCSV:
		return true
	}
	return false
}

// RunStatus tracks the lifecycle of one ingestion run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// Coin is the canonical, system-owned identity of an asset, independent of
// any source's naming. All price data references it via CoinID.
type Coin struct {
	BaseEntity
	Symbol    string `gorm:"type:varchar(20);not null;index"`
	Name      string `gorm:"type:varchar(100);not null"`
	Slug      string `gorm:"type:varchar(100);not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceAssetMapping links a source-native identifier to a canonical Coin.
// Exactly one mapping may exist per (source, source_id).
type SourceAssetMapping struct {
	BaseEntity
	CoinID       uint64  `gorm:"not null;index"`
	Source       Source  `gorm:"type:varchar(20);not null;uniqueIndex:uq_source_asset_mapping,priority:1"`
	SourceID     string  `gorm:"type:varchar(100);not null;uniqueIndex:uq_source_asset_mapping,priority:2"`
	SourceSymbol string  `gorm:"type:varchar(20);not null;index:ix_source_mapping_source_symbol"`
	SourceName   *string `gorm:"type:varchar(100)"`
	CreatedAt    time.Time
}

// PricePoint is one observation of an asset's market state from one source.
// CoinID is authoritative; Symbol is denormalized for query convenience.
// CoinID is nullable for legacy rows ingested before entity resolution.
type PricePoint struct {
	BaseEntity
	CoinID     *uint64             `gorm:"index;uniqueIndex:uq_coin_source_timestamp,priority:1"`
	Symbol     string              `gorm:"type:varchar(20);not null;index"`
	PriceUSD   decimal.NullDecimal `gorm:"column:price_usd;type:numeric(20,8)"`
	MarketCap  decimal.NullDecimal `gorm:"column:market_cap;type:numeric(30,2)"`
	Volume24h  decimal.NullDecimal `gorm:"column:volume_24h;type:numeric(30,2)"`
	Source     Source              `gorm:"type:varchar(20);not null;uniqueIndex:uq_coin_source_timestamp,priority:2"`
	Timestamp  time.Time           `gorm:"not null;index;uniqueIndex:uq_coin_source_timestamp,priority:3"`
	IngestedAt time.Time           `gorm:"not null"`
}

// RawRecord stores one upstream payload verbatim for the audit trail.
// Rows are write-once and never read back by the pipeline itself.
type RawRecord struct {
	BaseEntity
	Source    Source         `gorm:"type:varchar(20);not null;index"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

// RunRecord is the durable ledger entry for one ingestion run. It is
// created with status running, finalized exactly once and never mutated
// afterwards. Checkpoint is the latest successfully processed observation
// timestamp for the source.
type RunRecord struct {
	BaseEntity
	RunUID           uuid.UUID `gorm:"type:varchar(36);not null"`
	Source           Source    `gorm:"type:varchar(20);not null;index:ix_run_records_source_status,priority:1"`
	Status           RunStatus `gorm:"type:varchar(10);not null;index:ix_run_records_source_status,priority:2"`
	Checkpoint       *time.Time
	RecordsProcessed int       `gorm:"not null;default:0"`
	StartedAt        time.Time `gorm:"not null"`
	CompletedAt      *time.Time
	ErrorMessage     *string `gorm:"type:varchar(1000)"`
}
