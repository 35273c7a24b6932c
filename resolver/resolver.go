// Package resolver maps source-specific asset identifiers to canonical
// Coin entities. It is the core of entity normalization: different sources
// use different native ids for the same asset, and colliding symbols must
// resolve to a single canonical record.
package resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

// ErrResolutionConflict is returned when concurrent creation of the same
// coin or mapping could not be settled by re-reading the winner. Callers
// retry resolution in a fresh attempt instead of treating it as fatal.
var ErrResolutionConflict = errors.New("asset resolution conflict")

const resolveAttempts = 2

type mappingKey struct {
	source   database.Source
	sourceID string
}

// Resolver resolves (source, source id) pairs and bare symbols to coin ids.
// Its caches are shared across concurrently running source ingestions.
// Writes happen in the caller's transaction; the resolver never commits.
//
// The shared caches are only populated from committed state: Preload reads
// persisted rows, and Stage.Commit publishes a transaction's resolutions
// after that transaction has committed. Resolutions inside a transaction
// that later rolls back never reach the caches.
type Resolver struct {
	mu           sync.Mutex
	mappingCache map[mappingKey]uint64
	symbolCache  map[string]uint64
	cacheLoaded  bool
}

// CacheStats is a point-in-time view of the resolver caches.
type CacheStats struct {
	MappingEntries int
	SymbolEntries  int
	Loaded         bool
}

func New() *Resolver {
	return &Resolver{
		mappingCache: make(map[mappingKey]uint64),
		symbolCache:  make(map[string]uint64),
	}
}

// Stage is a transaction-scoped view of the resolver. Resolutions made
// through a stage are remembered locally so a batch resolves each asset
// once; Commit publishes them to the shared caches and must be called
// only after the owning transaction has committed. An abandoned stage
// publishes nothing, so rolled-back rows never become cache entries.
type Stage struct {
	r        *Resolver
	mappings map[mappingKey]uint64
	symbols  map[string]uint64
}

func (r *Resolver) NewStage() *Stage {
	return &Stage{
		r:        r,
		mappings: make(map[mappingKey]uint64),
		symbols:  make(map[string]uint64),
	}
}

// Resolve maps a source-specific identifier to its canonical coin id
// without publishing anything to the shared caches. Callers resolving
// inside a transaction should use NewStage instead, so cache entries
// appear only once the transaction commits.
func (r *Resolver) Resolve(
	tx *gorm.DB, source database.Source, sourceID, sourceSymbol, sourceName string,
) (uint64, error) {
	return r.NewStage().Resolve(tx, source, sourceID, sourceSymbol, sourceName)
}

// ResolveBySymbol is the symbol-only counterpart of Resolve. Like Resolve
// it never touches the shared caches directly.
func (r *Resolver) ResolveBySymbol(tx *gorm.DB, symbol string, source database.Source) (uint64, error) {
	return r.NewStage().ResolveBySymbol(tx, symbol, source)
}

// Resolve maps a source-specific identifier to its canonical coin id.
//
// Resolution order, first match wins:
//  1. hit on this stage or the shared (source, sourceID) cache
//  2. existing mapping row for (source, sourceID)
//  3. existing coin with the same normalized symbol - a new mapping links
//     this source to it (cross-source disambiguation)
//  4. no match anywhere - a new coin plus mapping is created
func (s *Stage) Resolve(
	tx *gorm.DB, source database.Source, sourceID, sourceSymbol, sourceName string,
) (uint64, error) {
	key := mappingKey{source: source, sourceID: sourceID}

	if coinID, ok := s.mappings[key]; ok {
		return coinID, nil
	}
	if coinID, ok := s.r.cachedMapping(key); ok {
		return coinID, nil
	}

	symbol := NormalizeSymbol(sourceSymbol)

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		coinID, retry, err := s.r.resolveOnce(tx, key, symbol, sourceSymbol, sourceName)
		if err != nil {
			return 0, err
		}
		if retry {
			continue
		}

		s.mappings[key] = coinID
		s.symbols[symbol] = coinID
		return coinID, nil
	}

	return 0, errors.Wrapf(ErrResolutionConflict, "%s:%s", key.source, key.sourceID)
}

func (r *Resolver) resolveOnce(
	tx *gorm.DB, key mappingKey, symbol, sourceSymbol, sourceName string,
) (coinID uint64, retry bool, err error) {
	// Existing mapping row wins over everything but the caches.
	var mapping database.SourceAssetMapping
	err = tx.Where("source = ? AND source_id = ?", key.source, key.sourceID).First(&mapping).Error
	if err == nil {
		return mapping.CoinID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, errors.Wrap(err, "resolve: query mapping")
	}

	// Cross-source match: another source already registered this symbol.
	var coin database.Coin
	err = tx.Where("symbol = ?", symbol).First(&coin).Error
	if err == nil {
		coinID, err = r.createMapping(tx, coin.ID, key.source, key.sourceID, sourceSymbol, sourceName)
		if err != nil {
			return 0, false, err
		}

		logger.Info("Linked %s:%s to existing Coin %s (id=%d)", key.source, key.sourceID, coin.Symbol, coinID)
		return coinID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, errors.Wrap(err, "resolve: query coin by symbol")
	}

	// Asset not yet in the system.
	name := sourceName
	if name == "" {
		name = symbol
	}

	return r.createCoinWithMapping(tx, symbol, name, key.source, key.sourceID, sourceSymbol)
}

// ResolveBySymbol resolves an asset by symbol only, for sources that lack
// a durable per-asset identifier (file imports). The normalized symbol
// doubles as the source-native id.
func (s *Stage) ResolveBySymbol(tx *gorm.DB, symbol string, source database.Source) (uint64, error) {
	normalized := NormalizeSymbol(symbol)

	if coinID, ok := s.symbols[normalized]; ok {
		return coinID, nil
	}
	if coinID, ok := s.r.cachedSymbol(normalized); ok {
		return coinID, nil
	}

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		var coin database.Coin
		err := tx.Where("symbol = ?", normalized).First(&coin).Error
		if err == nil {
			coinID, err := s.r.createMapping(tx, coin.ID, source, normalized, normalized, "")
			if err != nil {
				return 0, err
			}

			s.stageSymbol(source, normalized, coinID)
			return coinID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errors.Wrap(err, "resolveBySymbol: query coin")
		}

		coinID, retry, err := s.r.createCoinWithMapping(tx, normalized, normalized, source, normalized, normalized)
		if err != nil {
			return 0, err
		}
		if retry {
			continue
		}

		s.stageSymbol(source, normalized, coinID)
		return coinID, nil
	}

	return 0, errors.Wrapf(ErrResolutionConflict, "%s:%s", source, symbol)
}

func (s *Stage) stageSymbol(source database.Source, normalized string, coinID uint64) {
	s.mappings[mappingKey{source: source, sourceID: normalized}] = coinID
	s.symbols[normalized] = coinID
}

// Commit publishes the stage's resolutions to the shared caches. Call it
// only once the owning transaction has committed.
func (s *Stage) Commit() {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	for key, coinID := range s.mappings {
		s.r.mappingCache[key] = coinID
	}
	for symbol, coinID := range s.symbols {
		s.r.symbolCache[symbol] = coinID
	}
}

// CoinIDBySymbol looks up a coin id by symbol without creating any rows.
func (r *Resolver) CoinIDBySymbol(tx *gorm.DB, symbol string) (uint64, bool, error) {
	normalized := NormalizeSymbol(symbol)

	if coinID, ok := r.cachedSymbol(normalized); ok {
		return coinID, true, nil
	}

	var coin database.Coin
	err := tx.Where("symbol = ?", normalized).First(&coin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "coinIDBySymbol: query coin")
	}

	return coin.ID, true, nil
}

// createMapping inserts a mapping row with the store's conditional-write
// primitive. A lost race on (source, source_id) is settled by reading the
// winner, so the returned coin id is always the one the mapping owns.
func (r *Resolver) createMapping(
	tx *gorm.DB, coinID uint64, source database.Source, sourceID, sourceSymbol, sourceName string,
) (uint64, error) {
	mapping := database.SourceAssetMapping{
		CoinID:       coinID,
		Source:       source,
		SourceID:     sourceID,
		SourceSymbol: sourceSymbol,
	}
	if sourceName != "" {
		mapping.SourceName = &sourceName
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "source_id"}},
		DoNothing: true,
	}).Create(&mapping)
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "createMapping")
	}

	if res.RowsAffected == 0 {
		// Lost a concurrent creation race, read the winner.
		var existing database.SourceAssetMapping
		err := tx.Where("source = ? AND source_id = ?", source, sourceID).First(&existing).Error
		if err != nil {
			return 0, errors.Wrapf(ErrResolutionConflict, "mapping %s:%s vanished after conflict", source, sourceID)
		}
		return existing.CoinID, nil
	}

	logger.Debug("Created mapping: %s:%s -> coin_id=%d", source, sourceID, coinID)
	return coinID, nil
}

// createCoinWithMapping creates a new coin and its mapping. A slug
// conflict means another resolution created the coin first; the existing
// coin is reused when readable, otherwise the caller retries.
func (r *Resolver) createCoinWithMapping(
	tx *gorm.DB, symbol, name string, source database.Source, sourceID, sourceSymbol string,
) (coinID uint64, retry bool, err error) {
	coin := database.Coin{
		Symbol: symbol,
		Name:   name,
		Slug:   GenerateSlug(symbol, name),
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&coin)
	if res.Error != nil {
		return 0, false, errors.Wrap(res.Error, "createCoinWithMapping: create coin")
	}

	if res.RowsAffected == 0 {
		var existing database.Coin
		if err := tx.Where("slug = ?", coin.Slug).First(&existing).Error; err != nil {
			return 0, true, nil
		}
		coin = existing
	}

	coinID, err = r.createMapping(tx, coin.ID, source, sourceID, sourceSymbol, name)
	if err != nil {
		return 0, false, err
	}

	logger.Info("Created new Coin: %s (id=%d) from %s:%s", symbol, coin.ID, source, sourceID)
	return coinID, false, nil
}

// Preload warms the caches from persisted mappings and coins. It runs at
// most once per process; failures are logged, not fatal.
func (r *Resolver) Preload(ctx context.Context, db *gorm.DB) {
	r.mu.Lock()
	loaded := r.cacheLoaded
	r.mu.Unlock()
	if loaded {
		return
	}

	var mappings []database.SourceAssetMapping
	if err := db.WithContext(ctx).Find(&mappings).Error; err != nil {
		logger.Warn("Failed to preload resolver mappings: %s", err)
		return
	}

	var coins []database.Coin
	if err := db.WithContext(ctx).Find(&coins).Error; err != nil {
		logger.Warn("Failed to preload resolver coins: %s", err)
		return
	}

	r.mu.Lock()
	for _, m := range mappings {
		r.mappingCache[mappingKey{source: m.Source, sourceID: m.SourceID}] = m.CoinID
	}
	for _, c := range coins {
		r.symbolCache[c.Symbol] = c.ID
	}
	r.cacheLoaded = true
	r.mu.Unlock()

	logger.Info("Resolver cache loaded: %d mappings, %d coins", len(mappings), len(coins))
}

// Reset clears the caches. Used by tests and cold restarts.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mappingCache = make(map[mappingKey]uint64)
	r.symbolCache = make(map[string]uint64)
	r.cacheLoaded = false
}

// Stats reports cache sizes for monitoring. The caches have no eviction
// policy; growth is bounded only by the number of distinct assets seen.
func (r *Resolver) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return CacheStats{
		MappingEntries: len(r.mappingCache),
		SymbolEntries:  len(r.symbolCache),
		Loaded:         r.cacheLoaded,
	}
}

func (r *Resolver) cachedMapping(key mappingKey) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coinID, ok := r.mappingCache[key]
	return coinID, ok
}

func (r *Resolver) cachedSymbol(symbol string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coinID, ok := r.symbolCache[symbol]
	return coinID, ok
}

// NormalizeSymbol uppercases and trims a source-provided symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
