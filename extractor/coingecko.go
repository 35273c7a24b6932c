package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

const (
	coinGeckoBaseURL    = "https://api.coingecko.com/api/v3"
	coinGeckoProBaseURL = "https://pro-api.coingecko.com/api/v3"

	// Free tier allows 10-30 calls/min; two pages of 250 keeps runs
	// well inside the budget.
	coinGeckoPageSize = 250
	coinGeckoMaxPages = 2
)

// CoinGecko extracts market data from the CoinGecko /coins/markets
// endpoint. The CoinGecko id (e.g. "bitcoin") is the durable source id.
type CoinGecko struct {
	apiKey string
	client Doer
	retry  retryPolicy
}

func NewCoinGecko(cfg config.APISourceConfig) *CoinGecko {
	return &CoinGecko{
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: config.RequestTimeout},
		retry:  newRetryPolicy(cfg),
	}
}

func (c *CoinGecko) Source() database.Source {
	return database.SourceCoinGecko
}

func (c *CoinGecko) Fetch(ctx context.Context, since *time.Time) ([]RawRecord, error) {
	var all []RawRecord

	for page := 1; page <= coinGeckoMaxPages; page++ {
		pageData, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, extractionErr(c.Source(), fmt.Sprintf("fetch markets page %d", page), err)
		}

		all = append(all, pageData...)
		if len(pageData) < coinGeckoPageSize {
			break
		}
	}

	all = filterSince(all, "last_updated", since)

	logger.Info("CoinGecko: fetched %d records", len(all))
	return all, nil
}

func (c *CoinGecko) fetchPage(ctx context.Context, page int) ([]RawRecord, error) {
	baseURL := coinGeckoBaseURL
	if c.apiKey != "" {
		baseURL = coinGeckoProBaseURL
	}

	url := fmt.Sprintf(
		"%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=%d&sparkline=false",
		baseURL, coinGeckoPageSize, page,
	)

	var pageData []RawRecord

	err := c.retry.run(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-pro-api-key", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimited
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("coingecko api status %d", resp.StatusCode))
		}

		pageData = pageData[:0]
		return json.NewDecoder(resp.Body).Decode(&pageData)
	})

	return pageData, err
}

func (c *CoinGecko) Normalize(raw []RawRecord) []Candidate {
	candidates := make([]Candidate, 0, len(raw))

	for _, r := range raw {
		symbol, ok := stringField(r, "symbol")
		if !ok {
			logger.Warn("CoinGecko: skipping record without symbol")
			continue
		}

		timestamp, ok := timeField(r, "last_updated")
		if !ok {
			timestamp = time.Now().UTC()
		}

		sourceID, _ := stringField(r, "id")
		name, _ := stringField(r, "name")

		candidates = append(candidates, Candidate{
			Symbol:    symbol,
			SourceID:  sourceID,
			Name:      name,
			PriceUSD:  numberField(r, "current_price"),
			MarketCap: numberField(r, "market_cap"),
			Volume24h: numberField(r, "total_volume"),
			Source:    c.Source(),
			Timestamp: timestamp,
		})
	}

	logger.Info("CoinGecko: normalized %d records", len(candidates))
	return candidates
}
