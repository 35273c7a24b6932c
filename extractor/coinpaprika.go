package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

const coinPaprikaBaseURL = "https://api.coinpaprika.com/v1"

// CoinPaprika extracts ticker data from the CoinPaprika /tickers
// endpoint. The paprika id (e.g. "btc-bitcoin") is the durable source id.
type CoinPaprika struct {
	apiKey string
	client Doer
	retry  retryPolicy
}

func NewCoinPaprika(cfg config.APISourceConfig) *CoinPaprika {
	return &CoinPaprika{
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: config.RequestTimeout},
		retry:  newRetryPolicy(cfg),
	}
}

func (c *CoinPaprika) Source() database.Source {
	return database.SourceCoinPaprika
}

func (c *CoinPaprika) Fetch(ctx context.Context, since *time.Time) ([]RawRecord, error) {
	url := coinPaprikaBaseURL + "/tickers?quotes=USD"

	var data []RawRecord

	err := c.retry.run(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
			return backoff.Permanent(fmt.Errorf("coinpaprika api status %d", resp.StatusCode))
		}

		data = data[:0]
		return json.NewDecoder(resp.Body).Decode(&data)
	})
	if err != nil {
		return nil, extractionErr(c.Source(), "fetch tickers", err)
	}

	data = filterSince(data, "last_updated", since)

	logger.Info("CoinPaprika: fetched %d records", len(data))
	return data, nil
}

func (c *CoinPaprika) Normalize(raw []RawRecord) []Candidate {
	candidates := make([]Candidate, 0, len(raw))

	for _, r := range raw {
		symbol, ok := stringField(r, "symbol")
		if !ok {
			logger.Warn("CoinPaprika: skipping record without symbol")
			continue
		}

		timestamp, ok := timeField(r, "last_updated")
		if !ok {
			timestamp = time.Now().UTC()
		}

		sourceID, _ := stringField(r, "id")
		name, _ := stringField(r, "name")

		price, marketCap, volume := usdQuote(r)

		candidates = append(candidates, Candidate{
			Symbol:    symbol,
			SourceID:  sourceID,
			Name:      name,
			PriceUSD:  price,
			MarketCap: marketCap,
			Volume24h: volume,
			Source:    c.Source(),
			Timestamp: timestamp,
		})
	}

	logger.Info("CoinPaprika: normalized %d records", len(candidates))
	return candidates
}

// usdQuote digs the USD quote object out of a paprika ticker record.
func usdQuote(r RawRecord) (price, marketCap, volume decimal.NullDecimal) {
	quotes, ok := r["quotes"].(map[string]interface{})
	if !ok {
		return
	}

	usd, ok := quotes["USD"].(map[string]interface{})
	if !ok {
		return
	}

	quote := RawRecord(usd)
	return numberField(quote, "price"), numberField(quote, "market_cap"), numberField(quote, "volume_24h")
}
