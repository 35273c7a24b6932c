package extractor

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

// CSV extracts price data from a local file with columns
// ticker, price, vol, date. Rows carry no durable source id, so
// candidates resolve through the symbol-only path.
type CSV struct {
	path string
}

func NewCSV(cfg config.CSVSourceConfig) *CSV {
	return &CSV{path: cfg.Path}
}

func (c *CSV) Source() database.Source {
	return database.SourceCSV
}

func (c *CSV) Fetch(ctx context.Context, since *time.Time) ([]RawRecord, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, extractionErr(c.Source(), "open csv file "+c.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, extractionErr(c.Source(), "read csv header", err)
	}

	var records []RawRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, extractionErr(c.Source(), "csv read cancelled", err)
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, extractionErr(c.Source(), "read csv row", err)
		}

		records = append(records, csvRecord(header, row))
	}

	records = filterSince(records, "date", since)

	logger.Info("CSV: fetched %d records from %s", len(records), c.path)
	return records, nil
}

// csvRecord keeps original column names so drift detection sees the file
// schema as-is. Numeric cells are parsed; empty or malformed cells stay
// null.
func csvRecord(header, row []string) RawRecord {
	record := make(RawRecord, len(header))

	for i, col := range header {
		if i >= len(row) || row[i] == "" {
			record[col] = nil
			continue
		}

		switch col {
		case "price", "vol":
			if v, err := strconv.ParseFloat(row[i], 64); err == nil {
				record[col] = v
			} else {
				record[col] = nil
			}
		default:
			record[col] = row[i]
		}
	}

	return record
}

func (c *CSV) Normalize(raw []RawRecord) []Candidate {
	candidates := make([]Candidate, 0, len(raw))

	for _, r := range raw {
		symbol, ok := stringField(r, "ticker")
		if !ok {
			logger.Warn("CSV: skipping row without ticker")
			continue
		}

		timestamp, ok := timeField(r, "date")
		if !ok {
			logger.Warn("CSV: skipping row for %s with unparseable date", symbol)
			continue
		}

		candidates = append(candidates, Candidate{
			Symbol:    symbol,
			PriceUSD:  numberField(r, "price"),
			Volume24h: numberField(r, "vol"),
			Source:    c.Source(),
			Timestamp: timestamp,
		})
	}

	logger.Info("CSV: normalized %d records", len(candidates))
	return candidates
}
