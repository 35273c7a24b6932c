package extractor

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/database"
)

// ErrRateLimited marks an upstream 429 response. It is retryable until
// the attempt budget is exhausted.
var ErrRateLimited = errors.New("rate limited by upstream")

// ExtractionError is a terminal extraction failure: retries were
// exhausted or the source returned an unrecoverable response. The
// orchestrator treats it as a run failure.
type ExtractionError struct {
	Source database.Source
	Msg    string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Msg, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErr(source database.Source, msg string, err error) error {
	return &ExtractionError{Source: source, Msg: msg, Err: err}
}
