package extractor

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
	"github.com/Rajveerjagtap/kasparro-crypto-etl/logger"
)

// Doer abstracts the HTTP client so tests can inject responses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryPolicy implements the pipeline's backoff contract:
// delay = base * 2^attempt, a fixed attempt budget, then terminal.
type retryPolicy struct {
	baseDelay  time.Duration
	maxRetries uint64

	// timer overrides the wait mechanism in tests; nil uses real timers.
	timer backoff.Timer
}

func newRetryPolicy(cfg config.APISourceConfig) retryPolicy {
	return retryPolicy{
		baseDelay:  time.Duration(cfg.RetryBaseDelayMillis) * time.Millisecond,
		maxRetries: uint64(cfg.MaxRetries),
	}
}

func (p retryPolicy) run(ctx context.Context, op backoff.Operation) error {
	bOff := backoff.NewExponentialBackOff()
	bOff.InitialInterval = p.baseDelay
	bOff.RandomizationFactor = 0
	bOff.Multiplier = 2
	bOff.MaxInterval = config.BackoffMaxElapsedTime
	bOff.MaxElapsedTime = config.BackoffMaxElapsedTime
	bOff.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(bOff, p.maxRetries), ctx)

	return backoff.RetryNotifyWithTimer(
		op,
		policy,
		func(err error, d time.Duration) {
			logger.Warn("Transient extraction error: %s. Will retry after %s", err, d)
		},
		p.timer,
	)
}
