package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
)

// recordingTimer captures requested backoff delays and fires immediately,
// so retry tests run without sleeping.
type recordingTimer struct {
	delays []time.Duration
	ch     chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{ch: make(chan time.Time, 1)}
}

func (t *recordingTimer) Start(duration time.Duration) {
	t.delays = append(t.delays, duration)
	t.ch <- time.Now()
}

func (t *recordingTimer) C() <-chan time.Time {
	return t.ch
}

func (t *recordingTimer) Stop() {}

func testPolicy(timer backoff.Timer) retryPolicy {
	p := newRetryPolicy(config.APISourceConfig{
		MaxRetries:           3,
		RetryBaseDelayMillis: 100,
	})
	p.timer = timer
	return p
}

func TestRetryDelaysDoubleEachAttempt(t *testing.T) {
	timer := newRecordingTimer()
	policy := testPolicy(timer)

	attempts := 0
	err := policy.run(context.Background(), func() error {
		attempts++
		return ErrRateLimited
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, timer.delays)
}

func TestRetryRecoversAfterTransientErrors(t *testing.T) {
	timer := newRecordingTimer()
	policy := testPolicy(timer)

	attempts := 0
	err := policy.run(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return ErrRateLimited
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, timer.delays, 2)
}

func TestRetryPermanentErrorFailsFast(t *testing.T) {
	timer := newRecordingTimer()
	policy := testPolicy(timer)

	terminal := errors.New("bad request")

	attempts := 0
	err := policy.run(context.Background(), func() error {
		attempts++
		return backoff.Permanent(terminal)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, timer.delays)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	timer := newRecordingTimer()
	policy := testPolicy(timer)

	attempts := 0
	err := policy.run(ctx, func() error {
		attempts++
		cancel()
		return ErrRateLimited
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
