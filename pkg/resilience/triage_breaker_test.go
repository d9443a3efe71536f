package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() BreakerConfig {
	cfg := DefaultBreakerConfig("test")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	return cfg
}

func TestExecuteReturnsValue(t *testing.T) {
	b := NewBreaker(testConfig())

	got, err := Execute(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := Do(context.Background(), b, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.True(t, b.IsOpen())

	called := false
	err := Do(context.Background(), b, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestPermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(testConfig())
	notFound := errors.New("not found")

	for i := 0; i < 5; i++ {
		err := Do(context.Background(), b, func(context.Context) error { return Permanent(notFound) })
		assert.ErrorIs(t, err, notFound)
		assert.False(t, IsPermanent(err))
	}
	assert.False(t, b.IsOpen())
}

func TestExecuteCancelledContext(t *testing.T) {
	b := NewBreaker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, b, func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
