package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	b := New(Config{MaxFailures: 3, Cooldown: time.Minute, SuccessThreshold: 1})

	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, failing)
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, b.State())

	// Calls are shed without reaching the upstream.
	calls := 0
	err := b.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	b := New(Config{MaxFailures: 2, Cooldown: time.Minute, SuccessThreshold: 1})

	require.Error(t, b.Execute(ctx, failing))
	require.NoError(t, b.Execute(ctx, succeeding))
	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	b := New(Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond, SuccessThreshold: 2})

	require.Error(t, b.Execute(ctx, failing))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	// First probe succeeds but the threshold is 2, so still half-open.
	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	ctx := context.Background()
	b := New(Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond, SuccessThreshold: 1})

	require.Error(t, b.Execute(ctx, failing))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresClassifiedErrors(t *testing.T) {
	ctx := context.Background()
	notFound := errors.New("not found")
	b := New(Config{
		MaxFailures:      1,
		Cooldown:         time.Minute,
		SuccessThreshold: 1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, notFound)
		},
	})

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, func(context.Context) error { return notFound })
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, StateClosed, b.State())

	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerReset(t *testing.T) {
	ctx := context.Background()
	b := New(Config{MaxFailures: 1, Cooldown: time.Hour, SuccessThreshold: 1})

	require.Error(t, b.Execute(ctx, failing))
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, succeeding))
}
