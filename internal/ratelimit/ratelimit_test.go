package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestHumanDelayWithinBounds(t *testing.T) {
	rec := &recordingSleep{}
	h := NewHumanDelay(2*time.Second, 4*time.Second, rand.New(rand.NewSource(1))).WithSleep(rec.sleep)

	for i := 0; i < 100; i++ {
		d, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
	assert.Len(t, rec.delays, 100)
}

func TestHumanDelayDeterministic(t *testing.T) {
	a := NewHumanDelay(time.Second, 3*time.Second, rand.New(rand.NewSource(99)))
	b := NewHumanDelay(time.Second, 3*time.Second, rand.New(rand.NewSource(99)))

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestHumanDelayFixedAndSwapped(t *testing.T) {
	fixed := NewHumanDelay(time.Second, time.Second, nil)
	assert.Equal(t, time.Second, fixed.Next())

	swapped := NewHumanDelay(4*time.Second, 2*time.Second, nil)
	assert.Equal(t, 2*time.Second, swapped.Min)
	assert.Equal(t, 4*time.Second, swapped.Max)
}

func TestHumanDelayCancelled(t *testing.T) {
	h := NewHumanDelay(time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestSimpleRateLimiterFirstWaitDoesNotSleep(t *testing.T) {
	rec := &recordingSleep{}
	r := NewSimpleRateLimiter(3*time.Second, 3*time.Second, nil).WithSleep(rec.sleep)

	require.NoError(t, r.Wait(context.Background()))
	assert.Empty(t, rec.delays)

	require.NoError(t, r.Wait(context.Background()))
	require.Len(t, rec.delays, 1)
	assert.InDelta(t, float64(3*time.Second), float64(rec.delays[0]), float64(100*time.Millisecond))
}

func TestAdaptiveRateLimiter(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second, nil)

	a.RecordError()
	a.RecordError()
	min, max := a.Delays()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 4*time.Second, max)

	a.RecordError()
	min, max = a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.InDelta(t, float64(2700*time.Millisecond), float64(min), float64(time.Millisecond))

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delays()
	assert.Equal(t, 2*time.Second, min, "success streaks never go below the configured floor")
}

func TestAdaptiveRateLimiterCaps(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second, nil)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delays()
	assert.Equal(t, 60*time.Second, min)
	assert.Equal(t, 120*time.Second, max)
}
