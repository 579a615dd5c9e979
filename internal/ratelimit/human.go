package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HumanDelay sleeps for a duration drawn uniformly from [Min, Max] before
// sensitive operations such as navigation.
type HumanDelay struct {
	Min time.Duration
	Max time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

func NewHumanDelay(min, max time.Duration, rng *rand.Rand) *HumanDelay {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if max < min {
		min, max = max, min
	}
	return &HumanDelay{
		Min:   min,
		Max:   max,
		rng:   rng,
		sleep: Sleep,
	}
}

// WithSleep replaces the sleep used by Wait.
func (h *HumanDelay) WithSleep(sleep SleepFunc) *HumanDelay {
	h.sleep = sleep
	return h
}

// Next samples the next delay without sleeping.
func (h *HumanDelay) Next() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Max <= h.Min {
		return h.Min
	}
	return h.Min + time.Duration(h.rng.Int63n(int64(h.Max-h.Min)+1))
}

// Wait sleeps for a sampled delay and returns it. It returns early with the
// context error when ctx is cancelled.
func (h *HumanDelay) Wait(ctx context.Context) (time.Duration, error) {
	d := h.Next()
	if err := h.sleep(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}
