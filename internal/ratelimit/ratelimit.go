package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter spaces actions at least a jittered delay apart.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
	rng        *rand.Rand
	sleep      SleepFunc
	now        func() time.Time
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration, rng *rand.Rand) *SimpleRateLimiter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
		rng:      rng,
		sleep:    Sleep,
		now:      time.Now,
	}
}

// WithSleep replaces the sleep used by Wait.
func (r *SimpleRateLimiter) WithSleep(sleep SleepFunc) *SimpleRateLimiter {
	r.sleep = sleep
	return r
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.calculateDelay()

	if !r.lastAction.IsZero() {
		elapsed := r.now().Sub(r.lastAction)
		if elapsed < delay {
			if err := r.sleep(ctx, delay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastAction = r.now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	jitter := time.Duration(r.rng.Int63n(int64(delta) + 1))
	return r.minDelay + jitter
}

// AdaptiveRateLimiter widens its delay after repeated errors (blocks, failed
// extractions) and slowly narrows it again after a streak of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration, rng *rand.Rand) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay, rng),
		maxErrorCount:     3,
		backoffFactor:     1.5,
		floor:             minDelay,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}
