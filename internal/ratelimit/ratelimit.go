// Package ratelimit spaces out work against a retailer: context-aware sleeps,
// jittered inter-task delays and a limiter that slows down after blocks.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Between returns a uniformly random duration in [min, max].
func Between(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int64N(int64(max-min)+1))
}

type Limiter interface {
	Wait(ctx context.Context) error
}

// SimpleRateLimiter keeps a random gap in [minDelay, maxDelay) between actions.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	rng        *rand.Rand
	sleep      func(context.Context, time.Duration) error
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:    Sleep,
	}
}

// Wait blocks until the next action may start. Each caller reserves the
// next free slot under the lock and sleeps without holding it, so
// concurrent tasks of one class are spread out in time.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.minDelay <= 0 && r.maxDelay <= 0 {
		r.mu.Unlock()
		return ctx.Err()
	}

	now := time.Now()
	next := now
	if !r.lastAction.IsZero() {
		if at := r.lastAction.Add(r.calculateDelay()); at.After(now) {
			next = at
		}
	}
	r.lastAction = next
	r.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		return r.sleep(ctx, wait)
	}
	return nil
}

// Delays returns the current delay range.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.minDelay >= r.maxDelay {
		return r.minDelay
	}
	return r.minDelay + time.Duration(r.rng.Int64N(int64(r.maxDelay-r.minDelay)))
}

// AdaptiveRateLimiter widens its delay range after repeated blocks and slowly
// narrows it again while attempts succeed.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	baseMin       time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		baseMin:           minDelay,
		maxErrorCount:     3,
		backoffFactor:     1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.baseMin {
			newMin = a.baseMin
		}
		a.minDelay = newMin
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.successCount = 0
	}
}

// RecordError counts a blocked or failed attempt. Every maxErrorCount
// consecutive errors multiply the delay range by backoffFactor.
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
