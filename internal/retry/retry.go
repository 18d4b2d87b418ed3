// Package retry runs a fallible unit of work a bounded number of times with
// linear backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/maltedev/sku-scraper/internal/ratelimit"
)

// ErrExhausted is reported to Observer.OnExhausted; Do never returns it.
var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	// Retries is the number of retries after the first attempt.
	Retries   int
	BaseDelay time.Duration
	// MaxJitter bounds the random delay added to each backoff. Defaults to 1s.
	MaxJitter time.Duration

	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Retries:   3,
		BaseDelay: 3 * time.Second,
		MaxJitter: time.Second,
	}
}

// Delay returns the wait after failed attempt n (1-based): BaseDelay*n plus jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if p.MaxJitter > 0 && p.Jitter != nil {
		d += p.Jitter(p.MaxJitter)
	}
	return d
}

func (p Policy) withDefaults() Policy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.MaxJitter == 0 {
		p.MaxJitter = time.Second
	}
	if p.Sleep == nil {
		p.Sleep = ratelimit.Sleep
	}
	if p.Jitter == nil {
		p.Jitter = func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max)))
		}
	}
	return p
}

// Observer receives attempt outcomes. Logging lives here, not in Do.
type Observer interface {
	OnSuccess(attempt int)
	OnAttemptFailed(attempt int, err error, delay time.Duration)
	OnExhausted(attempts int, err error)
	// OnCancelled reports a context cancellation. It replaces OnExhausted:
	// an interrupted task has not used up its attempts.
	OnCancelled(attempts int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnSuccess(int)                             {}
func (NopObserver) OnAttemptFailed(int, error, time.Duration) {}
func (NopObserver) OnExhausted(int, error)                    {}
func (NopObserver) OnCancelled(int, error)                    {}

// Do calls fn up to Retries+1 times and returns the first successful result.
// Once every attempt has failed it returns the zero value and false; a
// cancelled context stops further attempts the same way but is reported
// through OnCancelled.
func Do[T any](ctx context.Context, fn func(ctx context.Context, attempt int) (T, error), policy Policy, obs Observer) (T, bool) {
	var zero T
	if obs == nil {
		obs = NopObserver{}
	}
	p := policy.withDefaults()
	total := p.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if err := ctx.Err(); err != nil {
			obs.OnCancelled(attempt-1, err)
			return zero, false
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			obs.OnSuccess(attempt)
			return result, true
		}
		lastErr = err

		if ctx.Err() != nil {
			obs.OnCancelled(attempt, err)
			return zero, false
		}

		if attempt == total {
			obs.OnAttemptFailed(attempt, err, 0)
			break
		}

		delay := p.Delay(attempt)
		obs.OnAttemptFailed(attempt, err, delay)
		if err := p.Sleep(ctx, delay); err != nil {
			obs.OnCancelled(attempt, err)
			return zero, false
		}
	}

	obs.OnExhausted(total, errors.Join(ErrExhausted, lastErr))
	return zero, false
}
