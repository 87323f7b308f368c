package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	// DefaultJitter bounds the random stretch added to each delay: [0, 0.3).
	DefaultJitter = 0.3
)

// Attempt describes one failed try, handed to Policy.OnRetry.
type Attempt struct {
	Number      int // 1-based number of the attempt that failed
	MaxAttempts int
	BaseDelay   time.Duration
	Delay       time.Duration // suspension before the next attempt
	Err         error
}

// Policy configures Do. Zero values use the defaults above.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
	// Sleep suspends for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after every failed attempt that will be retried.
	OnRetry func(a Attempt)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Jitter <= 0 {
		p.Jitter = DefaultJitter
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Delay returns the suspension between attempt k and k+1 (k is 0-based):
// base * 2^k * (1 + jitter*r) with r in [0, 1).
func (p Policy) Delay(k int, r float64) time.Duration {
	p = p.withDefaults()
	d := Exponential(k+1, &Config{Initial: p.BaseDelay})
	return Jittered(d, p.Jitter*r)
}

// Do runs op up to MaxAttempts times. Every failure is retried the same way;
// once the budget is spent the last failure is returned unmodified. If ctx is
// cancelled while waiting, Do stops and returns the last failure as well.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for k := 0; k < p.MaxAttempts; k++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if k == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(k, p.Rand())
		if p.OnRetry != nil {
			p.OnRetry(Attempt{
				Number:      k + 1,
				MaxAttempts: p.MaxAttempts,
				BaseDelay:   p.BaseDelay,
				Delay:       delay,
				Err:         err,
			})
		}
		if p.Sleep(ctx, delay) != nil {
			break
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
