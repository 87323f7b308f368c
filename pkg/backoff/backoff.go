// Package backoff provides exponential backoff calculation and a jittered retry loop.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 1s
	Max     time.Duration // default: no cap
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := time.Second
	var maxBackoff time.Duration
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// Jittered stretches d by a factor of (1 + jitter), jitter in [0, 1).
func Jittered(d time.Duration, jitter float64) time.Duration {
	if jitter < 0 {
		jitter = 0
	}
	return time.Duration(float64(d) * (1 + jitter))
}
