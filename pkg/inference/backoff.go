package inference

import (
	"math"
	"time"
)

// Backoff describes an exponential delay schedule: Base, Base*Multiplier,
// Base*Multiplier^2, ... capped at Cap.
type Backoff struct {
	Base       time.Duration `json:"base"`
	Multiplier float64       `json:"multiplier"`
	Cap        time.Duration `json:"cap"`
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(b.Base) * math.Pow(multiplier, float64(attempt-1))
	if b.Cap > 0 && delay > float64(b.Cap) {
		return b.Cap
	}

	return time.Duration(delay)
}

// DefaultBackoffs are illustrative defaults tuned against provider recovery
// behavior: rate limits want a long first wait, overloads a larger floor than
// plain network flukes.
func DefaultBackoffs() map[ErrorClass]Backoff {
	return map[ErrorClass]Backoff{
		ClassTransientNetwork: {Base: 2 * time.Second, Multiplier: 1.6, Cap: 25 * time.Second},
		ClassServerOverload:   {Base: 5 * time.Second, Multiplier: 2.0, Cap: 60 * time.Second},
		ClassRateLimited:      {Base: 60 * time.Second, Multiplier: 2.0, Cap: 600 * time.Second},
		ClassEmptyResponse:    {Base: 2 * time.Second, Multiplier: 1.6, Cap: 25 * time.Second},
	}
}
