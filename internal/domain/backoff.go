package domain

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes exponential delays with jitter.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration

	// Jitter is the relative spread applied to each delay, 0.2 means +/-20%.
	Jitter float64
}

// Delay returns the wait before the given attempt (1-based):
// min(Base * 2^(attempt-1), Max), then jittered.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + p.Jitter*(rand.Float64()*2-1)))
	}
	if d < 0 {
		d = 0
	}
	return d
}
