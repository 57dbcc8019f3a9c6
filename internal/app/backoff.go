package app

import (
	"context"
	"time"

	"github.com/bft-labs/docship/internal/domain"
)

// Default backoff configuration values.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
	DefaultMaxRetries     = 5
	backoffJitter         = 0.2
)

// backoff is a stateful exponential backoff for loops that retry one thing
// until it succeeds.
type backoff struct {
	policy  domain.BackoffPolicy
	attempt int
}

// newBackoff creates a new backoff with the given initial and max durations.
func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{policy: domain.BackoffPolicy{Base: initial, Max: max, Jitter: backoffJitter}}
}

// Wait sleeps for the current backoff duration and increases it.
// It returns early with the context error when ctx ends.
func (b *backoff) Wait(ctx context.Context) error {
	b.attempt++
	t := time.NewTimer(b.policy.Delay(b.attempt))
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset resets the backoff to the initial duration.
func (b *backoff) Reset() {
	b.attempt = 0
}

// Current returns the un-jittered duration of the next wait.
func (b *backoff) Current() time.Duration {
	p := b.policy
	p.Jitter = 0
	return p.Delay(b.attempt + 1)
}
