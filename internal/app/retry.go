package app

import (
	"time"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// RetryConfig controls how transient failures are retried.
type RetryConfig struct {
	// MaxRetries is the number of re-submissions allowed after the first
	// attempt.
	MaxRetries int

	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c RetryConfig) policy() domain.BackoffPolicy {
	base, max := c.BackoffBase, c.BackoffMax
	if base <= 0 {
		base = DefaultBackoffInitial
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if max < base {
		max = base
	}
	return domain.BackoffPolicy{Base: base, Max: max, Jitter: backoffJitter}
}

// RetryController turns per-item outcomes into either a terminal report or
// a scheduled re-submission. It never sleeps: delayed items wait in the
// batcher's retry queue.
type RetryController struct {
	maxRetries int
	policy     domain.BackoffPolicy
	batcher    *Batcher
	reporter   *Reporter
	metrics    ports.Metrics
	logger     ports.Logger
	now        func() time.Time
}

// NewRetryController creates a controller feeding retries back into batcher.
func NewRetryController(cfg RetryConfig, batcher *Batcher, reporter *Reporter, metrics ports.Metrics, logger ports.Logger) *RetryController {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryController{
		maxRetries: maxRetries,
		policy:     cfg.policy(),
		batcher:    batcher,
		reporter:   reporter,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// OnResult handles the result of one submission of batch. Item attempt
// counters must already include that submission.
func (c *RetryController) OnResult(batch *domain.Batch, res domain.BulkResult) {
	for i, it := range batch.Items {
		var out domain.Outcome
		if i < len(res.Outcomes) {
			out = res.Outcomes[i]
		} else {
			out = domain.Permanent(0, "no outcome for item", nil)
		}

		if out.Class == domain.OutcomeRetryable {
			if it.Attempts <= c.maxRetries {
				delay := c.policy.Delay(it.Attempts)
				c.metrics.Retry()
				c.logger.Debug("scheduling retry",
					ports.String("key", it.Op.Key()),
					ports.Int("attempts", it.Attempts),
					ports.Duration("delay", delay),
					ports.String("reason", out.Reason),
				)
				c.batcher.Retry(it, c.now().Add(delay))
				continue
			}
			out = domain.Permanent(out.Status, "retries exhausted: "+out.Reason, out.Err)
		}

		c.finish(it, out)
	}
}

// finish reports before releasing the key so outcomes for one document reach
// the handler in submission order.
func (c *RetryController) finish(it domain.Item, out domain.Outcome) {
	out.Attempts = it.Attempts
	c.reporter.Report(it, out)
	c.batcher.Complete(it.Op.Key())
}
