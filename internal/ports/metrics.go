package ports

import (
	"time"

	"github.com/bft-labs/docship/internal/domain"
)

// Metrics records pipeline measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	BatchSent(items, bytes int, took time.Duration)
	Outcome(class domain.OutcomeClass)
	Retry()
	PoolWaitTimeout(resource string)
	Pending(n int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) BatchSent(int, int, time.Duration) {}
func (NopMetrics) Outcome(domain.OutcomeClass)       {}
func (NopMetrics) Retry()                            {}
func (NopMetrics) PoolWaitTimeout(string)            {}
func (NopMetrics) Pending(int)                       {}
