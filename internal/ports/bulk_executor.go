package ports

import (
	"context"

	"github.com/bft-labs/docship/internal/domain"
)

// BulkExecutor submits one batch as a single bulk request.
type BulkExecutor interface {
	// Submit sends the batch and returns one outcome per item, positionally
	// aligned with batch.Items. A non-nil error is returned only for fatal
	// conditions (trust, hostname or protocol failures); the result is still
	// populated in that case with every item marked permanent.
	Submit(ctx context.Context, batch *domain.Batch) (domain.BulkResult, error)
}
