package ports

import (
	"context"

	"github.com/bft-labs/docship/internal/domain"
)

// Source yields write operations from an upstream system.
type Source interface {
	// Next blocks until an operation is available. It returns io.EOF when
	// the source is exhausted.
	Next(ctx context.Context) (domain.WriteOperation, error)

	// Close releases the source.
	Close() error
}
