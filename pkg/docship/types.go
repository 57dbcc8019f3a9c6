package docship

import (
	httpAdapter "github.com/bft-labs/docship/internal/adapters/http"
	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// Re-exported types, so callers need only this package.
type (
	WriteOperation = domain.WriteOperation
	Identity       = domain.Identity
	OpKind         = domain.OpKind
	Outcome        = domain.Outcome
	OutcomeClass   = domain.OutcomeClass

	// ResultHandler receives exactly one terminal outcome per operation.
	ResultHandler = ports.ResultHandler
	// ResultHandlerFunc adapts a function to ResultHandler.
	ResultHandlerFunc = ports.ResultHandlerFunc

	Logger  = ports.Logger
	Metrics = ports.Metrics

	// ClusterInfo is what Check reports for each endpoint.
	ClusterInfo = httpAdapter.ClusterInfo
)

const (
	OpIndex  = domain.OpIndex
	OpUpsert = domain.OpUpsert
	OpDelete = domain.OpDelete

	OutcomeSuccess   = domain.OutcomeSuccess
	OutcomeRetryable = domain.OutcomeRetryable
	OutcomePermanent = domain.OutcomePermanent
)

// Errors returned by Docship. Check with errors.Is.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrClosed          = domain.ErrClosed
	ErrShutdown        = domain.ErrShutdown
)

// IsFatal reports whether err halts the write path.
func IsFatal(err error) bool { return domain.IsFatal(err) }

// IsRetryable reports whether resubmitting after err could succeed.
func IsRetryable(err error) bool { return domain.IsRetryable(err) }
