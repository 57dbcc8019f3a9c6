package ports

import "github.com/bft-labs/docship/internal/domain"

// ResultHandler receives the terminal outcome of each submitted operation.
// Calls are serialized; implementations need not be safe for concurrent use
// by the pipeline, but must not block for long.
type ResultHandler interface {
	OnOutcome(op domain.WriteOperation, outcome domain.Outcome)
}

// ResultHandlerFunc adapts a function to ResultHandler.
type ResultHandlerFunc func(op domain.WriteOperation, outcome domain.Outcome)

// OnOutcome calls f(op, outcome).
func (f ResultHandlerFunc) OnOutcome(op domain.WriteOperation, outcome domain.Outcome) {
	f(op, outcome)
}
