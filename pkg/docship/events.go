package docship

import (
	"time"

	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/internal/domain"
)

// State is the lifecycle state of a Docship instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// BatchSentEvent is emitted after a bulk request was answered.
type BatchSentEvent struct {
	Items     int
	Bytes     int
	Duration  time.Duration
	Succeeded int
	Retryable int
	Failed    int
}

// BatchErrorEvent is emitted when a bulk request failed as a whole.
type BatchErrorEvent struct {
	Error error
	Items int
	Fatal bool
}

// EventHandler receives Docship events. Methods are called synchronously
// from worker goroutines and must return quickly.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
	OnBatchSent(event BatchSentEvent)
	OnBatchError(event BatchErrorEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnBatchSent(BatchSentEvent)     {}
func (BaseEventHandler) OnBatchError(BatchErrorEvent)   {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnBatchSent(items, bytes int, took time.Duration, res domain.BulkResult) {
	if e.handler == nil {
		return
	}
	e.handler.OnBatchSent(BatchSentEvent{
		Items:     items,
		Bytes:     bytes,
		Duration:  took,
		Succeeded: res.Count(domain.OutcomeSuccess),
		Retryable: res.Count(domain.OutcomeRetryable),
		Failed:    res.Count(domain.OutcomePermanent),
	})
}

func (e *eventEmitterWrapper) OnBatchError(err error, items int) {
	if e.handler == nil {
		return
	}
	e.handler.OnBatchError(BatchErrorEvent{Error: err, Items: items, Fatal: domain.IsFatal(err)})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateFailed:
		return StateFailed
	default:
		return StateStopped
	}
}
