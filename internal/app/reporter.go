package app

import (
	"sort"
	"sync"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// Reporter delivers exactly one terminal outcome per submitted item.
//
// Outcomes are delivered one at a time in the order they were reported,
// with no lock held, so a handler may submit or report from OnOutcome.
// A report made while another goroutine is delivering is queued and handed
// to the handler by that goroutine.
type Reporter struct {
	mu          sync.Mutex
	handler     ports.ResultHandler
	outstanding map[uint64]domain.WriteOperation
	queue       []delivery
	delivering  bool
	metrics     ports.Metrics
	logger      ports.Logger
}

type delivery struct {
	op  domain.WriteOperation
	out domain.Outcome
}

// NewReporter creates a reporter delivering to handler. A nil handler
// discards outcomes.
func NewReporter(handler ports.ResultHandler, metrics ports.Metrics, logger ports.Logger) *Reporter {
	if handler == nil {
		handler = ports.ResultHandlerFunc(func(domain.WriteOperation, domain.Outcome) {})
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Reporter{
		handler:     handler,
		outstanding: make(map[uint64]domain.WriteOperation),
		metrics:     metrics,
		logger:      logger,
	}
}

// Register records an item as awaiting its outcome.
func (r *Reporter) Register(it domain.Item) {
	r.mu.Lock()
	r.outstanding[it.Seq] = it.Op
	r.mu.Unlock()
}

// Forget drops a registered item that never entered the pipeline. It
// returns false when the item had already been reported.
func (r *Reporter) Forget(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.outstanding[seq]
	delete(r.outstanding, seq)
	return ok
}

// Report delivers the outcome for it. It returns false, and drops the
// outcome, when the item was already reported or never registered.
func (r *Reporter) Report(it domain.Item, out domain.Outcome) bool {
	r.mu.Lock()
	if _, ok := r.outstanding[it.Seq]; !ok {
		r.mu.Unlock()
		r.logger.Warn("dropping duplicate outcome",
			ports.Uint64("seq", it.Seq),
			ports.String("key", it.Op.Key()),
			ports.String("class", out.Class.String()),
		)
		return false
	}
	delete(r.outstanding, it.Seq)
	r.queue = append(r.queue, delivery{op: it.Op, out: out})
	r.drainLocked()
	return true
}

// drainLocked is called with r.mu held and returns with it released. The
// first caller delivers the queue until it is empty; later callers return
// at once.
func (r *Reporter) drainLocked() {
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.queue) > 0 {
		d := r.queue[0]
		r.queue[0] = delivery{}
		r.queue = r.queue[1:]
		r.mu.Unlock()
		r.deliver(d.op, d.out)
		r.mu.Lock()
	}
	r.queue = nil
	r.delivering = false
	r.mu.Unlock()
}

func (r *Reporter) deliver(op domain.WriteOperation, out domain.Outcome) {
	r.metrics.Outcome(out.Class)
	if out.Class == domain.OutcomePermanent {
		r.logger.Warn("operation failed",
			ports.String("origin", op.Origin.String()),
			ports.String("key", op.Key()),
			ports.Int("status", out.Status),
			ports.String("reason", out.Reason),
		)
	}
	r.handler.OnOutcome(op, out)
}

// FailOutstanding reports every unreported item as a permanent failure
// caused by err, in submission order. It returns the number reported.
func (r *Reporter) FailOutstanding(err error) int {
	r.mu.Lock()
	seqs := make([]uint64, 0, len(r.outstanding))
	for seq := range r.outstanding {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		op := r.outstanding[seq]
		delete(r.outstanding, seq)
		r.queue = append(r.queue, delivery{op: op, out: domain.Permanent(0, err.Error(), err)})
	}
	r.drainLocked()
	return len(seqs)
}

// Outstanding returns the number of items whose outcome has not yet been
// handed to the handler.
func (r *Reporter) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outstanding) + len(r.queue)
}
