package domain

// Batch is an ordered group of items sent in one bulk request.
// A batch is owned by a single worker while it is being submitted.
type Batch struct {
	// Items in submission order
	Items []Item

	// Bytes is the sum of the item sizes
	Bytes int
}

// NewBatch creates an empty batch with room for n items.
func NewBatch(n int) *Batch {
	return &Batch{Items: make([]Item, 0, n)}
}

// Add appends an item to the batch.
func (b *Batch) Add(it Item) {
	b.Items = append(b.Items, it)
	b.Bytes += it.Op.Size()
}

// Size returns the number of items in the batch.
func (b *Batch) Size() int {
	return len(b.Items)
}

// Empty returns true if the batch has no items.
func (b *Batch) Empty() bool {
	return len(b.Items) == 0
}

// OutcomeClass classifies the result of one item.
type OutcomeClass int

const (
	OutcomeSuccess OutcomeClass = iota
	OutcomeRetryable
	OutcomePermanent
)

// String returns a human-readable representation of the class.
func (c OutcomeClass) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the result of one item in one submission attempt, or the
// terminal result reported to the caller.
type Outcome struct {
	Class OutcomeClass

	// Status is the per-item HTTP status, 0 when no response was received.
	Status int

	// Reason is the store's error type and reason, or a local description.
	Reason string

	// Err is set when the outcome was caused by a local error.
	Err error

	// Attempts is the number of submissions made, filled in when reported.
	Attempts int
}

// Terminal reports whether the outcome ends the item's life.
func (o Outcome) Terminal() bool {
	return o.Class != OutcomeRetryable
}

// Success builds a success outcome.
func Success(status int) Outcome {
	return Outcome{Class: OutcomeSuccess, Status: status}
}

// Retryable builds a retryable outcome.
func Retryable(status int, reason string, err error) Outcome {
	return Outcome{Class: OutcomeRetryable, Status: status, Reason: reason, Err: err}
}

// Permanent builds a permanent failure outcome.
func Permanent(status int, reason string, err error) Outcome {
	return Outcome{Class: OutcomePermanent, Status: status, Reason: reason, Err: err}
}

// BulkResult holds one outcome per batch item, in the same order.
type BulkResult struct {
	Outcomes []Outcome
}

// Uniform builds a result assigning the same outcome to n items.
func Uniform(n int, o Outcome) BulkResult {
	res := BulkResult{Outcomes: make([]Outcome, n)}
	for i := range res.Outcomes {
		res.Outcomes[i] = o
	}
	return res
}

// Count returns the number of outcomes of the given class.
func (r BulkResult) Count(c OutcomeClass) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Class == c {
			n++
		}
	}
	return n
}
