package domain

import (
	"fmt"
	"strings"
)

// OpKind is the kind of write applied to a document.
type OpKind int

const (
	// OpIndex creates or fully replaces the document.
	OpIndex OpKind = iota
	// OpUpsert merges the payload into the document, creating it if missing.
	OpUpsert
	// OpDelete removes the document.
	OpDelete
)

// String returns the lower-case name of the kind.
func (k OpKind) String() string {
	switch k {
	case OpIndex:
		return "index"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOpKind converts a name ("index", "upsert", "delete") to an OpKind.
func ParseOpKind(s string) (OpKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "index", "":
		return OpIndex, nil
	case "upsert", "update":
		return OpUpsert, nil
	case "delete":
		return OpDelete, nil
	default:
		return OpIndex, fmt.Errorf("unknown operation kind %q", s)
	}
}

// Identity locates the record an operation originated from.
// Offsets are monotonically increasing within a partition.
type Identity struct {
	Topic     string
	Partition int32
	Offset    int64
}

// String renders the identity as topic/partition@offset.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%d@%d", id.Topic, id.Partition, id.Offset)
}

// WriteOperation is a single document write requested by the caller.
// It is treated as immutable once created.
type WriteOperation struct {
	Origin  Identity
	Kind    OpKind
	DocID   string
	Index   string
	Payload []byte
}

// Key identifies the target document. Writes sharing a key are applied in
// submission order.
func (op WriteOperation) Key() string {
	return op.Index + "/" + op.DocID
}

// Size is the approximate number of bytes the operation adds to a bulk body.
func (op WriteOperation) Size() int {
	// action line overhead plus index, id and payload
	return 48 + len(op.Index) + len(op.DocID) + len(op.Payload)
}

// Validate checks the fields every bulk action needs.
func (op WriteOperation) Validate() error {
	if op.Index == "" {
		return fmt.Errorf("operation %s: index is required", op.Origin)
	}
	if op.DocID == "" {
		return fmt.Errorf("operation %s: document id is required", op.Origin)
	}
	if op.Kind != OpDelete && len(op.Payload) == 0 {
		return fmt.Errorf("operation %s: %s requires a payload", op.Origin, op.Kind)
	}
	return nil
}

// Item is an operation travelling through the pipeline.
type Item struct {
	Op WriteOperation

	// Seq is the global submission sequence number, assigned once.
	Seq uint64

	// Attempts counts bulk submissions made so far for this item.
	Attempts int
}
