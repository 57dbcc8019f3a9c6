// Package kafka connects docship to Kafka: a Source that turns topic records
// into write operations, and a Committer that commits offsets once their
// operations are final and routes permanent failures to a dead-letter topic.
package kafka

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/bft-labs/docship/internal/domain"
)

// Null value behaviours.
const (
	NullDelete = "delete"
	NullIgnore = "ignore"
	NullFail   = "fail"
)

// ErrSkip is returned by Map for records that produce no write.
var ErrSkip = errors.New("record skipped")

// MapperConfig controls how records become write operations.
type MapperConfig struct {
	// Index is the target index. Empty uses the lower-cased topic name.
	Index string

	// KeyIgnore derives document ids from topic+partition+offset instead of
	// the record key.
	KeyIgnore bool

	// Upsert sends upserts instead of full-document index operations.
	Upsert bool

	// NullValues is the behaviour for tombstones: delete (default), ignore or fail.
	NullValues string
}

// Mapper converts Kafka records into write operations.
type Mapper struct {
	config MapperConfig
}

// NewMapper validates config and creates a mapper.
func NewMapper(config MapperConfig) (*Mapper, error) {
	config.NullValues = strings.ToLower(strings.TrimSpace(config.NullValues))
	switch config.NullValues {
	case "":
		config.NullValues = NullDelete
	case NullDelete, NullIgnore, NullFail:
	default:
		return nil, &domain.ConfigurationError{Option: "kafka.null_values", Reason: fmt.Sprintf("unknown behaviour %q", config.NullValues)}
	}
	if config.KeyIgnore && config.NullValues == NullDelete {
		return nil, &domain.ConfigurationError{Option: "kafka.null_values", Reason: "delete requires record keys as document ids"}
	}
	return &Mapper{config: config}, nil
}

// Map converts one record.
func (m *Mapper) Map(msg kafka.Message) (domain.WriteOperation, error) {
	op := domain.WriteOperation{
		Origin: Identity(msg),
		Index:  m.config.Index,
	}
	if op.Index == "" {
		op.Index = strings.ToLower(msg.Topic)
	}

	if m.config.KeyIgnore {
		op.DocID = fmt.Sprintf("%s+%d+%d", msg.Topic, msg.Partition, msg.Offset)
	} else {
		if len(msg.Key) == 0 {
			return op, errors.Newf("record %s has no key", op.Origin)
		}
		op.DocID = string(msg.Key)
	}

	if msg.Value == nil {
		switch m.config.NullValues {
		case NullIgnore:
			return op, ErrSkip
		case NullFail:
			return op, errors.Newf("record %s has a null value", op.Origin)
		}
		op.Kind = domain.OpDelete
		return op, nil
	}

	op.Kind = domain.OpIndex
	if m.config.Upsert {
		op.Kind = domain.OpUpsert
	}
	op.Payload = msg.Value
	return op, op.Validate()
}

// Identity returns the record position of msg.
func Identity(msg kafka.Message) domain.Identity {
	return domain.Identity{Topic: msg.Topic, Partition: int32(msg.Partition), Offset: msg.Offset}
}
