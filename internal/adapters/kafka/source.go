package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// Config describes the consumer group and dead-letter topic.
type Config struct {
	Brokers        []string
	Topics         []string
	GroupID        string
	DLQTopic       string
	CommitInterval time.Duration
	Mapper         MapperConfig
}

// Validate checks required fields.
func (c Config) Validate() error {
	switch {
	case len(c.Brokers) == 0:
		return &domain.ConfigurationError{Option: "kafka.brokers", Reason: "at least one broker is required"}
	case len(c.Topics) == 0:
		return &domain.ConfigurationError{Option: "kafka.topics", Reason: "at least one topic is required"}
	case c.GroupID == "":
		return &domain.ConfigurationError{Option: "kafka.group_id", Reason: "required"}
	}
	return nil
}

type messageReader interface {
	messageCommitter
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Source implements ports.Source over a consumer group.
type Source struct {
	reader    messageReader
	mapper    *Mapper
	committer *Committer
	logger    ports.Logger
}

var _ ports.Source = (*Source)(nil)

// New creates a consumer-group source and its committer.
func New(cfg Config, logger ports.Logger) (*Source, *Committer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	mapper, err := NewMapper(cfg.Mapper)
	if err != nil {
		return nil, nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		StartOffset: kafka.FirstOffset,
	})

	var dlq messageWriter
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}

	committer := NewCommitter(reader, dlq, cfg.CommitInterval, logger)
	return NewSource(reader, mapper, committer, logger), committer, nil
}

// NewSource assembles a source from its parts.
func NewSource(reader messageReader, mapper *Mapper, committer *Committer, logger ports.Logger) *Source {
	return &Source{reader: reader, mapper: mapper, committer: committer, logger: logger}
}

// Next fetches records until one maps to a write operation. Records that
// fail to map are completed immediately, as permanent failures, so their
// offsets do not hold back commits.
func (s *Source) Next(ctx context.Context) (domain.WriteOperation, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return domain.WriteOperation{}, err
		}
		id := Identity(msg)
		s.committer.Track(id)

		op, err := s.mapper.Map(msg)
		switch {
		case err == nil:
			return op, nil
		case errors.Is(err, ErrSkip):
			s.committer.OnOutcome(op, domain.Success(0))
		default:
			s.logger.Warn("cannot map record", ports.String("origin", id.String()), ports.Err(err))
			op.Payload = msg.Value
			if op.DocID == "" {
				op.DocID = string(msg.Key)
			}
			s.committer.OnOutcome(op, domain.Permanent(0, err.Error(), err))
		}
	}
}

// Close closes the consumer.
func (s *Source) Close() error {
	return s.reader.Close()
}
