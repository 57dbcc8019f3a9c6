package kafka

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// DefaultCommitInterval is how often completed offsets are committed.
const DefaultCommitInterval = 5 * time.Second

type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type topicPartition struct {
	topic     string
	partition int32
}

type partitionState struct {
	fetched []int64 // in fetch order, ascending
	done    map[int64]struct{}
	ready   int64 // highest offset whose predecessors are all done, -1 if none
}

// Committer is a ports.ResultHandler that commits a partition's offsets only
// up to the first operation still in flight, so a restart never skips an
// unfinished record.
type Committer struct {
	reader   messageCommitter
	dlq      messageWriter
	interval time.Duration
	logger   ports.Logger

	mu         sync.Mutex
	partitions map[topicPartition]*partitionState
	dead       []kafka.Message
	failed     int
	succeeded  int
}

// NewCommitter creates a committer. dlq may be nil, in which case permanent
// failures are only logged.
func NewCommitter(reader messageCommitter, dlq messageWriter, interval time.Duration, logger ports.Logger) *Committer {
	if interval <= 0 {
		interval = DefaultCommitInterval
	}
	return &Committer{
		reader:     reader,
		dlq:        dlq,
		interval:   interval,
		logger:     logger,
		partitions: make(map[topicPartition]*partitionState),
	}
}

// Track records a fetched offset that will receive an outcome.
func (c *Committer) Track(id domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp := topicPartition{id.Topic, id.Partition}
	ps, ok := c.partitions[tp]
	if !ok {
		ps = &partitionState{done: make(map[int64]struct{}), ready: -1}
		c.partitions[tp] = ps
	}
	ps.fetched = append(ps.fetched, id.Offset)
}

// OnOutcome marks the operation's offset complete. Operations abandoned at
// shutdown or by a fatal error are left uncommitted and are not dead
// lettered, so the record is read again after a restart.
func (c *Committer) OnOutcome(op domain.WriteOperation, out domain.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out.Class == domain.OutcomePermanent && abandoned(out.Err) {
		c.failed++
		c.logger.Debug("leaving offset uncommitted",
			ports.String("origin", op.Origin.String()),
			ports.Err(out.Err),
		)
		return
	}

	if out.Class == domain.OutcomePermanent {
		c.failed++
		if c.dlq != nil {
			c.dead = append(c.dead, deadLetter(op, out))
		}
	} else {
		c.succeeded++
	}

	ps, ok := c.partitions[topicPartition{op.Origin.Topic, op.Origin.Partition}]
	if !ok {
		return
	}
	ps.done[op.Origin.Offset] = struct{}{}
	for len(ps.fetched) > 0 {
		head := ps.fetched[0]
		if _, ok := ps.done[head]; !ok {
			break
		}
		delete(ps.done, head)
		ps.fetched = ps.fetched[1:]
		ps.ready = head
	}
}

func abandoned(err error) bool {
	return errors.Is(err, domain.ErrShutdown) || domain.IsFatal(err)
}

func deadLetter(op domain.WriteOperation, out domain.Outcome) kafka.Message {
	return kafka.Message{
		Key:   []byte(op.DocID),
		Value: op.Payload,
		Headers: []kafka.Header{
			{Key: "docship.origin", Value: []byte(op.Origin.String())},
			{Key: "docship.index", Value: []byte(op.Index)},
			{Key: "docship.operation", Value: []byte(op.Kind.String())},
			{Key: "docship.status", Value: []byte(strconv.Itoa(out.Status))},
			{Key: "docship.reason", Value: []byte(out.Reason)},
		},
	}
}

// Flush writes pending dead letters, then commits every ready offset.
func (c *Committer) Flush(ctx context.Context) error {
	c.mu.Lock()
	dead := c.dead
	c.dead = nil
	var commits []kafka.Message
	for tp, ps := range c.partitions {
		if ps.ready < 0 {
			continue
		}
		commits = append(commits, kafka.Message{Topic: tp.topic, Partition: int(tp.partition), Offset: ps.ready})
		ps.ready = -1
	}
	c.mu.Unlock()

	if len(dead) > 0 {
		if err := c.dlq.WriteMessages(ctx, dead...); err != nil {
			c.requeue(dead, commits)
			return errors.Wrap(err, "write dead letters")
		}
		c.logger.Info("dead-lettered operations", ports.Int("count", len(dead)))
	}
	if len(commits) == 0 {
		return nil
	}

	sort.Slice(commits, func(i, j int) bool {
		if commits[i].Topic != commits[j].Topic {
			return commits[i].Topic < commits[j].Topic
		}
		return commits[i].Partition < commits[j].Partition
	})
	if err := c.reader.CommitMessages(ctx, commits...); err != nil {
		c.requeue(nil, commits)
		return errors.Wrap(err, "commit offsets")
	}
	c.logger.Debug("committed offsets", ports.Int("partitions", len(commits)))
	return nil
}

// requeue restores state after a failed flush so the next one retries.
func (c *Committer) requeue(dead, commits []kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = append(dead, c.dead...)
	for _, m := range commits {
		ps := c.partitions[topicPartition{m.Topic, int32(m.Partition)}]
		if ps != nil && ps.ready < m.Offset {
			ps.ready = m.Offset
		}
	}
}

// Run flushes every interval until ctx ends, then flushes once more.
func (c *Committer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.Warn("flush failed", ports.Err(err))
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.Flush(final)
			cancel()
			return err
		}
	}
}

// Counts returns the number of succeeded and failed operations seen.
func (c *Committer) Counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded, c.failed
}

// Close closes the dead-letter writer.
func (c *Committer) Close() error {
	if c.dlq == nil {
		return nil
	}
	return c.dlq.Close()
}
