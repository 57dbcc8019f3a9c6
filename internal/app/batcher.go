package app

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/bft-labs/docship/internal/domain"
)

// Default batching configuration values.
const (
	DefaultMaxBatchCount = 500
	DefaultMaxBatchBytes = 5 << 20
	DefaultLinger        = time.Millisecond
	DefaultHighWatermark = 20000
	DefaultSubmitTimeout = 30 * time.Second
)

// BatcherConfig controls batch formation and backpressure.
type BatcherConfig struct {
	// MaxCount is the maximum number of items per batch.
	MaxCount int

	// MaxBytes is the target maximum batch size. A single larger item is
	// sent alone.
	MaxBytes int

	// Linger is how long the first eligible item may wait for the batch to fill.
	Linger time.Duration

	// HighWatermark is the number of undispatched items at which Submit blocks.
	HighWatermark int

	// SubmitTimeout bounds how long Submit blocks. Zero waits until the
	// context ends.
	SubmitTimeout time.Duration
}

func (c BatcherConfig) withDefaults() BatcherConfig {
	if c.MaxCount <= 0 {
		c.MaxCount = DefaultMaxBatchCount
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBatchBytes
	}
	if c.Linger < 0 {
		c.Linger = 0
	}
	if c.HighWatermark <= 0 {
		c.HighWatermark = DefaultHighWatermark
	}
	return c
}

type queued struct {
	item domain.Item
	at   time.Time // enqueue time, or the retry's eligible time
}

// Batcher holds undispatched items and forms batches on demand.
//
// At most one item per document key is outside the queue at any time: once
// an item is taken into a batch its key stays held through the request and
// any retry waits, until Complete releases it. Later items for the key stay
// queued, so a key's items are dispatched in submission order.
type Batcher struct {
	cfg BatcherConfig
	now func() time.Time

	mu      sync.Mutex
	changed chan struct{}
	queue   []*queued
	retries retryHeap
	held    map[string]struct{}
	closed  bool
}

// NewBatcher creates a batcher with the given configuration.
func NewBatcher(cfg BatcherConfig) *Batcher {
	return &Batcher{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		changed: make(chan struct{}),
		held:    make(map[string]struct{}),
	}
}

// broadcastLocked wakes every goroutine waiting on the previous channel.
func (b *Batcher) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Batcher) pendingLocked() int {
	return len(b.queue) + len(b.retries)
}

// Pending returns the number of undispatched items, retries included.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked()
}

// Submit enqueues an item. It blocks while the pending count is at the high
// watermark, for at most SubmitTimeout, then fails with a
// *domain.PoolExhaustedError. After Close it returns domain.ErrClosed.
func (b *Batcher) Submit(ctx context.Context, it domain.Item) error {
	var timeout <-chan time.Time
	if b.cfg.SubmitTimeout > 0 {
		t := time.NewTimer(b.cfg.SubmitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return domain.ErrClosed
		}
		if b.pendingLocked() < b.cfg.HighWatermark {
			b.queue = append(b.queue, &queued{item: it, at: b.now()})
			b.broadcastLocked()
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-timeout:
			return &domain.PoolExhaustedError{Resource: "pending queue", Wait: b.cfg.SubmitTimeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next blocks until a batch is ready and returns it. A batch is ready when
// the eligible items reach MaxCount or MaxBytes, when the oldest eligible item
// has waited Linger, or when the batcher is closed. After Close, Next returns
// domain.ErrClosed once no items remain queued, waiting for retry or held.
func (b *Batcher) Next(ctx context.Context) (*domain.Batch, error) {
	for {
		b.mu.Lock()
		now := b.now()
		batch, wake, ok := b.formLocked(now)
		if ok {
			b.broadcastLocked()
			b.mu.Unlock()
			return batch, nil
		}
		if b.closed && len(b.queue) == 0 && len(b.retries) == 0 && len(b.held) == 0 {
			b.mu.Unlock()
			return nil, domain.ErrClosed
		}
		ch := b.changed
		b.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if !wake.IsZero() {
			timer = time.NewTimer(wake.Sub(now))
			fire = timer.C
		}

		select {
		case <-ch:
		case <-fire:
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// formLocked collects eligible items and takes them when the batch is ready.
// When it is not, wake is the time at which it may become ready by the clock
// alone, zero if only a state change can help.
func (b *Batcher) formLocked(now time.Time) (batch *domain.Batch, wake time.Time, ok bool) {
	var (
		picked      []*queued
		retryPicked []int
		bytes       int
		oldest      time.Time
		full        bool
		seen        = make(map[string]struct{})
	)

	fits := func(q *queued) bool {
		if len(picked) >= b.cfg.MaxCount {
			full = true
			return false
		}
		size := q.item.Op.Size()
		if len(picked) > 0 && bytes+size > b.cfg.MaxBytes {
			full = true
			return false
		}
		return true
	}
	take := func(q *queued) {
		picked = append(picked, q)
		bytes += q.item.Op.Size()
		if oldest.IsZero() || q.at.Before(oldest) {
			oldest = q.at
		}
		if bytes >= b.cfg.MaxBytes || len(picked) >= b.cfg.MaxCount {
			full = true
		}
	}

	// Due retries already hold their key.
	for i, q := range b.retries {
		if full {
			break
		}
		if q.at.After(now) {
			if wake.IsZero() || q.at.Before(wake) {
				wake = q.at
			}
			continue
		}
		if !fits(q) {
			break
		}
		take(q)
		retryPicked = append(retryPicked, i)
		seen[q.item.Op.Key()] = struct{}{}
	}

	var queuePicked []int
	for i, q := range b.queue {
		if full {
			break
		}
		key := q.item.Op.Key()
		if _, busy := b.held[key]; busy {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		// Later items of this key must wait behind this one either way.
		seen[key] = struct{}{}
		if !fits(q) {
			break
		}
		take(q)
		queuePicked = append(queuePicked, i)
	}

	if len(picked) == 0 {
		return nil, wake, false
	}
	lingerDone := !now.Before(oldest.Add(b.cfg.Linger))
	if !full && !lingerDone && !b.closed {
		deadline := oldest.Add(b.cfg.Linger)
		if wake.IsZero() || deadline.Before(wake) {
			wake = deadline
		}
		return nil, wake, false
	}

	batch = domain.NewBatch(len(picked))
	for _, q := range picked {
		batch.Add(q.item)
		b.held[q.item.Op.Key()] = struct{}{}
	}
	b.removeRetriesLocked(retryPicked)
	b.removeQueuedLocked(queuePicked)
	return batch, time.Time{}, true
}

func (b *Batcher) removeQueuedLocked(idx []int) {
	if len(idx) == 0 {
		return
	}
	kept := b.queue[:0]
	j := 0
	for i, q := range b.queue {
		if j < len(idx) && idx[j] == i {
			j++
			continue
		}
		kept = append(kept, q)
	}
	for i := len(kept); i < len(b.queue); i++ {
		b.queue[i] = nil
	}
	b.queue = kept
}

func (b *Batcher) removeRetriesLocked(idx []int) {
	if len(idx) == 0 {
		return
	}
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		drop[i] = struct{}{}
	}
	kept := make(retryHeap, 0, len(b.retries)-len(idx))
	for i, q := range b.retries {
		if _, ok := drop[i]; !ok {
			kept = append(kept, q)
		}
	}
	heap.Init(&kept)
	b.retries = kept
}

// Retry schedules an item taken by Next for another attempt at the given
// time. The item's key stays held.
func (b *Batcher) Retry(it domain.Item, at time.Time) {
	b.mu.Lock()
	heap.Push(&b.retries, &queued{item: it, at: at})
	b.broadcastLocked()
	b.mu.Unlock()
}

// Complete releases a key after its item reached a terminal outcome.
func (b *Batcher) Complete(key string) {
	b.mu.Lock()
	delete(b.held, key)
	b.broadcastLocked()
	b.mu.Unlock()
}

// Close stops accepting submissions. Queued items are still handed out by
// Next, without waiting for Linger.
func (b *Batcher) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.broadcastLocked()
	}
	b.mu.Unlock()
}

// Drain removes and returns every undispatched item, retries included, and
// releases the keys of drained retries.
func (b *Batcher) Drain() []domain.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Item, 0, b.pendingLocked())
	for _, q := range b.retries {
		out = append(out, q.item)
		delete(b.held, q.item.Op.Key())
	}
	for _, q := range b.queue {
		out = append(out, q.item)
	}
	b.retries = nil
	b.queue = nil
	b.broadcastLocked()
	return out
}

// retryHeap orders retries by eligible time.
type retryHeap []*queued

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x interface{}) { *h = append(*h, x.(*queued)) }
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return q
}
