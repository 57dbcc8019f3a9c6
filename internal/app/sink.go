package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// DefaultWorkers is the number of concurrent bulk requests when unset.
const DefaultWorkers = 2

// SinkConfig contains configuration for the write pipeline.
type SinkConfig struct {
	Batch BatcherConfig
	Retry RetryConfig

	// Workers is the number of batches in flight at once.
	Workers int

	// ShutdownTimeout bounds the flush performed by Stop.
	ShutdownTimeout time.Duration
}

// BatchEventEmitter is called after every bulk request.
type BatchEventEmitter interface {
	OnBatchSent(items, bytes int, took time.Duration, res domain.BulkResult)
	OnBatchError(err error, items int)
}

// Sink runs the write pipeline: submissions enter the batcher, workers pull
// batches and hand them to the executor, and every result goes through the
// retry controller to the reporter.
type Sink struct {
	config   SinkConfig
	executor ports.BulkExecutor
	handler  ports.ResultHandler
	metrics  ports.Metrics
	logger   ports.Logger
	emitter  BatchEventEmitter

	lifecycle *Lifecycle
	seq       atomic.Uint64

	mu       sync.RWMutex
	batcher  *Batcher
	reporter *Reporter
	retry    *RetryController
	fatal    error
	cleaned  bool
}

// NewSink creates a stopped sink. metrics and emitter may be nil.
func NewSink(
	config SinkConfig,
	executor ports.BulkExecutor,
	handler ports.ResultHandler,
	metrics ports.Metrics,
	logger ports.Logger,
	lifecycleEmitter EventEmitter,
	emitter BatchEventEmitter,
) *Sink {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.Retry.MaxRetries == 0 && config.Retry.BackoffBase == 0 {
		config.Retry.MaxRetries = DefaultMaxRetries
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Sink{
		config:    config,
		executor:  executor,
		handler:   handler,
		metrics:   metrics,
		logger:    logger,
		emitter:   emitter,
		lifecycle: NewLifecycle(logger, lifecycleEmitter),
	}
}

// Start launches the workers. ctx bounds only the start itself; the
// pipeline runs until Stop or a fatal error.
func (s *Sink) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	batcher := NewBatcher(s.config.Batch)
	reporter := NewReporter(s.handler, s.metrics, s.logger)
	retry := NewRetryController(s.config.Retry, batcher, reporter, s.metrics, s.logger)

	s.mu.Lock()
	s.batcher, s.reporter, s.retry = batcher, reporter, retry
	s.fatal = nil
	s.cleaned = false
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.lifecycle.SetCancel(cancel)

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < s.config.Workers; i++ {
		id := i
		g.Go(func() error { return s.work(gctx, id) })
	}

	s.lifecycle.Go(func() {
		if err := g.Wait(); err != nil {
			s.logger.Debug("workers exited", ports.Err(err))
		}
	})

	if err := s.lifecycle.TransitionTo(StateRunning, "workers started"); err != nil {
		return err
	}
	s.logger.Info("sink started",
		ports.Int("workers", s.config.Workers),
		ports.Int("max_batch_count", batcher.cfg.MaxCount),
		ports.Int("max_batch_bytes", batcher.cfg.MaxBytes),
	)
	return nil
}

func (s *Sink) components() (*Batcher, *Reporter, *RetryController) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batcher, s.reporter, s.retry
}

// Submit validates op and enqueues it. It blocks while the pending queue is
// full, for at most the configured submit timeout. After a fatal error it
// returns that error.
func (s *Sink) Submit(ctx context.Context, op domain.WriteOperation) error {
	if err := s.Err(); err != nil {
		return err
	}
	if st := s.lifecycle.State(); st != StateRunning {
		if st == StateStopping {
			return domain.ErrClosed
		}
		return domain.ErrNotRunning
	}
	if err := op.Validate(); err != nil {
		return errors.Wrap(err, "submit")
	}

	batcher, reporter, _ := s.components()
	it := domain.Item{Op: op, Seq: s.seq.Add(1)}
	reporter.Register(it)
	if err := batcher.Submit(ctx, it); err != nil {
		if !reporter.Forget(it.Seq) {
			// A halt already reported the item as failed.
			return nil
		}
		var pe *domain.PoolExhaustedError
		if errors.As(err, &pe) {
			s.metrics.PoolWaitTimeout(pe.Resource)
		}
		if ferr := s.Err(); ferr != nil {
			return ferr
		}
		return err
	}
	s.metrics.Pending(batcher.Pending())
	return nil
}

func (s *Sink) work(ctx context.Context, id int) error {
	batcher, _, retry := s.components()
	for {
		batch, err := batcher.Next(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.metrics.Pending(batcher.Pending())

		for i := range batch.Items {
			batch.Items[i].Attempts++
		}

		start := time.Now()
		res, err := s.executor.Submit(ctx, batch)
		took := time.Since(start)
		s.metrics.BatchSent(batch.Size(), batch.Bytes, took)

		if err != nil {
			s.logger.Error("bulk request failed",
				ports.Int("worker", id),
				ports.Int("items", batch.Size()),
				ports.Err(err),
			)
			if s.emitter != nil {
				s.emitter.OnBatchError(err, batch.Size())
			}
		} else {
			s.logger.Debug("bulk request done",
				ports.Int("worker", id),
				ports.Int("items", batch.Size()),
				ports.Bytes("bytes", batch.Bytes),
				ports.Duration("took", took),
				ports.Int("retryable", res.Count(domain.OutcomeRetryable)),
				ports.Int("failed", res.Count(domain.OutcomePermanent)),
			)
			if s.emitter != nil {
				s.emitter.OnBatchSent(batch.Size(), batch.Bytes, took, res)
			}
		}

		retry.OnResult(batch, res)

		if err != nil && domain.IsFatal(err) {
			s.halt(err)
			return err
		}
	}
}

// halt moves the sink to Failed and fails everything outstanding with err.
func (s *Sink) halt(err error) {
	s.mu.Lock()
	if s.fatal != nil {
		s.mu.Unlock()
		return
	}
	s.fatal = err
	batcher, reporter := s.batcher, s.reporter
	s.mu.Unlock()

	s.logger.Error("fatal error, halting sink", ports.Err(err))
	_ = s.lifecycle.TransitionTo(StateFailed, err.Error())

	batcher.Close()
	batcher.Drain()
	n := reporter.FailOutstanding(err)
	s.lifecycle.Cancel()
	s.logger.Warn("failed outstanding operations", ports.Int("count", n))
}

// Stop closes the sink to new submissions and flushes what is queued,
// waiting at most the shutdown timeout. Items still outstanding then are
// reported as permanent failures with domain.ErrShutdown and
// domain.ErrShutdownTimeout is returned.
func (s *Sink) Stop() error {
	if s.lifecycle.State() == StateFailed {
		s.cleanup()
		return nil
	}
	if !s.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		return err
	}

	batcher, reporter, _ := s.components()
	batcher.Close()

	err := s.lifecycle.Wait(s.config.ShutdownTimeout)
	if err != nil {
		s.lifecycle.Cancel()
		dropped := len(batcher.Drain())
		n := reporter.FailOutstanding(domain.ErrShutdown)
		s.logger.Warn("shutdown timeout, failing outstanding operations",
			ports.Int("queued", dropped),
			ports.Int("outstanding", n),
		)
		// in-flight requests return promptly once cancelled
		_ = s.lifecycle.Wait(s.config.ShutdownTimeout)
	}

	s.cleanup()

	if ferr := s.Err(); ferr != nil {
		return ferr
	}
	_ = s.lifecycle.TransitionTo(StateStopped, "shutdown complete")
	return err
}

func (s *Sink) cleanup() {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return
	}
	s.cleaned = true
	s.mu.Unlock()

	s.lifecycle.Cancel()
	if c, ok := s.executor.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("closing executor", ports.Err(err))
		}
	}
}

// Err returns the fatal error that halted the sink, or nil.
func (s *Sink) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatal
}

// State returns the current lifecycle state.
func (s *Sink) State() State {
	return s.lifecycle.State()
}

// Pending returns the number of undispatched items.
func (s *Sink) Pending() int {
	batcher, _, _ := s.components()
	if batcher == nil {
		return 0
	}
	return batcher.Pending()
}

// Outstanding returns the number of submitted operations without an outcome.
func (s *Sink) Outstanding() int {
	_, reporter, _ := s.components()
	if reporter == nil {
		return 0
	}
	return reporter.Outstanding()
}
