package app

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// Submitter accepts operations; *Sink satisfies it.
type Submitter interface {
	Submit(ctx context.Context, op domain.WriteOperation) error
}

// PumpConfig contains configuration for the source loop.
type PumpConfig struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Pump moves operations from a Source into a Submitter until the source is
// exhausted, the context ends or the submitter fails fatally.
type Pump struct {
	source ports.Source
	sink   Submitter
	logger ports.Logger
	config PumpConfig
}

// NewPump creates a pump.
func NewPump(config PumpConfig, source ports.Source, sink Submitter, logger ports.Logger) *Pump {
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	return &Pump{source: source, sink: sink, logger: logger, config: config}
}

// Run executes the loop. It returns nil when the source is exhausted.
func (p *Pump) Run(ctx context.Context) (int, error) {
	bo := newBackoff(p.config.BackoffInitial, p.config.BackoffMax)
	n := 0

	for {
		op, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			p.logger.Error("source error", ports.Err(err))
			if werr := bo.Wait(ctx); werr != nil {
				return n, werr
			}
			continue
		}
		bo.Reset()

		if err := p.submit(ctx, op, bo); err != nil {
			return n, err
		}
		n++
	}
}

// submit retries the same operation while the pending queue is full.
func (p *Pump) submit(ctx context.Context, op domain.WriteOperation, bo *backoff) error {
	for {
		err := p.sink.Submit(ctx, op)
		if err == nil {
			bo.Reset()
			return nil
		}
		if !domain.IsRetryable(err) {
			return errors.Wrapf(err, "submit %s", op.Origin)
		}
		p.logger.Warn("pending queue full, backing off",
			ports.String("origin", op.Origin.String()),
			ports.Duration("backoff", bo.Current()),
		)
		if werr := bo.Wait(ctx); werr != nil {
			return werr
		}
	}
}
