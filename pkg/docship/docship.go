package docship

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	httpAdapter "github.com/bft-labs/docship/internal/adapters/http"
	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/internal/ports"
	"github.com/bft-labs/docship/internal/transport"
)

// Docship is a bulk-write client that can be embedded in other applications.
// Use New() to create an instance, then Start() to begin accepting writes.
type Docship struct {
	config  Config
	opts    options
	profile *transport.Profile
	logger  ports.Logger
	emitter *eventEmitterWrapper

	mu      sync.RWMutex
	sink    *app.Sink
	started []Plugin
}

// New validates cfg, loads TLS material and creates a stopped instance.
// Configuration problems are returned as errors matching IsFatal.
func New(cfg Config, opts ...Option) (*Docship, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.handler == nil {
		o.handler = ports.ResultHandlerFunc(func(WriteOperation, Outcome) {})
	}

	profile, err := transport.Resolve(cfg.transportOptions())
	if err != nil {
		return nil, err
	}
	for _, w := range profile.Warnings {
		o.logger.Warn(w)
	}
	o.logger.Info("transport resolved",
		ports.Strings("endpoints", profile.Endpoints),
		ports.String("mode", profile.Mode.String()),
		ports.Bool("credentials", profile.HasCredentials()),
	)

	return &Docship{
		config:  cfg,
		opts:    o,
		profile: profile,
		logger:  o.logger,
		emitter: &eventEmitterWrapper{handler: o.eventHandler},
	}, nil
}

// Start initializes plugins, opens the connection pool and launches the
// workers. ctx bounds only the startup; the instance runs until Stop or a
// fatal error.
func (d *Docship) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sink != nil {
		switch d.sink.State() {
		case app.StateStopped, app.StateFailed:
		default:
			return ErrAlreadyRunning
		}
	}

	pluginCfg := PluginConfig{
		Endpoints:          d.profile.Endpoints,
		SecurityProtocol:   d.config.SecurityProtocol,
		KeystoreLocation:   d.config.KeystoreLocation,
		TruststoreLocation: d.config.TruststoreLocation,
		Logger:             d.logger,
	}
	d.started = d.started[:0]
	for _, p := range d.opts.plugins {
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			d.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			d.shutdownPlugins()
			return errors.Wrapf(err, "initialize plugin %s", p.Name())
		}
		d.started = append(d.started, p)
		d.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	pool := httpAdapter.NewPool(d.profile, d.config.poolConfig(), d.logger, d.opts.metrics)
	executor := httpAdapter.NewBulkExecutor(pool, d.config.executorConfig(), d.logger)

	workers := d.config.Workers
	if workers == 0 {
		workers = pool.Capacity()
	}
	sink := app.NewSink(d.config.sinkConfig(workers), executor, d.opts.handler, d.opts.metrics, d.logger, d.emitter, d.emitter)
	if err := sink.Start(ctx); err != nil {
		_ = pool.Close()
		d.shutdownPlugins()
		return err
	}
	d.sink = sink
	return nil
}

// Submit enqueues op. It blocks while the pending queue is full, for at
// most Config.SubmitTimeout. After a fatal error it returns that error.
func (d *Docship) Submit(ctx context.Context, op WriteOperation) error {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return ErrNotRunning
	}
	return sink.Submit(ctx, op)
}

// Stop flushes queued operations and shuts down, waiting at most
// Config.ShutdownTimeout. Operations still outstanding then fail with
// ErrShutdown and ErrShutdownTimeout is returned.
func (d *Docship) Stop() error {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return ErrNotRunning
	}

	// not under d.mu: Submit must observe Stopping and fail fast
	err := sink.Stop()

	d.mu.Lock()
	d.shutdownPlugins()
	d.mu.Unlock()
	return err
}

func (d *Docship) shutdownPlugins() {
	ctx := context.Background()
	for i := len(d.started) - 1; i >= 0; i-- {
		p := d.started[i]
		if err := p.Shutdown(ctx); err != nil {
			d.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			d.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
	d.started = d.started[:0]
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (d *Docship) Status() State {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return StateStopped
	}
	return convertState(sink.State())
}

// Err returns the fatal error that moved the instance to StateFailed.
func (d *Docship) Err() error {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return nil
	}
	return sink.Err()
}

// Pending returns the number of operations submitted but not yet sent.
func (d *Docship) Pending() int {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return 0
	}
	return sink.Pending()
}

// Endpoints returns the resolved endpoint URLs.
func (d *Docship) Endpoints() []string {
	return append([]string(nil), d.profile.Endpoints...)
}

// Check connects to every endpoint with the configured security settings
// and returns what each reports about its cluster. It does not require
// Start.
func (d *Docship) Check(ctx context.Context) ([]ClusterInfo, error) {
	pool := httpAdapter.NewPool(d.profile, d.config.poolConfig(), d.logger, d.opts.metrics)
	executor := httpAdapter.NewBulkExecutor(pool, d.config.executorConfig(), d.logger)
	defer executor.Close()

	infos := make([]ClusterInfo, 0, len(d.profile.Endpoints))
	for _, ep := range d.profile.Endpoints {
		info, err := executor.Ping(ctx, ep)
		if err != nil {
			return infos, errors.Wrapf(err, "check %s", ep)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
