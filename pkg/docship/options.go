package docship

import (
	"github.com/bft-labs/docship/pkg/log"
)

// Option configures optional behavior of Docship.
type Option func(*options)

type options struct {
	logger       Logger
	metrics      Metrics
	handler      ResultHandler
	eventHandler EventHandler
	plugins      []Plugin
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a structured logger. If not provided, nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithResultHandler sets the receiver of per-operation outcomes. Outcomes
// for one document arrive in submission order.
func WithResultHandler(h ResultHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithEventHandler sets a handler for lifecycle and batch events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when Docship starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
