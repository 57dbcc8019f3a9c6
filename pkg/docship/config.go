package docship

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	httpAdapter "github.com/bft-labs/docship/internal/adapters/http"
	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/transport"
)

// Config holds the settings of a Docship instance. Zero values take the
// defaults applied by SetDefaults.
type Config struct {
	// Connection
	URLs     []string
	Username string
	Password string

	// TLS
	SecurityProtocol   string
	KeystoreLocation   string
	KeystorePassword   string
	KeyPassword        string
	TruststoreLocation string
	TruststorePassword string

	// EndpointIdentificationAlgorithm is "https" when nil; an empty string
	// disables hostname verification.
	EndpointIdentificationAlgorithm *string

	// Batching
	MaxBatchCount int
	MaxBatchBytes int
	Linger        time.Duration // zero means 1ms
	HighWatermark int
	SubmitTimeout time.Duration

	// Retry. A negative MaxRetries disables retries.
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	// Pool
	MaxConnsPerEndpoint  int
	AcquireTimeout       time.Duration
	RequestTimeout       time.Duration
	ConnectionRetries    int
	MaxRequestsPerSecond float64
	Compression          bool

	// Workers is the number of concurrent bulk requests. Defaults to the
	// pool capacity.
	Workers         int
	ShutdownTimeout time.Duration

	ExternalVersioning    bool
	VersionConflictPolicy string
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.MaxBatchCount == 0 {
		c.MaxBatchCount = app.DefaultMaxBatchCount
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = app.DefaultMaxBatchBytes
	}
	if c.Linger == 0 {
		c.Linger = app.DefaultLinger
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = app.DefaultHighWatermark
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = app.DefaultSubmitTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = app.DefaultMaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = app.DefaultBackoffInitial
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = app.DefaultBackoffMax
	}
	if c.MaxConnsPerEndpoint == 0 {
		c.MaxConnsPerEndpoint = httpAdapter.DefaultMaxConnsPerEndpoint
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = httpAdapter.DefaultAcquireTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = httpAdapter.DefaultRequestTimeout
	}
	if c.ConnectionRetries == 0 {
		c.ConnectionRetries = httpAdapter.DefaultConnectionRetries
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = app.DefaultShutdownTimeout
	}
	if c.VersionConflictPolicy == "" {
		c.VersionConflictPolicy = httpAdapter.ConflictFail
	}
}

// Validate checks the configuration. TLS material is read and checked by New.
func (c *Config) Validate() error {
	switch {
	case len(c.URLs) == 0:
		return &domain.ConfigurationError{Option: transport.OptURLs, Reason: "at least one URL is required"}
	case c.MaxBatchCount < 0:
		return errors.New("max batch count must not be negative")
	case c.MaxBatchBytes < 0:
		return errors.New("max batch bytes must not be negative")
	case c.Linger < 0:
		return errors.New("linger must not be negative")
	case c.HighWatermark < 0:
		return errors.New("high watermark must not be negative")
	case c.HighWatermark > 0 && c.MaxBatchCount > c.HighWatermark:
		return errors.Newf("high watermark (%d) must be at least max batch count (%d)", c.HighWatermark, c.MaxBatchCount)
	case c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax:
		return errors.Newf("retry backoff (%s) exceeds retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	case c.MaxConnsPerEndpoint < 0:
		return errors.New("max connections per endpoint must not be negative")
	case c.MaxRequestsPerSecond < 0:
		return errors.New("max requests per second must not be negative")
	case c.Workers < 0:
		return errors.New("workers must not be negative")
	}

	switch strings.ToLower(c.VersionConflictPolicy) {
	case "", httpAdapter.ConflictFail, httpAdapter.ConflictIgnore:
	default:
		return errors.Newf("unknown version conflict policy %q", c.VersionConflictPolicy)
	}
	return nil
}

func (c *Config) transportOptions() transport.Options {
	return transport.Options{
		URLs:                            c.URLs,
		SecurityProtocol:                c.SecurityProtocol,
		KeystoreLocation:                c.KeystoreLocation,
		KeystorePassword:                c.KeystorePassword,
		KeyPassword:                     c.KeyPassword,
		TruststoreLocation:              c.TruststoreLocation,
		TruststorePassword:              c.TruststorePassword,
		EndpointIdentificationAlgorithm: c.EndpointIdentificationAlgorithm,
		Username:                        c.Username,
		Password:                        c.Password,
	}
}

func (c *Config) poolConfig() httpAdapter.PoolConfig {
	return httpAdapter.PoolConfig{
		MaxConnsPerEndpoint:  c.MaxConnsPerEndpoint,
		AcquireTimeout:       c.AcquireTimeout,
		RequestTimeout:       c.RequestTimeout,
		MaxRequestsPerSecond: c.MaxRequestsPerSecond,
		Compression:          c.Compression,
	}
}

func (c *Config) executorConfig() httpAdapter.ExecutorConfig {
	return httpAdapter.ExecutorConfig{
		ConnectionRetries:     c.ConnectionRetries,
		ExternalVersioning:    c.ExternalVersioning,
		VersionConflictPolicy: c.VersionConflictPolicy,
	}
}

func (c *Config) sinkConfig(workers int) app.SinkConfig {
	return app.SinkConfig{
		Batch: app.BatcherConfig{
			MaxCount:      c.MaxBatchCount,
			MaxBytes:      c.MaxBatchBytes,
			Linger:        c.Linger,
			HighWatermark: c.HighWatermark,
			SubmitTimeout: c.SubmitTimeout,
		},
		Retry: app.RetryConfig{
			MaxRetries:  c.MaxRetries,
			BackoffBase: c.RetryBackoff,
			BackoffMax:  c.RetryBackoffMax,
		},
		Workers:         workers,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}
