// Package http implements the bulk write path over the document store's
// HTTP API: a bounded per-endpoint connection pool and the bulk executor.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
	"github.com/bft-labs/docship/internal/transport"
)

// Default pool configuration values.
const (
	DefaultMaxConnsPerEndpoint = 5
	DefaultAcquireTimeout      = 30 * time.Second
	DefaultRequestTimeout      = 60 * time.Second
)

const userAgent = "docship"

// PoolConfig controls connection limits and request behaviour.
type PoolConfig struct {
	// MaxConnsPerEndpoint bounds concurrent requests, and connections, per endpoint.
	MaxConnsPerEndpoint int

	// AcquireTimeout bounds the wait for a free connection slot.
	AcquireTimeout time.Duration

	// RequestTimeout bounds one request including reading the response.
	RequestTimeout time.Duration

	// MaxRequestsPerSecond limits the request rate across endpoints; 0 disables.
	MaxRequestsPerSecond float64

	// Compression gzips request bodies.
	Compression bool
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConnsPerEndpoint <= 0 {
		c.MaxConnsPerEndpoint = DefaultMaxConnsPerEndpoint
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

type endpoint struct {
	url       string
	sem       *semaphore.Weighted
	transport *http.Transport
	client    ports.HTTPClient
}

// reset drops pooled connections so the next request dials afresh.
func (e *endpoint) reset() {
	e.transport.CloseIdleConnections()
}

// Pool owns one HTTP transport per endpoint, built from a transport.Profile.
type Pool struct {
	profile   *transport.Profile
	config    PoolConfig
	endpoints []*endpoint
	byURL     map[string]*endpoint
	limiter   *rate.Limiter
	logger    ports.Logger
	metrics   ports.Metrics

	next   atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

// NewPool creates a pool for every endpoint of the profile.
func NewPool(profile *transport.Profile, config PoolConfig, logger ports.Logger, metrics ports.Metrics) *Pool {
	config = config.withDefaults()
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	p := &Pool{
		profile: profile,
		config:  config,
		byURL:   make(map[string]*endpoint, len(profile.Endpoints)),
		logger:  logger,
		metrics: metrics,
	}
	if config.MaxRequestsPerSecond > 0 {
		burst := int(config.MaxRequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(config.MaxRequestsPerSecond), burst)
	}

	for _, u := range profile.Endpoints {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:     profile.TLSConfig(),
			TLSHandshakeTimeout: 10 * time.Second,
			MaxConnsPerHost:     config.MaxConnsPerEndpoint,
			MaxIdleConnsPerHost: config.MaxConnsPerEndpoint,
			IdleConnTimeout:     90 * time.Second,
		}
		ep := &endpoint{
			url:       u,
			sem:       semaphore.NewWeighted(int64(config.MaxConnsPerEndpoint)),
			transport: tr,
			client:    &http.Client{Transport: tr},
		}
		p.endpoints = append(p.endpoints, ep)
		p.byURL[u] = ep
	}
	return p
}

// Endpoints returns the endpoint URLs in configuration order.
func (p *Pool) Endpoints() []string {
	out := make([]string, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = ep.url
	}
	return out
}

// Capacity is the total number of concurrent requests the pool allows.
func (p *Pool) Capacity() int {
	return len(p.endpoints) * p.config.MaxConnsPerEndpoint
}

// Next returns endpoints in round-robin order.
func (p *Pool) Next() string {
	n := p.next.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))].url
}

// Conn is a reserved request slot on one endpoint.
type Conn struct {
	ep       *endpoint
	released atomic.Bool
}

// Endpoint returns the endpoint URL the slot belongs to.
func (c *Conn) Endpoint() string { return c.ep.url }

// Release returns the slot to the pool. It is safe to call more than once.
func (c *Conn) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.ep.sem.Release(1)
	}
}

// Acquire reserves a request slot on endpoint, waiting at most the acquire
// timeout before failing with *domain.PoolExhaustedError.
func (p *Pool) Acquire(ctx context.Context, endpoint string) (*Conn, error) {
	if p.closed.Load() {
		return nil, domain.ErrClosed
	}
	ep, ok := p.byURL[endpoint]
	if !ok {
		return nil, errors.Newf("unknown endpoint %q", endpoint)
	}

	actx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()
	if err := ep.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.metrics.PoolWaitTimeout("connections")
		return nil, &domain.PoolExhaustedError{Resource: "connections to " + endpoint, Wait: p.config.AcquireTimeout}
	}
	return &Conn{ep: ep}, nil
}

// Request is one HTTP request relative to an endpoint.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Execute performs req on the connection's endpoint. Failures are
// classified into *domain.HostnameVerificationError,
// *domain.CertificateTrustError or *domain.TransportError.
func (p *Pool) Execute(ctx context.Context, c *Conn, req Request) (Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Response{}, &domain.TransportError{Endpoint: c.ep.url, Err: err}
		}
	}

	rctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	body, encoding, err := p.encodeBody(req.Body)
	if err != nil {
		return Response{}, errors.Wrap(err, "compress request body")
	}

	hreq, err := http.NewRequestWithContext(rctx, req.Method, c.ep.url+req.Path, body)
	if err != nil {
		return Response{}, errors.Wrap(err, "create request")
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	if encoding != "" {
		hreq.Header.Set("Content-Encoding", encoding)
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", userAgent)
	hreq.Header.Set("X-Opaque-Id", uuid.NewString())
	if p.profile.HasCredentials() {
		hreq.SetBasicAuth(p.profile.Username, p.profile.Password)
	}

	resp, err := c.ep.client.Do(hreq)
	if err != nil {
		return Response{}, p.classify(c.ep, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, p.classify(c.ep, err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (p *Pool) encodeBody(b []byte) (io.Reader, string, error) {
	if b == nil {
		return nil, "", nil
	}
	if !p.config.Compression {
		return bytes.NewReader(b), "", nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "gzip", nil
}

// classify maps a request failure onto the domain error taxonomy.
func (p *Pool) classify(ep *endpoint, err error) error {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return &domain.HostnameVerificationError{Endpoint: ep.url, Host: hostErr.Host, Err: err}
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalid) || errors.As(err, &verification) {
		return &domain.CertificateTrustError{Endpoint: ep.url, Err: err}
	}

	ep.reset()
	p.logger.Debug("connection error, dropping idle connections",
		ports.String("endpoint", ep.url),
		ports.Err(err),
	)
	return &domain.TransportError{Endpoint: ep.url, Err: err}
}

// Close releases idle connections. Acquire fails afterwards.
func (p *Pool) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		for _, ep := range p.endpoints {
			ep.transport.CloseIdleConnections()
		}
	})
	return nil
}
