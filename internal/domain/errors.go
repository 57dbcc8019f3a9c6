package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Lifecycle and pipeline errors. Check with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("docship: already running")

	// ErrNotRunning is returned when Stop() or Submit() is called on a stopped instance.
	ErrNotRunning = errors.New("docship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("docship: shutdown timeout")

	// ErrClosed is returned by Submit after the batcher stopped accepting work.
	ErrClosed = errors.New("docship: closed")

	// ErrShutdown is the cause attached to items still outstanding when the
	// shutdown timeout expires.
	ErrShutdown = errors.New("docship: shut down before operation completed")
)

// ConfigurationError reports an invalid or missing transport option.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Option, e.Reason)
}

// CertificateTrustError reports a server certificate chain that does not
// verify against the configured trust material.
type CertificateTrustError struct {
	Endpoint string
	Err      error
}

func (e *CertificateTrustError) Error() string {
	return fmt.Sprintf("certificate trust failure for %s: %v", e.Endpoint, e.Err)
}

func (e *CertificateTrustError) Unwrap() error { return e.Err }

// HostnameVerificationError reports a trusted certificate that does not
// name the host it was served for.
type HostnameVerificationError struct {
	Endpoint string
	Host     string
	Err      error
}

func (e *HostnameVerificationError) Error() string {
	return fmt.Sprintf("hostname verification failed for %s (host %s): %v", e.Endpoint, e.Host, e.Err)
}

func (e *HostnameVerificationError) Unwrap() error { return e.Err }

// TransportError reports a network failure talking to an endpoint.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// PoolExhaustedError reports that a bounded wait for capacity expired,
// either for a pooled connection or for room in the pending queue.
type PoolExhaustedError struct {
	Resource string
	Wait     time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("%s exhausted after waiting %s", e.Resource, e.Wait)
}

// ProtocolError reports a bulk response that cannot be reconciled with its
// request.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bulk protocol error: %s: %v", e.Reason, e.Err)
	}
	return "bulk protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsRetryable reports whether resubmitting after err could succeed.
func IsRetryable(err error) bool {
	var te *TransportError
	var pe *PoolExhaustedError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// IsFatal reports whether err indicates a defect that halts the write path:
// bad configuration, untrusted or misnamed certificates, or a protocol
// mismatch with the store.
func IsFatal(err error) bool {
	var ce *ConfigurationError
	var ct *CertificateTrustError
	var hv *HostnameVerificationError
	var pe *ProtocolError
	return errors.As(err, &ce) || errors.As(err, &hv) || errors.As(err, &ct) || errors.As(err, &pe)
}
