package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// Version conflict policies.
const (
	ConflictFail   = "fail"
	ConflictIgnore = "ignore"
)

// Default executor configuration values.
const (
	DefaultConnectionRetries = 3
	DefaultConnectionBackoff = 100 * time.Millisecond
	maxConnectionBackoff     = 5 * time.Second
)

// ExecutorConfig controls bulk request behaviour.
type ExecutorConfig struct {
	// ConnectionRetries is how many times a request that failed at the
	// connection level is re-sent, each time to the next endpoint.
	ConnectionRetries int

	// ConnectionBackoff is the base delay between those re-sends.
	ConnectionBackoff time.Duration

	// ExternalVersioning sends the record offset as an external version on
	// index and delete actions, so replays never overwrite newer writes.
	ExternalVersioning bool

	// VersionConflictPolicy decides how a 409 on index or delete is
	// treated: "fail" (permanent failure) or "ignore" (success).
	VersionConflictPolicy string
}

// BulkExecutor implements ports.BulkExecutor against the _bulk endpoint.
type BulkExecutor struct {
	pool    *Pool
	config  ExecutorConfig
	backoff domain.BackoffPolicy
	logger  ports.Logger
}

// NewBulkExecutor creates an executor sending through pool.
func NewBulkExecutor(pool *Pool, config ExecutorConfig, logger ports.Logger) *BulkExecutor {
	if config.ConnectionRetries < 0 {
		config.ConnectionRetries = 0
	}
	if config.ConnectionBackoff <= 0 {
		config.ConnectionBackoff = DefaultConnectionBackoff
	}
	config.VersionConflictPolicy = strings.ToLower(config.VersionConflictPolicy)
	if config.VersionConflictPolicy != ConflictIgnore {
		config.VersionConflictPolicy = ConflictFail
	}
	return &BulkExecutor{
		pool:    pool,
		config:  config,
		backoff: domain.BackoffPolicy{Base: config.ConnectionBackoff, Max: maxConnectionBackoff, Jitter: 0.2},
		logger:  logger,
	}
}

// Submit sends batch as one bulk request and classifies every item.
func (e *BulkExecutor) Submit(ctx context.Context, batch *domain.Batch) (domain.BulkResult, error) {
	res := domain.BulkResult{Outcomes: make([]domain.Outcome, batch.Size())}

	body, sent, rejected := encodeBulk(batch.Items, e.config.ExternalVersioning)
	for i, err := range rejected {
		res.Outcomes[i] = domain.Permanent(0, err.Error(), err)
	}
	if len(sent) == 0 {
		return res, nil
	}

	setAll := func(o domain.Outcome) {
		for _, i := range sent {
			res.Outcomes[i] = o
		}
	}

	resp, err := e.send(ctx, body)
	if err != nil {
		if domain.IsFatal(err) {
			setAll(domain.Permanent(0, err.Error(), err))
			return res, err
		}
		setAll(domain.Retryable(0, err.Error(), err))
		return res, nil
	}

	switch {
	case resp.Status == http.StatusTooManyRequests || resp.Status >= 500:
		setAll(domain.Retryable(resp.Status, errorReason(resp.Body), nil))
		return res, nil
	case resp.Status/100 != 2:
		setAll(domain.Permanent(resp.Status, errorReason(resp.Body), nil))
		return res, nil
	}

	items, err := decodeBulk(resp.Body, len(sent))
	if err != nil {
		setAll(domain.Permanent(resp.Status, err.Error(), err))
		return res, err
	}
	for j, i := range sent {
		res.Outcomes[i] = e.classifyItem(batch.Items[i].Op, items[j])
	}
	return res, nil
}

// send posts body, moving to the next endpoint after a connection failure.
func (e *BulkExecutor) send(ctx context.Context, body []byte) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.ConnectionRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(e.backoff.Delay(attempt))
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return Response{}, &domain.TransportError{Endpoint: "", Err: ctx.Err()}
			}
		}

		endpoint := e.pool.Next()
		conn, err := e.pool.Acquire(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, &domain.TransportError{Endpoint: endpoint, Err: err}
			}
			// saturation is surfaced, not retried here
			return Response{}, err
		}

		resp, err := e.pool.Execute(ctx, conn, Request{
			Method:      http.MethodPost,
			Path:        "/_bulk",
			ContentType: ndjsonContentType,
			Body:        body,
		})
		conn.Release()
		if err == nil {
			return resp, nil
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return Response{}, err
		}

		lastErr = err
		e.logger.Warn("bulk request failed, trying next endpoint",
			ports.String("endpoint", endpoint),
			ports.Int("attempt", attempt+1),
			ports.Err(err),
		)
	}
	return Response{}, lastErr
}

func (e *BulkExecutor) classifyItem(op domain.WriteOperation, it bulkItem) domain.Outcome {
	status := it.Status
	why := reason(it.Error)

	switch {
	case status/100 == 2:
		return domain.Success(status)
	case status == http.StatusNotFound && op.Kind == domain.OpDelete && why == "":
		// already gone
		return domain.Success(status)
	case status == http.StatusConflict:
		if op.Kind == domain.OpUpsert || e.config.VersionConflictPolicy == ConflictIgnore {
			return domain.Success(status)
		}
		return domain.Permanent(status, why, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.Retryable(status, why, nil)
	default:
		return domain.Permanent(status, why, nil)
	}
}

// Ping checks that endpoint answers with cluster information.
func (e *BulkExecutor) Ping(ctx context.Context, endpoint string) (ClusterInfo, error) {
	return ping(ctx, e.pool, endpoint)
}

// Close closes the underlying pool.
func (e *BulkExecutor) Close() error {
	return e.pool.Close()
}
