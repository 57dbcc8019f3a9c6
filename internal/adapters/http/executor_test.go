package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/docship/internal/adapters/log"
	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/transport"
)

func plainPool(t *testing.T, cfg PoolConfig, urls ...string) *Pool {
	t.Helper()
	p, err := transport.Resolve(transport.Options{URLs: urls, Username: "elastic", Password: "changeme"})
	require.NoError(t, err)
	pool := NewPool(p, cfg, logAdapter.NewRecorder(), nil)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func newExecutor(t *testing.T, cfg ExecutorConfig, urls ...string) *BulkExecutor {
	t.Helper()
	return NewBulkExecutor(plainPool(t, PoolConfig{}, urls...), cfg, logAdapter.NewRecorder())
}

func batchOf(ops ...domain.WriteOperation) *domain.Batch {
	b := domain.NewBatch(len(ops))
	for i, o := range ops {
		b.Add(domain.Item{Op: o, Seq: uint64(i + 1), Attempts: 1})
	}
	return b
}

func indexOp(id string) domain.WriteOperation {
	return domain.WriteOperation{Kind: domain.OpIndex, Index: "docs", DocID: id, Payload: []byte(`{"v":1}`)}
}

func TestBulkExecutor_AllSuccess(t *testing.T) {
	cluster := &fakeCluster{t: t}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	exec := newExecutor(t, ExecutorConfig{}, srv.URL)
	res, err := exec.Submit(context.Background(), batchOf(indexOp("1"), indexOp("2")))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count(domain.OutcomeSuccess))
	require.Len(t, cluster.headers, 1)
	assert.Equal(t, ndjsonContentType, cluster.headers[0].Get("Content-Type"))
	assert.NotEmpty(t, cluster.headers[0].Get("X-Opaque-Id"))
	assert.Contains(t, cluster.headers[0].Get("Authorization"), "Basic ")
}

func TestBulkExecutor_ItemClassification(t *testing.T) {
	cluster := &fakeCluster{t: t, respond: func(_ int, a bulkAction) (int, string) {
		switch a.ID {
		case "throttled":
			return 429, "es_rejected_execution_exception"
		case "bad":
			return 400, "mapper_parsing_exception"
		case "conflict", "upsert-conflict":
			return 409, "version_conflict_engine_exception"
		case "unavailable":
			return 503, "unavailable_shards_exception"
		case "gone":
			return 404, ""
		}
		return 200, ""
	}}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	upsert := domain.WriteOperation{Kind: domain.OpUpsert, Index: "docs", DocID: "upsert-conflict", Payload: []byte(`{}`)}
	del := domain.WriteOperation{Kind: domain.OpDelete, Index: "docs", DocID: "gone"}
	batch := batchOf(indexOp("ok"), indexOp("throttled"), indexOp("bad"), indexOp("conflict"), upsert, indexOp("unavailable"), del)

	t.Run("fail on conflict", func(t *testing.T) {
		res, err := newExecutor(t, ExecutorConfig{}, srv.URL).Submit(context.Background(), batch)
		require.NoError(t, err)

		want := []domain.OutcomeClass{
			domain.OutcomeSuccess, domain.OutcomeRetryable, domain.OutcomePermanent,
			domain.OutcomePermanent, domain.OutcomeSuccess, domain.OutcomeRetryable, domain.OutcomeSuccess,
		}
		for i, w := range want {
			assert.Equal(t, w, res.Outcomes[i].Class, batch.Items[i].Op.DocID)
		}
		assert.Equal(t, 400, res.Outcomes[2].Status)
		assert.Contains(t, res.Outcomes[2].Reason, "mapper_parsing_exception")
	})

	t.Run("ignore conflict", func(t *testing.T) {
		res, err := newExecutor(t, ExecutorConfig{VersionConflictPolicy: "IGNORE"}, srv.URL).Submit(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSuccess, res.Outcomes[3].Class)
	})
}

func TestBulkExecutor_WholeRequestStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.OutcomeClass
	}{
		{http.StatusTooManyRequests, domain.OutcomeRetryable},
		{http.StatusServiceUnavailable, domain.OutcomeRetryable},
		{http.StatusBadGateway, domain.OutcomeRetryable},
		{http.StatusUnauthorized, domain.OutcomePermanent},
		{http.StatusRequestEntityTooLarge, domain.OutcomePermanent},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(&fakeCluster{t: t, status: tt.status})
			defer srv.Close()

			res, err := newExecutor(t, ExecutorConfig{}, srv.URL).Submit(context.Background(), batchOf(indexOp("1"), indexOp("2")))
			require.NoError(t, err)
			for _, o := range res.Outcomes {
				assert.Equal(t, tt.want, o.Class)
				assert.Equal(t, tt.status, o.Status)
			}
		})
	}
}

func TestBulkExecutor_ItemCountMismatch(t *testing.T) {
	srv := httptest.NewServer(&fakeCluster{t: t, raw: `{"errors":false,"items":[{"index":{"_id":"1","status":201}}]}`})
	defer srv.Close()

	res, err := newExecutor(t, ExecutorConfig{}, srv.URL).Submit(context.Background(), batchOf(indexOp("1"), indexOp("2")))

	var pe *domain.ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.True(t, domain.IsFatal(err))
	assert.Equal(t, 0, res.Count(domain.OutcomeSuccess))
	assert.Equal(t, 2, res.Count(domain.OutcomePermanent))
}

func TestBulkExecutor_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(&fakeCluster{t: t, raw: `<html>proxy error</html>`})
	defer srv.Close()

	_, err := newExecutor(t, ExecutorConfig{}, srv.URL).Submit(context.Background(), batchOf(indexOp("1")))
	var pe *domain.ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestBulkExecutor_InvalidPayloadNotSent(t *testing.T) {
	cluster := &fakeCluster{t: t}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	bad := domain.WriteOperation{Kind: domain.OpIndex, Index: "docs", DocID: "bad", Payload: []byte(`{oops`)}
	res, err := newExecutor(t, ExecutorConfig{}, srv.URL).Submit(context.Background(), batchOf(indexOp("1"), bad))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcomes[0].Class)
	assert.Equal(t, domain.OutcomePermanent, res.Outcomes[1].Class)
	require.Len(t, cluster.actions, 1)
	assert.Len(t, cluster.actions[0], 1)
}

func TestBulkExecutor_FailsOverToNextEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cluster := &fakeCluster{t: t}
	live := httptest.NewServer(cluster)
	defer live.Close()

	exec := newExecutor(t, ExecutorConfig{ConnectionRetries: 2, ConnectionBackoff: time.Millisecond}, deadURL, live.URL)
	res, err := exec.Submit(context.Background(), batchOf(indexOp("1")))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, res.Outcomes[0].Class)
	assert.Equal(t, 1, cluster.Calls())
}

func TestBulkExecutor_ConnectionFailureIsRetryable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	exec := newExecutor(t, ExecutorConfig{ConnectionRetries: 1, ConnectionBackoff: time.Millisecond}, deadURL)
	res, err := exec.Submit(context.Background(), batchOf(indexOp("1"), indexOp("2")))
	require.NoError(t, err)

	for _, o := range res.Outcomes {
		assert.Equal(t, domain.OutcomeRetryable, o.Class)
		var te *domain.TransportError
		assert.ErrorAs(t, o.Err, &te)
	}
}

func TestBulkExecutor_Ping(t *testing.T) {
	srv := httptest.NewServer(&fakeCluster{t: t})
	defer srv.Close()

	info, err := newExecutor(t, ExecutorConfig{}, srv.URL).Ping(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "docship-test", info.ClusterName)
	assert.Equal(t, "8.13.0", info.Version.Number)
}
