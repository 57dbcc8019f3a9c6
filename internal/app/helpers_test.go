package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/docship/internal/domain"
)

func op(index, id string) domain.WriteOperation {
	return domain.WriteOperation{
		Kind:    domain.OpIndex,
		Index:   index,
		DocID:   id,
		Payload: []byte(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

func item(seq uint64, id string) domain.Item {
	return domain.Item{Op: op("docs", id), Seq: seq}
}

func nextWithin(t *testing.T, b *Batcher, d time.Duration) *domain.Batch {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	batch, err := b.Next(ctx)
	require.NoError(t, err)
	return batch
}

func ids(batch *domain.Batch) []string {
	out := make([]string, 0, batch.Size())
	for _, it := range batch.Items {
		out = append(out, it.Op.DocID)
	}
	return out
}

// recordingHandler collects outcomes in delivery order.
type recordingHandler struct {
	mu       sync.Mutex
	ops      []domain.WriteOperation
	outcomes []domain.Outcome
}

func (h *recordingHandler) OnOutcome(op domain.WriteOperation, out domain.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, op)
	h.outcomes = append(h.outcomes, out)
}

func (h *recordingHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ops)
}

func (h *recordingHandler) Snapshot() ([]domain.WriteOperation, []domain.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.WriteOperation{}, h.ops...), append([]domain.Outcome{}, h.outcomes...)
}
