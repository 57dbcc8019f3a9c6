package ndjson

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/docship/internal/adapters/log"
	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

const input = `{"op":"index","index":"orders","id":"o-1","doc":{"total":3}}

{"id":"o-2","doc":{"total":4}}
not json
{"op":"update","index":"orders","id":"o-1","doc":{"total":5}}
{"op":"delete","index":"orders","id":"o-2"}
{"op":"index","index":"orders","id":"o-3"}
{"op":"merge","id":"o-4","doc":{}}
`

func TestSource_ReadsOperations(t *testing.T) {
	var rejected []domain.WriteOperation
	handler := ports.ResultHandlerFunc(func(op domain.WriteOperation, out domain.Outcome) {
		assert.Equal(t, domain.OutcomePermanent, out.Class)
		rejected = append(rejected, op)
	})
	logs := logAdapter.NewRecorder()
	src := NewSource("stdin", strings.NewReader(input), "default", handler, logs)

	var ops []domain.WriteOperation
	for {
		op, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ops = append(ops, op)
	}

	require.Len(t, ops, 4)
	assert.Equal(t, domain.OpIndex, ops[0].Kind)
	assert.Equal(t, `{"total":3}`, string(ops[0].Payload))
	assert.Equal(t, domain.Identity{Topic: "stdin", Offset: 1}, ops[0].Origin)

	assert.Equal(t, "default", ops[1].Index)
	assert.Equal(t, int64(3), ops[1].Origin.Offset)

	assert.Equal(t, domain.OpUpsert, ops[2].Kind)
	assert.Equal(t, domain.OpDelete, ops[3].Kind)
	assert.Nil(t, ops[3].Payload)

	// bad JSON, index without doc, unknown op
	require.Len(t, rejected, 3)
	assert.Equal(t, int64(4), rejected[0].Origin.Offset)
	assert.Equal(t, "not json", string(rejected[0].Payload))
	assert.Equal(t, int64(7), rejected[1].Origin.Offset)
	assert.Equal(t, int64(8), rejected[2].Origin.Offset)
	assert.Equal(t, 3, src.Skipped())
	assert.Equal(t, 3, logs.Count("warn", "skipping invalid line"))
}

func TestSource_ContextCancelled(t *testing.T) {
	src := NewSource("stdin", strings.NewReader(input), "", nil, logAdapter.NewRecorder())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type closingReader struct {
	io.Reader
	closed bool
}

func (c *closingReader) Close() error {
	c.closed = true
	return nil
}

func TestSource_Close(t *testing.T) {
	r := &closingReader{Reader: strings.NewReader("")}
	src := NewSource("f", r, "", nil, logAdapter.NewRecorder())
	require.NoError(t, src.Close())
	assert.True(t, r.closed)

	assert.NoError(t, NewSource("s", strings.NewReader(""), "", nil, logAdapter.NewRecorder()).Close())
}
