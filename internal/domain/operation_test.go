package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpKind(t *testing.T) {
	tests := []struct {
		in      string
		want    OpKind
		wantErr bool
	}{
		{"index", OpIndex, false},
		{"", OpIndex, false},
		{"UPSERT", OpUpsert, false},
		{"update", OpUpsert, false},
		{" delete ", OpDelete, false},
		{"merge", OpIndex, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOpKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) OpKind {
	t.Helper()
	k, err := ParseOpKind(s)
	require.NoError(t, err)
	return k
}

func TestWriteOperation_Key(t *testing.T) {
	a := WriteOperation{Index: "orders", DocID: "1"}
	b := WriteOperation{Index: "orders", DocID: "1", Kind: OpDelete}
	c := WriteOperation{Index: "users", DocID: "1"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestWriteOperation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		op      WriteOperation
		wantErr bool
	}{
		{"index with payload", WriteOperation{Index: "i", DocID: "1", Payload: []byte(`{}`)}, false},
		{"delete without payload", WriteOperation{Index: "i", DocID: "1", Kind: OpDelete}, false},
		{"missing index", WriteOperation{DocID: "1", Payload: []byte(`{}`)}, true},
		{"missing id", WriteOperation{Index: "i", Payload: []byte(`{}`)}, true},
		{"upsert without payload", WriteOperation{Index: "i", DocID: "1", Kind: OpUpsert}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestBatch_AddTracksBytes(t *testing.T) {
	b := NewBatch(2)
	assert.True(t, b.Empty())

	op := WriteOperation{Index: "i", DocID: "1", Payload: []byte(`{"a":1}`)}
	b.Add(Item{Op: op, Seq: 1})
	b.Add(Item{Op: op, Seq: 2})

	assert.Equal(t, 2, b.Size())
	assert.Equal(t, 2*op.Size(), b.Bytes)
}

func TestBulkResult_Count(t *testing.T) {
	res := Uniform(3, Success(200))
	res.Outcomes[1] = Retryable(429, "too many requests", nil)

	assert.Equal(t, 2, res.Count(OutcomeSuccess))
	assert.Equal(t, 1, res.Count(OutcomeRetryable))
	assert.Equal(t, 0, res.Count(OutcomePermanent))
	assert.False(t, res.Outcomes[1].Terminal())
	assert.True(t, res.Outcomes[0].Terminal())
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(60))
}

func TestBackoffPolicy_Jitter(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 10 * time.Second, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
