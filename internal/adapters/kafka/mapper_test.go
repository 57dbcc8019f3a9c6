package kafka

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/docship/internal/domain"
)

func TestMapper_Defaults(t *testing.T) {
	m, err := NewMapper(MapperConfig{})
	require.NoError(t, err)

	op, err := m.Map(record("Orders", 2, 17, "o-1", `{"total":3}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OpIndex, op.Kind)
	assert.Equal(t, "orders", op.Index)
	assert.Equal(t, "o-1", op.DocID)
	assert.Equal(t, `{"total":3}`, string(op.Payload))
	assert.Equal(t, domain.Identity{Topic: "Orders", Partition: 2, Offset: 17}, op.Origin)
}

func TestMapper_IndexAndUpsert(t *testing.T) {
	m, err := NewMapper(MapperConfig{Index: "docs", Upsert: true})
	require.NoError(t, err)

	op, err := m.Map(record("orders", 0, 1, "k", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "docs", op.Index)
	assert.Equal(t, domain.OpUpsert, op.Kind)
}

func TestMapper_KeyIgnore(t *testing.T) {
	m, err := NewMapper(MapperConfig{KeyIgnore: true, NullValues: NullIgnore})
	require.NoError(t, err)

	op, err := m.Map(record("orders", 3, 42, "", `{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "orders+3+42", op.DocID)
}

func TestMapper_KeyIgnoreRejectsDelete(t *testing.T) {
	_, err := NewMapper(MapperConfig{KeyIgnore: true})
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
}

func TestMapper_MissingKey(t *testing.T) {
	m, err := NewMapper(MapperConfig{})
	require.NoError(t, err)

	_, err = m.Map(record("orders", 0, 5, "", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders/0@5")
}

func TestMapper_NullValues(t *testing.T) {
	tests := []struct {
		behaviour string
		wantKind  domain.OpKind
		wantErr   error
		anyErr    bool
	}{
		{behaviour: "", wantKind: domain.OpDelete},
		{behaviour: "DELETE", wantKind: domain.OpDelete},
		{behaviour: NullIgnore, wantErr: ErrSkip},
		{behaviour: NullFail, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.behaviour, func(t *testing.T) {
			m, err := NewMapper(MapperConfig{NullValues: tt.behaviour})
			require.NoError(t, err)

			op, err := m.Map(record("orders", 0, 9, "k", ""))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrSkip)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantKind, op.Kind)
				assert.Nil(t, op.Payload)
			}
		})
	}
}

func TestMapper_UnknownNullBehaviour(t *testing.T) {
	_, err := NewMapper(MapperConfig{NullValues: "drop"})
	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "kafka.null_values", ce.Option)
}
