package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(WithOutput(&buf), WithFormat("json"), WithLevel("debug"))

	logger.Debug("batch sent",
		String("endpoint", "https://es:9200"),
		Int("items", 3),
		Duration("took", 2*time.Millisecond),
		Err(errors.New("boom")),
		Bytes("size", 2048),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "batch sent", entry["message"])
	assert.Equal(t, "https://es:9200", entry["endpoint"])
	assert.EqualValues(t, 3, entry["items"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "2.0 kB", entry["size"])
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(WithOutput(&buf), WithFormat("json"), WithLevel("warn"))

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestZerologAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(WithOutput(&buf), WithFormat("json")).With(String("component", "pool"))

	logger.Info("ready")
	assert.Contains(t, buf.String(), `"component":"pool"`)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoopLogger()
	l.Error("ignored", Err(errors.New("x")))
}
