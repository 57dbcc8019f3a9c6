package certwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/docship/internal/adapters/log"
	"github.com/bft-labs/docship/pkg/docship"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestPlugin_DetectsContentChange(t *testing.T) {
	dir := t.TempDir()
	trust := filepath.Join(dir, "ca.pem")
	other := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(trust, []byte("one"), 0o600))

	seen := &changes{}
	logs := logAdapter.NewRecorder()
	p := New(Config{DebounceDelay: 20 * time.Millisecond, OnChange: seen.add})
	require.NoError(t, p.Initialize(context.Background(), docship.PluginConfig{
		TruststoreLocation: trust,
		Logger:             logs,
	}))
	defer p.Shutdown(context.Background())

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(trust, []byte("two"), 0o600))

	require.Eventually(t, func() bool { return len(seen.get()) == 1 }, 5*time.Second, 10*time.Millisecond)
	abs, err := filepath.Abs(trust)
	require.NoError(t, err)
	assert.Equal(t, abs, seen.get()[0])
	assert.Equal(t, 1, logs.Count("warn", "TLS material changed on disk, restart to apply"))
}

func TestPlugin_IgnoresIdenticalRewrite(t *testing.T) {
	dir := t.TempDir()
	keystore := filepath.Join(dir, "client.pem")
	require.NoError(t, os.WriteFile(keystore, []byte("same"), 0o600))

	seen := &changes{}
	p := New(Config{DebounceDelay: 10 * time.Millisecond, OnChange: seen.add})
	require.NoError(t, p.Initialize(context.Background(), docship.PluginConfig{
		KeystoreLocation: keystore,
		Logger:           logAdapter.NewRecorder(),
	}))

	require.NoError(t, os.WriteFile(keystore, []byte("same"), 0o600))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Empty(t, seen.get())
}

func TestPlugin_NoFilesIsIdle(t *testing.T) {
	p := New(DefaultConfig())
	require.NoError(t, p.Initialize(context.Background(), docship.PluginConfig{Logger: logAdapter.NewRecorder()}))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, "certwatcher", p.Name())
}

func TestPlugin_MissingDirectory(t *testing.T) {
	p := New(DefaultConfig())
	err := p.Initialize(context.Background(), docship.PluginConfig{
		TruststoreLocation: filepath.Join(t.TempDir(), "nope", "ca.pem"),
		Logger:             logAdapter.NewRecorder(),
	})
	assert.Error(t, err)
}
