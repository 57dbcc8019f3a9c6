// Package certwatcher watches the keystore and truststore files of a
// docship instance. TLS material is loaded once at startup, so a change on
// disk only takes effect after a restart; the plugin logs a warning and
// calls an optional callback when it sees one.
package certwatcher

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/docship/pkg/docship"
	"github.com/bft-labs/docship/pkg/log"
)

// Plugin implements certificate file watching.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration
	onChange      func(path string)

	files    map[string][32]byte // watched path -> content digest
	logger   docship.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce map[string]*time.Timer
}

// Config holds configuration options for the cert watcher plugin.
type Config struct {
	// DebounceDelay is how long to wait after the last event on a file
	// before comparing its contents.
	// Default: 200 milliseconds
	DebounceDelay time.Duration

	// OnChange is called with the path of a file whose contents changed.
	OnChange func(path string)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 200 * time.Millisecond}
}

// New creates a new cert watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 200 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		onChange:      cfg.OnChange,
		debounce:      make(map[string]*time.Timer),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "certwatcher"
}

// Initialize records the current file contents and starts watching.
func (p *Plugin) Initialize(ctx context.Context, cfg docship.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	p.files = make(map[string][32]byte)
	for _, path := range []string{cfg.KeystoreLocation, cfg.TruststoreLocation} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			p.mu.Unlock()
			return errors.Wrapf(err, "resolve %s", path)
		}
		p.files[abs] = digest(abs)
	}
	p.mu.Unlock()

	if len(p.files) == 0 {
		p.logger.Debug("cert watcher idle: no keystore or truststore configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	// directories, so replacing a file by rename is seen
	dirs := make(map[string]struct{})
	for path := range p.files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return errors.Wrapf(err, "watch %s", dir)
		}
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	p.logger.Info("cert watcher plugin initialized")
	return nil
}

// Shutdown stops the watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for _, t := range p.debounce {
		t.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !p.watched(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			p.schedule(ctx, filepath.Clean(event.Name))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("cert watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) watched(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.files[filepath.Clean(name)]
	return ok
}

func (p *Plugin) schedule(ctx context.Context, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.debounce[path]; ok {
		t.Stop()
	}
	p.debounce[path] = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() == nil {
			p.check(path)
		}
	})
}

// check compares the file with its last known contents.
func (p *Plugin) check(path string) {
	sum := digest(path)

	p.mu.Lock()
	prev := p.files[path]
	p.files[path] = sum
	p.mu.Unlock()

	if sum == prev {
		return
	}
	p.logger.Warn("TLS material changed on disk, restart to apply", log.String("path", path))
	if p.onChange != nil {
		p.onChange(path)
	}
}

// digest hashes the file contents; a missing file hashes as empty.
func digest(path string) [32]byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(data)
}

var _ docship.Plugin = (*Plugin)(nil)
