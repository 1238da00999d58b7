// Package configwatcher reloads lifecycle timeouts from a TOML file.
//
// The plugin applies the file once when the orchestrator starts and again
// every time it changes on disk, through the same setters an embedding
// program would call. The parent directory is watched rather than the file
// itself so that editors which save by renaming a temporary file are seen.
package configwatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/spaship"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// Plugin implements timeouts file watching.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	orch     *spaship.Orchestrator
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	applied  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the timeouts file to watch.
	Path string

	// DebounceDelay is the delay to wait after a file change before applying.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize applies the file and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, pc spaship.PluginContext) error {
	p.mu.Lock()
	p.orch = pc.Orchestrator
	p.logger = log.With(pc.Logger, log.String("plugin", p.Name()))
	p.mu.Unlock()

	if p.path == "" {
		p.logger.Warn("Config watcher disabled: no timeouts file configured")
		return nil
	}

	if err := p.apply(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("Config watcher plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Applied returns how many times the file has been applied successfully.
func (p *Plugin) Applied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied
}

// watchLoop watches for timeouts file changes.
func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.debounceApply(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Config watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceApply(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.apply(); err != nil {
			p.logger.Error("Config watcher: failed to apply timeouts file", log.Err(err))
		}
	})
}

// apply reads the file and pushes every table it contains through the
// orchestrator setters. An invalid table is reported and skipped; the
// others still take effect.
func (p *Plugin) apply() error {
	f, err := ReadFile(p.path)
	if err != nil {
		return err
	}

	current := p.orch.Timeouts()
	entries := f.Entries()
	lifecycles := make([]string, 0, len(entries))
	for l := range entries {
		lifecycles = append(lifecycles, string(l))
	}
	sort.Strings(lifecycles)

	var errs []error
	for _, name := range lifecycles {
		l := timeouts.Lifecycle(name)
		policy := entries[l].Merge(current.For(l))
		if err := p.set(l, policy); err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Info("Config watcher: applied timeouts",
			log.Lifecycle(name),
			log.Duration("timeout", policy.Timeout),
			log.Duration("warning", policy.Warning),
			log.Bool("die_on_timeout", policy.DieOnTimeout))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.mu.Lock()
	p.applied++
	p.mu.Unlock()
	return nil
}

func (p *Plugin) set(l timeouts.Lifecycle, policy timeouts.Policy) error {
	switch l {
	case timeouts.Bootstrap:
		return p.orch.SetBootstrapMaxTime(policy.Timeout, policy.DieOnTimeout, policy.Warning)
	case timeouts.Mount:
		return p.orch.SetMountMaxTime(policy.Timeout, policy.DieOnTimeout, policy.Warning)
	case timeouts.Unmount:
		return p.orch.SetUnmountMaxTime(policy.Timeout, policy.DieOnTimeout, policy.Warning)
	default:
		return p.orch.SetUnloadMaxTime(policy.Timeout, policy.DieOnTimeout, policy.Warning)
	}
}

// Ensure Plugin implements spaship.Plugin.
var _ spaship.Plugin = (*Plugin)(nil)
