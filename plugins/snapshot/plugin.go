// Package snapshot persists the settled application statuses after every
// reroute pass.
//
// The snapshot is written to status.json in the configured directory using
// an atomic rename, so readers never observe a partial file. Writes happen
// on a background goroutine; when passes complete faster than the disk keeps
// up, only the most recent snapshot is written.
package snapshot

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/spaship"
	"github.com/bft-labs/spaship/pkg/state"
)

// Config holds configuration options for the snapshot plugin.
type Config struct {
	// Dir is the directory that receives status.json.
	Dir string

	// Repository overrides the file repository built from Dir.
	Repository state.Repository
}

// Plugin writes a state.Snapshot after each routing-event notification.
type Plugin struct {
	repo state.Repository

	logger      log.Logger
	clock       clockwork.Clock
	orch        *spaship.Orchestrator
	unsubscribe func()

	pending chan state.Snapshot
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	saved int
	last  state.Snapshot
}

// New creates a snapshot plugin.
func New(cfg Config) *Plugin {
	repo := cfg.Repository
	if repo == nil {
		repo = state.NewFileRepository(cfg.Dir)
	}
	return &Plugin{repo: repo}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "snapshot"
}

// Initialize starts the writer and subscribes to routing-event notifications.
func (p *Plugin) Initialize(ctx context.Context, pc spaship.PluginContext) error {
	p.logger = log.With(pc.Logger, log.String("plugin", p.Name()))
	p.clock = pc.Clock
	p.orch = pc.Orchestrator
	p.pending = make(chan state.Snapshot, 1)

	writeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go p.writeLoop(writeCtx)

	p.unsubscribe = pc.Orchestrator.Subscribe(p.onRoutingEvent, events.RoutingEvent)
	return nil
}

// Shutdown unsubscribes, writes the last pending snapshot and stops the writer.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	if p.cancel == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.cancel()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Saved returns how many snapshots have been written.
func (p *Plugin) Saved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved
}

// Last returns the most recently written snapshot.
func (p *Plugin) Last() state.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Plugin) onRoutingEvent(evt events.Event) {
	snap := state.Snapshot{
		URL:          evt.Detail.NewURL,
		Mounted:      p.orch.MountedApps(),
		Applications: p.orch.AppStatuses(),
		CapturedAt:   p.clock.Now(),
	}
	snap.TotalAppChanges = evt.Detail.TotalAppChanges

	// Latest wins: drop a snapshot the writer has not picked up yet.
	for {
		select {
		case p.pending <- snap:
			return
		default:
		}
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *Plugin) writeLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			select {
			case snap := <-p.pending:
				p.save(context.Background(), snap)
			default:
			}
			return
		case snap := <-p.pending:
			p.save(ctx, snap)
		}
	}
}

func (p *Plugin) save(ctx context.Context, snap state.Snapshot) {
	if err := p.repo.Save(ctx, snap); err != nil {
		p.logger.Error("Failed to save status snapshot", log.Err(err))
		return
	}
	p.mu.Lock()
	p.saved++
	p.last = snap
	p.mu.Unlock()
	p.logger.Debug("Saved status snapshot",
		log.String("url", snap.URL),
		log.Strings("mounted", snap.Mounted))
}

// Ensure Plugin implements spaship.Plugin.
var _ spaship.Plugin = (*Plugin)(nil)
