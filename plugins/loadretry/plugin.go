// Package loadretry re-runs reroute for applications stuck in LOAD_ERROR.
//
// A failed load only becomes eligible again once the load error cooldown has
// passed, and nothing triggers a reroute on its own after that. This plugin
// watches routing-event notifications and, while an application that should
// be active sits in LOAD_ERROR, schedules one more pass with exponential
// backoff. The backoff resets as soon as no active application is failing.
package loadretry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/spaship"
)

// Config holds configuration options for the load retry plugin.
type Config struct {
	// InitialInterval is the delay before the first retry.
	// Default: 200 milliseconds (the load error cooldown)
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	// Default: 30 seconds
	MaxInterval time.Duration

	// Multiplier grows the delay after every retry.
	// Default: 2
	Multiplier float64

	// RandomizationFactor spreads retries by +/- this fraction.
	// Default: 0.2
	RandomizationFactor float64

	// MaxElapsedTime stops retrying once exceeded. Zero retries forever.
	MaxElapsedTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.2,
	}
}

// Plugin schedules reroutes while active applications are in LOAD_ERROR.
type Plugin struct {
	cfg Config

	mu          sync.Mutex
	orch        *spaship.Orchestrator
	logger      log.Logger
	clock       clockwork.Clock
	ctx         context.Context
	backoff     *backoff.ExponentialBackOff
	timer       clockwork.Timer
	unsubscribe func()
	retries     int
	stopped     bool
}

// New creates a load retry plugin. Zero fields fall back to DefaultConfig.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.RandomizationFactor < 0 || cfg.RandomizationFactor >= 1 {
		cfg.RandomizationFactor = def.RandomizationFactor
	}
	return &Plugin{cfg: cfg}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "loadretry"
}

// Initialize subscribes to routing-event notifications.
func (p *Plugin) Initialize(ctx context.Context, pc spaship.PluginContext) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxInterval = p.cfg.MaxInterval
	bo.Multiplier = p.cfg.Multiplier
	bo.RandomizationFactor = p.cfg.RandomizationFactor
	bo.MaxElapsedTime = p.cfg.MaxElapsedTime
	bo.Clock = pc.Clock
	bo.Reset()

	p.mu.Lock()
	p.orch = pc.Orchestrator
	p.logger = log.With(pc.Logger, log.String("plugin", p.Name()))
	p.clock = pc.Clock
	p.ctx = ctx
	p.backoff = bo
	p.stopped = false
	p.mu.Unlock()

	p.unsubscribe = pc.Orchestrator.Subscribe(p.onRoutingEvent, events.RoutingEvent)
	return nil
}

// Shutdown unsubscribes and cancels a pending retry.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return nil
}

// Retries returns how many retries have been scheduled since the last reset.
func (p *Plugin) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

// failing returns the applications that should be active but failed to load.
func (p *Plugin) failing() []string {
	statuses := p.orch.AppStatuses()
	var names []string
	for _, name := range p.orch.CheckActivityFunctions(p.orch.Location()) {
		if statuses[name] == app.StatusLoadError {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (p *Plugin) onRoutingEvent(events.Event) {
	names := p.failing()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	if len(names) == 0 {
		if p.retries > 0 {
			p.logger.Info("Applications recovered from load errors", log.Int("retries", p.retries))
		}
		p.backoff.Reset()
		p.retries = 0
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
		return
	}

	if p.timer != nil {
		return
	}

	wait := p.backoff.NextBackOff()
	if wait == backoff.Stop {
		p.logger.Warn("Giving up on applications stuck in load error",
			log.Strings("apps", names), log.Int("retries", p.retries))
		return
	}

	p.retries++
	p.logger.Debug("Scheduling reroute for applications in load error",
		log.Strings("apps", names), log.Duration("delay", wait), log.Int("retry", p.retries))
	p.timer = p.clock.AfterFunc(wait, p.retry)
}

func (p *Plugin) retry() {
	p.mu.Lock()
	p.timer = nil
	stopped := p.stopped
	ctx := p.ctx
	p.mu.Unlock()

	if stopped {
		return
	}
	if _, err := p.orch.TriggerAppChange(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("Retry reroute failed", log.Err(err))
	}
}

// Ensure Plugin implements spaship.Plugin.
var _ spaship.Plugin = (*Plugin)(nil)
