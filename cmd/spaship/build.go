package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog"

	"github.com/bft-labs/spaship/internal/cliconfig"
	"github.com/bft-labs/spaship/internal/simulate"
	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/spaship"
	"github.com/bft-labs/spaship/plugins/configwatcher"
	"github.com/bft-labs/spaship/plugins/loadretry"
	"github.com/bft-labs/spaship/plugins/snapshot"
)

// instance is an orchestrator loaded with the simulated manifest.
type instance struct {
	orch   *spaship.Orchestrator
	sim    *simulate.Simulator
	logger log.Logger
}

func build(cfg cliconfig.Config, zl zerolog.Logger) (*instance, error) {
	logger := log.NewZerologAdapterWithLogger(zl)

	manifest, err := simulate.Load(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	opts := []spaship.Option{
		spaship.WithLogger(logger),
		spaship.WithEventListener(func(evt events.Event) {
			logger.Info("applications changed",
				log.Int("changes", evt.Detail.TotalAppChanges),
				log.String("url", evt.Detail.NewURL),
				log.Strings("mounted", evt.Detail.Sorted(app.StatusMounted)))
		}, events.AppChange),
		spaship.WithObserver(events.NewFunctionalObserver("cli-trace", func(ctx context.Context, ce cloudevents.Event) error {
			logger.Debug("notification", log.String("type", ce.Type()), log.String("id", ce.ID()))
			return nil
		})),
	}
	if cfg.LoadRetry {
		opts = append(opts, loadretry.WithLoadRetry(loadretry.Config{InitialInterval: cfg.LoadErrorCooldown}))
	}
	if cfg.StateDir != "" {
		opts = append(opts, snapshot.WithSnapshot(cfg.StateDir))
	}
	if cfg.TimeoutsFile != "" {
		opts = append(opts, configwatcher.WithDefaultConfigWatcher(cfg.TimeoutsFile))
	}

	o, err := spaship.New(cfg.Library(), opts...)
	if err != nil {
		return nil, err
	}

	sim := simulate.New(nil, logger)
	for _, reg := range sim.Registrations(manifest) {
		if err := o.RegisterApplication(reg); err != nil {
			return nil, fmt.Errorf("register %s: %w", reg.Name, err)
		}
	}
	return &instance{orch: o, sim: sim, logger: logger}, nil
}

func printMounted(w io.Writer, path string, mounted []string) {
	list := "(none)"
	if len(mounted) > 0 {
		list = strings.Join(mounted, ", ")
	}
	fmt.Fprintf(w, "%s\t%s\n", path, list)
}
