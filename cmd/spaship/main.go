package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/spaship/internal/cliconfig"
	"github.com/bft-labs/spaship/internal/httpapi"
)

const longHelp = `spaship mounts and unmounts independently deployed applications as the
location changes. The CLI drives the orchestrator with simulated
applications described by a TOML manifest, either through a list of
paths (run) or over HTTP (serve).

Configuration is read from $HOME/.spaship/config.toml, then SPASHIP_*
environment variables, then flags.`

var exampleUsage = strings.TrimSpace(`
  spaship run --manifest apps.toml --path /settings --path /
  spaship serve --manifest apps.toml --listen :8080 --state-dir /var/lib/spaship
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := cliconfig.Logger(zerolog.InfoLevel)
		logger.Error().Err(err).Msg("spaship")
		os.Exit(1)
	}
}

// cli carries the configuration shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: cliconfig.DefaultConfig(), log: cliconfig.Logger(zerolog.InfoLevel)}

	root := &cobra.Command{
		Use:           "spaship",
		Short:         "Orchestrate independently deployed UI applications",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.resolve(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.spaship/config.toml)")
	f.StringVar(&c.cfg.Manifest, "manifest", c.cfg.Manifest, "TOML manifest of simulated applications")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&c.cfg.InitialURL, "initial-url", c.cfg.InitialURL, "absolute URL the history starts at")
	f.StringVar(&c.cfg.StateDir, "state-dir", c.cfg.StateDir, "directory for status.json snapshots (disabled when empty)")
	f.StringVar(&c.cfg.TimeoutsFile, "timeouts-file", c.cfg.TimeoutsFile, "TOML timeouts file reloaded on change (disabled when empty)")
	f.BoolVar(&c.cfg.URLRerouteOnly, "url-reroute-only", c.cfg.URLRerouteOnly, "skip reroutes for history calls that keep the URL")
	f.BoolVar(&c.cfg.LoadRetry, "load-retry", c.cfg.LoadRetry, "retry applications stuck in LOAD_ERROR with backoff")
	f.DurationVar(&c.cfg.LoadErrorCooldown, "load-error-cooldown", c.cfg.LoadErrorCooldown, "time before a failed load is retried")
	f.DurationVar(&c.cfg.ShutdownTimeout, "shutdown-timeout", c.cfg.ShutdownTimeout, "how long shutdown waits for a running reroute")
	f.DurationVar(&c.cfg.BootstrapTimeout, "bootstrap-timeout", c.cfg.BootstrapTimeout, "bootstrap deadline")
	f.DurationVar(&c.cfg.MountTimeout, "mount-timeout", c.cfg.MountTimeout, "mount deadline")
	f.DurationVar(&c.cfg.UnmountTimeout, "unmount-timeout", c.cfg.UnmountTimeout, "unmount deadline")
	f.DurationVar(&c.cfg.UnloadTimeout, "unload-timeout", c.cfg.UnloadTimeout, "unload deadline")
	f.DurationVar(&c.cfg.WarningTimeout, "warning-timeout", c.cfg.WarningTimeout, "interval between slow lifecycle warnings")
	f.BoolVar(&c.cfg.DieOnTimeout, "die-on-timeout", c.cfg.DieOnTimeout, "break applications that pass a deadline")

	root.AddCommand(c.newRunCmd(), c.newServeCmd())
	return root
}

// resolve loads the config file, then env, keeping flags that were set.
func (c *cli) resolve(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}

	// Env overrides the file; flags that were set override both.
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.log = cliconfig.Logger(c.cfg.Level())
	c.log.Debug().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func (c *cli) newRunCmd() *cobra.Command {
	var (
		paths []string
		calls bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Navigate through paths and print the mounted applications after each",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			inst, err := build(c.cfg, c.log)
			if err != nil {
				return err
			}
			if err := inst.orch.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
				defer stopCancel()
				if err := inst.orch.Stop(stopCtx); err != nil {
					c.log.Error().Err(err).Msg("stop")
				}
			}()

			out := cmd.OutOrStdout()
			mounted, err := inst.orch.TriggerAppChange(ctx)
			if err != nil {
				return err
			}
			printMounted(out, inst.orch.Location().Pathname, mounted)

			for _, p := range paths {
				mounted, err := inst.orch.Navigate(ctx, p)
				if err != nil {
					return fmt.Errorf("navigate %s: %w", p, err)
				}
				printMounted(out, inst.orch.Location().Pathname, mounted)
			}

			fmt.Fprintln(out)
			for _, name := range inst.orch.AppNames() {
				status, _ := inst.orch.AppStatus(name)
				fmt.Fprintf(out, "%s\t%s\n", name, status)
			}
			if calls {
				fmt.Fprintln(out)
				for _, call := range inst.sim.Calls() {
					fmt.Fprintln(out, call)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&paths, "path", nil, "path or URL to navigate to (repeatable)")
	cmd.Flags().BoolVar(&calls, "calls", false, "print every simulated lifecycle call")
	return cmd
}

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the orchestrator over an HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			inst, err := build(c.cfg, c.log)
			if err != nil {
				return err
			}
			if err := inst.orch.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			srv := &http.Server{
				Addr:              c.cfg.ListenAddr,
				Handler:           httpapi.New(inst.orch, inst.logger, c.cfg.ShutdownTimeout),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				c.log.Info().Str("addr", c.cfg.ListenAddr).Msg("serving control API")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				c.log.Info().Msg("received signal, stopping...")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					c.log.Error().Err(err).Msg("control API failed")
				}
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
			defer stopCancel()
			if err := srv.Shutdown(stopCtx); err != nil {
				c.log.Warn().Err(err).Msg("http shutdown")
			}
			if err := inst.orch.Stop(stopCtx); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&c.cfg.ListenAddr, "listen", c.cfg.ListenAddr, "control API listen address")
	return cmd
}
