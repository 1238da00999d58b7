package cliconfig

import (
	"os"
	"time"
)

// ApplyEnvConfig applies configuration from environment variables (SPASHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("manifest", os.Getenv("SPASHIP_MANIFEST"), &cfg.Manifest)
	s.setString("listen", os.Getenv("SPASHIP_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("log-level", os.Getenv("SPASHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("initial-url", os.Getenv("SPASHIP_INITIAL_URL"), &cfg.InitialURL)
	s.setString("state-dir", os.Getenv("SPASHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("timeouts-file", os.Getenv("SPASHIP_TIMEOUTS_FILE"), &cfg.TimeoutsFile)

	s.setBoolFromString("url-reroute-only", os.Getenv("SPASHIP_URL_REROUTE_ONLY"), &cfg.URLRerouteOnly)
	s.setBoolFromString("load-retry", os.Getenv("SPASHIP_LOAD_RETRY"), &cfg.LoadRetry)
	s.setBoolFromString("die-on-timeout", os.Getenv("SPASHIP_DIE_ON_TIMEOUT"), &cfg.DieOnTimeout)

	if err := s.setDuration("load-error-cooldown", os.Getenv("SPASHIP_LOAD_ERROR_COOLDOWN"), &cfg.LoadErrorCooldown); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("SPASHIP_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	millis := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"bootstrap-timeout", "SPASHIP_BOOTSTRAP_MILLIS", &cfg.BootstrapTimeout},
		{"mount-timeout", "SPASHIP_MOUNT_MILLIS", &cfg.MountTimeout},
		{"unmount-timeout", "SPASHIP_UNMOUNT_MILLIS", &cfg.UnmountTimeout},
		{"unload-timeout", "SPASHIP_UNLOAD_MILLIS", &cfg.UnloadTimeout},
		{"warning-timeout", "SPASHIP_WARNING_MILLIS", &cfg.WarningTimeout},
	}
	for _, m := range millis {
		if err := s.setMillisFromString(m.flag, os.Getenv(m.env), m.dst); err != nil {
			return err
		}
	}

	return nil
}
