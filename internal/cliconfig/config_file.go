package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations and plain
// milliseconds for lifecycle timeouts to make TOML friendly.
type FileConfig struct {
	Manifest          string `toml:"manifest"`
	ListenAddr        string `toml:"listen_addr"`
	LogLevel          string `toml:"log_level"`
	InitialURL        string `toml:"initial_url"`
	StateDir          string `toml:"state_dir"`
	TimeoutsFile      string `toml:"timeouts_file"`
	URLRerouteOnly    *bool  `toml:"url_reroute_only"`
	LoadRetry         *bool  `toml:"load_retry"`
	LoadErrorCooldown string `toml:"load_error_cooldown"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`

	Timeouts struct {
		BootstrapMillis int64 `toml:"bootstrap_millis"`
		MountMillis     int64 `toml:"mount_millis"`
		UnmountMillis   int64 `toml:"unmount_millis"`
		UnloadMillis    int64 `toml:"unload_millis"`
		WarningMillis   int64 `toml:"warning_millis"`
		DieOnTimeout    *bool `toml:"die_on_timeout"`
	} `toml:"timeouts"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.spaship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".spaship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("manifest", fc.Manifest, &cfg.Manifest)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("initial-url", fc.InitialURL, &cfg.InitialURL)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("timeouts-file", fc.TimeoutsFile, &cfg.TimeoutsFile)

	s.setBool("url-reroute-only", fc.URLRerouteOnly, &cfg.URLRerouteOnly)
	s.setBool("load-retry", fc.LoadRetry, &cfg.LoadRetry)

	if err := s.setDuration("load-error-cooldown", fc.LoadErrorCooldown, &cfg.LoadErrorCooldown); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setMillis("bootstrap-timeout", fc.Timeouts.BootstrapMillis, &cfg.BootstrapTimeout)
	s.setMillis("mount-timeout", fc.Timeouts.MountMillis, &cfg.MountTimeout)
	s.setMillis("unmount-timeout", fc.Timeouts.UnmountMillis, &cfg.UnmountTimeout)
	s.setMillis("unload-timeout", fc.Timeouts.UnloadMillis, &cfg.UnloadTimeout)
	s.setMillis("warning-timeout", fc.Timeouts.WarningMillis, &cfg.WarningTimeout)
	s.setBool("die-on-timeout", fc.Timeouts.DieOnTimeout, &cfg.DieOnTimeout)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
