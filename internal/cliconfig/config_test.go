package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/spaship/pkg/spaship"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %v, want %v", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.LoadErrorCooldown != 200*time.Millisecond {
		t.Errorf("LoadErrorCooldown = %v, want 200ms", cfg.LoadErrorCooldown)
	}
	if cfg.BootstrapTimeout != 4*time.Second {
		t.Errorf("BootstrapTimeout = %v, want 4s", cfg.BootstrapTimeout)
	}
	if !cfg.LoadRetry {
		t.Error("LoadRetry = false, want true")
	}
}

func TestDefaultConfig_MatchesLibraryDefaults(t *testing.T) {
	got := DefaultConfig().Library()
	want := spaship.DefaultConfig()
	if got != want {
		t.Errorf("Library() = %+v, want %+v", got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	withManifest := func(mut func(*Config)) Config {
		cfg := DefaultConfig()
		cfg.Manifest = "apps.toml"
		if mut != nil {
			mut(&cfg)
		}
		return cfg
	}

	tests := []struct {
		name       string
		config     Config
		wantErr    bool
		wantListen string
	}{
		{
			name:       "valid config",
			config:     withManifest(nil),
			wantListen: DefaultListenAddr,
		},
		{
			name:    "missing manifest",
			config:  DefaultConfig(),
			wantErr: true,
		},
		{
			name:    "bad log level",
			config:  withManifest(func(c *Config) { c.LogLevel = "loud" }),
			wantErr: true,
		},
		{
			name:    "relative initial url",
			config:  withManifest(func(c *Config) { c.InitialURL = "/home" }),
			wantErr: true,
		},
		{
			name:    "zero mount timeout",
			config:  withManifest(func(c *Config) { c.MountTimeout = 0 }),
			wantErr: true,
		},
		{
			name:       "empty listen address falls back",
			config:     withManifest(func(c *Config) { c.ListenAddr = "" }),
			wantListen: DefaultListenAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.config.ListenAddr != tt.wantListen {
				t.Errorf("ListenAddr = %v, want %v", tt.config.ListenAddr, tt.wantListen)
			}
		})
	}
}

func TestConfig_ValidateWrapsLibraryErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Manifest = "apps.toml"
	cfg.UnloadTimeout = -time.Second

	err := cfg.Validate()
	if !errors.Is(err, spaship.ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	if !errors.Is(err, timeouts.ErrInvalidTimeout) {
		t.Errorf("Validate() error = %v, want ErrInvalidTimeout", err)
	}
}

func TestConfig_Library(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MountTimeout = 500 * time.Millisecond
	cfg.WarningTimeout = 100 * time.Millisecond
	cfg.DieOnTimeout = true
	cfg.URLRerouteOnly = true

	lib := cfg.Library()
	want := timeouts.Policy{Timeout: 500 * time.Millisecond, Warning: 100 * time.Millisecond, DieOnTimeout: true}
	if lib.Timeouts.Mount != want {
		t.Errorf("Mount = %+v, want %+v", lib.Timeouts.Mount, want)
	}
	if !lib.Timeouts.Bootstrap.DieOnTimeout {
		t.Error("Bootstrap.DieOnTimeout = false, want true")
	}
	if !lib.URLRerouteOnly {
		t.Error("URLRerouteOnly = false, want true")
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := (Config{LogLevel: tt.in}).Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigSetter_RespectsChangedFlags(t *testing.T) {
	s := newConfigSetter(map[string]bool{"listen": true, "mount-timeout": true})

	listen := "flag"
	s.setString("listen", "file", &listen)
	if listen != "flag" {
		t.Errorf("listen = %v, want flag", listen)
	}

	mount := time.Second
	s.setMillis("mount-timeout", 10, &mount)
	if mount != time.Second {
		t.Errorf("mount = %v, want 1s", mount)
	}

	unload := time.Second
	s.setMillis("unload-timeout", 0, &unload)
	if unload != time.Second {
		t.Errorf("unload = %v, want unchanged for zero", unload)
	}
	if err := s.setMillisFromString("unload-timeout", "250", &unload); err != nil {
		t.Fatalf("setMillisFromString() error = %v", err)
	}
	if unload != 250*time.Millisecond {
		t.Errorf("unload = %v, want 250ms", unload)
	}
}
