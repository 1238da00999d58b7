package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig func() FileConfig
		changed    map[string]bool
		initial    Config
		check      func(t *testing.T, cfg Config)
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: func() FileConfig {
				fc := FileConfig{
					Manifest:          "/etc/spaship/apps.toml",
					ListenAddr:        ":9000",
					LoadErrorCooldown: "1s",
					URLRerouteOnly:    &trueVal,
				}
				fc.Timeouts.MountMillis = 1500
				fc.Timeouts.DieOnTimeout = &trueVal
				return fc
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.Manifest != "/etc/spaship/apps.toml" {
					t.Errorf("Manifest = %v", cfg.Manifest)
				}
				if cfg.ListenAddr != ":9000" {
					t.Errorf("ListenAddr = %v", cfg.ListenAddr)
				}
				if cfg.LoadErrorCooldown != time.Second {
					t.Errorf("LoadErrorCooldown = %v", cfg.LoadErrorCooldown)
				}
				if cfg.MountTimeout != 1500*time.Millisecond {
					t.Errorf("MountTimeout = %v", cfg.MountTimeout)
				}
				if !cfg.DieOnTimeout || !cfg.URLRerouteOnly {
					t.Errorf("bools not applied: %+v", cfg)
				}
			},
		},
		{
			name: "respects changed flags",
			fileConfig: func() FileConfig {
				fc := FileConfig{Manifest: "/config/apps.toml", ListenAddr: ":9000"}
				fc.Timeouts.BootstrapMillis = 9000
				return fc
			},
			changed: map[string]bool{"manifest": true, "bootstrap-timeout": true},
			initial: Config{Manifest: "/flag/apps.toml", BootstrapTimeout: time.Second},
			check: func(t *testing.T, cfg Config) {
				if cfg.Manifest != "/flag/apps.toml" {
					t.Errorf("Manifest = %v, want flag value", cfg.Manifest)
				}
				if cfg.BootstrapTimeout != time.Second {
					t.Errorf("BootstrapTimeout = %v, want flag value", cfg.BootstrapTimeout)
				}
				if cfg.ListenAddr != ":9000" {
					t.Errorf("ListenAddr = %v, want :9000", cfg.ListenAddr)
				}
			},
		},
		{
			name: "returns error for invalid duration",
			fileConfig: func() FileConfig {
				return FileConfig{ShutdownTimeout: "soon"}
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig(), tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
manifest = "/srv/apps.toml"
log_level = "debug"
load_retry = false
shutdown_timeout = "5s"

[timeouts]
bootstrap_millis = 6000
warning_millis = 250
die_on_timeout = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Manifest != "/srv/apps.toml" {
		t.Errorf("Manifest = %v, want /srv/apps.toml", fc.Manifest)
	}
	if fc.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", fc.LogLevel)
	}
	if fc.LoadRetry == nil || *fc.LoadRetry {
		t.Errorf("LoadRetry = %v, want false", fc.LoadRetry)
	}
	if fc.Timeouts.BootstrapMillis != 6000 {
		t.Errorf("BootstrapMillis = %v, want 6000", fc.Timeouts.BootstrapMillis)
	}
	if fc.Timeouts.WarningMillis != 250 {
		t.Errorf("WarningMillis = %v, want 250", fc.Timeouts.WarningMillis)
	}
	if fc.Timeouts.DieOnTimeout == nil || !*fc.Timeouts.DieOnTimeout {
		t.Errorf("DieOnTimeout = %v, want true", fc.Timeouts.DieOnTimeout)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}
	if cfg.LoadRetry {
		t.Error("LoadRetry = true, want false from file")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
manifest = "/test"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".spaship") {
		t.Errorf("DefaultConfigPath() = %v, should contain .spaship", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
