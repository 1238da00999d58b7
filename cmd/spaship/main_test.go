package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
[[app]]
name = "navbar"
active_when = ["/"]

[[app]]
name = "settings"
active_when = ["/settings"]
`

func runCLI(t *testing.T, sub string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, "apps.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(testManifest), 0o644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		sub,
		"--config", filepath.Join(dir, "missing.toml"),
		"--manifest", manifest,
		"--log-level", "error",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_PrintsMountedApplications(t *testing.T) {
	out, err := runCLI(t, "run", "--path", "/settings", "--path", "/other")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"/\tnavbar",
		"/settings\tnavbar, settings",
		"/other\tnavbar",
		"",
		"navbar\tMOUNTED",
		"settings\tNOT_MOUNTED",
	}, lines)
}

func TestRun_PrintsCalls(t *testing.T) {
	out, err := runCLI(t, "run", "--path", "/settings", "--calls")
	require.NoError(t, err)
	assert.Contains(t, out, "settings:mount")
	assert.Contains(t, out, "navbar:bootstrap")
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := runCLI(t, "run", "--mount-timeout", "0s")
	assert.Error(t, err)

	_, err = runCLI(t, "run", "--log-level", "shouting")
	assert.Error(t, err)
}

func TestRun_WritesSnapshot(t *testing.T) {
	stateDir := t.TempDir()
	_, err := runCLI(t, "run", "--state-dir", stateDir, "--path", "/settings")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(stateDir, "status.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"settings": "MOUNTED"`)
}
