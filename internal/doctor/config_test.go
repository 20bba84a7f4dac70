package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestConfigCheck_NoFile(t *testing.T) {
	isolate(t)

	result := (&ConfigCheck{}).Run(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "using defaults")
}

func TestConfigCheck_ValidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "flatpak-sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nremote_host: desk.local\n"), 0644))

	result := (&ConfigCheck{}).Run(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, path)
}

func TestConfigCheck_InvalidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "flatpak-sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 0\n"), 0644))

	result := (&ConfigCheck{}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "port")
	assert.NotEmpty(t, result.Suggestion)
}

func TestConfigCheck_MissingExplicitPath(t *testing.T) {
	dir := isolate(t)

	result := (&ConfigCheck{ConfigPath: filepath.Join(dir, "nope.yaml")}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "nope.yaml")
}

func TestTargetCheck(t *testing.T) {
	dir := isolate(t)
	sshConfig := filepath.Join(dir, "ssh_config")
	require.NoError(t, os.WriteFile(sshConfig, []byte("Host desk\n  HostName 192.168.1.20\n"), 0644))

	result := (&TargetCheck{Target: host.NewTarget("alice", "desk", 22), SSHConfigPath: sshConfig}).Run(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "Target: alice@desk:22 (HostName 192.168.1.20 from ssh config)", result.Message)

	result = (&TargetCheck{Target: host.NewTarget("alice", "laptop.local", 22), SSHConfigPath: sshConfig}).Run(context.Background())
	assert.Equal(t, "Target: alice@laptop.local:22", result.Message)

	result = (&TargetCheck{Target: host.NewTarget("", "desk", 22), SSHConfigPath: sshConfig}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "Username")
}

func TestNewConfigChecks(t *testing.T) {
	checks := NewConfigChecks("", host.NewTarget("alice", "desk", 22))
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, CategoryConfig, c.Category())
	}
}
