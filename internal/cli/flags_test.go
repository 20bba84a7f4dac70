package cli

import (
	"testing"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetFlags_Target(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Username = "alice"
	cfg.RemoteHost = "desk.local"
	cfg.Port = 2222

	tests := []struct {
		name     string
		args     []string
		expected host.Target
	}{
		{
			name:     "config only",
			args:     nil,
			expected: host.Target{Username: "alice", Host: "desk.local", Port: 2222},
		},
		{
			name:     "host flag overrides config",
			args:     []string{"-r", "laptop.local"},
			expected: host.Target{Username: "alice", Host: "laptop.local", Port: 2222},
		},
		{
			name:     "ssh config alias with underscore",
			args:     []string{"-r", "build_box"},
			expected: host.Target{Username: "alice", Host: "build_box", Port: 2222},
		},
		{
			name:     "every flag",
			args:     []string{"-u", "bob", "--remote-host", "10.0.0.5", "--port", "22"},
			expected: host.Target{Username: "bob", Host: "10.0.0.5", Port: 22},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, flags, _, _ := newTestCommand(t, tt.args...)

			target, err := flags.Target(cmd, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target)
		})
	}
}

func TestTargetFlags_UnchangedDefaultPortKeepsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Username = "alice"
	cfg.RemoteHost = "desk.local"
	cfg.Port = 2200

	cmd, flags, _, _ := newTestCommand(t, "-u", "carol")
	target, err := flags.Target(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint16(2200), target.Port)
	assert.Equal(t, "carol", target.Username)
}

func TestTargetFlags_Invalid(t *testing.T) {
	cfg := config.DefaultConfig()

	cmd, flags, _, _ := newTestCommand(t, "-r", "desk.local")
	_, err := flags.Target(cmd, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Username")

	cmd, flags, _, _ = newTestCommand(t, "-u", "alice")
	_, err = flags.Target(cmd, cfg)
	require.Error(t, err)
}

func TestSSHHostCompletions(t *testing.T) {
	entries := []sshutil.SSHHostEntry{
		{Alias: "desk", Hostname: "desk.local", User: "alice"},
		{Alias: "build", Hostname: "10.0.0.9", Port: "2222"},
		{Alias: "deploy"},
	}

	assert.Equal(t, []string{
		"deploy\tdeploy",
		"desk\tdesk.local, user: alice",
	}, sshHostCompletions(entries, "de"))

	assert.Equal(t, []string{"build\t10.0.0.9, port: 2222"}, sshHostCompletions(entries, "b"))
	assert.Len(t, sshHostCompletions(entries, ""), 3)
	assert.Empty(t, sshHostCompletions(entries, "zzz"))
}
