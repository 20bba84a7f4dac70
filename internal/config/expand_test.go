package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USER", "alice")
	t.Setenv("XDG_CONFIG_HOME", "")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/keys", filepath.Join(home, "keys")},
		{"${HOME}/keys", filepath.Join(home, "keys")},
		{"/srv/${USER}/keys", "/srv/alice/keys"},
		{"${XDG_CONFIG_HOME}/flatpak-sync", filepath.Join(home, ".config", "flatpak-sync")},
		{"~bob/keys", "~bob/keys"},
		{"/abs/path", "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in))
		})
	}
}

func TestExpand_XDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/flatpak-sync", Expand("${XDG_CONFIG_HOME}/flatpak-sync"))
}
