package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "org.gnome.Calculator", "'org.gnome.Calculator'"},
		{"empty", "", "''"},
		{"spaces", "my app", "'my app'"},
		{"single quote", "it's", "'it'\\''s'"},
		{"command substitution", "$(rm -rf ~)", "'$(rm -rf ~)'"},
		{"semicolon", "a; reboot", "'a; reboot'"},
		{"backticks", "`id`", "'`id`'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellQuote(tt.input))
		})
	}
}

func TestShellJoin(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "plain arguments untouched",
			args: []string{"flatpak", "install", "--user", "org.app.One", "-y"},
			want: "flatpak install --user org.app.One -y",
		},
		{
			name: "metacharacters quoted",
			args: []string{"flatpak", "install", "--user", "x;touch /tmp/pwned", "-y"},
			want: "flatpak install --user 'x;touch /tmp/pwned' -y",
		},
		{
			name: "empty argument quoted",
			args: []string{"echo", ""},
			want: "echo ''",
		},
		{
			name: "glob and variable quoted",
			args: []string{"*", "$HOME"},
			want: "'*' '$HOME'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellJoin(tt.args...))
		})
	}
}
