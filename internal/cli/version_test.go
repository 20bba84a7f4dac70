package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v, c, d string) {
	t.Helper()
	origVersion, origCommit, origDate := version, commit, date
	t.Cleanup(func() { SetVersionInfo(origVersion, origCommit, origDate) })
	SetVersionInfo(v, c, d)
}

func TestPrintVersion(t *testing.T) {
	withVersion(t, "1.2.3", "abc123", "2026-01-15")

	var buf bytes.Buffer
	require.NoError(t, printVersion(&buf, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "flatpak-sync v1.2.3", lines[0])
	assert.Equal(t, "commit: abc123", lines[1])
	assert.Equal(t, "built: 2026-01-15", lines[2])
	assert.Equal(t, "go: "+runtime.Version(), lines[3])
	assert.Equal(t, "os/arch: "+runtime.GOOS+"/"+runtime.GOARCH, lines[4])
}

func TestPrintVersion_Short(t *testing.T) {
	withVersion(t, "1.2.3", "abc123", "2026-01-15")

	var buf bytes.Buffer
	require.NoError(t, printVersion(&buf, true))
	assert.Equal(t, "1.2.3\n", buf.String())
}

func TestPrintVersion_JSON(t *testing.T) {
	withVersion(t, "1.2.3", "abc123", "2026-01-15")
	oldMode := machineMode
	defer func() { machineMode = oldMode }()
	machineMode = true

	var buf bytes.Buffer
	require.NoError(t, printVersion(&buf, false))

	var env struct {
		Success bool        `json:"success"`
		Data    versionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "1.2.3", env.Data.Version)
	assert.Equal(t, "abc123", env.Data.Commit)
	assert.Equal(t, runtime.GOOS, env.Data.OS)
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1.0.0", "v1.0.0"},
		{"v1.0.0", "v1.0.0"},
		{"dev", "dev"},
		{"", ""},
		{"0.1.0-rc1", "v0.1.0-rc1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.input))
		})
	}
}

func TestSetVersionInfo(t *testing.T) {
	withVersion(t, "2.0.0", "def456", "2026-02-01")

	assert.Equal(t, "2.0.0", GetVersion())
	assert.Equal(t, "def456", commit)
	assert.Equal(t, "2026-02-01", date)
}
