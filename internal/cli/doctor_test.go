package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"testing"

	"github.com/rileyhilliard/flatpak-sync/internal/doctor"
	sshtesting "github.com/rileyhilliard/flatpak-sync/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doctorEnvelope struct {
	Success bool         `json:"success"`
	Data    DoctorOutput `json:"data"`
}

func runDoctor(t *testing.T, fix bool, args ...string) (string, error) {
	t.Helper()
	cmd, flags, _, out := newTestCommand(t, args...)
	err := doctorCommand(context.Background(), cmd, flags, fix)
	return out.String(), err
}

func (e *cliEnv) healthyRemote() {
	e.Client.SetCommandResponse("command -v flatpak", sshtesting.CommandResponse{Stdout: []byte("/usr/bin/flatpak\n")})
	e.Client.SetCommandResponse(doctor.RemotesCommand, sshtesting.CommandResponse{Stdout: []byte("flathub\n")})
}

func findResult(t *testing.T, output DoctorOutput, name string) doctor.CheckResult {
	t.Helper()
	for _, cat := range output.Categories {
		for _, r := range cat.Results {
			if r.Name == name {
				return r
			}
		}
	}
	t.Fatalf("no %s result", name)
	return doctor.CheckResult{}
}

func TestDoctorCommand_AllClear(t *testing.T) {
	env := newCLIEnv(t)
	machineMode = true
	keyFile := env.writeKey(t, "desk.local")
	env.healthyRemote()

	out, err := runDoctor(t, false, "-u", "alice", "-r", "desk.local")
	require.NoError(t, err)

	var result doctorEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.True(t, result.Data.Summary.AllClear, out)
	assert.Zero(t, result.Data.Summary.Fail)

	var names []string
	for _, cat := range result.Data.Categories {
		names = append(names, cat.Name)
	}
	assert.Equal(t, doctor.CategoryOrder, names)

	assert.Equal(t, []string{keyFile}, env.Dialer.KeyFiles())
	assert.Equal(t, []string{"command -v flatpak", doctor.RemotesCommand}, env.Client.Commands())
	assert.True(t, env.Client.IsClosed())
}

func TestDoctorCommand_NoKeySkipsRemote(t *testing.T) {
	env := newCLIEnv(t)
	machineMode = true

	out, err := runDoctor(t, false, "-u", "alice", "-r", "desk.local")
	require.NoError(t, err, "a missing key is only a warning")

	var result doctorEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Data.Summary.Warn)
	assert.Equal(t, doctor.StatusWarn, findResult(t, result.Data, "sync_key").Status)
	for _, cat := range result.Data.Categories {
		assert.NotEqual(t, doctor.CategoryRemote, cat.Name)
	}
	assert.Empty(t, env.Dialer.Calls())
}

func TestDoctorCommand_MissingTargetFails(t *testing.T) {
	newCLIEnv(t)

	out, err := runDoctor(t, false)

	var exitErr *ExitError
	require.True(t, stderrors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, out, "CONFIG")
	assert.Contains(t, out, "issues found")
}

func TestDoctorCommand_MissingLocalTool(t *testing.T) {
	newCLIEnv(t)
	lookPath = func(file string) (string, error) {
		if file == "ssh-copy-id" {
			return "", os.ErrNotExist
		}
		return "/usr/bin/" + file, nil
	}

	out, err := runDoctor(t, false, "-u", "alice", "-r", "desk.local")

	require.Error(t, err)
	assert.Contains(t, out, "ssh-copy-id not found")
	assert.Contains(t, out, "OpenSSH")
}

func TestDoctorCommand_FixesKeyPermissions(t *testing.T) {
	env := newCLIEnv(t)
	keyFile := env.writeKey(t, "desk.local")
	require.NoError(t, os.Chmod(keyFile, 0644))
	env.healthyRemote()

	out, err := runDoctor(t, false, "-u", "alice", "-r", "desk.local")
	require.NoError(t, err)
	assert.Contains(t, out, "Insecure permissions")
	assert.Contains(t, out, "--fix")

	env.Client = sshtesting.NewMockClient("desk.local")
	env.Dialer.Client = env.Client
	env.healthyRemote()
	out, err = runDoctor(t, true, "-u", "alice", "-r", "desk.local")
	require.NoError(t, err)
	assert.Contains(t, out, "Everything looks good")

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDoctorCommand_RemoteWithoutFlatpak(t *testing.T) {
	env := newCLIEnv(t)
	env.writeKey(t, "desk.local")
	env.Client.SetCommandResponse("command -v flatpak", sshtesting.CommandResponse{ExitCode: 1})

	out, err := runDoctor(t, false, "-u", "alice", "-r", "desk.local")

	require.Error(t, err)
	assert.Contains(t, out, "REMOTE")
	assert.Contains(t, out, "flatpak not found on desk.local")
}
