package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	exectesting "github.com/rileyhilliard/flatpak-sync/internal/exec/testing"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
	sshtesting "github.com/rileyhilliard/flatpak-sync/pkg/sshutil/testing"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// cliEnv is an isolated environment for driving commands: a temp HOME and
// working directory, a fake local runner and a mock SSH dialer.
type cliEnv struct {
	Dir    string
	KeyDir string
	Runner *exectesting.FakeRunner
	Client *sshtesting.MockClient
	Dialer *sshtesting.MockDialer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix+"_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	t.Chdir(dir)

	env := &cliEnv{
		Dir:    dir,
		KeyDir: filepath.Join(dir, "keys"),
		Runner: exectesting.NewFakeRunner(),
		Client: sshtesting.NewMockClient("desk.local"),
	}
	env.Dialer = &sshtesting.MockDialer{Client: env.Client}
	t.Setenv(config.EnvPrefix+"_KEY_DIR", env.KeyDir)

	// ssh-keygen writes the pair the way the real binary would.
	env.Runner.SetHook("ssh-keygen", func(call exectesting.Call) (exectesting.Result, bool) {
		path := call.Args[len(call.Args)-1]
		_ = os.WriteFile(path, []byte("private"), 0600)
		_ = os.WriteFile(path+".pub", []byte("ssh-rsa AAAA flatpak-sync\n"), 0644)
		return exectesting.Result{}, true
	})

	oldRunner, oldDialer, oldMode, oldCfg := localRunner, newDialer, machineMode, cfgFile
	oldLookPath, oldLogger := lookPath, logger.Default()
	t.Cleanup(func() {
		localRunner, newDialer, machineMode, cfgFile = oldRunner, oldDialer, oldMode, oldCfg
		lookPath = oldLookPath
		logger.SetDefault(oldLogger)
	})

	localRunner = env.Runner
	newDialer = func(*config.Config, logger.Logger) session.Dialer { return env.Dialer }
	lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	machineMode = false
	cfgFile = ""
	logger.SetDefault(logger.Noop())
	return env
}

// setInstalled makes `flatpak list` report lines, one "name\toptions" each.
func (e *cliEnv) setInstalled(lines ...string) {
	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	e.Runner.SetResult("flatpak", exectesting.Result{Stdout: []byte(out)})
}

// writeKey puts an existing key pair for hostname in the key directory.
func (e *cliEnv) writeKey(t *testing.T, hostname string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.KeyDir, 0700))
	path := filepath.Join(e.KeyDir, keys.KeyFileName(hostname))
	require.NoError(t, os.WriteFile(path, []byte("private"), 0600))
	require.NoError(t, os.WriteFile(path+".pub", []byte("ssh-rsa AAAA\n"), 0644))
	return path
}

// newTestCommand builds a bare command carrying the target and sync flags,
// parsed from args, with output captured in the returned builder.
func newTestCommand(t *testing.T, args ...string) (*cobra.Command, *TargetFlags, *SyncOptions, *strings.Builder) {
	t.Helper()
	var (
		flags TargetFlags
		opts  SyncOptions
		out   strings.Builder
	)
	cmd := &cobra.Command{Use: "flatpak-sync"}
	AddTargetFlags(cmd, &flags)
	AddSyncFlags(cmd, &opts)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, &flags, &opts, &out
}
