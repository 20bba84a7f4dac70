package cli

import (
	"io"
	"os"
	osexec "os/exec"

	"github.com/rileyhilliard/flatpak-sync/internal/config"
	"github.com/rileyhilliard/flatpak-sync/internal/exec"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/lock"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/internal/require"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// Collaborators the commands are built from. Tests swap them for fakes.
var (
	localRunner exec.Runner = exec.Local{}

	lookPath require.LookPathFunc = osexec.LookPath

	newDialer = func(cfg *config.Config, log logger.Logger) session.Dialer {
		return &sshutil.KeyDialer{
			Timeout:               cfg.ConnectTimeout,
			StrictHostKeyChecking: cfg.StrictHostKeyChecking,
			KnownHostsPath:        cfg.KnownHosts,
			Logger:                log,
		}
	}

	newInstaller = func(runner exec.Runner, stdio exec.Stdio) keys.Installer {
		return keys.SSHCopyID{Runner: runner, Stdio: stdio}
	}
)

// newProvisioner builds the key provisioner described by cfg. ssh-copy-id
// talks to the terminal; in JSON mode its output goes to stderr so stdout
// stays parseable.
func newProvisioner(cfg *config.Config, log logger.Logger) (*keys.Provisioner, error) {
	gen, err := keys.NewGenerator(cfg.Keys.Generator, localRunner)
	if err != nil {
		return nil, err
	}

	var stdout io.Writer = os.Stdout
	if machineMode {
		stdout = os.Stderr
	}

	return &keys.Provisioner{
		Dir:       cfg.KeyDir,
		Generator: gen,
		Installer: newInstaller(localRunner, exec.Stdio{Stdin: os.Stdin, Stdout: stdout, Stderr: os.Stderr}),
		Lock: lock.Config{
			Timeout: cfg.Lock.Timeout,
			Stale:   cfg.Lock.Stale,
		},
		Logger: log,
	}, nil
}

// newSession returns a disconnected session using the configured dialer.
func newSession(cfg *config.Config, log logger.Logger) *session.Session {
	s := session.New(newDialer(cfg, log))
	s.Logger = log
	return s
}
