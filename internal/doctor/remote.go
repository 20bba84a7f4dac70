package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/require"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
	"github.com/rileyhilliard/flatpak-sync/internal/sync"
	"github.com/rileyhilliard/flatpak-sync/internal/util"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// RemotesCommand lists the flatpak remotes (repositories) configured on
// the remote host.
var RemotesCommand = util.ShellJoin("flatpak", "remotes", "--columns=name")

// RemoteProbe is the connection the remote checks share. The connect
// check opens it; the others report "no connection" when it failed.
type RemoteProbe struct {
	Remote sync.Remote
	Target host.Target
	Cred   keys.Credential

	connected bool
	err       error
	latency   time.Duration
}

// NewRemoteProbe returns a probe that has not connected yet.
func NewRemoteProbe(remote sync.Remote, target host.Target, cred keys.Credential) *RemoteProbe {
	return &RemoteProbe{Remote: remote, Target: target, Cred: cred}
}

func (p *RemoteProbe) connect(ctx context.Context) error {
	if p.connected {
		return nil
	}
	start := time.Now()
	p.err = p.Remote.Connect(ctx, p.Target, p.Cred)
	p.latency = time.Since(start)
	p.connected = p.err == nil
	return p.err
}

// Close disconnects if the probe connected.
func (p *RemoteProbe) Close() error {
	if !p.connected {
		return nil
	}
	p.connected = false
	return p.Remote.Disconnect()
}

// Checks returns the connect, flatpak and remotes checks in run order.
func (p *RemoteProbe) Checks() []Check {
	return []Check{
		&ConnectCheck{Probe: p},
		&RemoteToolCheck{Probe: p, Tool: "flatpak"},
		&RemoteReposCheck{Probe: p},
	}
}

// ConnectCheck verifies the sync key opens an SSH session on the target.
type ConnectCheck struct {
	Probe *RemoteProbe
}

func (c *ConnectCheck) Name() string     { return "remote_connect" }
func (c *ConnectCheck) Category() string { return CategoryRemote }

func (c *ConnectCheck) Run(ctx context.Context) CheckResult {
	target := c.Probe.Target
	if err := c.Probe.connect(ctx); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot connect to %s: %v", target, err),
			Suggestion: connectSuggestion(err, target),
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Connected to %s (%s)", target, c.Probe.latency.Round(time.Millisecond)),
	}
}

func (c *ConnectCheck) Fix(ctx context.Context) error {
	return nil
}

// connectSuggestion returns an actionable suggestion for a connect error.
func connectSuggestion(err error, target host.Target) string {
	if stderrors.Is(err, session.ErrNoCredential) {
		return fmt.Sprintf("Create the key with: flatpak-sync keygen -r %s", target.Host)
	}

	var connErr *session.ConnectError
	if !stderrors.As(err, &connErr) {
		return fmt.Sprintf("Try connecting directly: ssh -p %d %s", target.Port, target.Destination())
	}

	switch connErr.Stage {
	case sshutil.StageAuth:
		return fmt.Sprintf("The key is not authorized there. Reinstall it with: flatpak-sync keygen -r %s --force", target.Host)
	case sshutil.StageHostKey:
		return fmt.Sprintf("Check the host key, then update known_hosts: ssh-keyscan -p %d %s >> ~/.ssh/known_hosts", target.Port, target.Host)
	default:
		return fmt.Sprintf("Host may be offline or blocked by a firewall. Try: ssh -p %d %s", target.Port, target.Destination())
	}
}

// RemoteToolCheck verifies a program exists on the remote host.
type RemoteToolCheck struct {
	Probe *RemoteProbe
	Tool  string
}

func (c *RemoteToolCheck) Name() string     { return "remote_" + c.Tool }
func (c *RemoteToolCheck) Category() string { return CategoryRemote }

func (c *RemoteToolCheck) Run(ctx context.Context) CheckResult {
	if !c.Probe.connected {
		return noConnection(c.Name(), c.Tool)
	}

	result, err := require.CheckRemote(ctx, c.Probe.Remote, c.Tool)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot check for %s: %v", c.Tool, err),
			Suggestion: "Check the SSH connection",
		}
	}
	if !result.Satisfied {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s not found on %s", c.Tool, c.Probe.Target.Host),
			Suggestion: fmt.Sprintf("Install %s on the remote host", c.Tool),
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s on %s: %s", c.Tool, c.Probe.Target.Host, result.Path),
	}
}

func (c *RemoteToolCheck) Fix(ctx context.Context) error {
	return nil
}

// RemoteReposCheck verifies the remote host has at least one flatpak
// remote to install from.
type RemoteReposCheck struct {
	Probe *RemoteProbe
}

func (c *RemoteReposCheck) Name() string     { return "remote_repos" }
func (c *RemoteReposCheck) Category() string { return CategoryRemote }

func (c *RemoteReposCheck) Run(ctx context.Context) CheckResult {
	if !c.Probe.connected {
		return noConnection(c.Name(), "flatpak remotes")
	}

	out, err := c.Probe.Remote.Execute(ctx, RemotesCommand)
	if err != nil || out.ExitCode != 0 {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusWarn,
			Message: "Cannot list flatpak remotes on " + c.Probe.Target.Host,
		}
	}

	var remotes []string
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			remotes = append(remotes, name)
		}
	}
	if len(remotes) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No flatpak remotes configured on " + c.Probe.Target.Host,
			Suggestion: "Installs will fail. Add one there, e.g.: flatpak remote-add --if-not-exists flathub https://dl.flathub.org/repo/flathub.flatpakrepo",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Flatpak remotes: " + strings.Join(require.Merge(remotes), ", "),
	}
}

func (c *RemoteReposCheck) Fix(ctx context.Context) error {
	return nil
}

func noConnection(name, what string) CheckResult {
	return CheckResult{
		Name:    name,
		Status:  StatusFail,
		Message: fmt.Sprintf("Cannot check %s: no connection", what),
	}
}
