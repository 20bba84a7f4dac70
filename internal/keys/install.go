package keys

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/exec"
	"github.com/rileyhilliard/flatpak-sync/internal/host"
)

// Installer authorizes a public key on the target host.
type Installer interface {
	Install(ctx context.Context, target host.Target, pubKeyFile string) error
}

// SSHCopyID installs keys with ssh-copy-id. It runs attached to the
// terminal because ssh-copy-id prompts for the remote password.
type SSHCopyID struct {
	Runner exec.Runner

	// Stdio defaults to the process terminal.
	Stdio exec.Stdio
}

// Args returns the ssh-copy-id arguments for target and pubKeyFile.
func (SSHCopyID) Args(target host.Target, pubKeyFile string) []string {
	return []string{
		"-i", pubKeyFile,
		"-p", strconv.Itoa(int(target.Port)),
		target.Destination(),
	}
}

func (c SSHCopyID) Install(ctx context.Context, target host.Target, pubKeyFile string) error {
	runner := c.Runner
	if runner == nil {
		runner = exec.Local{}
	}
	stdio := c.Stdio
	if stdio.Stdin == nil && stdio.Stdout == nil && stdio.Stderr == nil {
		stdio = exec.TerminalStdio()
	}

	// Keep a copy of stderr to explain failures after the fact.
	var captured bytes.Buffer
	if stdio.Stderr != nil {
		stdio.Stderr = io.MultiWriter(stdio.Stderr, &captured)
	} else {
		stdio.Stderr = &captured
	}

	code, err := runner.Interactive(ctx, stdio, "ssh-copy-id", c.Args(target, pubKeyFile)...)
	if err != nil {
		return err
	}
	if code != 0 {
		return classifyCopyIDFailure(target, pubKeyFile, code, strings.TrimSpace(captured.String()))
	}
	return nil
}

func classifyCopyIDFailure(target host.Target, pubKeyFile string, code int, output string) error {
	dest := target.Destination()

	switch {
	case strings.Contains(output, "Permission denied"):
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("Permission denied on %s", dest),
			"Double-check the password and try again.")
	case strings.Contains(output, "Connection refused"):
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("Connection refused to %s", target.Address()),
			"Make sure SSH is running on the remote machine and the port is right.")
	case strings.Contains(output, "Could not resolve hostname"):
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("Can't resolve hostname %s", target.Host),
			"Check the hostname and your network connection.")
	case strings.Contains(output, "REMOTE HOST IDENTIFICATION HAS CHANGED"):
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("Host key for %s has changed", target.Host),
			"If the host was reinstalled, run: ssh-keygen -R "+target.Host)
	}

	msg := fmt.Sprintf("ssh-copy-id exited with status %d", code)
	if output != "" {
		msg += ": " + lastLine(output)
	}
	return errors.New(errors.ErrProvision,
		fmt.Sprintf("Couldn't install the key on %s (%s)", dest, msg),
		fmt.Sprintf("Try manually: ssh-copy-id -i %s -p %d %s", pubKeyFile, target.Port, dest))
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
