// Package exec runs local helper programs (flatpak, ssh-keygen, ssh-copy-id)
// and interprets failed remote commands.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
)

// Stdio is the set of streams attached to an interactive process.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// TerminalStdio returns the current process's terminal streams.
func TerminalStdio() Stdio {
	return Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Runner runs local programs. Both methods return a nil error for a
// program that ran and exited non-zero; the exit code reports that.
type Runner interface {
	// Capture runs name with args and collects its output.
	Capture(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)

	// Interactive runs name with args attached to stdio, for programs
	// that may prompt the user.
	Interactive(ctx context.Context, stdio Stdio, name string, args ...string) (exitCode int, err error)
}

// Local runs programs with os/exec. No shell is involved, so arguments
// are passed through verbatim.
type Local struct{}

// Capture runs a command locally and captures all output.
// Exit code is -1 if the program couldn't be started.
func (Local) Capture(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	code, err := run(command, name)
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), code, err
}

// Interactive runs a command locally with the given streams attached.
func (Local) Interactive(ctx context.Context, stdio Stdio, name string, args ...string) (exitCode int, err error) {
	command := exec.CommandContext(ctx, name, args...)
	command.Stdin = stdio.Stdin
	command.Stdout = stdio.Stdout
	command.Stderr = stdio.Stderr

	return run(command, name)
}

func run(command *exec.Cmd, name string) (int, error) {
	runErr := command.Run()
	if runErr == nil {
		return 0, nil
	}

	// Command ran but returned non-zero
	var exitErr *exec.ExitError
	if stderrors.As(runErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if IsMissingProgram(runErr) {
		return -1, errors.WrapWithCode(runErr, errors.ErrExec,
			fmt.Sprintf("Can't find %s on this machine", name),
			fmt.Sprintf("Install %s and make sure it's on your PATH.", name))
	}
	return -1, errors.WrapWithCode(runErr, errors.ErrExec,
		fmt.Sprintf("Couldn't run %s", name),
		"Make sure the program exists and is executable.")
}

// IsMissingProgram reports whether err means the program wasn't found.
func IsMissingProgram(err error) bool {
	var execErr *exec.Error
	return stderrors.As(err, &execErr)
}
