package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Exec runs a command on the remote host and returns the output.
// Exit code is -1 if the command couldn't be executed at all, for example
// because the connection dropped or the server closed the channel without
// reporting an exit status.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("open session on %s: %w", c.Address, err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			// Command ran, just had non-zero exit
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, fmt.Errorf("run command on %s: %w", c.Address, err)
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
}
