package sshutil

// SSHClient defines the interface for SSH command execution.
// Both the real Client and mock implementations satisfy this interface.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the SSH connection. Closing an already closed
	// connection returns nil.
	Close() error

	// GetHost returns the host name used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}
