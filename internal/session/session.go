// Package session manages one authenticated SSH connection to a sync
// target and runs remote commands over it.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Dialer opens an authenticated connection using a single private key.
// *sshutil.KeyDialer is the production implementation.
type Dialer interface {
	Dial(ctx context.Context, target host.Target, keyFile string) (sshutil.SSHClient, error)
}

// Output is the captured result of a remote command that ran to completion.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Precondition errors. They indicate caller bugs or missing setup and are
// never retried.
var (
	ErrNoCredential     = stderrors.New("no usable credential")
	ErrNotConnected     = stderrors.New("session is not connected")
	ErrAlreadyConnected = stderrors.New("session is already connected")
)

// ConnectError is returned by Connect for any failure after the
// credential check. Stage tells a host that is down apart from a key that
// is not authorized yet.
type ConnectError struct {
	Stage  sshutil.Stage
	Target host.Target
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s failed (%s): %v", e.Target, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExecError is a session-level failure: the command may not have run or
// its exit status never arrived. A command that ran and exited non-zero
// is not an ExecError.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("session lost while running %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Session owns at most one live connection. All methods are safe for
// concurrent use; state transitions are serialized.
type Session struct {
	Dialer Dialer
	Logger logger.Logger

	mu         sync.Mutex
	state      State
	client     sshutil.SSHClient
	target     host.Target
	cancelDial context.CancelFunc
}

// New returns a disconnected session that dials through d.
func New(d Dialer) *Session {
	return &Session{Dialer: d}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the target of the live or last connection.
func (s *Session) Target() host.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Connect dials target and authenticates with cred's private key. The key
// file is checked before any network I/O. On failure the session stays
// disconnected.
func (s *Session) Connect(ctx context.Context, target host.Target, cred keys.Credential) error {
	log := logger.OrDefault(s.Logger)

	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyConnected, state)
	}
	if err := checkKeyFile(cred.KeyFile); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.Dialer == nil {
		s.mu.Unlock()
		return stderrors.New("session has no dialer")
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = StateConnecting
	s.target = target
	s.cancelDial = cancel
	dialer := s.Dialer
	s.mu.Unlock()

	log.Debug("connecting to %s with %s", target, cred.KeyFile)
	client, err := dialer.Dial(dialCtx, target, cred.KeyFile)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDial = nil

	if err == nil && dialCtx.Err() != nil {
		// Disconnect was called while the handshake was finishing.
		client.Close()
		err = dialCtx.Err()
	}
	if err != nil {
		s.state = StateDisconnected
		return newConnectError(target, err)
	}

	s.client = client
	s.state = StateConnected
	log.Debug("connected to %s", client.GetAddress())
	return nil
}

// Execute runs cmd on the remote host and waits for it to finish. The
// command line is passed through verbatim; callers quote arguments.
//
// If ctx ends first the session is forcibly disconnected and an
// *ExecError wrapping ctx.Err() is returned.
func (s *Session) Execute(ctx context.Context, cmd string) (Output, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return Output{}, ErrNotConnected
	}
	client := s.client
	s.mu.Unlock()

	logger.OrDefault(s.Logger).Debug("exec on %s: %s", client.GetHost(), cmd)

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		stdout, stderr, code, err := client.Exec(cmd)
		done <- result{Output{Stdout: stdout, Stderr: stderr, ExitCode: code}, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.out, &ExecError{Command: cmd, Err: r.err}
		}
		return r.out, nil
	case <-ctx.Done():
		if err := s.Disconnect(); err != nil {
			logger.OrDefault(s.Logger).Warn("forced disconnect: %v", err)
		}
		return Output{ExitCode: -1}, &ExecError{Command: cmd, Err: ctx.Err()}
	}
}

// Disconnect tears down the connection. It is a no-op when already
// disconnected and safe to call while Execute is in flight, which then
// fails with an *ExecError. A Disconnect during Connect aborts the dial.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected, StateDisconnecting:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		if s.cancelDial != nil {
			s.cancelDial()
		}
		s.mu.Unlock()
		return nil
	}

	client := s.client
	s.state = StateDisconnecting
	s.mu.Unlock()

	err := client.Close()

	s.mu.Lock()
	s.client = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	// The transport may already be gone if the remote end dropped us.
	if err != nil && !stderrors.Is(err, net.ErrClosed) {
		return fmt.Errorf("disconnect from %s: %w", client.GetAddress(), err)
	}
	return nil
}

func checkKeyFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no key file", ErrNoCredential)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNoCredential, path)
	}
	return nil
}

func newConnectError(target host.Target, err error) *ConnectError {
	var dialErr *sshutil.DialError
	if stderrors.As(err, &dialErr) {
		return &ConnectError{Stage: dialErr.Stage, Target: target, Err: dialErr.Err}
	}
	return &ConnectError{Stage: sshutil.StageTransport, Target: target, Err: err}
}
