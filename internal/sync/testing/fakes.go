// Package testing provides test doubles for the sync package.
package testing

import (
	"context"
	"sync"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
)

// ProvisionCall records a call to the provisioner.
type ProvisionCall struct {
	Target host.Target
	Force  bool
}

// FakeProvisioner returns a configured credential or error.
type FakeProvisioner struct {
	mu sync.Mutex

	// Credential is returned on success.
	Credential keys.Credential

	// Existing, when set, makes every call report an already provisioned key.
	Existing *keys.Credential

	// Err fails every call.
	Err error

	Calls []ProvisionCall
}

// NewFakeProvisioner returns a provisioner that succeeds with a key under /keys.
func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{}
}

// Provision records the call and returns the configured result.
func (f *FakeProvisioner) Provision(ctx context.Context, target host.Target, force bool) (keys.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, ProvisionCall{Target: target, Force: force})

	if f.Err != nil {
		return keys.Credential{}, f.Err
	}
	if f.Existing != nil {
		return *f.Existing, &keys.AlreadyProvisionedError{Credential: *f.Existing}
	}
	cred := f.Credential
	if cred.KeyFile == "" {
		cred = keys.Credential{KeyFile: "/keys/" + keys.KeyFileName(target.Host), Host: target.Host}
	}
	return cred, nil
}

// SetExisting makes the provisioner report cred as already provisioned.
func (f *FakeProvisioner) SetExisting(cred keys.Credential) *FakeProvisioner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Existing = &cred
	return f
}

// SetFail configures the provisioner to fail with err.
func (f *FakeProvisioner) SetFail(err error) *FakeProvisioner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
	return f
}

// CallCount returns the number of Provision calls.
func (f *FakeProvisioner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Result is a canned response for FakeRemote.Execute.
type Result struct {
	Output session.Output
	Err    error
}

// FakeRemote is an in-memory session. Execute answers from Results by
// exact command, otherwise succeeds with exit status 0.
type FakeRemote struct {
	mu sync.Mutex

	ConnectErr    error
	DisconnectErr error
	Results       map[string]Result

	// Block, when set, makes Execute wait for ctx for these commands.
	Block map[string]bool

	Connected   bool
	Connects    int
	Disconnects int
	Credentials []keys.Credential
	Commands    []string
}

// NewFakeRemote returns a remote where every command succeeds.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		Results: make(map[string]Result),
		Block:   make(map[string]bool),
	}
}

// SetResult sets the response for cmd.
func (f *FakeRemote) SetResult(cmd string, r Result) *FakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[cmd] = r
	return f
}

// SetBlocking makes cmd hang until its context ends.
func (f *FakeRemote) SetBlocking(cmd string) *FakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Block[cmd] = true
	return f
}

func (f *FakeRemote) Connect(ctx context.Context, target host.Target, cred keys.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connects++
	f.Credentials = append(f.Credentials, cred)
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.Connected = true
	return nil
}

func (f *FakeRemote) Execute(ctx context.Context, cmd string) (session.Output, error) {
	f.mu.Lock()
	if !f.Connected {
		f.mu.Unlock()
		return session.Output{}, session.ErrNotConnected
	}
	f.Commands = append(f.Commands, cmd)
	block := f.Block[cmd]
	r, ok := f.Results[cmd]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		f.mu.Lock()
		f.Connected = false
		f.mu.Unlock()
		return session.Output{ExitCode: -1}, &session.ExecError{Command: cmd, Err: ctx.Err()}
	}
	if !ok {
		return session.Output{}, nil
	}
	return r.Output, r.Err
}

func (f *FakeRemote) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	f.Connected = false
	return f.DisconnectErr
}

// CommandLog returns the commands executed so far.
func (f *FakeRemote) CommandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Commands...)
}
