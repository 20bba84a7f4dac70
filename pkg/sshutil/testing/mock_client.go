package testing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// ErrConnectionClosed is returned by Exec after Close.
var ErrConnectionClosed = errors.New("connection closed")

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

type patternResponse struct {
	re   *regexp.Regexp
	resp CommandResponse
}

// MockClient simulates an SSH connection for testing.
// Commands without a canned response are answered by a fake remote
// flatpak installation: `flatpak install ... <name> -y` succeeds for names
// registered with SetAvailable and fails for everything else.
type MockClient struct {
	mu        sync.Mutex
	host      string
	address   string
	closed    bool
	closeCh   chan struct{}
	closes    int
	commands  map[string]CommandResponse
	patterns  []patternResponse
	available map[string]bool
	installed []string
	history   []string
	hook      func(ctx context.Context, cmd string)
}

var _ sshutil.SSHClient = (*MockClient)(nil)

// NewMockClient creates a new mock SSH client with nothing installable.
func NewMockClient(hostname string) *MockClient {
	return &MockClient{
		host:      hostname,
		address:   hostname + ":22",
		closeCh:   make(chan struct{}),
		commands:  make(map[string]CommandResponse),
		available: make(map[string]bool),
	}
}

// Exec answers cmd from canned responses or the fake flatpak remote.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, ErrConnectionClosed
	}
	m.history = append(m.history, cmd)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		// The hook may block; it sees ctx cancelled once the client is closed.
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-m.closeCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		hook(ctx, cmd)
		cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, ErrConnectionClosed
	}

	// Exact matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	for _, p := range m.patterns {
		if p.re.MatchString(cmd) {
			return p.resp.Stdout, p.resp.Stderr, p.resp.ExitCode, p.resp.Error
		}
	}

	return m.runFlatpak(cmd)
}

// Close marks the connection as closed and wakes any blocked hook.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response. An exact command match
// wins; otherwise pattern is tried as a regular expression in
// registration order.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
	if re, err := regexp.Compile(pattern); err == nil {
		m.patterns = append(m.patterns, patternResponse{re: re, resp: resp})
	}
}

// SetAvailable registers package names the fake remote can install.
func (m *MockClient) SetAvailable(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.available[n] = true
	}
}

// SetExecHook installs a function run at the start of every Exec.
// Its context is cancelled when the client is closed, so a hook can
// simulate a command that hangs until the connection is torn down.
func (m *MockClient) SetExecHook(hook func(ctx context.Context, cmd string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Commands returns every command passed to Exec, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Installed returns the package names the fake remote installed.
func (m *MockClient) Installed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.installed...)
}

// IsClosed reports whether Close was called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount returns how many times Close was called.
func (m *MockClient) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// runFlatpak emulates `flatpak install [flags] <name> -y`. Caller holds mu.
func (m *MockClient) runFlatpak(cmd string) ([]byte, []byte, int, error) {
	words, err := splitWords(cmd)
	if err != nil {
		return nil, []byte("sh: " + err.Error() + "\n"), 2, nil
	}
	if len(words) < 2 || words[0] != "flatpak" || words[1] != "install" {
		return nil, []byte(fmt.Sprintf("sh: %s: command not found\n", firstWord(words))), 127, nil
	}

	var name string
	for _, w := range words[2:] {
		if strings.HasPrefix(w, "-") {
			continue
		}
		name = w
	}
	if name == "" {
		return nil, []byte("error: At least one REF must be specified\n"), 1, nil
	}
	if !m.available[name] {
		return nil, []byte(fmt.Sprintf("error: No remote refs found for ‘%s’\n", name)), 1, nil
	}

	m.installed = append(m.installed, name)
	return []byte(fmt.Sprintf("Installing %s\nInstallation complete.\n", name)), nil, 0, nil
}

func firstWord(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// splitWords splits a POSIX command line, honouring single and double quotes
// and backslash escapes outside quotes.
func splitWords(cmd string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote rune

	runes := []rune(cmd)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// MockDialer hands out MockClients and records every Dial.
type MockDialer struct {
	mu sync.Mutex

	// Client is returned by every successful Dial. When nil a fresh
	// MockClient is created per call.
	Client *MockClient

	// Err, when set, is returned instead of a client.
	Err error

	calls    int
	targets  []host.Target
	keyFiles []string
}

// Dial records the call and returns Client or Err.
func (d *MockDialer) Dial(ctx context.Context, target host.Target, keyFile string) (sshutil.SSHClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	d.targets = append(d.targets, target)
	d.keyFiles = append(d.keyFiles, keyFile)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Client != nil {
		return d.Client, nil
	}
	return NewMockClient(target.Host), nil
}

// Calls returns the number of Dial calls.
func (d *MockDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// KeyFiles returns the key file passed to each Dial.
func (d *MockDialer) KeyFiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keyFiles...)
}

// Targets returns the target passed to each Dial.
func (d *MockDialer) Targets() []host.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]host.Target(nil), d.targets...)
}
