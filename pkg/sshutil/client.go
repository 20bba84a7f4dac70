package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP connect and the SSH handshake when the
// dialer has no timeout configured.
const DefaultTimeout = 10 * time.Second

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The host name from the target
	Address string // The resolved address (host:port)

	closeOnce sync.Once
	closeErr  error
}

// Close closes the SSH connection. Safe to call more than once.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closeErr = c.Client.Close()
	})
	return c.closeErr
}

// GetHost returns the host name used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// Stage identifies which part of connection setup failed.
type Stage string

const (
	// StageTransport covers TCP connect and key exchange.
	StageTransport Stage = "transport"
	// StageHostKey means the server's host key failed verification.
	StageHostKey Stage = "host-key"
	// StageAuth covers an unusable private key and rejected public-key auth.
	StageAuth Stage = "auth"
)

// DialError reports a failed connection attempt and the stage it failed in.
type DialError struct {
	Stage   Stage
	Address string
	Err     error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("ssh %s failure for %s: %v", e.Stage, e.Address, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// KeyDialer opens SSH connections authenticated by a single private key file.
// No agent and no default identities are consulted: the only accepted
// credential is the one handed to Dial.
type KeyDialer struct {
	// Timeout bounds TCP connect and handshake. Defaults to DefaultTimeout.
	Timeout time.Duration

	// StrictHostKeyChecking verifies host keys against KnownHostsPath.
	// When false, host key verification is skipped.
	StrictHostKeyChecking bool

	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string

	// SSHConfigPath is consulted for HostName aliases. Defaults to ~/.ssh/config.
	SSHConfigPath string

	Logger logger.Logger
}

// NewKeyDialer returns a dialer with strict host key checking enabled.
func NewKeyDialer(timeout time.Duration) *KeyDialer {
	return &KeyDialer{
		Timeout:               timeout,
		StrictHostKeyChecking: true,
	}
}

// Dial connects to target and authenticates as target.Username with keyFile.
// Failures are returned as *DialError.
func (d *KeyDialer) Dial(ctx context.Context, target host.Target, keyFile string) (SSHClient, error) {
	log := logger.OrDefault(d.Logger)

	hostname := d.resolveHostName(target.Host)
	address := net.JoinHostPort(hostname, strconv.Itoa(int(target.Port)))

	signer, err := LoadSigner(keyFile)
	if err != nil {
		return nil, &DialError{Stage: StageAuth, Address: address, Err: err}
	}

	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, &DialError{Stage: StageHostKey, Address: address, Err: err}
	}

	// Track how far the handshake got so failures can be attributed to a stage.
	var hostKeyChecked bool
	var hostKeyErr error
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: func(hn string, remote net.Addr, key ssh.PublicKey) error {
			hostKeyChecked = true
			hostKeyErr = hostKeyCallback(hn, remote, key)
			return hostKeyErr
		},
		Timeout: d.timeout(),
	}

	log.Debug("dialing %s as %s", address, target.Username)

	netDialer := &net.Dialer{Timeout: d.timeout()}
	conn, err := netDialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &DialError{Stage: StageTransport, Address: address, Err: err}
	}

	// Abort the handshake if ctx ends or the server stalls.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(d.timeout()))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		stage := StageAuth
		switch {
		case hostKeyErr != nil:
			stage = StageHostKey
			err = hostKeyErr
		case !hostKeyChecked:
			stage = StageTransport
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &DialError{Stage: stage, Address: address, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    target.Host,
		Address: address,
	}, nil
}

func (d *KeyDialer) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d *KeyDialer) resolveHostName(alias string) string {
	path := d.SSHConfigPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}
	if hn := ResolveHostName(path, alias); hn != "" {
		return hn
	}
	return alias
}

func (d *KeyDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if !d.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly disabled host key checking
	}
	path := d.KnownHostsPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	return createHostKeyCallback(path)
}

// PassphraseError is returned when a private key requires a passphrase.
// Sync keys are generated without one, so this means the wrong file.
type PassphraseError struct {
	Path string
}

func (e *PassphraseError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// LoadSigner reads an unencrypted private key from path.
func LoadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) {
			return nil, &PassphraseError{Path: path}
		}
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return signer, nil
}

// UnknownHostError is returned when strict checking is on and the host
// has no entry in known_hosts.
type UnknownHostError struct {
	Hostname   string
	KnownHosts string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("host %s is not in %s", e.Hostname, e.KnownHosts)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	h := e.Hostname
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  If the host was reinstalled, remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, h, e.KnownHosts)
}

// createHostKeyCallback wraps the knownhosts callback to provide better error messages.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err != nil && stderrors.As(err, &keyErr) {
			if len(keyErr.Want) == 0 {
				return &UnknownHostError{Hostname: hostname, KnownHosts: knownHostsPath}
			}
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   knownHostsPath,
				Want:         keyErr.Want,
			}
		}
		return err
	}, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// ExpandPath replaces a leading ~/ with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
