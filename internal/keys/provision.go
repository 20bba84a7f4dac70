package keys

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/lock"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
)

// Kind classifies a provisioning failure.
type Kind string

const (
	KindTarget        Kind = "invalid target"
	KindDirectory     Kind = "key directory"
	KindLock          Kind = "provisioning lock"
	KindKeyGeneration Kind = "key generation"
	KindKeyInstall    Kind = "key installation"
)

// ProvisionError reports which provisioning step failed. It is always
// terminal for the run; nothing here is retried.
type ProvisionError struct {
	Kind Kind
	Host string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Kind, e.Host, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// ErrAlreadyProvisioned matches an *AlreadyProvisionedError with errors.Is.
var ErrAlreadyProvisioned = stderrors.New("key already provisioned")

// AlreadyProvisionedError is returned by Provision when a key exists and
// force is false. Callers should reuse Credential.
type AlreadyProvisionedError struct {
	Credential Credential
}

func (e *AlreadyProvisionedError) Error() string {
	return fmt.Sprintf("key for %s already provisioned at %s", e.Credential.Host, e.Credential.KeyFile)
}

func (e *AlreadyProvisionedError) Is(target error) bool {
	return target == ErrAlreadyProvisioned
}

// IsAlreadyProvisioned extracts the existing credential from err.
func IsAlreadyProvisioned(err error) (Credential, bool) {
	var ap *AlreadyProvisionedError
	if stderrors.As(err, &ap) {
		return ap.Credential, true
	}
	return Credential{}, false
}

// DefaultLockConfig is used when a Provisioner has no lock settings. The
// stale window is generous because ssh-copy-id waits on a human.
var DefaultLockConfig = lock.Config{
	Timeout: 2 * time.Minute,
	Stale:   10 * time.Minute,
}

// Provisioner creates and authorizes per-host key pairs inside Dir.
type Provisioner struct {
	Dir       string
	Generator Generator
	Installer Installer
	Lock      lock.Config
	Logger    logger.Logger
}

// NewProvisioner returns a Provisioner using ssh-keygen and ssh-copy-id.
func NewProvisioner(dir string) *Provisioner {
	return &Provisioner{
		Dir:       dir,
		Generator: SSHKeygen{},
		Installer: SSHCopyID{},
		Lock:      DefaultLockConfig,
	}
}

// Lookup returns the credential for hostname if its key exists on disk.
func (p *Provisioner) Lookup(hostname string) (Credential, bool) {
	cred := credentialFor(p.Dir, hostname)
	return cred, cred.exists()
}

// Provision ensures a key pair for target.Host exists and is authorized on
// the target. With force false an existing key short-circuits with an
// *AlreadyProvisionedError. With force true a new pair replaces the old
// one, but only after it was installed successfully. The new pair is
// staged under a name unique to this lock holder and only moved into place
// if the lock is still ours after the install.
func (p *Provisioner) Provision(ctx context.Context, target host.Target, force bool) (Credential, error) {
	log := logger.OrDefault(p.Logger)

	if err := target.Validate(); err != nil {
		return Credential{}, &ProvisionError{Kind: KindTarget, Host: target.Host, Err: err}
	}

	cred := credentialFor(p.Dir, target.Host)
	if !force && cred.exists() {
		return cred, &AlreadyProvisionedError{Credential: cred}
	}

	if err := os.MkdirAll(p.Dir, 0700); err != nil {
		return Credential{}, &ProvisionError{Kind: KindDirectory, Host: target.Host, Err: err}
	}

	cfg := p.lockConfig()
	l, err := lock.Acquire(ctx, p.Dir, target.Host, cfg, "provision "+target.Host)
	if err != nil {
		return Credential{}, &ProvisionError{Kind: KindLock, Host: target.Host, Err: err}
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Warn("releasing provisioning lock for %s: %v", target.Host, err)
		}
	}()

	// Another process may have finished while we waited for the lock.
	if !force && cred.exists() {
		return cred, &AlreadyProvisionedError{Credential: cred}
	}

	// Keep the lock fresh while ssh-copy-id waits on a password prompt.
	stopRefresh := l.KeepAlive(ctx, cfg.Stale/3, func(err error) {
		log.Warn("refreshing provisioning lock for %s: %v", target.Host, err)
	})
	defer stopRefresh()

	staging := Credential{KeyFile: cred.KeyFile + ".new-" + l.Token(), Host: cred.Host}
	defer removePair(staging)

	log.Info("Generating key pair %s", cred.KeyFile)
	if err := p.generator().Generate(ctx, staging.KeyFile, Comment(target.Host)); err != nil {
		return Credential{}, &ProvisionError{Kind: KindKeyGeneration, Host: target.Host, Err: err}
	}
	if err := checkPair(staging); err != nil {
		return Credential{}, &ProvisionError{Kind: KindKeyGeneration, Host: target.Host, Err: err}
	}

	log.Info("Installing public key on %s (you may be asked for the password)", target.Destination())
	if err := p.installer().Install(ctx, target, staging.PublicKeyFile()); err != nil {
		return Credential{}, &ProvisionError{Kind: KindKeyInstall, Host: target.Host, Err: err}
	}

	if err := l.Verify(); err != nil {
		return Credential{}, &ProvisionError{Kind: KindLock, Host: target.Host, Err: err}
	}

	// Public key first: a present private key means the pair is complete.
	if err := os.Rename(staging.PublicKeyFile(), cred.PublicKeyFile()); err != nil {
		return Credential{}, &ProvisionError{Kind: KindDirectory, Host: target.Host, Err: err}
	}
	if err := os.Rename(staging.KeyFile, cred.KeyFile); err != nil {
		os.Remove(cred.PublicKeyFile())
		return Credential{}, &ProvisionError{Kind: KindDirectory, Host: target.Host, Err: err}
	}

	log.Debug("provisioned %s", cred.KeyFile)
	return cred, nil
}

// Remove deletes the key pair for hostname. A missing pair is not an error.
func (p *Provisioner) Remove(ctx context.Context, hostname string) error {
	if _, err := os.Stat(p.Dir); os.IsNotExist(err) {
		return nil
	}

	l, err := lock.Acquire(ctx, p.Dir, hostname, p.lockConfig(), "remove "+hostname)
	if err != nil {
		return &ProvisionError{Kind: KindLock, Host: hostname, Err: err}
	}
	defer l.Release()

	cred := credentialFor(p.Dir, hostname)
	for _, path := range []string{cred.KeyFile, cred.PublicKeyFile()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return &ProvisionError{Kind: KindDirectory, Host: hostname, Err: err}
		}
	}
	return nil
}

func (p *Provisioner) generator() Generator {
	if p.Generator != nil {
		return p.Generator
	}
	return SSHKeygen{}
}

func (p *Provisioner) installer() Installer {
	if p.Installer != nil {
		return p.Installer
	}
	return SSHCopyID{}
}

func (p *Provisioner) lockConfig() lock.Config {
	if p.Lock == (lock.Config{}) {
		return DefaultLockConfig
	}
	return p.Lock
}

// checkPair verifies a generator produced both files and tightens the
// private key's permissions in case the generator left them loose.
func checkPair(c Credential) error {
	for _, path := range []string{c.KeyFile, c.PublicKeyFile()} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("generator did not produce %s: %w", path, err)
		}
	}
	return os.Chmod(c.KeyFile, 0600)
}

func removePair(c Credential) {
	os.Remove(c.KeyFile)
	os.Remove(c.PublicKeyFile())
}
