package doctor

import (
	"context"
	"fmt"
	"os"

	"github.com/rileyhilliard/flatpak-sync/internal/keys"
)

// SyncKeyCheck verifies the key pair for a host exists. A missing key is
// only a warning: the next sync creates it.
type SyncKeyCheck struct {
	Dir  string
	Host string
}

func (c *SyncKeyCheck) Name() string     { return "sync_key" }
func (c *SyncKeyCheck) Category() string { return CategoryKey }

func (c *SyncKeyCheck) Run(ctx context.Context) CheckResult {
	if c.Host == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusWarn,
			Message: "No remote host, skipping the sync key check",
		}
	}

	cred, exists := (&keys.Provisioner{Dir: c.Dir}).Lookup(c.Host)
	if !exists {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("No sync key for %s yet", c.Host),
			Suggestion: fmt.Sprintf("The next sync creates one, or run: flatpak-sync keygen -r %s", c.Host),
		}
	}

	if _, err := os.Stat(cred.PublicKeyFile()); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Sync key %s has no public key next to it", cred.KeyFile),
			Suggestion: fmt.Sprintf("Recreate it with: flatpak-sync keygen -r %s --force", c.Host),
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Sync key: " + cred.KeyFile,
	}
}

func (c *SyncKeyCheck) Fix(ctx context.Context) error {
	return nil // Creating a key needs the interactive ssh-copy-id step
}

// KeyPermissionsCheck verifies the private key is not readable by others.
// ssh refuses keys that group or others can read.
type KeyPermissionsCheck struct {
	Dir  string
	Host string
}

func (c *KeyPermissionsCheck) Name() string     { return "sync_key_permissions" }
func (c *KeyPermissionsCheck) Category() string { return CategoryKey }

func (c *KeyPermissionsCheck) keyFile() string {
	cred, _ := (&keys.Provisioner{Dir: c.Dir}).Lookup(c.Host)
	return cred.KeyFile
}

func (c *KeyPermissionsCheck) Run(ctx context.Context) CheckResult {
	info, err := os.Stat(c.keyFile())
	if c.Host == "" || err != nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass, // SyncKeyCheck reports the missing key
			Message: "No private key to check",
		}
	}

	// Check permissions (should be 0600 or 0400)
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Insecure permissions %#o on %s", perm, c.keyFile()),
			Suggestion: "Fix: chmod 600 " + c.keyFile(),
			Fixable:    true,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Sync key permissions OK",
	}
}

func (c *KeyPermissionsCheck) Fix(ctx context.Context) error {
	path := c.keyFile()
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to fix permissions on %s: %w", path, err)
	}
	return nil
}

// NewKeyChecks creates the sync key checks for host.
func NewKeyChecks(dir, host string) []Check {
	return []Check{
		&SyncKeyCheck{Dir: dir, Host: host},
		&KeyPermissionsCheck{Dir: dir, Host: host},
	}
}
