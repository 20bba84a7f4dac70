// Package keys provisions the dedicated key pair flatpak-sync uses to log
// in to a target host without a password.
//
// # Layout
//
// Keys live in a single directory (by default ~/.config/flatpak-sync/sync-keys),
// one pair per host:
//
//	<dir>/<host>_sync-key      private key, 0600, no passphrase
//	<dir>/<host>_sync-key.pub  public key, comment flatpak-sync@<host>
//
// # Provisioning
//
// Provision generates the pair and installs the public half in the remote
// authorized_keys with ssh-copy-id. That step prompts for the remote
// password, so it runs with the terminal attached:
//
//	p := keys.NewProvisioner(dir)
//	cred, err := p.Provision(ctx, target, false)
//	if cred, ok := keys.IsAlreadyProvisioned(err); ok {
//		// reuse cred
//	}
//
// The pair is written under a temporary name and only renamed into place
// once both generation and installation succeeded, so a failed run never
// leaves a key that looks usable. Provisioning for one host is serialized
// across processes with a lock in the key directory.
//
// # Generators
//
// SSHKeygen shells out to ssh-keygen. NativeGenerator produces the same
// RSA 4096 OpenSSH-format pair in process for machines without OpenSSH
// client tools.
package keys
