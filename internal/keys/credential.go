package keys

import (
	"os"
	"path/filepath"
)

// KeySuffix is appended to the host name to form the key file name.
const KeySuffix = "_sync-key"

// Credential points at a provisioned private key for one host.
type Credential struct {
	KeyFile string `json:"key_file"`
	Host    string `json:"host"`
}

// PublicKeyFile returns the path of the matching public key.
func (c Credential) PublicKeyFile() string {
	return c.KeyFile + ".pub"
}

// KeyFileName returns the private key file name for host.
func KeyFileName(host string) string {
	return host + KeySuffix
}

// Comment returns the comment embedded in the public key for host.
func Comment(host string) string {
	return "flatpak-sync@" + host
}

// credentialFor returns the credential host would have inside dir.
func credentialFor(dir, host string) Credential {
	return Credential{
		KeyFile: filepath.Join(dir, KeyFileName(host)),
		Host:    host,
	}
}

// exists reports whether the private key is present. The public key is
// renamed into place first, so a private key implies a complete pair.
func (c Credential) exists() bool {
	st, err := os.Stat(c.KeyFile)
	return err == nil && st.Mode().IsRegular()
}
