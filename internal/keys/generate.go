package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/exec"
	"golang.org/x/crypto/ssh"
)

// KeyBits is the RSA modulus size for every generated key.
const KeyBits = 4096

// Generator names accepted by NewGenerator.
const (
	GeneratorSSHKeygen = "ssh-keygen"
	GeneratorNative    = "native"
)

// GeneratorNames lists the valid generator names.
var GeneratorNames = []string{GeneratorSSHKeygen, GeneratorNative}

// Generator writes an unencrypted key pair to path and path.pub.
type Generator interface {
	Generate(ctx context.Context, path, comment string) error
}

// NewGenerator returns the generator registered under name. An empty
// name selects ssh-keygen.
func NewGenerator(name string, runner exec.Runner) (Generator, error) {
	switch name {
	case "", GeneratorSSHKeygen:
		return SSHKeygen{Runner: runner}, nil
	case GeneratorNative:
		return NativeGenerator{}, nil
	}
	return nil, errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown key generator %q", name),
		"Set keys.generator to one of: "+strings.Join(GeneratorNames, ", "))
}

// SSHKeygen generates keys with the ssh-keygen binary.
type SSHKeygen struct {
	Runner exec.Runner
}

// Args returns the ssh-keygen arguments used for path and comment.
func (SSHKeygen) Args(path, comment string) []string {
	return []string{
		"-q",
		"-t", "rsa",
		"-b", strconv.Itoa(KeyBits),
		"-N", "", // Sync keys never carry a passphrase
		"-C", comment,
		"-f", path,
	}
}

func (g SSHKeygen) Generate(ctx context.Context, path, comment string) error {
	runner := g.Runner
	if runner == nil {
		runner = exec.Local{}
	}

	_, stderr, code, err := runner.Capture(ctx, "ssh-keygen", g.Args(path, comment)...)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("ssh-keygen exited with status %d: %s", code, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// NativeGenerator generates keys in process with crypto/rsa.
type NativeGenerator struct {
	// Bits overrides KeyBits. Only tests should set it.
	Bits int
}

func (g NativeGenerator) Generate(ctx context.Context, path, comment string) error {
	bits := g.Bits
	if bits == 0 {
		bits = KeyBits
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate rsa key: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}
	pub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))) + " " + comment + "\n"

	if err := writeNew(path, pem.EncodeToMemory(block), 0600); err != nil {
		return err
	}
	if err := writeNew(path+".pub", []byte(authorized), 0644); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// writeNew creates path exclusively so an existing key is never clobbered.
func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
