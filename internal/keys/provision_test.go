package keys

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
	"github.com/rileyhilliard/flatpak-sync/internal/lock"
	"github.com/rileyhilliard/flatpak-sync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

var deskTarget = host.Target{Username: "alice", Host: "desk.local", Port: 22}

type fakeInstaller struct {
	mu    sync.Mutex
	err   error
	calls []string
	pubs  []string
}

func (f *fakeInstaller) Install(ctx context.Context, target host.Target, pubKeyFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := os.ReadFile(pubKeyFile)
	f.calls = append(f.calls, target.Destination())
	f.pubs = append(f.pubs, string(data))
	return f.err
}

func (f *fakeInstaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type failingGenerator struct {
	partial bool
}

func (g failingGenerator) Generate(ctx context.Context, path, comment string) error {
	if g.partial {
		_ = os.WriteFile(path, []byte("half a key"), 0600)
	}
	return stderrors.New("entropy ran out")
}

func newTestProvisioner(t *testing.T) (*Provisioner, *fakeInstaller) {
	t.Helper()
	inst := &fakeInstaller{}
	p := &Provisioner{
		Dir:       filepath.Join(t.TempDir(), "sync-keys"),
		Generator: NativeGenerator{Bits: 1024},
		Installer: inst,
		Lock:      lock.Config{Timeout: 2 * time.Second, Stale: time.Minute, RetryInterval: 10 * time.Millisecond},
		Logger:    logger.Noop(),
	}
	return p, inst
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProvision_CreatesAndInstallsKey(t *testing.T) {
	p, inst := newTestProvisioner(t)

	cred, err := p.Provision(context.Background(), deskTarget, false)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(p.Dir, "desk.local_sync-key"), cred.KeyFile)
	assert.Equal(t, "desk.local", cred.Host)
	assert.Equal(t, []string{"alice@desk.local"}, inst.calls)
	assert.Contains(t, inst.pubs[0], "flatpak-sync@desk.local")

	st, err := os.Stat(cred.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

	dirSt, err := os.Stat(p.Dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirSt.Mode().Perm())

	// Only the pair remains: no staging files and no lock directory
	assert.ElementsMatch(t, []string{"desk.local_sync-key", "desk.local_sync-key.pub"}, dirEntries(t, p.Dir))

	data, err := os.ReadFile(cred.KeyFile)
	require.NoError(t, err)
	_, err = ssh.ParsePrivateKey(data)
	assert.NoError(t, err, "key must be usable without a passphrase")
}

func TestProvision_SecondCallIsAlreadyProvisioned(t *testing.T) {
	p, inst := newTestProvisioner(t)

	first, err := p.Provision(context.Background(), deskTarget, false)
	require.NoError(t, err)
	before, err := os.ReadFile(first.KeyFile)
	require.NoError(t, err)

	second, err := p.Provision(context.Background(), deskTarget, false)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrAlreadyProvisioned))

	existing, ok := IsAlreadyProvisioned(err)
	require.True(t, ok)
	assert.Equal(t, first, existing)
	assert.Equal(t, first, second)

	after, err := os.ReadFile(first.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing key must not be regenerated")
	assert.Equal(t, 1, inst.count())
	assert.Len(t, dirEntries(t, p.Dir), 2)
}

func TestProvision_ForceReplacesKey(t *testing.T) {
	p, inst := newTestProvisioner(t)

	first, err := p.Provision(context.Background(), deskTarget, false)
	require.NoError(t, err)
	before, err := os.ReadFile(first.KeyFile)
	require.NoError(t, err)

	second, err := p.Provision(context.Background(), deskTarget, true)
	require.NoError(t, err)
	assert.Equal(t, first.KeyFile, second.KeyFile)

	after, err := os.ReadFile(second.KeyFile)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, 2, inst.count())
}

func TestProvision_ForceKeepsOldKeyWhenInstallFails(t *testing.T) {
	p, inst := newTestProvisioner(t)

	first, err := p.Provision(context.Background(), deskTarget, false)
	require.NoError(t, err)
	before, err := os.ReadFile(first.KeyFile)
	require.NoError(t, err)

	inst.err = stderrors.New("Permission denied")
	_, err = p.Provision(context.Background(), deskTarget, true)
	require.Error(t, err)

	after, err := os.ReadFile(first.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, dirEntries(t, p.Dir), 2)
}

func TestProvision_InstallFailureLeavesNoKey(t *testing.T) {
	p, inst := newTestProvisioner(t)
	inst.err = stderrors.New("Permission denied (publickey,password)")

	_, err := p.Provision(context.Background(), deskTarget, false)
	require.Error(t, err)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindKeyInstall, perr.Kind)
	assert.Contains(t, err.Error(), "Permission denied")

	_, ok := p.Lookup("desk.local")
	assert.False(t, ok)
	assert.Empty(t, dirEntries(t, p.Dir))
}

func TestProvision_GenerationFailureLeavesNoKey(t *testing.T) {
	p, inst := newTestProvisioner(t)
	p.Generator = failingGenerator{partial: true}

	_, err := p.Provision(context.Background(), deskTarget, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindKeyGeneration, perr.Kind)
	assert.Zero(t, inst.count(), "nothing is installed when generation fails")
	assert.Empty(t, dirEntries(t, p.Dir))
}

func TestProvision_GeneratorWithoutOutput(t *testing.T) {
	p, _ := newTestProvisioner(t)
	p.Generator = generatorFunc(func(ctx context.Context, path, comment string) error { return nil })

	_, err := p.Provision(context.Background(), deskTarget, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindKeyGeneration, perr.Kind)
	assert.Contains(t, err.Error(), "did not produce")
}

func TestProvision_DirectoryFailure(t *testing.T) {
	p, _ := newTestProvisioner(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	p.Dir = filepath.Join(blocker, "keys")

	_, err := p.Provision(context.Background(), deskTarget, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindDirectory, perr.Kind)
}

func TestProvision_InvalidTarget(t *testing.T) {
	p, inst := newTestProvisioner(t)

	_, err := p.Provision(context.Background(), host.Target{Host: "desk.local", Port: 22}, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindTarget, perr.Kind)
	assert.Zero(t, inst.count())
}

func TestProvision_LockHeldByOtherProcess(t *testing.T) {
	p, inst := newTestProvisioner(t)
	p.Lock = lock.Config{Timeout: 50 * time.Millisecond, RetryInterval: 10 * time.Millisecond}
	require.NoError(t, os.MkdirAll(p.Dir, 0700))

	held, err := lock.TryAcquire(p.Dir, "desk.local", lock.Config{}, "other run")
	require.NoError(t, err)
	defer held.Release()

	_, err = p.Provision(context.Background(), deskTarget, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, KindLock, perr.Kind)
	assert.True(t, stderrors.Is(err, lock.ErrLocked))
	assert.Zero(t, inst.count())
}

func TestProvision_ConcurrentRunsProvisionOnce(t *testing.T) {
	p, inst := newTestProvisioner(t)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = p.Provision(context.Background(), deskTarget, false)
		}(i)
	}
	wg.Wait()

	var created, reused int
	for _, err := range results {
		switch {
		case err == nil:
			created++
		case stderrors.Is(err, ErrAlreadyProvisioned):
			reused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 3, reused)
	assert.Equal(t, 1, inst.count())
}

func TestLookupAndRemove(t *testing.T) {
	p, _ := newTestProvisioner(t)

	_, ok := p.Lookup("desk.local")
	assert.False(t, ok)
	require.NoError(t, p.Remove(context.Background(), "desk.local"), "removing a missing key is fine")

	cred, err := p.Provision(context.Background(), deskTarget, false)
	require.NoError(t, err)

	found, ok := p.Lookup("desk.local")
	assert.True(t, ok)
	assert.Equal(t, cred, found)

	require.NoError(t, p.Remove(context.Background(), "desk.local"))
	_, ok = p.Lookup("desk.local")
	assert.False(t, ok)
	assert.Empty(t, dirEntries(t, p.Dir))
}

func TestLookup_DirectoryIsNotAKey(t *testing.T) {
	p, _ := newTestProvisioner(t)
	require.NoError(t, os.MkdirAll(filepath.Join(p.Dir, "desk.local_sync-key"), 0700))

	_, ok := p.Lookup("desk.local")
	assert.False(t, ok)
}

func TestNewProvisioner_Defaults(t *testing.T) {
	p := NewProvisioner("/tmp/keys")
	assert.IsType(t, SSHKeygen{}, p.Generator)
	assert.IsType(t, SSHCopyID{}, p.Installer)
	assert.Equal(t, DefaultLockConfig, p.Lock)
}

func TestErrorMessages(t *testing.T) {
	perr := &ProvisionError{Kind: KindKeyInstall, Host: "desk.local", Err: stderrors.New("denied")}
	assert.Equal(t, "key installation failed for desk.local: denied", perr.Error())

	ap := &AlreadyProvisionedError{Credential: Credential{KeyFile: "/k/desk.local_sync-key", Host: "desk.local"}}
	assert.True(t, strings.Contains(ap.Error(), "/k/desk.local_sync-key"))
}

type generatorFunc func(ctx context.Context, path, comment string) error

func (f generatorFunc) Generate(ctx context.Context, path, comment string) error {
	return f(ctx, path, comment)
}

type installerFunc func(ctx context.Context, target host.Target, pubKeyFile string) error

func (f installerFunc) Install(ctx context.Context, target host.Target, pubKeyFile string) error {
	return f(ctx, target, pubKeyFile)
}

// slowInstaller records the key like fakeInstaller, then holds the first
// call for delay, standing in for a user typing a password.
type slowInstaller struct {
	fakeInstaller
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (s *slowInstaller) Install(ctx context.Context, target host.Target, pubKeyFile string) error {
	err := s.fakeInstaller.Install(ctx, target, pubKeyFile)
	first := false
	s.once.Do(func() {
		first = true
		close(s.started)
	})
	if first {
		time.Sleep(s.delay)
	}
	return err
}

func TestProvision_SlowInstallOutlivesStaleWindow(t *testing.T) {
	tests := []struct {
		name  string
		force bool
	}{
		{name: "second run reuses the key", force: false},
		{name: "second run replaces the key afterwards", force: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvisioner(t)
			inst := &slowInstaller{delay: 900 * time.Millisecond, started: make(chan struct{})}
			p.Installer = inst
			p.Lock = lock.Config{Timeout: 5 * time.Second, Stale: 300 * time.Millisecond, RetryInterval: 10 * time.Millisecond}

			var errA error
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, errA = p.Provision(context.Background(), deskTarget, false)
			}()

			<-inst.started
			time.Sleep(400 * time.Millisecond) // past the stale window
			cred, errB := p.Provision(context.Background(), deskTarget, tt.force)
			<-done

			require.NoError(t, errA)
			final, err := os.ReadFile(cred.PublicKeyFile())
			require.NoError(t, err)

			inst.mu.Lock()
			pubs := append([]string(nil), inst.pubs...)
			inst.mu.Unlock()

			if tt.force {
				require.NoError(t, errB)
				require.Len(t, pubs, 2)
				assert.NotEqual(t, pubs[0], pubs[1])
				assert.Equal(t, pubs[1], string(final))
			} else {
				assert.True(t, stderrors.Is(errB, ErrAlreadyProvisioned), "got %v", errB)
				require.Len(t, pubs, 1, "the second run must wait instead of breaking the lock")
				assert.Equal(t, pubs[0], string(final), "the registered key is the one that was installed")
			}

			assert.ElementsMatch(t, []string{"desk.local_sync-key", "desk.local_sync-key.pub"}, dirEntries(t, p.Dir))
		})
	}
}

func TestProvision_LockTakenOverDuringInstall(t *testing.T) {
	p, _ := newTestProvisioner(t)

	var staged string
	p.Installer = installerFunc(func(ctx context.Context, target host.Target, pubKeyFile string) error {
		staged = pubKeyFile
		// Another run breaks the lock and takes it while we wait.
		other, err := lock.NewLockInfo("provision desk.local").Marshal()
		require.NoError(t, err)
		return os.WriteFile(filepath.Join(lock.Path(p.Dir, "desk.local"), "info.json"), other, 0600)
	})

	cred, err := p.Provision(context.Background(), deskTarget, false)

	var perr *ProvisionError
	require.True(t, stderrors.As(err, &perr), "got %v", err)
	assert.Equal(t, KindLock, perr.Kind)
	assert.Empty(t, cred.KeyFile)

	assert.Contains(t, staged, "desk.local_sync-key.new-", "staging name carries the lock token")
	assert.NoFileExists(t, staged)
	_, ok := p.Lookup("desk.local")
	assert.False(t, ok, "no key may be committed without the lock")
	assert.Equal(t, []string{"desk.local.lock"}, dirEntries(t, p.Dir), "the other run's lock is left alone")
}
