package lock

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockInfo_NewLockInfo(t *testing.T) {
	info := NewLockInfo("provision desk.local")

	assert.NotEmpty(t, info.Token)
	assert.NotEmpty(t, info.User)
	assert.NotEmpty(t, info.Hostname)
	assert.NotZero(t, info.PID)
	assert.Equal(t, "provision desk.local", info.Purpose)
	assert.WithinDuration(t, time.Now(), info.Started, time.Second)

	other := NewLockInfo("")
	assert.NotEqual(t, info.Token, other.Token, "tokens must be unique per holder")
}

func TestLockInfo_Age(t *testing.T) {
	info := &LockInfo{Started: time.Now().Add(-5 * time.Minute)}

	age := info.Age()
	assert.InDelta(t, float64(5*time.Minute), float64(age), float64(time.Second))
}

func TestLockInfo_MarshalRoundTrip(t *testing.T) {
	original := &LockInfo{
		Token:    "abc",
		User:     "alice",
		Hostname: "laptop",
		Started:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		PID:      12345,
	}

	data, err := original.Marshal()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "alice", raw["user"])
	assert.NotContains(t, raw, "purpose", "empty purpose is omitted")

	parsed, err := ParseLockInfo(data)
	require.NoError(t, err)
	assert.Equal(t, original.Token, parsed.Token)
	assert.True(t, parsed.Started.Equal(original.Started))
}

func TestParseLockInfo_Invalid(t *testing.T) {
	_, err := ParseLockInfo([]byte("not valid json"))
	assert.Error(t, err)

	_, err = ParseLockInfo(nil)
	assert.Error(t, err)
}

func TestLockInfo_String(t *testing.T) {
	info := &LockInfo{User: "alice", Hostname: "workstation", PID: 9876}
	assert.Equal(t, "alice@workstation (pid 9876)", info.String())
}

func TestTryAcquire_AndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := TryAcquire(dir, "desk.local", Config{}, "test")
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.DirExists(t, l.Dir)
	assert.FileExists(t, filepath.Join(l.Dir, "info.json"))
	assert.Equal(t, Path(dir, "desk.local"), l.Dir)

	require.NoError(t, l.Release())
	assert.NoDirExists(t, l.Dir)

	// Released lock can be taken again
	l2, err := TryAcquire(dir, "desk.local", Config{}, "test")
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestTryAcquire_Contention(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir, "desk.local", Config{}, "first")
	require.NoError(t, err)
	defer held.Release()

	_, err = TryAcquire(dir, "desk.local", Config{}, "second")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrLocked))
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.Contains(t, err.Error(), held.Info.String())
}

func TestTryAcquire_DifferentNamesDoNotContend(t *testing.T) {
	dir := t.TempDir()

	a, err := TryAcquire(dir, "a.local", Config{}, "")
	require.NoError(t, err)
	defer a.Release()

	b, err := TryAcquire(dir, "b.local", Config{}, "")
	require.NoError(t, err)
	defer b.Release()
}

func TestTryAcquire_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := Path(dir, "desk.local")
	require.NoError(t, os.Mkdir(lockDir, 0700))

	old := &LockInfo{Token: "old", User: "ghost", Hostname: "gone", Started: time.Now().Add(-time.Hour), PID: 1}
	data, err := old.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(lockDir, "info.json"), data, 0600))

	l, err := TryAcquire(dir, "desk.local", Config{Stale: time.Minute}, "")
	require.NoError(t, err)
	assert.NotEqual(t, "old", l.Info.Token)
	require.NoError(t, l.Release())
}

func TestTryAcquire_StaleWithoutInfoUsesModTime(t *testing.T) {
	dir := t.TempDir()
	lockDir := Path(dir, "desk.local")
	require.NoError(t, os.Mkdir(lockDir, 0700))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockDir, past, past))

	l, err := TryAcquire(dir, "desk.local", Config{Stale: time.Minute}, "")
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestTryAcquire_FreshLockNotStale(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)
	defer held.Release()

	_, err = TryAcquire(dir, "desk.local", Config{Stale: time.Hour}, "")
	assert.True(t, stderrors.Is(err, ErrLocked))
}

func TestAcquire_TimesOut(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = Acquire(context.Background(), dir, "desk.local",
		Config{Timeout: 100 * time.Millisecond, RetryInterval: 10 * time.Millisecond}, "")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), "Timed out")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = held.Release()
	}()

	l, err := Acquire(context.Background(), dir, "desk.local",
		Config{Timeout: 5 * time.Second, RetryInterval: 10 * time.Millisecond}, "")
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquire_ContextCancelled(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Acquire(ctx, dir, "desk.local", Config{Timeout: time.Minute, RetryInterval: 10 * time.Millisecond}, "")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestAcquire_SingleWriter(t *testing.T) {
	dir := t.TempDir()
	var holders, maxHolders int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Acquire(context.Background(), dir, "desk.local",
				Config{Timeout: 10 * time.Second, RetryInterval: 5 * time.Millisecond}, "")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxHolders)
				if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&holders, -1)
			assert.NoError(t, l.Release())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxHolders)
}

func TestRelease_Nil(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
	assert.NoError(t, (&Lock{}).Release())
}

func TestRelease_AlreadyGone(t *testing.T) {
	l := &Lock{Dir: filepath.Join(t.TempDir(), "missing.lock"), Info: NewLockInfo("")}
	assert.NoError(t, l.Release())
}

func TestRelease_RefusesTakenOverLock(t *testing.T) {
	dir := t.TempDir()

	l, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)

	// Simulate another process breaking and re-taking the lock
	other := NewLockInfo("")
	data, err := other.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir, "info.json"), data, 0600))

	err = l.Release()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.DirExists(t, l.Dir)
}

func TestHolder_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", Holder(filepath.Join(t.TempDir(), "nope.lock")))
}

func TestLockInfo_Idle(t *testing.T) {
	info := &LockInfo{Started: time.Now().Add(-time.Hour)}
	assert.GreaterOrEqual(t, info.Idle(), time.Hour)

	info.Renewed = time.Now().Add(-time.Second)
	assert.Less(t, info.Idle(), time.Minute)
}

func TestRefresh_KeepsOldLockFresh(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Stale: 50 * time.Millisecond}

	l, err := TryAcquire(dir, "desk.local", cfg, "")
	require.NoError(t, err)
	defer l.Release()

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, l.Refresh())

	_, err = TryAcquire(dir, "desk.local", cfg, "")
	assert.True(t, stderrors.Is(err, ErrLocked), "a refreshed lock is not stale")
	assert.Equal(t, []string{"info.json"}, entries(t, l.Dir))
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	l, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, l.Token())
	require.NoError(t, l.Verify())

	other := NewLockInfo("")
	data, err := other.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir, "info.json"), data, 0600))

	err = l.Verify()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))

	err = l.Refresh()
	require.Error(t, err, "refresh must not overwrite another holder's info")
	current, err := readLockInfo(l.Dir)
	require.NoError(t, err)
	assert.Equal(t, other.Token, current.Token)

	require.NoError(t, os.RemoveAll(l.Dir))
	assert.True(t, errors.IsCode(l.Verify(), errors.ErrLock))
}

func TestKeepAlive(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Stale: 100 * time.Millisecond}

	l, err := TryAcquire(dir, "desk.local", cfg, "")
	require.NoError(t, err)

	stop := l.KeepAlive(context.Background(), 20*time.Millisecond, func(err error) {
		t.Errorf("unexpected refresh error: %v", err)
	})
	time.Sleep(250 * time.Millisecond)

	_, err = TryAcquire(dir, "desk.local", cfg, "")
	assert.True(t, stderrors.Is(err, ErrLocked))

	stop()
	stop()
	time.Sleep(150 * time.Millisecond)

	other, err := TryAcquire(dir, "desk.local", cfg, "")
	require.NoError(t, err, "without refreshes the lock goes stale again")
	require.NoError(t, other.Release())
}

func TestKeepAlive_StopsWhenTakenOver(t *testing.T) {
	dir := t.TempDir()

	l, err := TryAcquire(dir, "desk.local", Config{}, "")
	require.NoError(t, err)

	data, err := NewLockInfo("").Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir, "info.json"), data, 0600))

	failed := make(chan error, 1)
	stop := l.KeepAlive(context.Background(), 5*time.Millisecond, func(err error) { failed <- err })
	defer stop()

	select {
	case err := <-failed:
		assert.True(t, errors.IsCode(err, errors.ErrLock))
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not notice the takeover")
	}
}

func TestKeepAlive_ZeroIntervalIsNoop(t *testing.T) {
	l := &Lock{Dir: filepath.Join(t.TempDir(), "missing.lock"), Info: NewLockInfo("")}
	stop := l.KeepAlive(context.Background(), 0, func(err error) { t.Errorf("unexpected: %v", err) })
	stop()
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}
