// Package lock provides a single-writer guard on the local filesystem.
// A lock is a directory created with mkdir, which is atomic: exactly one
// process succeeds. The directory holds an info.json describing the holder.
package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
)

// ErrLocked is returned by TryAcquire when the lock is held by another process.
// Check with errors.Is().
var ErrLocked = stderrors.New("lock is held by another process")

const (
	infoFileName         = "info.json"
	defaultRetryInterval = 200 * time.Millisecond
)

// Config controls how long to wait for a lock and when to break one.
type Config struct {
	// Timeout is how long Acquire waits. Zero means a single attempt.
	Timeout time.Duration

	// Stale is the age after which a lock is assumed abandoned and removed.
	// Zero disables stale detection.
	Stale time.Duration

	// RetryInterval is the pause between attempts. Defaults to 200ms.
	RetryInterval time.Duration
}

// Lock represents an acquired lock.
type Lock struct {
	Dir  string    // The lock directory path
	Info *LockInfo // Info about the lock holder (us)
}

// Path returns the lock directory for name inside baseDir.
func Path(baseDir, name string) string {
	return filepath.Join(baseDir, name+".lock")
}

// TryAcquire makes one attempt to take the lock. Returns an error wrapping
// ErrLocked if another process holds it.
func TryAcquire(baseDir, name string, cfg Config, purpose string) (*Lock, error) {
	lockDir := Path(baseDir, name)
	infoFile := filepath.Join(lockDir, infoFileName)

	if isLockStale(lockDir, cfg.Stale) {
		// Ignore the error; mkdir below reports anything that matters.
		_ = os.RemoveAll(lockDir)
	}

	if err := os.Mkdir(lockDir, 0700); err != nil {
		if os.IsExist(err) {
			return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
				fmt.Sprintf("Lock %s is held by %s", name, Holder(lockDir)),
				"Another flatpak-sync run is working on this host. Wait for it to finish.")
		}
		return nil, errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Couldn't create lock directory %s", lockDir),
			"Check permissions on "+baseDir)
	}

	info := NewLockInfo(purpose)
	data, err := info.Marshal()
	if err == nil {
		err = os.WriteFile(infoFile, data, 0600)
	}
	if err != nil {
		_ = os.RemoveAll(lockDir)
		return nil, errors.WrapWithCode(err, errors.ErrLock,
			"Failed to write lock info file",
			"Check disk space and permissions on "+baseDir)
	}

	return &Lock{Dir: lockDir, Info: info}, nil
}

// Acquire takes the lock, retrying until cfg.Timeout elapses or ctx is done.
// Stale locks (older than cfg.Stale) are removed automatically.
func Acquire(ctx context.Context, baseDir, name string, cfg Config, purpose string) (*Lock, error) {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	deadline := time.Now().Add(cfg.Timeout)

	for {
		l, err := TryAcquire(baseDir, name, cfg, purpose)
		if err == nil {
			return l, nil
		}
		if !stderrors.Is(err, ErrLocked) {
			return nil, err
		}

		if !time.Now().Before(deadline) {
			return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
				fmt.Sprintf("Timed out waiting for lock %s after %s", name, cfg.Timeout),
				fmt.Sprintf("Lock held by: %s. If that process is gone, remove %s", Holder(Path(baseDir, name)), Path(baseDir, name)))
		}

		select {
		case <-ctx.Done():
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrLock,
				fmt.Sprintf("Gave up waiting for lock %s", name),
				"")
		case <-time.After(interval):
		}
	}
}

// Release removes the lock. It refuses to remove a lock that was broken
// and re-acquired by someone else in the meantime.
func (l *Lock) Release() error {
	if l == nil || l.Dir == "" {
		return nil
	}

	current, err := readLockInfo(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Unreadable info: the directory is still ours to clean up.
		return removeLockDir(l.Dir)
	}

	if l.Info != nil && current.Token != l.Info.Token {
		return takenOver(l.Dir, current)
	}

	return removeLockDir(l.Dir)
}

// Token returns the owner token written to the lock's info file.
func (l *Lock) Token() string {
	if l == nil || l.Info == nil {
		return ""
	}
	return l.Info.Token
}

// Verify returns an error unless the lock directory still carries our token.
// Call it before committing work the lock protects.
func (l *Lock) Verify() error {
	current, err := readLockInfo(l.Dir)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Lock %s is no longer held", l.Dir),
			"A concurrent run treated this lock as stale. Run again.")
	}
	if current.Token != l.Token() {
		return takenOver(l.Dir, current)
	}
	return nil
}

// Refresh records that the holder is still alive so waiting processes do
// not judge the lock stale. The info file is replaced atomically.
func (l *Lock) Refresh() error {
	if err := l.Verify(); err != nil {
		return err
	}

	l.Info.Renewed = time.Now()
	data, err := l.Info.Marshal()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock, "Failed to encode lock info", "")
	}

	tmp := filepath.Join(l.Dir, infoFileName+"."+l.Info.Token)
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock, "Failed to refresh lock info file", "")
	}
	if err := os.Rename(tmp, filepath.Join(l.Dir, infoFileName)); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapWithCode(err, errors.ErrLock, "Failed to refresh lock info file", "")
	}
	return nil
}

// KeepAlive refreshes the lock every interval until the returned stop
// function is called or ctx is done. A failed refresh is passed to onErr
// and ends the loop; the caller finds out for sure through Verify.
func (l *Lock) KeepAlive(ctx context.Context, interval time.Duration, onErr func(error)) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Refresh(); err != nil {
					if onErr != nil {
						onErr(err)
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func takenOver(lockDir string, current *LockInfo) error {
	return errors.New(errors.ErrLock,
		fmt.Sprintf("Lock %s was taken over by %s", lockDir, current),
		"A concurrent run treated this lock as stale. Check the key directory for partial keys.")
}

// Holder returns a description of who holds the lock at lockDir.
func Holder(lockDir string) string {
	info, err := readLockInfo(lockDir)
	if err != nil {
		return "unknown"
	}
	return info.String()
}

// isLockStale reports whether the holder of the lock at lockDir has been
// idle longer than staleThreshold.
// A lock without readable info falls back to the directory's modification time,
// covering a holder that crashed between mkdir and writing info.json.
func isLockStale(lockDir string, staleThreshold time.Duration) bool {
	if staleThreshold <= 0 {
		return false
	}

	if info, err := readLockInfo(lockDir); err == nil {
		return info.Idle() > staleThreshold
	}

	st, err := os.Stat(lockDir)
	if err != nil {
		return false
	}
	return time.Since(st.ModTime()) > staleThreshold
}

func readLockInfo(lockDir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(lockDir, infoFileName))
	if err != nil {
		return nil, err
	}
	return ParseLockInfo(data)
}

func removeLockDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			fmt.Sprintf("Failed to remove lock directory: %s", dir),
			"Remove it manually")
	}
	return nil
}
