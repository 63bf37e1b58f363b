// Package lock serializes access to a strata home across processes.
//
// Every read-modify-write sequence on the registry or the mount index runs
// under an exclusive flock(2) on the home's lock file; read-only commands take
// a shared lock. Acquisition never blocks indefinitely: it polls until the
// configured timeout and then fails with errdefs.ErrStoreLocked.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/danieljhkim/strata/internal/errdefs"
)

// Mode selects shared or exclusive locking.
type Mode int

const (
	// Shared allows concurrent readers.
	Shared Mode = iota
	// Exclusive admits a single writer and no readers.
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// DefaultPollInterval is how often a contended lock is retried.
const DefaultPollInterval = 20 * time.Millisecond

// Locker acquires the home lock.
type Locker interface {
	Acquire(ctx context.Context, mode Mode) (Releaser, error)
}

// Releaser releases a held lock.
type Releaser interface {
	Release() error
}

// FileLock implements Locker with flock(2) on a single file.
type FileLock struct {
	path    string
	timeout time.Duration
	poll    time.Duration
}

// NewFileLock creates a FileLock on path.
func NewFileLock(path string, timeout time.Duration) *FileLock {
	return &FileLock{
		path:    path,
		timeout: timeout,
		poll:    DefaultPollInterval,
	}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock in the given mode, polling until the timeout
// elapses or ctx is done.
func (l *FileLock) Acquire(ctx context.Context, mode Mode) (Releaser, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &held{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
		}

		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: could not take %s lock on %s within %v", errdefs.ErrStoreLocked, mode, l.path, l.timeout)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("waiting for %s lock on %s: %w", mode, l.path, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

type held struct {
	f *os.File
}

// Release unlocks and closes the lock file. Calling it twice is a no-op.
func (h *held) Release() error {
	if h.f == nil {
		return nil
	}
	f := h.f
	h.f = nil

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock: %w", unlockErr)
	}
	return closeErr
}
