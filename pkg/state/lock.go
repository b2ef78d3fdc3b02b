package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is the advisory lock taken on a repository root while a
// synchronization runs against it.
const LockFileName = ".reposync.lock"

// ErrLocked is returned when another process holds the repository lock
var ErrLocked = errors.New("repository is locked by another reposync process")

// Lock guards a repository root against concurrent runs
type Lock struct {
	flock *flock.Flock
}

// NewLock creates the lock for a repository root
func NewLock(repoRoot string) *Lock {
	return &Lock{flock: flock.New(filepath.Join(repoRoot, LockFileName))}
}

// Acquire takes the lock, retrying until wait has elapsed. A zero wait
// tries exactly once.
func (l *Lock) Acquire(ctx context.Context, wait time.Duration) error {
	var (
		locked bool
		err    error
	)

	if wait <= 0 {
		locked, err = l.flock.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		locked, err = l.flock.TryLockContext(lockCtx, 100*time.Millisecond)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}

	if err != nil {
		return fmt.Errorf("failed to lock repository: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Release unlocks and removes the lock file. It is a no-op when the lock
// is not held by this process.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock repository: %w", err)
	}

	if err := os.Remove(l.flock.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
