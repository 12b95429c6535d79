package archival

import (
	"context"
	"errors"
	"sync"

	"github.com/gosuda/fuelops/internal/domain"
)

// RunLock guarantees at most one archival or restore run at a time.
// Acquire fails fast with domain.ErrRunInProgress when the lock is held.
type RunLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLock is an in-process RunLock.
type LocalLock struct {
	mu sync.Mutex
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) Acquire(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

type chainLock []RunLock

// ChainLocks acquires every lock in order and releases in reverse. If any
// acquisition fails, the locks already taken are released.
func ChainLocks(locks ...RunLock) RunLock {
	out := make(chainLock, 0, len(locks))
	for _, l := range locks {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (c chainLock) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// IsRunInProgress reports whether err means another run holds the lock.
func IsRunInProgress(err error) bool {
	return errors.Is(err, domain.ErrRunInProgress)
}
