// Package lock implements per-path advisory SHARED/EXCLUSIVE locks with
// handle-scoped ownership, modeled on the mutex-guarded state machine of
// internal/circuit's breaker: one short critical section per transition,
// with a condition variable standing in for the breaker's expiry-based
// wakeup since waiters here are woken by another holder's unlock rather
// than by a timer.
package lock

import (
	"context"
	"sync"

	"github.com/objectfs/vfscore/pkg/types"
)

type pathState struct {
	mode    types.LockMode
	holders map[string]struct{}
}

func (s *pathState) soleHolder(handle string) bool {
	if len(s.holders) != 1 {
		return false
	}
	_, ok := s.holders[handle]
	return ok
}

// ErrLocked is returned by TryLock when the requested mode conflicts with
// the path's current holders.
type ErrLocked struct {
	Path string
}

func (e *ErrLocked) Error() string { return "lock: " + e.Path + " is locked" }

// Manager tracks advisory locks across every path in the filesystem. All
// methods are safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	cond  *sync.Cond
	paths map[string]*pathState
}

// New creates an empty lock manager.
func New() *Manager {
	m := &Manager{paths: make(map[string]*pathState)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// eligible reports whether handle may acquire mode on path given its
// current state: SHARED is compatible with SHARED; a sole holder may
// upgrade, downgrade, or retype its own grant.
// Caller must hold m.mu.
func (m *Manager) eligible(path, handle string, mode types.LockMode) bool {
	s, exists := m.paths[path]
	if !exists {
		return true
	}
	switch mode {
	case types.LockShared:
		return s.mode == types.LockShared || s.soleHolder(handle)
	case types.LockExclusive:
		return s.soleHolder(handle)
	default:
		return false
	}
}

// acquire grants mode to handle on path. Caller must hold m.mu and have
// already confirmed eligible(path, handle, mode).
func (m *Manager) acquire(path, handle string, mode types.LockMode) {
	s, exists := m.paths[path]
	if !exists {
		m.paths[path] = &pathState{mode: mode, holders: map[string]struct{}{handle: {}}}
		return
	}
	s.mode = mode
	s.holders[handle] = struct{}{}
}

// TryLock attempts to acquire mode on path for handle without blocking. It
// returns *ErrLocked if the path is held in a conflicting mode by another
// handle.
func (m *Manager) TryLock(path, handle string, mode types.LockMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.eligible(path, handle, mode) {
		return &ErrLocked{Path: path}
	}
	m.acquire(path, handle, mode)
	return nil
}

// Lock acquires mode on path for handle, blocking until it becomes
// eligible or ctx is canceled. A handle never waits on a lock it already
// holds in a compatible mode; incompatible re-entrant requests (e.g.
// SHARED held by this handle, now wanting EXCLUSIVE while another handle
// also holds SHARED) block like any other request.
func (m *Manager) Lock(ctx context.Context, path, handle string, mode types.LockMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, m.cond.Broadcast)
		defer stop()
	}

	for !m.eligible(path, handle, mode) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		m.cond.Wait()
	}
	m.acquire(path, handle, mode)
	return nil
}

// Unlock releases handle's hold on path. If handle was the only holder,
// the path entry is removed and every waiter on the manager is woken to
// re-check eligibility (a thundering-herd retry is acceptable: the
// critical section each waiter re-checks under is short).
func (m *Manager) Unlock(path, handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.paths[path]
	if !exists {
		return
	}
	delete(s.holders, handle)
	if len(s.holders) == 0 {
		delete(m.paths, path)
	}
	m.cond.Broadcast()
}

// UnlockAll releases every lock held by handle, across all paths. Called
// when a file handle is closed.
func (m *Manager) UnlockAll(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, s := range m.paths {
		if _, held := s.holders[handle]; !held {
			continue
		}
		delete(s.holders, handle)
		if len(s.holders) == 0 {
			delete(m.paths, path)
		}
	}
	m.cond.Broadcast()
}

// IsLocked reports whether path currently has any holder, for the
// delete-vs-locked check a caller performs before removing a file.
func (m *Manager) IsLocked(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.paths[path]
	return exists && len(s.holders) > 0
}

// Count reports the number of distinct paths currently holding at least
// one lock, for health reporting.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}
