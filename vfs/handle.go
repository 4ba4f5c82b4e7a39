package vfs

import (
	"context"

	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// FileHandle is a caller-held reference to an open path, scoping the
// advisory locks it acquires so they can all be released together on
// Close, the way a real file descriptor's close releases its flocks.
type FileHandle struct {
	v    *VirtualFileSystem
	id   string
	path string
}

// Open returns a handle bound to path, for a caller that wants to acquire
// one or more advisory locks over the following operations and release
// them all at once. Opening does not itself touch the tree or a mount.
func (v *VirtualFileSystem) Open(path string) *FileHandle {
	return &FileHandle{v: v, id: newHandleID(), path: pathutil.Normalize(path)}
}

// Path returns the handle's bound path.
func (h *FileHandle) Path() string { return h.path }

// TryLock attempts to acquire mode on the handle's path without blocking.
// A conflicting holder surfaces as ErrLocked.
func (h *FileHandle) TryLock(mode types.LockMode) error {
	return h.v.withMetrics(types.OpLock, func() error {
		if err := h.v.locks.TryLock(h.path, h.id, mode); err != nil {
			return errors.New(errors.ErrLocked, h.path, "path is locked")
		}
		return nil
	})
}

// Lock acquires mode on the handle's path, blocking until it becomes
// eligible or ctx is canceled. The coordinator lock is never held while
// waiting here: this method doesn't take v.mu at all, since the lock
// manager has its own internal synchronization and blocking on it must
// not stall unrelated operations on other paths.
func (h *FileHandle) Lock(ctx context.Context, mode types.LockMode) error {
	return h.v.withMetrics(types.OpLock, func() error {
		return h.v.locks.Lock(ctx, h.path, h.id, mode)
	})
}

// Unlock releases the handle's hold on its path.
func (h *FileHandle) Unlock() {
	h.v.locks.Unlock(h.path, h.id)
}

// Close releases every lock the handle holds across every path, mirroring
// what closing a real file descriptor does to its flocks.
func (h *FileHandle) Close() error {
	h.v.locks.UnlockAll(h.id)
	return nil
}

// IsLocked reports whether path currently has any lock holder, for a
// caller checking before a delete.
func (v *VirtualFileSystem) IsLocked(path string) bool {
	return v.locks.IsLocked(pathutil.Normalize(path))
}

// requireUnlocked returns ErrLocked if path is currently held by any
// handle, used before a destructive operation that must not race a lock
// holder.
func (v *VirtualFileSystem) requireUnlocked(path string) error {
	if v.locks.IsLocked(path) {
		return errors.New(errors.ErrLocked, path, "path is locked")
	}
	return nil
}
