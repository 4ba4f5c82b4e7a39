package vfs

import (
	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/internal/codec"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// CreateFile creates an empty file at path, routing to the matching mount
// if one covers path.
func (v *VirtualFileSystem) CreateFile(path string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpCreateFile, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error { return da.CreateFile(rel) }); err != nil {
				return err
			}
		} else {
			if _, err := v.tree.CreateFile(path); err != nil {
				return err
			}
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALCreateFile, Path: path}); err != nil {
				return err
			}
		}
		v.invalidatePath(path)
		v.publish(path, types.EventCreated)
		return nil
	})
}

// CreateDir creates an empty directory at path.
func (v *VirtualFileSystem) CreateDir(path string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpCreateDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error { return da.CreateDir(rel) }); err != nil {
				return err
			}
		} else {
			if _, err := v.tree.CreateDir(path); err != nil {
				return err
			}
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALCreateDir, Path: path}); err != nil {
				return err
			}
		}
		v.invalidatePath(path)
		v.publish(path, types.EventCreated)
		return nil
	})
}

// CreateDirRecursive creates every missing directory along path, like
// "mkdir -p". It only operates in memory: a path that falls under a mount
// is rejected with InvalidPath, and nothing is created on the adapter
// (the mount point's own ancestors come from the EnsureDirPath call at
// Mount time, not from CreateDirRecursive).
func (v *VirtualFileSystem) CreateDirRecursive(path string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpCreateDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, _, _, _ := v.routeLocked(path); onMount {
			return vfserrors.New(vfserrors.ErrInvalidPath, path, "cannot create a directory tree across a mount boundary")
		}
		if err := v.tree.EnsureDirPath(path); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALCreateDir, Path: path}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventCreated)
		return nil
	})
}

// CreateSymlink creates a symlink at path pointing at target. Symlinks
// inside mounted subtrees are rejected: mount.DiskAdapter exposes no
// symlink operation, and a pass-through backend's own symlink semantics
// would not round-trip through the facade's path resolution.
func (v *VirtualFileSystem) CreateSymlink(path, target string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpCreateSymlink, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, _, _, _ := v.routeLocked(path); onMount {
			return vfserrors.New(vfserrors.ErrInvalidPath, path, "symlinks are not supported inside a mounted path")
		}
		if _, err := v.tree.CreateSymlink(path, target); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALCreateSymlink, Path: path, Path2: target}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventCreated)
		return nil
	})
}

// Delete permanently removes the node at path: no trash entry is kept. Use
// MoveToTrash for a recoverable delete.
func (v *VirtualFileSystem) Delete(path string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpDelete, func() error {
		if err := v.requireUnlocked(path); err != nil {
			return err
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if rel == pathutil.Root {
				return vfserrors.New(vfserrors.ErrPermissionDenied, path, "cannot delete an active mount point")
			}
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error { return da.Delete(rel) }); err != nil {
				return err
			}
		} else {
			if _, err := v.tree.Delete(path); err != nil {
				return err
			}
			v.versions.Remove(path)
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALDelete, Path: path}); err != nil {
				return err
			}
		}
		v.invalidatePath(path)
		v.publish(path, types.EventDeleted)
		return nil
	})
}

// Stat resolves path, following a trailing symlink. Results are cached.
func (v *VirtualFileSystem) Stat(path string) (types.FileInfo, error) {
	path = pathutil.Normalize(path)
	var info types.FileInfo
	err := v.withMetrics(types.OpStat, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if cached, ok := v.statCache.Get(path); ok {
			info = cached.(types.FileInfo)
			return nil
		}

		var err error
		if onMount, da, _, rel := v.routeLocked(path); onMount {
			err = v.breakers.Guard(v.mountKeyLocked(path), func() error {
				var statErr error
				info, statErr = da.Stat(rel)
				return statErr
			})
			if err == nil {
				info.Path = path
			}
		} else {
			info, err = v.tree.Stat(path)
		}
		if err != nil {
			return err
		}
		v.statCache.Put(path, info)
		return nil
	})
	return info, err
}

// Lstat resolves path without following a trailing symlink.
func (v *VirtualFileSystem) Lstat(path string) (types.FileInfo, error) {
	path = pathutil.Normalize(path)
	var info types.FileInfo
	err := v.withMetrics(types.OpStat, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, _, rel := v.routeLocked(path); onMount {
			guardErr := v.breakers.Guard(v.mountKeyLocked(path), func() error {
				var statErr error
				info, statErr = da.Stat(rel)
				return statErr
			})
			if guardErr != nil {
				return guardErr
			}
			info.Path = path
			return nil
		}
		var err error
		info, err = v.tree.Lstat(path)
		return err
	})
	return info, err
}

// ReadDir lists the directory at path, in insertion order for a memory
// path or adapter order for a mounted one. Results are cached.
func (v *VirtualFileSystem) ReadDir(path string) ([]types.DirEntry, error) {
	path = pathutil.Normalize(path)
	var entries []types.DirEntry
	err := v.withMetrics(types.OpReadDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if cached, ok := v.readdirCache.Get(path); ok {
			entries = cached.([]types.DirEntry)
			return nil
		}

		var err error
		if onMount, da, _, rel := v.routeLocked(path); onMount {
			err = v.breakers.Guard(v.mountKeyLocked(path), func() error {
				var listErr error
				entries, listErr = da.List(rel)
				return listErr
			})
			if err == nil {
				for i := range entries {
					entries[i].Info.Path = pathutil.Join(path, entries[i].Name)
				}
			}
		} else {
			entries, err = v.tree.ReadDir(path)
		}
		if err != nil {
			return err
		}
		v.readdirCache.Put(path, entries)
		return nil
	})
	return entries, err
}

// ReadAt reads up to length bytes at offset from the file at path.
func (v *VirtualFileSystem) ReadAt(path string, offset int64, length int) ([]byte, error) {
	path = pathutil.Normalize(path)
	var data []byte
	err := v.withMetrics(types.OpRead, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		var err error
		if onMount, da, _, rel := v.routeLocked(path); onMount {
			err = v.breakers.Guard(v.mountKeyLocked(path), func() error {
				var readErr error
				data, readErr = da.ReadFile(rel, offset, length)
				return readErr
			})
		} else {
			data, err = v.tree.ReadAt(path, offset, length)
		}
		return err
	})
	if err == nil {
		v.metrics.RecordBytesRead(int64(len(data)))
	}
	return data, err
}

// WriteAt writes data at offset into the file at path, growing it as
// needed, enforcing the configured quota for memory-resident writes and
// snapshotting the file's prior content into its version history before
// the in-place overwrite.
func (v *VirtualFileSystem) WriteAt(path string, offset int64, data []byte) (int, error) {
	path = pathutil.Normalize(path)
	var n int
	err := v.withMetrics(types.OpWrite, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			err := v.breakers.Guard(v.mountKeyLocked(path), func() error {
				// Snapshot the pre-write content into the version
				// history; the adapter owns the bytes, so this is the
				// only point they can still be captured.
				if info, err := da.Stat(rel); err == nil && info.Type == types.NodeFile {
					if prior, err := da.ReadFile(rel, 0, int(info.Size)); err == nil {
						v.versions.SaveIfChanged(path, prior, v.clock())
					}
				}
				writeErr := da.WriteFile(rel, offset, data)
				n = len(data)
				return writeErr
			})
			if err != nil {
				return err
			}
			v.invalidatePath(path)
			v.publish(path, types.EventModified)
			return nil
		}

		growth := offset + int64(len(data)) - v.memSize(path)
		if err := v.checkQuota(path, growth); err != nil {
			return err
		}

		if prior, err := v.tree.ReadAt(path, 0, 1<<31-1); err == nil {
			v.versions.SaveIfChanged(path, prior, v.clock())
		}

		var err error
		n, err = v.tree.WriteAt(path, offset, data)
		if err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALWrite, Path: path, Offset: offset, Data: data}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventModified)
		return nil
	})
	if err == nil {
		v.metrics.RecordBytesWritten(int64(n))
	}
	return n, err
}

// memSize returns path's current size in the in-memory tree, or 0 if it
// doesn't exist yet (a fresh file about to receive its first write).
func (v *VirtualFileSystem) memSize(path string) int64 {
	info, err := v.tree.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size
}

// Truncate sets the file at path to the given length.
func (v *VirtualFileSystem) Truncate(path string, length int64) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpWrite, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error { return da.Truncate(rel, length) }); err != nil {
				return err
			}
			v.invalidatePath(path)
			v.publish(path, types.EventModified)
			return nil
		}

		if err := v.checkQuota(path, length-v.memSize(path)); err != nil {
			return err
		}
		if prior, err := v.tree.ReadAt(path, 0, 1<<31-1); err == nil {
			v.versions.SaveIfChanged(path, prior, v.clock())
		}
		if err := v.tree.Truncate(path, length); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALTruncate, Path: path, Offset: length}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventModified)
		return nil
	})
}

// SetPermissions overwrites the permission bits of the node at path.
func (v *VirtualFileSystem) SetPermissions(path string, perms types.Permissions) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpStat, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, _, ro, _ := v.routeLocked(path); onMount {
			// mount.DiskAdapter exposes no permission-setting hook; the
			// underlying host filesystem's own permissions govern instead.
			return checkWritable(path, ro)
		}
		if err := v.tree.SetPermissions(path, perms); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALSetPermissions, Path: path, Permissions: perms}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventModified)
		return nil
	})
}

// GetXattr returns the value of name on the node at path.
func (v *VirtualFileSystem) GetXattr(path, name string) ([]byte, error) {
	path = pathutil.Normalize(path)
	var value []byte
	err := v.withMetrics(types.OpXattr, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		var err error
		if onMount, da, _, rel := v.routeLocked(path); onMount {
			value, err = da.GetXattr(rel, name)
		} else {
			value, err = v.tree.GetXattr(path, name)
		}
		return err
	})
	return value, err
}

// SetXattr sets name to value on the node at path.
func (v *VirtualFileSystem) SetXattr(path, name string, value []byte) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpXattr, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			return da.SetXattr(rel, name, value)
		}
		if err := v.tree.SetXattr(path, name, value); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALSetXattr, Path: path, Path2: name, Data: value}); err != nil {
			return err
		}
		v.invalidatePath(path)
		return nil
	})
}

// RemoveXattr removes name from the node at path.
func (v *VirtualFileSystem) RemoveXattr(path, name string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpXattr, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			return da.RemoveXattr(rel, name)
		}
		if err := v.tree.RemoveXattr(path, name); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALRemoveXattr, Path: path, Path2: name}); err != nil {
			return err
		}
		v.invalidatePath(path)
		return nil
	})
}

// ListXattr returns the attribute names set on the node at path.
func (v *VirtualFileSystem) ListXattr(path string) ([]string, error) {
	path = pathutil.Normalize(path)
	var names []string
	err := v.withMetrics(types.OpXattr, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		var err error
		if onMount, da, _, rel := v.routeLocked(path); onMount {
			names, err = da.ListXattr(rel)
		} else {
			names, err = v.tree.ListXattr(path)
		}
		return err
	})
	return names, err
}
