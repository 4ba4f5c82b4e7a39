package vfs

import (
	"io"

	"github.com/objectfs/vfscore/internal/codec"
	"github.com/objectfs/vfscore/internal/mount"
	"github.com/objectfs/vfscore/internal/vfsnode"
	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// location is a resolved access point for a single virtual path: either a
// node in the memory tree or a relative path under a mounted adapter. It
// gives Copy/Move/DeleteRecursive one small vocabulary to walk a subtree
// without caring which side of a mount boundary each node falls on.
// Callers must already hold v.mu.
type location struct {
	v       *VirtualFileSystem
	path    string
	onMount bool
	da      mount.DiskAdapter
	rel     string
}

func (v *VirtualFileSystem) locate(path string) location {
	onMount, da, _, rel := v.routeLocked(path)
	return location{v: v, path: path, onMount: onMount, da: da, rel: rel}
}

func (l location) child(name string) location {
	if l.onMount {
		return location{v: l.v, path: pathutil.Join(l.path, name), onMount: true, da: l.da, rel: pathutil.Join(l.rel, name)}
	}
	return l.v.locate(pathutil.Join(l.path, name))
}

func (l location) stat() (types.FileInfo, error) {
	if l.onMount {
		info, err := l.da.Stat(l.rel)
		if err == nil {
			info.Path = l.path
		}
		return info, err
	}
	return l.v.tree.Lstat(l.path)
}

func (l location) readAll() ([]byte, error) {
	if l.onMount {
		info, err := l.da.Stat(l.rel)
		if err != nil {
			return nil, err
		}
		return l.da.ReadFile(l.rel, 0, int(info.Size))
	}
	return l.v.tree.ReadAt(l.path, 0, 1<<31-1)
}

func (l location) createDir() error {
	if l.onMount {
		return l.da.CreateDir(l.rel)
	}
	if _, err := l.v.tree.CreateDir(l.path); err != nil {
		return err
	}
	return l.v.appendWAL(codec.WALEntry{Tag: codec.WALCreateDir, Path: l.path})
}

func (l location) createFile(content []byte) error {
	if l.onMount {
		if err := l.da.CreateFile(l.rel); err != nil {
			return err
		}
		if len(content) == 0 {
			return nil
		}
		return l.da.WriteFile(l.rel, 0, content)
	}
	if _, err := l.v.tree.CreateFile(l.path); err != nil {
		return err
	}
	if err := l.v.appendWAL(codec.WALEntry{Tag: codec.WALCreateFile, Path: l.path}); err != nil {
		return err
	}
	if _, err := l.v.tree.WriteAt(l.path, 0, content); err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	return l.v.appendWAL(codec.WALEntry{Tag: codec.WALWrite, Path: l.path, Offset: 0, Data: content})
}

func (l location) createSymlink(target string) error {
	if l.onMount {
		return errors.New(errors.ErrInvalidPath, l.path, "symlinks are not supported inside a mounted path")
	}
	if _, err := l.v.tree.CreateSymlink(l.path, target); err != nil {
		return err
	}
	return l.v.appendWAL(codec.WALEntry{Tag: codec.WALCreateSymlink, Path: l.path, Path2: target})
}

func (l location) childNames() ([]string, error) {
	if l.onMount {
		entries, err := l.da.List(l.rel)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		return names, nil
	}
	entries, err := l.v.tree.ReadDir(l.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// copyInto recursively copies src onto dst, which must not already exist.
func copyInto(src, dst location) error {
	info, err := src.stat()
	if err != nil {
		return err
	}
	switch info.Type {
	case types.NodeDirectory:
		if err := dst.createDir(); err != nil {
			return err
		}
		names, err := src.childNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := copyInto(src.child(name), dst.child(name)); err != nil {
				return err
			}
		}
		return nil
	case types.NodeSymlink:
		return dst.createSymlink(info.Target)
	default:
		content, err := src.readAll()
		if err != nil {
			return err
		}
		return dst.createFile(content)
	}
}

// Copy deep-copies the subtree rooted at src to dst, which must not already
// exist. A copy entirely within the memory tree uses tree.Copy's
// single-pass deep clone and is WAL-logged as one entry; a copy touching a
// mount on either side walks node by node through the location
// abstraction instead, since mount.DiskAdapter has no bulk-copy primitive;
// each node it creates in the memory tree is WAL-logged individually,
// while nodes created on the mounted side are not (their bytes are
// persisted by the adapter's own backend, not by vfscore's write-ahead
// log).
func (v *VirtualFileSystem) Copy(src, dst string) error {
	src = pathutil.Normalize(src)
	dst = pathutil.Normalize(dst)
	return v.withMetrics(types.OpCopy, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		srcLoc := v.locate(src)
		dstLoc := v.locate(dst)
		if dstLoc.onMount {
			if _, _, ro, _, _ := v.mounts.Match(dst); ro {
				return errors.New(errors.ErrPermissionDenied, dst, "mount is read-only")
			}
		}

		if !srcLoc.onMount && !dstLoc.onMount {
			if err := v.tree.Copy(src, dst); err != nil {
				return err
			}
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALCopy, Path: src, Path2: dst}); err != nil {
				return err
			}
		} else {
			if err := copyInto(srcLoc, dstLoc); err != nil {
				return err
			}
		}

		v.invalidatePath(dst)
		v.publish(dst, types.EventCreated)
		return nil
	})
}

// Move relocates the node at src to dst, which must not already exist. A
// move entirely within the memory tree is a single in-place rename; a move
// touching a mount on either side is a recursive copy followed by a
// permanent (non-trashed) removal of the source, since mount.DiskAdapter
// exposes no atomic rename across its own boundary, let alone across one.
func (v *VirtualFileSystem) Move(src, dst string) error {
	src = pathutil.Normalize(src)
	dst = pathutil.Normalize(dst)
	return v.withMetrics(types.OpMove, func() error {
		if err := v.requireUnlocked(src); err != nil {
			return err
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		srcLoc := v.locate(src)
		dstLoc := v.locate(dst)
		if srcLoc.onMount && srcLoc.rel == pathutil.Root {
			return errors.New(errors.ErrPermissionDenied, src, "cannot move an active mount point")
		}
		if dstLoc.onMount {
			if _, _, ro, _, _ := v.mounts.Match(dst); ro {
				return errors.New(errors.ErrPermissionDenied, dst, "mount is read-only")
			}
		}

		if !srcLoc.onMount && !dstLoc.onMount {
			if err := v.tree.Move(src, dst); err != nil {
				return err
			}
			v.versions.Move(src, dst)
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALMove, Path: src, Path2: dst}); err != nil {
				return err
			}
		} else {
			if err := copyInto(srcLoc, dstLoc); err != nil {
				return err
			}
			if err := removeRecursive(srcLoc); err != nil {
				return err
			}
		}

		v.invalidateSubtree(src)
		v.invalidatePath(dst)
		v.publish(src, types.EventDeleted)
		v.publish(dst, types.EventCreated)
		return nil
	})
}

// removeRecursive deletes loc and everything under it, bottom-up, with no
// trash capture — used only as Move's cleanup step for the side of a move
// that copyInto has already replicated onto the other side.
func removeRecursive(loc location) error {
	info, err := loc.stat()
	if err != nil {
		return err
	}
	if info.Type == types.NodeDirectory {
		names, err := loc.childNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := removeRecursive(loc.child(name)); err != nil {
				return err
			}
		}
	}
	if loc.onMount {
		return loc.da.Delete(loc.rel)
	}
	if _, err = loc.v.tree.Delete(loc.path); err != nil {
		return err
	}
	return loc.v.appendWAL(codec.WALEntry{Tag: codec.WALDelete, Path: loc.path})
}

// DeleteRecursive removes path and everything under it. Each memory-
// resident node removed this way is captured into the trash store
// individually, bottom-up, rather than as one entry with nested children:
// Delete's own invariant (only an empty directory can be removed) means a
// plain Delete never needs to represent a subtree, and re-using that same
// flat shape here keeps WAL replay and restoration uniform across both
// operations, at the cost of restoring a deleted subtree one entry at a
// time instead of atomically. A mounted node's removal is permanent, as
// pass-through deletes on a real disk adapter generally are, matching
// the recovery posture of its contents, which vfscore never WALs either.
// It returns the trash ids allocated for the memory-resident nodes
// removed, in bottom-up order.
func (v *VirtualFileSystem) DeleteRecursive(path string) ([]string, error) {
	path = pathutil.Normalize(path)
	var ids []string
	err := v.withMetrics(types.OpDelete, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error {
				return v.deleteMountedTreeLocked(da, rel)
			}); err != nil {
				return err
			}
			v.invalidateSubtree(path)
			v.publish(path, types.EventDeleted)
			return nil
		}

		matches, err := v.tree.Find(path, -1, v.mounts.IsMountPoint, func(string, *vfsnode.Node) bool { return true })
		if err != nil {
			return err
		}
		for _, m := range matches {
			if v.locks.IsLocked(m.Path) {
				return errors.New(errors.ErrLocked, m.Path, "path is locked")
			}
		}
		// Find walks parent-before-children; deleting bottom-up means
		// walking that slice in reverse.
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			nodeType, content := m.Node.Type, capturedContent(m.Node)
			if _, err := v.tree.Delete(m.Path); err != nil {
				return err
			}
			v.versions.Remove(m.Path)
			entry := v.trashStore.MoveToTrash(m.Path, nodeType, content, nil, v.clock())
			data, err := v.encodeTrashEntry(entry)
			if err != nil {
				return err
			}
			if err := v.appendWAL(codec.WALEntry{Tag: codec.WALMoveToTrash, Path: m.Path, Path2: entry.ID, Data: data}); err != nil {
				return err
			}
			v.invalidatePath(m.Path)
			v.publish(m.Path, types.EventDeleted)
			ids = append(ids, entry.ID)
		}
		return nil
	})
	return ids, err
}

// deleteMountedTreeLocked empties rel's contents on da, recursively, and
// removes rel itself unless it is the mount's own root (removing the root
// directory out from under an active mount would break it).
func (v *VirtualFileSystem) deleteMountedTreeLocked(da mount.DiskAdapter, rel string) error {
	entries, err := da.List(rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childRel := pathutil.Join(rel, e.Name)
		if e.Info.Type == types.NodeDirectory {
			if err := v.deleteMountedTreeLocked(da, childRel); err != nil {
				return err
			}
		}
		if err := da.Delete(childRel); err != nil {
			return err
		}
	}
	if rel == "/" {
		return nil
	}
	return da.Delete(rel)
}

// Find searches the subtree rooted at root (up to maxDepth levels, negative
// for unlimited) for entries whose base name matches the glob pattern. An
// active mount point below root is skipped together with everything
// beneath it, since a mount's own contents are not indexed by the tree.
// root itself is resolved in the memory tree, never through an adapter,
// so a root inside a mount does not search the adapter's contents. This
// only searches the memory-resident namespace; search is a best-effort,
// non-transactional convenience, not a crash-consistent view.
func (v *VirtualFileSystem) Find(root, pattern string, maxDepth int) ([]types.FileInfo, error) {
	root = pathutil.Normalize(root)
	var out []types.FileInfo
	err := v.withMetrics(types.OpReadDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		matches, err := v.tree.Find(root, maxDepth, v.mounts.IsMountPoint, func(path string, n *vfsnode.Node) bool {
			return pathutil.MatchGlob(pattern, pathutil.Base(path))
		})
		if err != nil {
			return err
		}
		out = make([]types.FileInfo, len(matches))
		for i, m := range matches {
			out[i] = m.Node.Info(m.Path)
		}
		return nil
	})
	return out, err
}

// Export streams the subtree rooted at root through w, one entry at a
// time, depth-first. Each entry's FileInfo.Path carries the path relative
// to root (root itself as "/"), so Import can recreate the same shape
// under an arbitrary destination. No archive codec ships with this
// package; w is the
// caller-supplied seam (types.ArchiveWriter) that actually serializes
// each entry, e.g. onto a tar or zip stream.
func (v *VirtualFileSystem) Export(root string, w types.ArchiveWriter) error {
	root = pathutil.Normalize(root)
	return v.withMetrics(types.OpReadDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		return exportLocation(v.locate(root), pathutil.Root, w)
	})
}

func exportLocation(loc location, rel string, w types.ArchiveWriter) error {
	info, err := loc.stat()
	if err != nil {
		return err
	}
	info.Path = rel
	switch info.Type {
	case types.NodeDirectory:
		if err := w.WriteEntry(info, nil); err != nil {
			return err
		}
		names, err := loc.childNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := exportLocation(loc.child(name), pathutil.Join(rel, name), w); err != nil {
				return err
			}
		}
		return nil
	case types.NodeSymlink:
		return w.WriteEntry(info, []byte(info.Target))
	default:
		content, err := loc.readAll()
		if err != nil {
			return err
		}
		return w.WriteEntry(info, content)
	}
}

// Import recreates entries read from r under destRoot, which must not
// already exist. Entries are applied in the order r.Next returns them, so
// a well-formed archive (directories before their children, as Export
// produces) round-trips; r is the caller-supplied seam
// (types.ArchiveReader) over whatever archive format produced the stream.
func (v *VirtualFileSystem) Import(destRoot string, r types.ArchiveReader) error {
	destRoot = pathutil.Normalize(destRoot)
	return v.withMetrics(types.OpCreateDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		for {
			info, content, err := r.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			dest := pathutil.Join(destRoot, info.Path)
			loc := v.locate(dest)
			switch info.Type {
			case types.NodeDirectory:
				if err := loc.createDir(); err != nil {
					return err
				}
			case types.NodeSymlink:
				if err := loc.createSymlink(string(content)); err != nil {
					return err
				}
			default:
				if err := loc.createFile(content); err != nil {
					return err
				}
			}
			v.invalidatePath(dest)
			v.publish(dest, types.EventCreated)
		}
	})
}
