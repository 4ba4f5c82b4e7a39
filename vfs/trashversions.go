package vfs

import (
	"github.com/objectfs/vfscore/internal/codec"
	"github.com/objectfs/vfscore/internal/vfsnode"
	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// MoveToTrash removes the node at path the way Delete does, but keeps its
// content (for a memory-resident node) or its metadata (for a mounted one)
// in the bounded trash store, returning the id a later RestoreFromTrash
// call needs. It is itself WAL-logged under a distinct tag from a plain
// Delete, so crash recovery can tell the two apart.
func (v *VirtualFileSystem) MoveToTrash(path string) (string, error) {
	path = pathutil.Normalize(path)
	var id string
	err := v.withMetrics(types.OpDelete, func() error {
		if err := v.requireUnlocked(path); err != nil {
			return err
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		var entry types.TrashEntry
		if onMount, da, ro, rel := v.routeLocked(path); onMount {
			if rel == pathutil.Root {
				return errors.New(errors.ErrPermissionDenied, path, "cannot delete an active mount point")
			}
			if err := checkWritable(path, ro); err != nil {
				return err
			}
			info, err := da.Stat(rel)
			if err != nil {
				return err
			}
			if err := v.breakers.Guard(v.mountKeyLocked(path), func() error { return da.Delete(rel) }); err != nil {
				return err
			}
			entry = v.trashStore.RecordMountedTrash(path, info.Type, v.clock())
		} else {
			node, err := v.tree.Resolve(path, false)
			if err != nil {
				return err
			}
			nodeType, content := node.Type, capturedContent(node)
			if _, err := v.tree.Delete(path); err != nil {
				return err
			}
			v.versions.Remove(path)
			entry = v.trashStore.MoveToTrash(path, nodeType, content, nil, v.clock())
		}

		data, err := v.encodeTrashEntry(entry)
		if err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALMoveToTrash, Path: path, Path2: entry.ID, Data: data}); err != nil {
			return err
		}

		v.invalidatePath(path)
		v.publish(path, types.EventDeleted)
		id = entry.ID
		return nil
	})
	return id, err
}

// capturedContent returns the bytes to preserve in a trash entry for n: a
// file's content, a symlink's target (so restoreEntryIntoTree's
// NodeSymlink branch has something to recreate), or nil for a directory
// (Delete only ever operates on empty directories, so a trashed directory
// never has children of its own to carry along).
func capturedContent(n *vfsnode.Node) []byte {
	switch n.Type {
	case types.NodeFile:
		return n.Content.Bytes()
	case types.NodeSymlink:
		return []byte(n.Target)
	default:
		return nil
	}
}

// RestoreFromTrash reconstructs the trash entry identified by id at
// destPath, which must not already exist. Only memory-resident entries can
// be restored this way; restoring a mounted entry's metadata-only record
// would recreate a node with no content, which would silently lose data,
// so it is rejected instead.
func (v *VirtualFileSystem) RestoreFromTrash(id, destPath string) error {
	destPath = pathutil.Normalize(destPath)
	return v.withMetrics(types.OpCreateFile, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		entry, ok := v.trashStore.Get(id)
		if !ok {
			return errors.New(errors.ErrNotFound, id, "no such trash entry")
		}
		if entry.IsMounted {
			return errors.New(errors.ErrInvalidPath, id, "mounted trash entries carry no content to restore")
		}
		if onMount, _, _, _ := v.routeLocked(destPath); onMount {
			return errors.New(errors.ErrInvalidPath, destPath, "cannot restore into a mounted path")
		}

		if err := v.restoreEntryIntoTree(entry, destPath); err != nil {
			return err
		}
		v.trashStore.Remove(id)

		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALRestoreFromTrash, Path: id, Path2: destPath}); err != nil {
			return err
		}
		v.invalidatePath(destPath)
		v.publish(destPath, types.EventCreated)
		return nil
	})
}

// restoreEntryIntoTree recreates entry's node at destPath. Caller must hold
// mu.
func (v *VirtualFileSystem) restoreEntryIntoTree(entry types.TrashEntry, destPath string) error {
	switch entry.Type {
	case types.NodeDirectory:
		if _, err := v.tree.CreateDir(destPath); err != nil {
			return err
		}
	case types.NodeSymlink:
		if _, err := v.tree.CreateSymlink(destPath, string(entry.Content)); err != nil {
			return err
		}
	default:
		if _, err := v.tree.CreateFile(destPath); err != nil {
			return err
		}
		if _, err := v.tree.WriteAt(destPath, 0, entry.Content); err != nil {
			return err
		}
	}
	return nil
}

// encodeTrashEntry serializes a single trash entry through the facade's
// configured payload codec, reusing EncodeTrash's one-element-slice shape
// rather than adding a dedicated single-entry wire format.
func (v *VirtualFileSystem) encodeTrashEntry(e types.TrashEntry) ([]byte, error) {
	return v.payloadCodec.EncodeTrash([]codec.TrashRecord{trashEntryToRecord(e)})
}

func (v *VirtualFileSystem) decodeTrashEntry(data []byte) (types.TrashEntry, error) {
	recs, err := v.payloadCodec.DecodeTrash(data)
	if err != nil || len(recs) == 0 {
		return types.TrashEntry{}, err
	}
	return trashRecordToEntry(recs[0]), nil
}

// replayMoveToTrash re-inserts the trash entry carried by a WALMoveToTrash
// record, preserving its original id, and removes the source node from the
// tree if it is still present (idempotent: a node already gone — because a
// later operation in the log already removed it — is not an error).
func (v *VirtualFileSystem) replayMoveToTrash(e codec.WALEntry) {
	entry, err := v.decodeTrashEntry(e.Data)
	if err != nil {
		return
	}
	v.trashStore.InsertForReplay(entry)
	if !entry.IsMounted {
		_, _ = v.tree.Delete(e.Path)
	}
}

// replayRestoreFromTrash re-applies a WALRestoreFromTrash record: it looks
// the entry up by id (e.Path) and recreates it at the destination (e.Path2)
// if not already present, then drops it from the trash store. Both halves
// silently no-op if their precondition no longer holds, keeping replay
// idempotent.
func (v *VirtualFileSystem) replayRestoreFromTrash(e codec.WALEntry) {
	entry, ok := v.trashStore.Get(e.Path)
	if !ok {
		return
	}
	if _, err := v.tree.Resolve(e.Path2, false); err == nil {
		v.trashStore.Remove(e.Path)
		return
	}
	_ = v.restoreEntryIntoTree(entry, e.Path2)
	v.trashStore.Remove(e.Path)
}

// ListTrash returns every trash entry, newest first.
func (v *VirtualFileSystem) ListTrash() []types.TrashEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	return v.trashStore.List()
}

// EmptyTrash permanently discards the entry identified by id without
// restoring it.
func (v *VirtualFileSystem) EmptyTrash(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	if _, ok := v.trashStore.Remove(id); !ok {
		return errors.New(errors.ErrNotFound, id, "no such trash entry")
	}
	return nil
}

// ListVersions returns path's version history, newest first.
func (v *VirtualFileSystem) ListVersions(path string) []types.Version {
	path = pathutil.Normalize(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	return v.versions.List(path)
}

// ReadVersion returns the historical content of path's version id.
func (v *VirtualFileSystem) ReadVersion(path, id string) ([]byte, error) {
	path = pathutil.Normalize(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	data, ok := v.versions.Read(path, id)
	if !ok {
		return nil, errors.New(errors.ErrNotFound, path, "no such version: "+id)
	}
	return data, nil
}

// RestoreVersion overwrites path's current in-memory content with the
// historical content of id, after saving the current content as a new
// version of its own. It only operates on memory-resident files: a mounted
// path's content lives on the adapter's disk, outside version control.
func (v *VirtualFileSystem) RestoreVersion(path, id string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpWrite, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		if onMount, _, _, _ := v.routeLocked(path); onMount {
			return errors.New(errors.ErrInvalidPath, path, "cannot restore a version onto a mounted path")
		}

		current, err := v.tree.ReadAt(path, 0, 1<<31-1)
		if err != nil {
			return err
		}
		data, ok := v.versions.Restore(path, id, current, v.clock())
		if !ok {
			return errors.New(errors.ErrNotFound, path, "no such version: "+id)
		}
		if err := v.tree.Truncate(path, 0); err != nil {
			return err
		}
		if _, err := v.tree.WriteAt(path, 0, data); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALTruncate, Path: path, Offset: 0}); err != nil {
			return err
		}
		if err := v.appendWAL(codec.WALEntry{Tag: codec.WALWrite, Path: path, Offset: 0, Data: data}); err != nil {
			return err
		}
		v.invalidatePath(path)
		v.publish(path, types.EventModified)
		return nil
	})
}
