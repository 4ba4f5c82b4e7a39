package tree

import (
	"github.com/objectfs/vfscore/internal/codec"
	"github.com/objectfs/vfscore/internal/vfsnode"
	"github.com/objectfs/vfscore/pkg/types"
)

// Snapshot serializes the whole tree into the codec's transport shape.
func (t *Tree) Snapshot() *codec.SnapshotNode {
	return toSnapshotNode(t.root)
}

func toSnapshotNode(n *vfsnode.Node) *codec.SnapshotNode {
	snap := &codec.SnapshotNode{
		Name:        n.Name,
		Type:        n.Type,
		CreatedAt:   n.CreatedAt,
		ModifiedAt:  n.ModifiedAt,
		Permissions: n.Permissions,
		Target:      n.Target,
	}
	for _, name := range n.Xattrs.List() {
		v, _ := n.Xattrs.Get(name)
		snap.Xattrs = append(snap.Xattrs, codec.XattrPair{Name: name, Value: v})
	}
	switch n.Type {
	case types.NodeFile:
		snap.Content = n.Content.Bytes()
	case types.NodeDirectory:
		n.Children.Each(func(_ string, child *vfsnode.Node) {
			snap.Children = append(snap.Children, *toSnapshotNode(child))
		})
	}
	return snap
}

// LoadFromSnapshot rebuilds a tree from a decoded snapshot, replacing any
// existing content.
func LoadFromSnapshot(now Clock, snap *codec.SnapshotNode) *Tree {
	t := &Tree{now: now}
	t.root = fromSnapshotNode(snap)
	return t
}

func fromSnapshotNode(snap *codec.SnapshotNode) *vfsnode.Node {
	var n *vfsnode.Node
	switch snap.Type {
	case types.NodeFile:
		n = vfsnode.NewFile(snap.Name, snap.CreatedAt)
		n.Content.WriteAt(snap.Content, 0)
	case types.NodeSymlink:
		n = vfsnode.NewSymlink(snap.Name, snap.Target, snap.CreatedAt)
	default:
		n = vfsnode.NewDirectory(snap.Name, snap.CreatedAt)
		for i := range snap.Children {
			child := fromSnapshotNode(&snap.Children[i])
			n.Children.Put(child.Name, child)
		}
	}
	n.ModifiedAt = snap.ModifiedAt
	n.Permissions = snap.Permissions
	for _, x := range snap.Xattrs {
		n.Xattrs.Set(x.Name, x.Value)
	}
	return n
}

// ApplyWALEntry replays a single tree-level mutation record. It is
// idempotent: if the entry's precondition no longer holds (the target
// already exists, is already absent, and so on) the call silently
// no-ops instead of returning an error. MoveToTrash and RestoreFromTrash
// are not tree-level operations and are reported back as unhandled so the
// caller can apply them against the trash store.
func (t *Tree) ApplyWALEntry(e codec.WALEntry) (handled bool, err error) {
	switch e.Tag {
	case codec.WALCreateFile:
		t.CreateFile(e.Path)
	case codec.WALCreateDir:
		t.CreateDir(e.Path)
	case codec.WALCreateSymlink:
		t.CreateSymlink(e.Path, e.Path2)
	case codec.WALDelete:
		t.Delete(e.Path)
	case codec.WALWrite:
		t.WriteAt(e.Path, e.Offset, e.Data)
	case codec.WALTruncate:
		t.Truncate(e.Path, e.Offset)
	case codec.WALSetPermissions:
		t.SetPermissions(e.Path, e.Permissions)
	case codec.WALSetXattr:
		t.SetXattr(e.Path, e.Path2, e.Data)
	case codec.WALRemoveXattr:
		t.RemoveXattr(e.Path, e.Path2)
	case codec.WALCopy:
		t.Copy(e.Path, e.Path2)
	case codec.WALMove:
		t.Move(e.Path, e.Path2)
	case codec.WALMoveToTrash, codec.WALRestoreFromTrash:
		return false, nil
	default:
		return false, nil
	}
	return true, nil
}
