// Package mount implements the mount table: longest-prefix routing between
// the in-memory tree and pass-through disk adapters, active/pending state,
// and read-only enforcement.
package mount

import (
	"strings"

	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

// DiskAdapter is the pass-through seam a mounted backend must satisfy.
// Paths passed to its methods are always relative to the mount point.
type DiskAdapter interface {
	CreateFile(rel string) error
	CreateDir(rel string) error
	ReadFile(rel string, offset int64, length int) ([]byte, error)
	WriteFile(rel string, offset int64, data []byte) error
	Truncate(rel string, length int64) error
	Delete(rel string) error
	List(rel string) ([]types.DirEntry, error)
	Stat(rel string) (types.FileInfo, error)
	Exists(rel string) bool
	RootPath() string

	GetXattr(rel, name string) ([]byte, error)
	SetXattr(rel, name string, value []byte) error
	RemoveXattr(rel, name string) error
	ListXattr(rel string) ([]string, error)
}

// entry is one mount table slot: active entries carry an adapter, pending
// entries carry only the persisted root path awaiting re-attachment.
type entry struct {
	virtualPath string
	adapter     DiskAdapter
	readOnly    bool
	rootPath    string // only meaningful while pending
}

// Table is the mount table. Zero value is not usable; use New.
type Table struct {
	order   []string // insertion order of virtual paths, active entries only
	active  map[string]*entry
	pending map[string]*entry
}

// New returns an empty mount table.
func New() *Table {
	return &Table{active: make(map[string]*entry), pending: make(map[string]*entry)}
}

// Mount registers adapter at virtualPath. Mounting root "/" is rejected.
// Re-mounting an already-active path returns AlreadyExists.
func (t *Table) Mount(virtualPath string, adapter DiskAdapter, readOnly bool) error {
	if virtualPath == "/" {
		return vfserrors.New(vfserrors.ErrInvalidPath, virtualPath, "cannot mount root")
	}
	if _, ok := t.active[virtualPath]; ok {
		return vfserrors.New(vfserrors.ErrAlreadyExists, virtualPath, "already mounted")
	}
	delete(t.pending, virtualPath)
	t.order = append(t.order, virtualPath)
	t.active[virtualPath] = &entry{virtualPath: virtualPath, adapter: adapter, readOnly: readOnly, rootPath: adapter.RootPath()}
	return nil
}

// Unmount removes the adapter at virtualPath, leaving the mount-point
// directory itself untouched in the tree.
func (t *Table) Unmount(virtualPath string) error {
	if _, ok := t.active[virtualPath]; !ok {
		return vfserrors.New(vfserrors.ErrNotMounted, virtualPath, "not mounted")
	}
	delete(t.active, virtualPath)
	for i, p := range t.order {
		if p == virtualPath {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// RestorePending loads a persisted mount as pending, awaiting an adapter.
// It is surfaced via Pending until a matching Mount call activates it.
func (t *Table) RestorePending(virtualPath, rootPath string, readOnly bool) {
	t.pending[virtualPath] = &entry{virtualPath: virtualPath, rootPath: rootPath, readOnly: readOnly}
}

// Match picks the longest mount-point prefix P such that path == P or
// path starts with P + "/". It returns the matched entry's virtual path,
// adapter, read-only flag, the path relative to the mount point (with "/"
// for path == P), and whether a match was found.
func (t *Table) Match(path string) (virtualPath string, adapter DiskAdapter, readOnly bool, relative string, ok bool) {
	best := ""
	var bestEntry *entry
	for p, e := range t.active {
		if path == p || strings.HasPrefix(path, p+"/") {
			if len(p) > len(best) {
				best = p
				bestEntry = e
			}
		}
	}
	if bestEntry == nil {
		return "", nil, false, "", false
	}
	rel := strings.TrimPrefix(path, best)
	if rel == "" {
		rel = "/"
	}
	return best, bestEntry.adapter, bestEntry.readOnly, rel, true
}

// IsMountPoint reports whether path is exactly an active mount point's
// virtual path, for Find's subtree-skip rule.
func (t *Table) IsMountPoint(path string) bool {
	_, ok := t.active[path]
	return ok
}

// List returns active mounts in insertion order, followed by pending
// mounts in no defined order, for persistence and operational
// introspection.
func (t *Table) List() []types.MountInfo {
	out := make([]types.MountInfo, 0, len(t.order)+len(t.pending))
	for _, p := range t.order {
		e := t.active[p]
		out = append(out, types.MountInfo{VirtualPath: p, RootPath: e.rootPath, ReadOnly: e.readOnly, Pending: false})
	}
	for p, e := range t.pending {
		out = append(out, types.MountInfo{VirtualPath: p, RootPath: e.rootPath, ReadOnly: e.readOnly, Pending: true})
	}
	return out
}

// Pending returns the virtual paths of mounts restored from persistence
// that have not yet been reactivated with an adapter.
func (t *Table) Pending() []string {
	out := make([]string, 0, len(t.pending))
	for p := range t.pending {
		out = append(out, p)
	}
	return out
}
