// Package vfsnode defines the in-memory namespace node: a tagged union of
// File, Directory, and Symlink sharing common metadata and extended
// attributes. Directories preserve child insertion order for deterministic
// listing.
package vfsnode

import (
	"github.com/objectfs/vfscore/internal/block"
	"github.com/objectfs/vfscore/pkg/types"
)

// Node is a tagged-union namespace entry. Exactly one of the type-specific
// fields (content, children, target) is meaningful, selected by Type.
type Node struct {
	Name        string
	Type        types.NodeType
	CreatedAt   int64 // epoch ms
	ModifiedAt  int64 // epoch ms
	Permissions types.Permissions
	Xattrs      *Xattrs

	// File
	Content *block.Storage

	// Directory
	Children *ChildMap

	// Symlink
	Target string
}

// NewFile returns a new, empty file node.
func NewFile(name string, now int64) *Node {
	return &Node{
		Name:        name,
		Type:        types.NodeFile,
		CreatedAt:   now,
		ModifiedAt:  now,
		Permissions: types.DefaultFilePermissions,
		Xattrs:      NewXattrs(),
		Content:     block.New(),
	}
}

// NewDirectory returns a new, empty directory node.
func NewDirectory(name string, now int64) *Node {
	return &Node{
		Name:        name,
		Type:        types.NodeDirectory,
		CreatedAt:   now,
		ModifiedAt:  now,
		Permissions: types.DefaultDirPermissions,
		Xattrs:      NewXattrs(),
		Children:    NewChildMap(),
	}
}

// NewSymlink returns a new symlink node pointing at target. The target is
// stored verbatim, not resolved.
func NewSymlink(name, target string, now int64) *Node {
	return &Node{
		Name:        name,
		Type:        types.NodeSymlink,
		CreatedAt:   now,
		ModifiedAt:  now,
		Permissions: types.DefaultFilePermissions,
		Xattrs:      NewXattrs(),
		Target:      target,
	}
}

// Size returns the logical content size: file length, 0 for directories,
// and 0 for symlinks (their "size" is conventionally the target length,
// but stat reports that separately via Target).
func (n *Node) Size() int64 {
	if n.Type == types.NodeFile {
		return n.Content.Len()
	}
	return 0
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n.Type == types.NodeDirectory }

// IsSymlink reports whether n is a symlink.
func (n *Node) IsSymlink() bool { return n.Type == types.NodeSymlink }

// IsFile reports whether n is a regular file.
func (n *Node) IsFile() bool { return n.Type == types.NodeFile }

// Info produces the public FileInfo snapshot for this node at the given
// virtual path.
func (n *Node) Info(path string) types.FileInfo {
	return types.FileInfo{
		Path:        path,
		Type:        n.Type,
		Size:        n.Size(),
		CreatedAt:   n.CreatedAt,
		ModifiedAt:  n.ModifiedAt,
		Permissions: n.Permissions,
		Target:      n.Target,
	}
}

// Xattrs is an insertion-ordered name -> bytes map.
type Xattrs struct {
	keys   []string
	values map[string][]byte
}

// NewXattrs returns an empty extended-attribute set.
func NewXattrs() *Xattrs {
	return &Xattrs{values: make(map[string][]byte)}
}

// Get returns the value for name and whether it was present.
func (x *Xattrs) Get(name string) ([]byte, bool) {
	v, ok := x.values[name]
	return v, ok
}

// Set inserts or overwrites name, preserving original insertion position on
// overwrite.
func (x *Xattrs) Set(name string, value []byte) {
	if _, exists := x.values[name]; !exists {
		x.keys = append(x.keys, name)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	x.values[name] = cp
}

// Remove deletes name, reporting whether it was present.
func (x *Xattrs) Remove(name string) bool {
	if _, ok := x.values[name]; !ok {
		return false
	}
	delete(x.values, name)
	for i, k := range x.keys {
		if k == name {
			x.keys = append(x.keys[:i], x.keys[i+1:]...)
			break
		}
	}
	return true
}

// List returns attribute names in insertion order.
func (x *Xattrs) List() []string {
	out := make([]string, len(x.keys))
	copy(out, x.keys)
	return out
}

// ChildMap is an insertion-ordered name -> *Node map used by directories.
type ChildMap struct {
	order []string
	nodes map[string]*Node
}

// NewChildMap returns an empty child map.
func NewChildMap() *ChildMap {
	return &ChildMap{nodes: make(map[string]*Node)}
}

// Get returns the child named name and whether it exists.
func (c *ChildMap) Get(name string) (*Node, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

// Put stores n under name. A new name is appended to insertion order; an
// existing name has its node replaced in place and keeps its position.
func (c *ChildMap) Put(name string, n *Node) {
	if _, exists := c.nodes[name]; !exists {
		c.order = append(c.order, name)
	}
	c.nodes[name] = n
}

// Remove deletes the named child, reporting whether it existed.
func (c *ChildMap) Remove(name string) bool {
	if _, ok := c.nodes[name]; !ok {
		return false
	}
	delete(c.nodes, name)
	for i, k := range c.order {
		if k == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of children.
func (c *ChildMap) Len() int { return len(c.order) }

// Names returns child names in insertion order.
func (c *ChildMap) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Each calls fn for every child in insertion order.
func (c *ChildMap) Each(fn func(name string, n *Node)) {
	for _, name := range c.order {
		fn(name, c.nodes[name])
	}
}
