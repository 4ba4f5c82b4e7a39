// Package tree implements the in-memory namespace: node creation/deletion,
// symlink-aware path resolution, content I/O, extended attributes, and the
// recursive traversal used by search and quota accounting. It is entirely
// unsynchronized; the facade is responsible for serializing access under
// its coordinator lock.
package tree

import (
	"strings"

	"github.com/objectfs/vfscore/internal/vfsnode"
	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// maxSymlinkDepth bounds symlink-chain resolution; exceeding it is
// surfaced as NotFound, the same as a genuinely missing path.
const maxSymlinkDepth = 40

// Clock returns the current time as epoch milliseconds. Tests supply a
// deterministic implementation; production wires time.Now.
type Clock func() int64

// Tree holds the namespace rooted at "/".
type Tree struct {
	root *vfsnode.Node
	now  Clock
}

// New returns an empty tree containing only the root directory.
func New(now Clock) *Tree {
	return &Tree{
		root: vfsnode.NewDirectory("", now()),
		now:  now,
	}
}

// Root exposes the root node, chiefly for the persistence codec's snapshot
// walk.
func (t *Tree) Root() *vfsnode.Node { return t.root }

// lookup resolves path from the root, following every intermediate
// symlink and the final segment's symlink iff followLast is set. depth
// accumulates across recursive symlink follows so chains spanning several
// lookup calls still respect the shared cap.
func (t *Tree) lookup(path string, followLast bool, depth *int) (*vfsnode.Node, error) {
	norm := pathutil.Normalize(path)
	if norm == pathutil.Root {
		return t.root, nil
	}

	segments := strings.Split(strings.TrimPrefix(norm, "/"), "/")
	cur := t.root
	for i, seg := range segments {
		if !cur.IsDir() {
			return nil, errors.New(errors.ErrNotDirectory, path, "not a directory").WithOperation("resolve")
		}
		child, ok := cur.Children.Get(seg)
		if !ok {
			return nil, errors.New(errors.ErrNotFound, path, "no such file or directory").WithOperation("resolve")
		}

		isLast := i == len(segments)-1
		if child.IsSymlink() && (!isLast || followLast) {
			*depth++
			if *depth > maxSymlinkDepth {
				return nil, errors.New(errors.ErrNotFound, path, "too many levels of symbolic links").WithOperation("resolve")
			}
			parentPath := "/" + strings.Join(segments[:i], "/")
			targetPath := child.Target
			if !strings.HasPrefix(targetPath, "/") {
				targetPath = pathutil.Join(parentPath, targetPath)
			}
			resolved, err := t.lookup(targetPath, true, depth)
			if err != nil {
				return nil, err
			}
			cur = resolved
			continue
		}
		cur = child
	}
	return cur, nil
}

// Resolve walks path, following symlinks per followLast, and returns the
// terminal node.
func (t *Tree) Resolve(path string, followLast bool) (*vfsnode.Node, error) {
	depth := 0
	return t.lookup(path, followLast, &depth)
}

func (t *Tree) resolveParent(path string) (*vfsnode.Node, string, error) {
	dir, name := pathutil.Split(path)
	if name == "" {
		return nil, "", errors.New(errors.ErrInvalidPath, path, "cannot operate on the root directory").WithOperation("resolveParent")
	}
	depth := 0
	parent, err := t.lookup(dir, true, &depth)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", errors.New(errors.ErrNotDirectory, dir, "parent is not a directory").WithOperation("resolveParent")
	}
	return parent, name, nil
}

// requireWritable gates structural mutation of a directory's child set on
// its write permission bit.
func requireWritable(parent *vfsnode.Node, path, op string) error {
	if parent.Permissions&types.PermWrite == 0 {
		return errors.New(errors.ErrPermissionDenied, path, "parent directory is not writable").WithOperation(op)
	}
	return nil
}

// CreateFile creates an empty file at path. The parent must already exist
// as a directory and name must not already be taken.
func (t *Tree) CreateFile(path string) (*vfsnode.Node, error) {
	parent, name, err := t.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if err := requireWritable(parent, path, "createFile"); err != nil {
		return nil, err
	}
	if _, exists := parent.Children.Get(name); exists {
		return nil, errors.New(errors.ErrAlreadyExists, path, "already exists").WithOperation("createFile")
	}
	node := vfsnode.NewFile(name, t.now())
	parent.Children.Put(name, node)
	parent.ModifiedAt = t.now()
	return node, nil
}

// CreateDir creates an empty directory at path.
func (t *Tree) CreateDir(path string) (*vfsnode.Node, error) {
	parent, name, err := t.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if err := requireWritable(parent, path, "createDir"); err != nil {
		return nil, err
	}
	if _, exists := parent.Children.Get(name); exists {
		return nil, errors.New(errors.ErrAlreadyExists, path, "already exists").WithOperation("createDir")
	}
	node := vfsnode.NewDirectory(name, t.now())
	parent.Children.Put(name, node)
	parent.ModifiedAt = t.now()
	return node, nil
}

// CreateSymlink creates a symlink at path pointing at target. target is
// stored verbatim, not resolved or validated.
func (t *Tree) CreateSymlink(path, target string) (*vfsnode.Node, error) {
	parent, name, err := t.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if err := requireWritable(parent, path, "createSymlink"); err != nil {
		return nil, err
	}
	if _, exists := parent.Children.Get(name); exists {
		return nil, errors.New(errors.ErrAlreadyExists, path, "already exists").WithOperation("createSymlink")
	}
	node := vfsnode.NewSymlink(name, target, t.now())
	parent.Children.Put(name, node)
	parent.ModifiedAt = t.now()
	return node, nil
}

// EnsureDirPath creates every missing intermediate directory along path,
// used to anchor mount points. Existing directories are left untouched;
// an existing non-directory along the path is an error.
func (t *Tree) EnsureDirPath(path string) error {
	norm := pathutil.Normalize(path)
	if norm == pathutil.Root {
		return nil
	}
	segments := strings.Split(strings.TrimPrefix(norm, "/"), "/")
	cur := t.root
	built := ""
	for _, seg := range segments {
		built = built + "/" + seg
		child, ok := cur.Children.Get(seg)
		if !ok {
			child = vfsnode.NewDirectory(seg, t.now())
			cur.Children.Put(seg, child)
			cur.ModifiedAt = t.now()
		} else if !child.IsDir() {
			return errors.New(errors.ErrNotDirectory, built, "exists and is not a directory").WithOperation("ensureDirPath")
		}
		cur = child
	}
	return nil
}

// Delete removes the node at path. The root can never be deleted;
// non-empty directories return NotEmpty.
func (t *Tree) Delete(path string) (*vfsnode.Node, error) {
	norm := pathutil.Normalize(path)
	if norm == pathutil.Root {
		return nil, errors.New(errors.ErrPermissionDenied, path, "cannot delete the root directory").WithOperation("delete")
	}
	parent, name, err := t.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if err := requireWritable(parent, path, "delete"); err != nil {
		return nil, err
	}
	child, exists := parent.Children.Get(name)
	if !exists {
		return nil, errors.New(errors.ErrNotFound, path, "no such file or directory").WithOperation("delete")
	}
	if child.IsDir() && child.Children.Len() > 0 {
		return nil, errors.New(errors.ErrNotEmpty, path, "directory not empty").WithOperation("delete")
	}
	parent.Children.Remove(name)
	parent.ModifiedAt = t.now()
	return child, nil
}

// Stat resolves path following a trailing symlink, returning its metadata.
func (t *Tree) Stat(path string) (types.FileInfo, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return types.FileInfo{}, err
	}
	return node.Info(pathutil.Normalize(path)), nil
}

// Lstat resolves path without following a trailing symlink.
func (t *Tree) Lstat(path string) (types.FileInfo, error) {
	node, err := t.Resolve(path, false)
	if err != nil {
		return types.FileInfo{}, err
	}
	return node.Info(pathutil.Normalize(path)), nil
}

// ReadDir lists the children of the directory at path, in insertion order.
func (t *Tree) ReadDir(path string) ([]types.DirEntry, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, errors.New(errors.ErrNotDirectory, path, "not a directory").WithOperation("readDir")
	}
	base := pathutil.Normalize(path)
	entries := make([]types.DirEntry, 0, node.Children.Len())
	node.Children.Each(func(name string, n *vfsnode.Node) {
		entries = append(entries, types.DirEntry{
			Name: name,
			Info: n.Info(pathutil.Join(base, name)),
		})
	})
	return entries, nil
}

// ReadAt reads up to length bytes at offset from the file at path.
func (t *Tree) ReadAt(path string, offset int64, length int) ([]byte, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return nil, err
	}
	if !node.IsFile() {
		return nil, errors.New(errors.ErrNotFile, path, "not a file").WithOperation("read")
	}
	if offset < 0 {
		return nil, errors.New(errors.ErrInvalidPath, path, "negative offset").WithOperation("read")
	}
	if node.Permissions&types.PermRead == 0 {
		return nil, errors.New(errors.ErrPermissionDenied, path, "read denied").WithOperation("read")
	}
	remaining := node.Content.Len() - offset
	if remaining < 0 {
		remaining = 0
	}
	if int64(length) > remaining {
		length = int(remaining)
	}
	buf := make([]byte, length)
	n := node.Content.ReadAt(buf, offset)
	return buf[:n], nil
}

// WriteAt writes data at offset into the file at path, growing it as
// needed, and returns the number of bytes written.
func (t *Tree) WriteAt(path string, offset int64, data []byte) (int, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return 0, err
	}
	if !node.IsFile() {
		return 0, errors.New(errors.ErrNotFile, path, "not a file").WithOperation("write")
	}
	if offset < 0 {
		return 0, errors.New(errors.ErrInvalidPath, path, "negative offset").WithOperation("write")
	}
	if node.Permissions&types.PermWrite == 0 {
		return 0, errors.New(errors.ErrPermissionDenied, path, "write denied").WithOperation("write")
	}
	n := node.Content.WriteAt(data, offset)
	node.ModifiedAt = t.now()
	return n, nil
}

// Truncate sets the file at path to the given length.
func (t *Tree) Truncate(path string, length int64) error {
	node, err := t.Resolve(path, true)
	if err != nil {
		return err
	}
	if !node.IsFile() {
		return errors.New(errors.ErrNotFile, path, "not a file").WithOperation("truncate")
	}
	node.Content.Truncate(length)
	node.ModifiedAt = t.now()
	return nil
}

// SetPermissions overwrites the permission bits of the node at path.
func (t *Tree) SetPermissions(path string, perms types.Permissions) error {
	node, err := t.Resolve(path, true)
	if err != nil {
		return err
	}
	node.Permissions = perms
	node.ModifiedAt = t.now()
	return nil
}

// GetXattr returns the value of name on the node at path.
func (t *Tree) GetXattr(path, name string) ([]byte, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return nil, err
	}
	v, ok := node.Xattrs.Get(name)
	if !ok {
		return nil, errors.New(errors.ErrNotFound, path, "no such attribute: "+name).WithOperation("getXattr")
	}
	return v, nil
}

// SetXattr sets name to value on the node at path.
func (t *Tree) SetXattr(path, name string, value []byte) error {
	node, err := t.Resolve(path, true)
	if err != nil {
		return err
	}
	node.Xattrs.Set(name, value)
	node.ModifiedAt = t.now()
	return nil
}

// RemoveXattr removes name from the node at path.
func (t *Tree) RemoveXattr(path, name string) error {
	node, err := t.Resolve(path, true)
	if err != nil {
		return err
	}
	if !node.Xattrs.Remove(name) {
		return errors.New(errors.ErrNotFound, path, "no such attribute: "+name).WithOperation("removeXattr")
	}
	node.ModifiedAt = t.now()
	return nil
}

// ListXattr returns the attribute names set on the node at path, in
// insertion order.
func (t *Tree) ListXattr(path string) ([]string, error) {
	node, err := t.Resolve(path, true)
	if err != nil {
		return nil, err
	}
	return node.Xattrs.List(), nil
}

// TotalUsedBytes sums the logical size of every file in the tree, used for
// quota enforcement.
func (t *Tree) TotalUsedBytes() int64 {
	var total int64
	var walk func(n *vfsnode.Node)
	walk = func(n *vfsnode.Node) {
		switch {
		case n.IsFile():
			total += n.Size()
		case n.IsDir():
			n.Children.Each(func(_ string, child *vfsnode.Node) { walk(child) })
		}
	}
	walk(t.root)
	return total
}

// Move detaches the node at src and reattaches it at dst, renaming it in
// the process. The destination's parent must exist; dst must not already
// exist.
func (t *Tree) Move(src, dst string) error {
	srcParent, srcName, err := t.resolveParent(src)
	if err != nil {
		return err
	}
	node, exists := srcParent.Children.Get(srcName)
	if !exists {
		return errors.New(errors.ErrNotFound, src, "no such file or directory").WithOperation("move")
	}
	dstParent, dstName, err := t.resolveParent(dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children.Get(dstName); exists {
		return errors.New(errors.ErrAlreadyExists, dst, "already exists").WithOperation("move")
	}
	srcParent.Children.Remove(srcName)
	node.Name = dstName
	node.ModifiedAt = t.now()
	dstParent.Children.Put(dstName, node)
	srcParent.ModifiedAt = t.now()
	dstParent.ModifiedAt = t.now()
	return nil
}

// Copy deep-copies the subtree rooted at src to dst. The destination's
// parent must exist; dst must not already exist.
func (t *Tree) Copy(src, dst string) error {
	node, err := t.Resolve(src, false)
	if err != nil {
		return err
	}
	dstParent, dstName, err := t.resolveParent(dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children.Get(dstName); exists {
		return errors.New(errors.ErrAlreadyExists, dst, "already exists").WithOperation("copy")
	}
	clone := t.deepCopy(node, dstName)
	dstParent.Children.Put(dstName, clone)
	dstParent.ModifiedAt = t.now()
	return nil
}

func (t *Tree) deepCopy(n *vfsnode.Node, newName string) *vfsnode.Node {
	now := t.now()
	switch n.Type {
	case types.NodeDirectory:
		dir := vfsnode.NewDirectory(newName, now)
		n.Children.Each(func(name string, child *vfsnode.Node) {
			dir.Children.Put(name, t.deepCopy(child, name))
		})
		return dir
	case types.NodeSymlink:
		return vfsnode.NewSymlink(newName, n.Target, now)
	default:
		f := vfsnode.NewFile(newName, now)
		buf := n.Content.Bytes()
		f.Content.WriteAt(buf, 0)
		return f
	}
}

// FindMatch is a single result from Find.
type FindMatch struct {
	Path string
	Node *vfsnode.Node
}

// Find walks the subtree rooted at root up to maxDepth (negative means
// unlimited), never descending into a path for which isMountPoint reports
// true, and collects every node for which predicate returns true.
func (t *Tree) Find(root string, maxDepth int, isMountPoint func(path string) bool, predicate func(path string, n *vfsnode.Node) bool) ([]FindMatch, error) {
	node, err := t.Resolve(root, true)
	if err != nil {
		return nil, err
	}
	var out []FindMatch
	var walk func(path string, n *vfsnode.Node, depth int)
	walk = func(path string, n *vfsnode.Node, depth int) {
		if predicate(path, n) {
			out = append(out, FindMatch{Path: path, Node: n})
		}
		if !n.IsDir() {
			return
		}
		if maxDepth >= 0 && depth >= maxDepth {
			return
		}
		n.Children.Each(func(name string, child *vfsnode.Node) {
			childPath := pathutil.Join(path, name)
			if isMountPoint != nil && isMountPoint(childPath) {
				return
			}
			walk(childPath, child, depth+1)
		})
	}
	walk(pathutil.Normalize(root), node, 0)
	return out, nil
}
