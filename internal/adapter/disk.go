// Package adapter provides the pass-through seam between a mounted
// virtual path and a real directory on the host filesystem, plus the
// fsnotify-backed watcher that bridges external changes back into the
// facade's event bus.
package adapter

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/xattr"

	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

const xattrPrefix = "user.vfscore."

// LocalDisk implements mount.DiskAdapter over a real directory on the host
// filesystem. It performs no caching or buffering of its own; every call
// is a direct syscall, exactly mirroring what the caller asked for.
type LocalDisk struct {
	root string
}

// NewLocalDisk opens root as a mount backend. root must already exist and
// be a directory.
func NewLocalDisk(root string) (*LocalDisk, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfserrors.New(vfserrors.ErrNotFound, root, "mount root does not exist")
		}
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, root, "statting mount root", err)
	}
	if !info.IsDir() {
		return nil, vfserrors.New(vfserrors.ErrNotDirectory, root, "mount root is not a directory")
	}
	return &LocalDisk{root: root}, nil
}

// RootPath returns the real directory this adapter is rooted at, for
// persisting the mount entry.
func (d *LocalDisk) RootPath() string { return d.root }

func (d *LocalDisk) resolve(rel string) string {
	clean := filepath.Clean("/" + rel)
	return filepath.Join(d.root, clean)
}

func (d *LocalDisk) CreateFile(rel string) error {
	f, err := os.OpenFile(d.resolve(rel), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return vfserrors.New(vfserrors.ErrAlreadyExists, rel, "already exists")
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "creating file", err)
	}
	return f.Close()
}

func (d *LocalDisk) CreateDir(rel string) error {
	if err := os.Mkdir(d.resolve(rel), 0o755); err != nil {
		if os.IsExist(err) {
			return vfserrors.New(vfserrors.ErrAlreadyExists, rel, "already exists")
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "creating directory", err)
	}
	return nil
}

func (d *LocalDisk) ReadFile(rel string, offset int64, length int) ([]byte, error) {
	f, err := os.Open(d.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "opening file", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "reading file", err)
	}
	return buf[:n], nil
}

func (d *LocalDisk) WriteFile(rel string, offset int64, data []byte) error {
	f, err := os.OpenFile(d.resolve(rel), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "opening file for write", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "writing file", err)
	}
	return nil
}

func (d *LocalDisk) Truncate(rel string, length int64) error {
	if err := os.Truncate(d.resolve(rel), length); err != nil {
		if os.IsNotExist(err) {
			return vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "truncating", err)
	}
	return nil
}

func (d *LocalDisk) Delete(rel string) error {
	if err := os.Remove(d.resolve(rel)); err != nil {
		if os.IsNotExist(err) {
			return vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "deleting", err)
	}
	return nil
}

func (d *LocalDisk) List(rel string) ([]types.DirEntry, error) {
	dirEntries, err := os.ReadDir(d.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "listing directory", err)
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	out := make([]types.DirEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, types.DirEntry{Name: e.Name(), Info: fileInfoFromOS(filepath.Join(rel, e.Name()), info)})
	}
	return out, nil
}

func (d *LocalDisk) Stat(rel string) (types.FileInfo, error) {
	info, err := os.Stat(d.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return types.FileInfo{}, vfserrors.New(vfserrors.ErrNotFound, rel, "not found")
		}
		return types.FileInfo{}, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "stat", err)
	}
	return fileInfoFromOS(rel, info), nil
}

func (d *LocalDisk) Exists(rel string) bool {
	_, err := os.Stat(d.resolve(rel))
	return err == nil
}

func fileInfoFromOS(path string, info os.FileInfo) types.FileInfo {
	nodeType := types.NodeFile
	if info.IsDir() {
		nodeType = types.NodeDirectory
	}
	mtime := info.ModTime().UnixMilli()
	return types.FileInfo{
		Path:        path,
		Type:        nodeType,
		Size:        info.Size(),
		CreatedAt:   mtime,
		ModifiedAt:  mtime,
		Permissions: permissionsFromMode(info.Mode()),
	}
}

func permissionsFromMode(mode os.FileMode) types.Permissions {
	var p types.Permissions
	if mode.Perm()&0o400 != 0 {
		p |= types.PermRead
	}
	if mode.Perm()&0o200 != 0 {
		p |= types.PermWrite
	}
	if mode.Perm()&0o100 != 0 {
		p |= types.PermExecute
	}
	return p
}

// GetXattr, SetXattr, RemoveXattr, and ListXattr give memory-path xattr
// semantics a mount-path counterpart, backed by the host
// filesystem's own extended attributes under a private namespace prefix.

func (d *LocalDisk) GetXattr(rel, name string) ([]byte, error) {
	v, err := xattr.LGet(d.resolve(rel), xattrPrefix+name)
	if err != nil {
		if isXattrNotFound(err) {
			return nil, vfserrors.New(vfserrors.ErrNotFound, rel, "xattr not set: "+name)
		}
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "reading xattr", err)
	}
	return v, nil
}

func (d *LocalDisk) SetXattr(rel, name string, value []byte) error {
	if err := xattr.LSet(d.resolve(rel), xattrPrefix+name, value); err != nil {
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "setting xattr", err)
	}
	return nil
}

func (d *LocalDisk) RemoveXattr(rel, name string) error {
	if err := xattr.LRemove(d.resolve(rel), xattrPrefix+name); err != nil {
		if isXattrNotFound(err) {
			return vfserrors.New(vfserrors.ErrNotFound, rel, "xattr not set: "+name)
		}
		return vfserrors.Wrap(vfserrors.ErrUnknown, rel, "removing xattr", err)
	}
	return nil
}

func (d *LocalDisk) ListXattr(rel string) ([]string, error) {
	names, err := xattr.LList(d.resolve(rel))
	if err != nil {
		return nil, vfserrors.Wrap(vfserrors.ErrUnknown, rel, "listing xattr", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, xattrPrefix) {
			out = append(out, strings.TrimPrefix(n, xattrPrefix))
		}
	}
	return out, nil
}

func isXattrNotFound(err error) bool {
	xerr, ok := err.(*xattr.Error)
	if !ok {
		return false
	}
	return xerr.Err == xattr.ENOATTR
}
