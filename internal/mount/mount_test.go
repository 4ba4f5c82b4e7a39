package mount

import (
	"testing"

	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

type fakeAdapter struct {
	root string
}

func (a *fakeAdapter) CreateFile(rel string) error                        { return nil }
func (a *fakeAdapter) CreateDir(rel string) error                         { return nil }
func (a *fakeAdapter) ReadFile(rel string, offset int64, n int) ([]byte, error) { return nil, nil }
func (a *fakeAdapter) WriteFile(rel string, offset int64, data []byte) error { return nil }
func (a *fakeAdapter) Delete(rel string) error                            { return nil }
func (a *fakeAdapter) Truncate(rel string, length int64) error            { return nil }
func (a *fakeAdapter) List(rel string) ([]types.DirEntry, error)          { return nil, nil }
func (a *fakeAdapter) Stat(rel string) (types.FileInfo, error)            { return types.FileInfo{}, nil }
func (a *fakeAdapter) Exists(rel string) bool                             { return false }
func (a *fakeAdapter) RootPath() string                                  { return a.root }
func (a *fakeAdapter) GetXattr(rel, name string) ([]byte, error)          { return nil, nil }
func (a *fakeAdapter) SetXattr(rel, name string, value []byte) error      { return nil }
func (a *fakeAdapter) RemoveXattr(rel, name string) error                 { return nil }
func (a *fakeAdapter) ListXattr(rel string) ([]string, error)             { return nil, nil }

func TestMountRejectsRoot(t *testing.T) {
	tbl := New()
	err := tbl.Mount("/", &fakeAdapter{}, false)
	if vfserrors.Code(err) != vfserrors.ErrInvalidPath {
		t.Fatalf("expected InvalidPath, got %v", err)
	}
}

func TestMountRejectsDuplicateActive(t *testing.T) {
	tbl := New()
	if err := tbl.Mount("/m", &fakeAdapter{root: "/disk"}, false); err != nil {
		t.Fatal(err)
	}
	err := tbl.Mount("/m", &fakeAdapter{root: "/disk2"}, false)
	if vfserrors.Code(err) != vfserrors.ErrAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestLongestPrefixMatch(t *testing.T) {
	tbl := New()
	tbl.Mount("/a", &fakeAdapter{root: "/disk-a"}, false)
	tbl.Mount("/a/b", &fakeAdapter{root: "/disk-ab"}, false)

	vp, _, _, rel, ok := tbl.Match("/a/b/c")
	if !ok || vp != "/a/b" || rel != "/c" {
		t.Fatalf("expected /a/b with rel /c, got vp=%q rel=%q ok=%v", vp, rel, ok)
	}

	vp, _, _, rel, ok = tbl.Match("/a/c")
	if !ok || vp != "/a" || rel != "/c" {
		t.Fatalf("expected /a with rel /c, got vp=%q rel=%q ok=%v", vp, rel, ok)
	}

	vp, _, _, rel, ok = tbl.Match("/a/b")
	if !ok || vp != "/a/b" || rel != "/" {
		t.Fatalf("expected /a/b with rel /, got vp=%q rel=%q ok=%v", vp, rel, ok)
	}

	_, _, _, _, ok = tbl.Match("/z")
	if ok {
		t.Fatal("expected no match for unrelated path")
	}
}

func TestUnmountRemovesAdapterNotMountPoint(t *testing.T) {
	tbl := New()
	tbl.Mount("/m", &fakeAdapter{root: "/disk"}, false)
	if err := tbl.Unmount("/m"); err != nil {
		t.Fatal(err)
	}
	if tbl.IsMountPoint("/m") {
		t.Fatal("expected /m to no longer be an active mount point")
	}
	if err := tbl.Unmount("/m"); vfserrors.Code(err) != vfserrors.ErrNotMounted {
		t.Fatalf("expected NotMounted on double unmount, got %v", err)
	}
}

func TestRestorePendingThenReactivate(t *testing.T) {
	tbl := New()
	tbl.RestorePending("/m", "/disk", true)

	pending := tbl.Pending()
	if len(pending) != 1 || pending[0] != "/m" {
		t.Fatalf("expected /m pending, got %v", pending)
	}
	if tbl.IsMountPoint("/m") {
		t.Fatal("pending mount must not be reported as an active mount point")
	}

	if err := tbl.Mount("/m", &fakeAdapter{root: "/disk"}, true); err != nil {
		t.Fatal(err)
	}
	if len(tbl.Pending()) != 0 {
		t.Fatal("expected pending entry cleared after reactivation")
	}
	if !tbl.IsMountPoint("/m") {
		t.Fatal("expected /m to be active after reactivation")
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	tbl := New()
	tbl.Mount("/b", &fakeAdapter{root: "/disk-b"}, false)
	tbl.Mount("/a", &fakeAdapter{root: "/disk-a"}, false)

	list := tbl.List()
	if len(list) != 2 || list[0].VirtualPath != "/b" || list[1].VirtualPath != "/a" {
		t.Fatalf("expected insertion order [/b /a], got %+v", list)
	}
}
