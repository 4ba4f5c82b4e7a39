package vfs

import (
	"testing"

	"github.com/objectfs/vfscore/pkg/errors"
)

func TestMoveToTrashThenRestore(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.WriteAt("/f", 0, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	id, err := v.MoveToTrash("/f")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Stat("/f"); errors.Code(err) != errors.ErrNotFound {
		t.Fatalf("expected /f gone after trashing, got %v", err)
	}

	if err := v.RestoreFromTrash(id, "/restored"); err != nil {
		t.Fatal(err)
	}
	data, err := v.ReadAt("/restored", 0, 32)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("got %q, want %q", data, "payload")
	}
}

func TestMoveToTrashPreservesSymlinkTarget(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateSymlink("/link", "/somewhere"); err != nil {
		t.Fatal(err)
	}

	id, err := v.MoveToTrash("/link")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.RestoreFromTrash(id, "/link2"); err != nil {
		t.Fatal(err)
	}
	info, err := v.Lstat("/link2")
	if err != nil {
		t.Fatal(err)
	}
	if info.Target != "/somewhere" {
		t.Fatalf("got target %q, want %q", info.Target, "/somewhere")
	}
}

func TestEmptyTrashDiscardsEntry(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	id, err := v.MoveToTrash("/f")
	if err != nil {
		t.Fatal(err)
	}
	if err := v.EmptyTrash(id); err != nil {
		t.Fatal(err)
	}
	if err := v.RestoreFromTrash(id, "/nope"); errors.Code(err) != errors.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound after emptying", err)
	}
}

func TestVersionHistoryCapsAndRestores(t *testing.T) {
	cfg := testConfig()
	cfg.Version.MaxVersions = 2
	v, err := New(Options{Config: cfg, Store: newMemStore(), Clock: testClock()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = v.Close(nil) })
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}

	contents := []string{"v1", "v2", "v3", "v4"}
	for _, c := range contents {
		if err := v.Truncate("/f", 0); err != nil {
			t.Fatal(err)
		}
		if _, err := v.WriteAt("/f", 0, []byte(c)); err != nil {
			t.Fatal(err)
		}
	}

	versions := v.ListVersions("/f")
	if len(versions) > 2 {
		t.Fatalf("expected at most 2 versions, got %d", len(versions))
	}

	oldest := versions[len(versions)-1]
	oldestContent, err := v.ReadVersion("/f", oldest.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.RestoreVersion("/f", oldest.ID); err != nil {
		t.Fatal(err)
	}
	data, err := v.ReadAt("/f", 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(oldestContent) {
		t.Fatalf("got %q after restore, want %q", data, oldestContent)
	}
}
