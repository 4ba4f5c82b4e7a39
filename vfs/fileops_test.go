package vfs

import (
	"testing"

	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

func TestCreateFileWriteReadRoundTrip(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.WriteAt("/f", 0, []byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	data, err := v.ReadAt("/f", 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cde" {
		t.Fatalf("got %q, want %q", data, "cde")
	}
}

func TestDeleteLockedPathIsRejected(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/locked"); err != nil {
		t.Fatal(err)
	}
	h := v.Open("/locked")
	if err := h.TryLock(types.LockExclusive); err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := v.Delete("/locked"); errors.Code(err) != errors.ErrLocked {
		t.Fatalf("got %v, want ErrLocked", err)
	}
}

func TestTruncateGrowsAndShrinks(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.WriteAt("/f", 0, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := v.Truncate("/f", 5); err != nil {
		t.Fatal(err)
	}
	info, err := v.Stat("/f")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 5 {
		t.Fatalf("got size %d, want 5", info.Size)
	}
}

func TestStatCacheInvalidatedOnWrite(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Stat("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.WriteAt("/f", 0, []byte("xyz")); err != nil {
		t.Fatal(err)
	}
	info, err := v.Stat("/f")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 3 {
		t.Fatalf("stale cached stat: got size %d, want 3", info.Size)
	}
}

func TestXattrSetOverwriteRemove(t *testing.T) {
	v := newTestVFS(t)
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if err := v.SetXattr("/f", "user.note", []byte("first")); err != nil {
		t.Fatal(err)
	}
	val, err := v.GetXattr("/f", "user.note")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "first" {
		t.Fatalf("got %q", val)
	}

	if err := v.SetXattr("/f", "user.note", []byte("second")); err != nil {
		t.Fatal(err)
	}
	val, err = v.GetXattr("/f", "user.note")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "second" {
		t.Fatalf("overwrite failed: got %q", val)
	}

	names, err := v.ListXattr("/f")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "user.note" {
		t.Fatalf("got %v", names)
	}

	if err := v.RemoveXattr("/f", "user.note"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.GetXattr("/f", "user.note"); errors.Code(err) != errors.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound after remove", err)
	}
}

func TestQuotaExceeded(t *testing.T) {
	v := newTestVFS(t)
	v.cfg.Quota.QuotaBytes = 4
	if err := v.CreateFile("/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.WriteAt("/f", 0, []byte("12345")); errors.Code(err) != errors.ErrQuotaExceeded {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
}
