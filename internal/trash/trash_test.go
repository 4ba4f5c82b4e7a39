package trash

import (
	"testing"

	"github.com/objectfs/vfscore/pkg/types"
)

func TestMoveToTrashNewestFirst(t *testing.T) {
	m := New(10, 1024)
	m.MoveToTrash("/a", types.NodeFile, []byte("a"), nil, 1)
	m.MoveToTrash("/b", types.NodeFile, []byte("b"), nil, 2)

	list := m.List()
	if len(list) != 2 || list[0].OriginalPath != "/b" || list[1].OriginalPath != "/a" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestEvictsOldestWhenOverItemCount(t *testing.T) {
	m := New(2, 1024)
	m.MoveToTrash("/a", types.NodeFile, []byte("a"), nil, 1)
	m.MoveToTrash("/b", types.NodeFile, []byte("b"), nil, 2)
	m.MoveToTrash("/c", types.NodeFile, []byte("c"), nil, 3)

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].OriginalPath != "/c" || list[1].OriginalPath != "/b" {
		t.Fatalf("expected /c, /b to survive eviction, got %+v", list)
	}
}

func TestEvictsOldestWhenOverByteBudget(t *testing.T) {
	m := New(100, 5)
	m.MoveToTrash("/a", types.NodeFile, []byte("aaa"), nil, 1)
	m.MoveToTrash("/b", types.NodeFile, []byte("bbb"), nil, 2)

	items, bytes := m.Stats()
	if bytes > 5 {
		t.Fatalf("total bytes = %d, want <= 5", bytes)
	}
	if items != 1 {
		t.Fatalf("items = %d, want 1 after byte-budget eviction", items)
	}
}

func TestRecordMountedTrashStoresMetadataOnly(t *testing.T) {
	m := New(10, 1024)
	e := m.RecordMountedTrash("/mnt/f", types.NodeFile, 1)
	if !e.IsMounted {
		t.Fatal("expected IsMounted true")
	}
	if len(e.Content) != 0 {
		t.Fatal("expected no content recorded for a mounted node")
	}
	items, bytes := m.Stats()
	if items != 1 || bytes != 0 {
		t.Fatalf("stats = (%d, %d), want (1, 0)", items, bytes)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	m := New(10, 1024)
	e := m.MoveToTrash("/a", types.NodeFile, []byte("a"), nil, 1)

	got, ok := m.Remove(e.ID)
	if !ok || got.OriginalPath != "/a" {
		t.Fatalf("Remove() = (%+v, %v)", got, ok)
	}
	if len(m.List()) != 0 {
		t.Fatal("expected trash empty after remove")
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	m := New(10, 1024)
	if _, ok := m.Get("nope"); ok {
		t.Fatal("expected Get of unknown id to fail")
	}
}

func TestLoadFromSnapshotReconstructsCounterAndBytes(t *testing.T) {
	m := New(10, 1024)
	m.LoadFromSnapshot([]types.TrashEntry{
		{ID: "trash_7", OriginalPath: "/a", Content: []byte("abcd"), Children: []types.TrashEntry{
			{ID: "trash_3", OriginalPath: "/a/child", Content: []byte("xy")},
		}},
	})

	items, bytes := m.Stats()
	if items != 1 {
		t.Fatalf("items = %d, want 1", items)
	}
	if bytes != 6 {
		t.Fatalf("bytes = %d, want 6 (4 + 2, nested child included)", bytes)
	}

	e := m.MoveToTrash("/b", types.NodeFile, []byte("z"), nil, 1)
	if e.ID != "trash_8" {
		t.Fatalf("expected fresh id trash_8, got %s", e.ID)
	}
}
