package version

import (
	"testing"

	"github.com/objectfs/vfscore/pkg/types"
)

func TestSaveSkipsEmptyData(t *testing.T) {
	m := New(10)
	m.Save("/f", nil, 1)
	if len(m.List("/f")) != 0 {
		t.Fatal("expected no version saved for empty data")
	}
}

func TestListNewestFirst(t *testing.T) {
	m := New(10)
	m.Save("/v.txt", []byte("v1"), 1)
	m.Save("/v.txt", []byte("v2"), 2)
	m.Save("/v.txt", []byte("v3"), 3)

	versions := m.List("/v.txt")
	if len(versions) != 3 {
		t.Fatalf("len = %d, want 3", len(versions))
	}
	if string(versions[0].Data) != "v3" || string(versions[2].Data) != "v1" {
		t.Fatalf("unexpected order: %+v", versions)
	}
}

func TestCapEvictsOldest(t *testing.T) {
	m := New(2)
	m.Save("/f", []byte("v1"), 1)
	m.Save("/f", []byte("v2"), 2)
	m.Save("/f", []byte("v3"), 3)

	versions := m.List("/f")
	if len(versions) != 2 {
		t.Fatalf("len = %d, want 2", len(versions))
	}
	if string(versions[0].Data) != "v3" || string(versions[1].Data) != "v2" {
		t.Fatalf("unexpected entries after cap eviction: %+v", versions)
	}
}

func TestSaveIfChangedSkipsIdenticalContent(t *testing.T) {
	m := New(10)
	m.Save("/f", []byte("same"), 1)
	m.SaveIfChanged("/f", []byte("same"), 2)
	if len(m.List("/f")) != 1 {
		t.Fatalf("expected no-op write to skip save, got %d versions", len(m.List("/f")))
	}

	m.SaveIfChanged("/f", []byte("different"), 3)
	if len(m.List("/f")) != 2 {
		t.Fatalf("expected changed content to save, got %d versions", len(m.List("/f")))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m := New(10)
	m.Save("/v.txt", []byte("v1"), 1)
	m.Save("/v.txt", []byte("v2"), 2)
	v1ID := m.List("/v.txt")[1].ID

	data, ok := m.Restore("/v.txt", v1ID, []byte("v3"), 3)
	if !ok {
		t.Fatal("expected restore to find v1")
	}
	if string(data) != "v1" {
		t.Fatalf("restored data = %q, want v1", data)
	}

	// The restored entry is consumed; the pre-restore content takes its
	// place as the newest version.
	versions := m.List("/v.txt")
	if len(versions) != 2 || string(versions[0].Data) != "v3" || string(versions[1].Data) != "v2" {
		t.Fatalf("expected [v3 v2] after restore, got %+v", versions)
	}
}

func TestRestoreUnknownIDFails(t *testing.T) {
	m := New(10)
	m.Save("/f", []byte("v1"), 1)
	if _, ok := m.Restore("/f", "nope", []byte("v2"), 2); ok {
		t.Fatal("expected restore of unknown id to fail")
	}
}

func TestMoveTransfersHistory(t *testing.T) {
	m := New(10)
	m.Save("/src", []byte("v1"), 1)
	m.Move("/src", "/dst")

	if len(m.List("/src")) != 0 {
		t.Fatal("expected src history cleared")
	}
	if len(m.List("/dst")) != 1 {
		t.Fatal("expected dst to inherit history")
	}
}

func TestRemoveClearsHistory(t *testing.T) {
	m := New(10)
	m.Save("/f", []byte("v1"), 1)
	m.Remove("/f")
	if len(m.List("/f")) != 0 {
		t.Fatal("expected history removed")
	}
}

func TestLoadFromSnapshotReconstructsCounter(t *testing.T) {
	m := New(10)
	m.LoadFromSnapshot(map[string][]types.Version{
		"/f": {{ID: "v5", TimestampMs: 1, Data: []byte("old")}},
	})

	m.Save("/f", []byte("new"), 2)
	versions := m.List("/f")
	if versions[0].ID != "v6" {
		t.Fatalf("expected fresh id v6, got %s", versions[0].ID)
	}
}
