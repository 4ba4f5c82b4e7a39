package adapter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/objectfs/vfscore/pkg/types"
)

func TestWatcherObservesFileCreation(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.RelPath != "/f" {
			t.Fatalf("expected /f, got %s", ev.RelPath)
		}
		if ev.Kind != types.EventCreated && ev.Kind != types.EventModified {
			t.Fatalf("expected created or modified, got %v", ev.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestWatcherCloseStopsEvents(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	_, ok := <-w.Events()
	if ok {
		t.Fatal("expected events channel closed after Close")
	}
}
