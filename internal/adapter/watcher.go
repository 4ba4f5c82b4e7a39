package adapter

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/objectfs/vfscore/pkg/types"
)

// WatchEvent is a single external change observed under a watcher's root,
// with a path relative to that root. The facade translates RelPath into a
// virtual path (by prefixing the mount's virtual path) before publishing
// it to the event bus.
type WatchEvent struct {
	RelPath string
	Kind    types.EventKind
}

// Watcher bridges host filesystem notifications under root into a bounded
// channel of WatchEvent. It is the watch capability a mounted LocalDisk
// optionally exposes; failures here never crash the facade, they log and
// the watcher exits, leaving sync as the fallback reconciliation path.
type Watcher struct {
	root   string
	fsw    *fsnotify.Watcher
	events chan WatchEvent
	done   chan struct{}
}

// NewWatcher starts watching root and its subdirectories for changes.
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, fsw: fsw, events: make(chan WatchEvent, 256), done: make(chan struct{})}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Events returns the watcher's event stream. The channel is closed when
// the watcher stops, whether via Close or an unrecoverable internal error.
func (w *Watcher) Events() <-chan WatchEvent { return w.events }

// Close stops the watcher and releases its OS-level resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("adapter: watcher error under %s: %v", w.root, err)
			return
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	kind, ok := translateOp(ev.Op)
	if !ok {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = "/" + filepath.ToSlash(rel)

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
		}
	}

	select {
	case w.events <- WatchEvent{RelPath: rel, Kind: kind}:
	default:
		log.Printf("adapter: dropping watch event for %s, subscriber is full", rel)
	}
}

func translateOp(op fsnotify.Op) (types.EventKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return types.EventCreated, true
	case op&fsnotify.Write != 0:
		return types.EventModified, true
	case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
		return types.EventDeleted, true
	default:
		return 0, false
	}
}
