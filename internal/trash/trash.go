// Package trash implements a bounded trash store: entries accumulate until
// either the item count or total byte size exceeds a configured limit,
// at which point the oldest entries are evicted. Structurally parallel to
// internal/version's capped, insertion-ordered history.
package trash

import (
	"strconv"
	"strings"
	"sync"

	"github.com/objectfs/vfscore/pkg/types"
)

// Manager tracks trashed nodes, newest first, bounded by count and total
// bytes. All methods are safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	maxItems   int
	maxBytes   int64
	entries    []types.TrashEntry
	totalBytes int64
	nextID     int64
}

// New creates a Manager bounded at maxItems entries and maxBytes total
// content size.
func New(maxItems int, maxBytes int64) *Manager {
	if maxItems <= 0 {
		maxItems = 1
	}
	if maxBytes <= 0 {
		maxBytes = 1
	}
	return &Manager{maxItems: maxItems, maxBytes: maxBytes}
}

// Trash ids are "trash_<N>" with N strictly increasing, reconstructed past
// the maximum observed id when loading persisted entries.
func (m *Manager) allocID() string {
	m.nextID++
	return "trash_" + strconv.FormatInt(m.nextID, 10)
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, "trash_"), 10, 64)
	return n, err == nil
}

func contentSize(e types.TrashEntry) int64 {
	total := int64(len(e.Content))
	for _, c := range e.Children {
		total += contentSize(c)
	}
	return total
}

// MoveToTrash allocates a fresh id for a node being deleted from the
// memory tree, prepends it to the trash list, and trims the oldest
// entries while the store is over either bound. content and children are
// set only for in-memory nodes; a mounted node's bytes stay on disk.
func (m *Manager) MoveToTrash(originalPath string, nodeType types.NodeType, content []byte, children []types.TrashEntry, deletedAtMs int64) types.TrashEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := types.TrashEntry{
		ID:           m.allocID(),
		OriginalPath: originalPath,
		Type:         nodeType,
		DeletedAtMs:  deletedAtMs,
		Content:      content,
		Children:     children,
	}
	m.insert(e)
	return e
}

// RecordMountedTrash records metadata only for a node deleted from a
// mounted adapter's subtree: the adapter, not this store, holds the bytes.
func (m *Manager) RecordMountedTrash(originalPath string, nodeType types.NodeType, deletedAtMs int64) types.TrashEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := types.TrashEntry{
		ID:           m.allocID(),
		OriginalPath: originalPath,
		Type:         nodeType,
		DeletedAtMs:  deletedAtMs,
		IsMounted:    true,
	}
	m.insert(e)
	return e
}

// insert prepends e and evicts the oldest entries until both bounds are
// satisfied. Caller must hold m.mu.
func (m *Manager) insert(e types.TrashEntry) {
	m.entries = append([]types.TrashEntry{e}, m.entries...)
	m.totalBytes += contentSize(e)

	for len(m.entries) > m.maxItems || m.totalBytes > m.maxBytes {
		last := len(m.entries) - 1
		if last < 0 {
			break
		}
		m.totalBytes -= contentSize(m.entries[last])
		m.entries = m.entries[:last]
	}
}

// List returns every trash entry, newest first. The returned slice is a
// copy; callers may not mutate it.
func (m *Manager) List() []types.TrashEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.TrashEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns the entry identified by id, or false if it is not present
// (already evicted, or never existed).
func (m *Manager) Get(id string) (types.TrashEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == id {
			return e, true
		}
	}
	return types.TrashEntry{}, false
}

// Remove deletes the entry identified by id, for a caller restoring it
// from trash back into the tree.
func (m *Manager) Remove(id string) (types.TrashEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.ID == id {
			m.totalBytes -= contentSize(e)
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return e, true
		}
	}
	return types.TrashEntry{}, false
}

// InsertForReplay inserts e verbatim, preserving its ID, rather than
// allocating a fresh one. Used only when replaying a persisted trash
// operation during crash recovery, where the entry already carries the ID
// it was assigned at the time of the original operation.
func (m *Manager) InsertForReplay(e types.TrashEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insert(e)
	if id, ok := parseID(e.ID); ok && id > m.nextID {
		m.nextID = id
	}
}

// Stats reports the current item count and total byte size.
func (m *Manager) Stats() (items int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), m.totalBytes
}

// Snapshot returns every entry for persistence, newest first.
func (m *Manager) Snapshot() []types.TrashEntry {
	return m.List()
}

// LoadFromSnapshot replaces the in-memory trash list wholesale and
// reconstructs the id counter to be strictly greater than the maximum
// observed id across the whole tree, including nested children.
func (m *Manager) LoadFromSnapshot(entries []types.TrashEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make([]types.TrashEntry, len(entries))
	copy(m.entries, entries)

	m.totalBytes = 0
	var maxID int64
	var walk func(e types.TrashEntry)
	walk = func(e types.TrashEntry) {
		m.totalBytes += int64(len(e.Content))
		if id, ok := parseID(e.ID); ok && id > maxID {
			maxID = id
		}
		for _, c := range e.Children {
			walk(c)
		}
	}
	for _, e := range m.entries {
		walk(e)
	}
	m.nextID = maxID
}
