// Package version keeps a bounded per-path history of prior file content,
// structurally parallel to internal/trash:
// both are short mutex-guarded maps of insertion-ordered, capacity-evicted
// slices, the same shape internal/cache/lru.go uses for its eviction list
// but without the promote-on-read behavior a cache needs.
package version

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/objectfs/vfscore/pkg/types"
)

// Manager tracks every path's version history, capped at maxVersions
// entries (newest first). All methods are safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	maxVersions int
	history     map[string][]types.Version
	nextID      int64
}

// New creates a Manager bounding each path's history at maxVersions.
func New(maxVersions int) *Manager {
	if maxVersions <= 0 {
		maxVersions = 1
	}
	return &Manager{maxVersions: maxVersions, history: make(map[string][]types.Version)}
}

// Save prepends a copy of data as a new version of path, stamped at
// timestampMs, unless data is empty. The history is trimmed to
// maxVersions after insertion, dropping the oldest entries.
func (m *Manager) Save(path string, data []byte, timestampMs int64) {
	if len(data) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	v := types.Version{ID: m.allocID(), TimestampMs: timestampMs, Data: cp}

	versions := append([]types.Version{v}, m.history[path]...)
	if len(versions) > m.maxVersions {
		versions = versions[:m.maxVersions]
	}
	m.history[path] = versions
}

// SaveIfChanged skips the save when data is empty or byte-identical to the
// most recent version, so an in-place no-op write does not grow the
// history. It reports whether a new version was actually recorded, which
// doubles as change detection for sync scans.
func (m *Manager) SaveIfChanged(path string, data []byte, timestampMs int64) bool {
	if len(data) == 0 {
		return false
	}
	m.mu.Lock()
	if versions := m.history[path]; len(versions) > 0 && bytes.Equal(versions[0].Data, data) {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	m.Save(path, data, timestampMs)
	return true
}

// Version ids are "v<N>" with N globally monotonic across all paths, so a
// restored history and freshly saved versions can never collide.
func (m *Manager) allocID() string {
	m.nextID++
	return "v" + strconv.FormatInt(m.nextID, 10)
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, "v"), 10, 64)
	return n, err == nil
}

// List returns path's versions, newest first. The returned slice is a
// copy; callers may not mutate it.
func (m *Manager) List(path string) []types.Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.history[path]
	out := make([]types.Version, len(versions))
	copy(out, versions)
	return out
}

// Read returns a copy of the version identified by id, or false if no
// such version exists for path.
func (m *Manager) Read(path, id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.history[path] {
		if v.ID == id {
			cp := make([]byte, len(v.Data))
			copy(cp, v.Data)
			return cp, true
		}
	}
	return nil, false
}

// Restore consumes the version identified by id: its entry is removed
// from the history, currentContent is saved as a new version (so the
// content being replaced is not lost), and the historical bytes are
// returned for the caller to write back. It returns false if id does not
// exist.
func (m *Manager) Restore(path, id string, currentContent []byte, timestampMs int64) ([]byte, bool) {
	m.mu.Lock()
	var data []byte
	versions := m.history[path]
	for i, v := range versions {
		if v.ID == id {
			data = make([]byte, len(v.Data))
			copy(data, v.Data)
			m.history[path] = append(versions[:i], versions[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	if data == nil {
		return nil, false
	}
	m.Save(path, currentContent, timestampMs)
	return data, true
}

// Move transfers src's version history to dst, as part of a rename.
func (m *Manager) Move(src, dst string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if versions, ok := m.history[src]; ok {
		m.history[dst] = versions
		delete(m.history, src)
	}
}

// Remove discards every version of path.
func (m *Manager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, path)
}

// Snapshot returns every path's history for persistence, in no particular
// key order.
func (m *Manager) Snapshot() map[string][]types.Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]types.Version, len(m.history))
	for path, versions := range m.history {
		cp := make([]types.Version, len(versions))
		copy(cp, versions)
		out[path] = cp
	}
	return out
}

// LoadFromSnapshot replaces the in-memory history wholesale (used when
// restoring from persistence) and reconstructs the id counter to be
// strictly greater than the maximum observed id, so freshly saved
// versions never collide with a recovered one.
func (m *Manager) LoadFromSnapshot(history map[string][]types.Version) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = make(map[string][]types.Version, len(history))
	var maxID int64
	for path, versions := range history {
		cp := make([]types.Version, len(versions))
		copy(cp, versions)
		m.history[path] = cp
		for _, v := range versions {
			if id, ok := parseID(v.ID); ok && id > maxID {
				maxID = id
			}
		}
	}
	m.nextID = maxID
}
