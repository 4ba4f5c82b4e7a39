// Package vfs is the library's public entry point: VirtualFileSystem
// coordinates the in-memory tree, the mount table, persistence, caches,
// advisory locks, versioning, and trash under one coarse coordinator lock,
// with one struct owning every subsystem behind a single Start/Close
// lifecycle.
package vfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/objectfs/vfscore/internal/cache"
	"github.com/objectfs/vfscore/internal/circuit"
	"github.com/objectfs/vfscore/internal/codec"
	"github.com/objectfs/vfscore/internal/config"
	"github.com/objectfs/vfscore/internal/events"
	"github.com/objectfs/vfscore/internal/lock"
	"github.com/objectfs/vfscore/internal/metrics"
	"github.com/objectfs/vfscore/internal/mount"
	"github.com/objectfs/vfscore/internal/persistence"
	"github.com/objectfs/vfscore/internal/trash"
	"github.com/objectfs/vfscore/internal/tree"
	"github.com/objectfs/vfscore/internal/version"
	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/retry"
	"github.com/objectfs/vfscore/pkg/types"
)

// Options configures a new VirtualFileSystem. Store is required; Config
// and Clock default to config.Default() and time.Now, respectively.
type Options struct {
	Config *config.Configuration
	Store  persistence.BlobStore
	// Clock returns the current time as epoch milliseconds. Tests may
	// supply a deterministic implementation.
	Clock func() int64
}

// VirtualFileSystem is the library's facade: every public operation
// normalizes its path, acquires the coordinator lock, consults the mount
// table, and routes to either the in-memory tree or a mounted disk
// adapter.
type VirtualFileSystem struct {
	// mu is the coordinator lock: one process-wide cooperative mutex
	// guarding the tree, mount table, persistence counters, version
	// manager, trash manager, and cache maps. The file-lock manager's
	// blocking Lock never takes it (see handle.go), so a blocked flock
	// waiter never holds up an unrelated operation on another path.
	mu sync.Mutex

	cfg   *config.Configuration
	clock func() int64

	tree        *tree.Tree
	mounts      *mount.Table
	persist     *persistence.Manager
	payloadCodec codec.PayloadCodec
	bus         *events.Bus
	metrics     *metrics.Collector
	statCache   *cache.LRU
	readdirCache *cache.LRU
	locks       *lock.Manager
	versions    *version.Manager
	trashStore  *trash.Manager
	breakers    *circuit.Manager

	loaded     bool
	loadResult types.LoadResult

	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup

	closed bool
}

// New constructs a VirtualFileSystem. The in-memory state is not loaded
// until the first public operation touches it (ensureLoaded).
func New(opts Options) (*VirtualFileSystem, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("vfs: Options.Store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vfs: invalid configuration: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}

	store := persistence.NewRetryingStore(opts.Store, retry.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	})

	payloadCodec := codec.ByEncoding(cfg.Persistence.Encoding)
	keys := persistence.Keys{
		Snapshot: cfg.Persistence.SnapshotKey,
		WAL:      cfg.Persistence.WALKey,
		Mounts:   cfg.Persistence.MountsKey,
		Versions: cfg.Persistence.VersionsKey,
		Trash:    cfg.Persistence.TrashKey,
	}

	metricsCollector, err := metrics.NewCollector(&metrics.Config{
		Enabled:        cfg.Metrics.Enabled,
		Port:           cfg.Metrics.Port,
		Path:           cfg.Metrics.Path,
		UpdateInterval: cfg.Metrics.UpdateInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("vfs: initializing metrics: %w", err)
	}

	v := &VirtualFileSystem{
		cfg:          cfg,
		clock:        clock,
		mounts:       mount.New(),
		persist:      persistence.NewManager(store, payloadCodec, keys, cfg.Persistence.AutoSnapshotEvery),
		payloadCodec: payloadCodec,
		bus:          events.New(),
		metrics:      metricsCollector,
		statCache:    cache.New(cfg.Cache.StatCacheEntries),
		readdirCache: cache.New(cfg.Cache.ReaddirCacheEntries),
		locks:        lock.New(),
		versions:     version.New(cfg.Version.MaxVersions),
		trashStore:   trash.New(cfg.Trash.MaxItems, int64(cfg.Trash.MaxBytes)),
		breakers:     circuit.NewManagerForMounts(cfg.CircuitBreaker),
		watchers:     make(map[string]context.CancelFunc),
	}
	return v, nil
}

// Start runs the tiered load/recovery protocol immediately (rather than
// waiting for the first operation to trigger it), launches the metrics
// exposition server if configured, and resumes a watcher task for every
// mount already active after recovery. Calling Start is optional: any
// public operation triggers ensureLoaded on its own, but a caller that
// wants recovery warnings and watcher supervision up front before serving
// traffic should call it once after New.
func (v *VirtualFileSystem) Start(ctx context.Context) error {
	v.mu.Lock()
	v.ensureLoaded()
	mounts := v.mounts.List()
	v.mu.Unlock()

	if err := v.metrics.Start(ctx); err != nil {
		return fmt.Errorf("vfs: starting metrics: %w", err)
	}

	for _, m := range mounts {
		if m.Pending {
			continue
		}
		v.mu.Lock()
		_, adapter, _, _, ok := v.mounts.Match(m.VirtualPath)
		v.mu.Unlock()
		if ok {
			v.startWatcher(m.VirtualPath, adapter)
		}
	}
	return nil
}

// ensureLoaded runs the tiered crash-recovery load protocol exactly once.
// Caller must hold mu.
func (v *VirtualFileSystem) ensureLoaded() {
	if v.loaded {
		return
	}
	v.loaded = true

	lr := v.persist.Load()
	v.loadResult.RecoveryWarnings = append(v.loadResult.RecoveryWarnings, lr.Warnings...)

	if lr.Snapshot != nil {
		v.tree = tree.LoadFromSnapshot(v.clock, lr.Snapshot)
	} else {
		v.tree = tree.New(v.clock)
	}

	// Versions and trash are loaded ahead of WAL replay because a
	// WALMoveToTrash/WALRestoreFromTrash record replayed below needs a
	// trash store that already reflects the state as of the last
	// snapshot; replaying into an empty trash store first and
	// overwriting it with the persisted one afterward would silently
	// discard those replayed entries.
	v.versions.LoadFromSnapshot(versionsToMap(lr.Versions))
	v.trashStore.LoadFromSnapshot(trashRecordsToEntries(lr.Trash))

	for _, e := range lr.WALEntries {
		v.replayWALEntry(e)
	}

	for _, m := range lr.Mounts {
		v.mounts.RestorePending(m.VirtualPath, m.RootPath, m.ReadOnly)
		v.tree.EnsureDirPath(m.VirtualPath)
	}
}

// replayWALEntry applies one WAL record during startup recovery. Every
// entry is idempotent: if its precondition no longer holds, it silently
// no-ops.
func (v *VirtualFileSystem) replayWALEntry(e codec.WALEntry) {
	switch e.Tag {
	case codec.WALMoveToTrash:
		v.replayMoveToTrash(e)
	case codec.WALRestoreFromTrash:
		v.replayRestoreFromTrash(e)
	default:
		_, _ = v.tree.ApplyWALEntry(e)
	}
}

func versionsToMap(entries []codec.VersionEntry) map[string][]types.Version {
	out := make(map[string][]types.Version, len(entries))
	for _, e := range entries {
		out[e.Path] = e.Entries
	}
	return out
}

func trashRecordsToEntries(records []codec.TrashRecord) []types.TrashEntry {
	out := make([]types.TrashEntry, len(records))
	for i, r := range records {
		out[i] = trashRecordToEntry(r)
	}
	return out
}

func trashRecordToEntry(r codec.TrashRecord) types.TrashEntry {
	e := types.TrashEntry{
		ID:           r.ID,
		OriginalPath: r.OriginalPath,
		Type:         r.Type,
		DeletedAtMs:  r.DeletedAtMs,
		Content:      r.Content,
		IsMounted:    r.IsMounted,
	}
	for _, c := range r.Children {
		e.Children = append(e.Children, trashRecordToEntry(c))
	}
	return e
}

func trashEntryToRecord(e types.TrashEntry) codec.TrashRecord {
	r := codec.TrashRecord{
		ID:           e.ID,
		OriginalPath: e.OriginalPath,
		Type:         e.Type,
		DeletedAtMs:  e.DeletedAtMs,
		HasContent:   len(e.Content) > 0 || e.Type == types.NodeDirectory,
		Content:      e.Content,
		IsMounted:    e.IsMounted,
	}
	for _, c := range e.Children {
		r.Children = append(r.Children, trashEntryToRecord(c))
	}
	return r
}

// LoadResult reports warnings accumulated during the tiered recovery
// protocol. It is only meaningful after the first operation has triggered
// ensureLoaded; calling it beforehand forces the load.
func (v *VirtualFileSystem) LoadResult() types.LoadResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	warnings := make([]string, len(v.loadResult.RecoveryWarnings))
	copy(warnings, v.loadResult.RecoveryWarnings)
	return types.LoadResult{RecoveryWarnings: warnings}
}

// Close cancels every supervised watcher task and shuts down the metrics
// exposition server. It does not close the underlying BlobStore, which the
// caller owns.
func (v *VirtualFileSystem) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	for path, cancel := range v.watchers {
		cancel()
		delete(v.watchers, path)
	}
	v.mu.Unlock()

	v.wg.Wait()
	return v.metrics.Stop(ctx)
}

// newHandleID generates a fresh file-handle identifier, used whenever a
// caller doesn't supply one of its own. A UUID rather than a
// process-lifetime atomic counter, so handles stay distinguishable even
// after state is persisted and reloaded across process restarts.
func newHandleID() string { return uuid.NewString() }

// withMetrics runs fn, recording its outcome and latency against op.
func (v *VirtualFileSystem) withMetrics(op types.OperationName, fn func() error) error {
	start := time.Now()
	err := fn()
	v.metrics.RecordOperation(op, time.Since(start), err == nil)
	return err
}

// invalidatePath drops P's cached stat entry plus the readdir caches of P
// and its parent; every write-type operation invalidates both the path it
// touched and the listing of the directory containing it.
func (v *VirtualFileSystem) invalidatePath(p string) {
	v.statCache.Remove(p)
	v.readdirCache.Remove(p)
	v.readdirCache.Remove(pathutil.Dir(p))
}

// invalidateSubtree drops every cache entry under and including P, used on
// unmount and recursive mutations.
func (v *VirtualFileSystem) invalidateSubtree(p string) {
	v.statCache.RemoveByPrefix(p)
	v.readdirCache.RemoveByPrefix(p)
	v.readdirCache.Remove(pathutil.Dir(p))
}

// Watch returns a subscription delivering change events for path and
// everything beneath it (an event path equal to path or starting with
// path + "/"; for "/" that matches only "/" itself, not its descendants).
// Each call gets an independent, bounded stream;
// events that arrive while the stream's buffer is full are dropped rather
// than blocking the operation that produced them. Callers should
// Unsubscribe when done.
func (v *VirtualFileSystem) Watch(path string) *events.Subscription {
	return v.bus.Subscribe(pathutil.Normalize(path))
}

// publish emits a filesystem change event after the mutation and WAL
// append it describes have both completed.
func (v *VirtualFileSystem) publish(path string, kind types.EventKind) {
	v.bus.Publish(types.FsEvent{Path: path, Kind: kind})
}

// appendWAL appends entry to the write-ahead log and triggers an
// auto-snapshot once enough operations have accrued. Snapshot failures are
// surfaced to the caller: a silent failure here would leave the WAL
// growing forever without ever truncating.
func (v *VirtualFileSystem) appendWAL(entry codec.WALEntry) error {
	if err := v.persist.AppendWAL(entry); err != nil {
		return vfserrors.Wrap(vfserrors.ErrUnknown, entry.Path, "appending WAL entry", err)
	}
	if v.persist.ShouldSnapshot() {
		return v.saveSnapshotLocked()
	}
	return nil
}

// saveSnapshotLocked persists the tree, versions, and trash, then clears
// the WAL. Caller must hold mu.
func (v *VirtualFileSystem) saveSnapshotLocked() error {
	snap := v.tree.Snapshot()

	versionEntries := make([]codec.VersionEntry, 0)
	for path, entries := range v.versions.Snapshot() {
		versionEntries = append(versionEntries, codec.VersionEntry{Path: path, Entries: entries})
	}

	trashEntries := v.trashStore.Snapshot()
	trashRecords := make([]codec.TrashRecord, len(trashEntries))
	for i, e := range trashEntries {
		trashRecords[i] = trashEntryToRecord(e)
	}

	if err := v.persist.SaveSnapshot(snap, versionEntries, trashRecords); err != nil {
		return vfserrors.Wrap(vfserrors.ErrUnknown, "", "saving snapshot", err)
	}
	return v.saveMountsLocked()
}

// saveMountsLocked persists the mount table. Called whenever the mount set
// changes and whenever a snapshot is taken, so mounts recover even if a
// crash lands between a mount/unmount and the next auto-snapshot.
func (v *VirtualFileSystem) saveMountsLocked() error {
	infos := v.mounts.List()
	records := make([]codec.MountRecord, len(infos))
	for i, m := range infos {
		records[i] = codec.MountRecord{VirtualPath: m.VirtualPath, RootPath: m.RootPath, ReadOnly: m.ReadOnly}
	}
	if err := v.persist.SaveMounts(records); err != nil {
		return vfserrors.Wrap(vfserrors.ErrUnknown, "", "saving mounts", err)
	}
	return nil
}

// checkQuota reports QuotaExceeded if writing extra additional bytes to a
// memory-resident file would push total usage beyond the configured quota.
// A negative QuotaBytes disables the check.
func (v *VirtualFileSystem) checkQuota(path string, extra int64) error {
	if v.cfg.Quota.QuotaBytes < 0 || extra <= 0 {
		return nil
	}
	if v.tree.TotalUsedBytes()+extra > int64(v.cfg.Quota.QuotaBytes) {
		return vfserrors.New(vfserrors.ErrQuotaExceeded, path, "writing would exceed the configured quota")
	}
	return nil
}

// CacheStats returns point-in-time counters of the stat and readdir
// caches, for callers that want raw numbers instead of the summarized
// HealthReport.
func (v *VirtualFileSystem) CacheStats() (stat, readdir types.CacheStats) {
	return v.statCache.Stats(), v.readdirCache.Stats()
}
