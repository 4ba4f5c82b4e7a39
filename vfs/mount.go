package vfs

import (
	"context"

	"github.com/objectfs/vfscore/internal/adapter"
	"github.com/objectfs/vfscore/internal/mount"
	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// Mount attaches adapter at virtualPath. The mount-point directory is
// created in the memory tree if it doesn't already exist (so Stat/ReadDir
// on an ancestor sees it), the mount table entry is persisted immediately
// (not deferred to the next auto-snapshot, so a crash right after Mount
// doesn't forget it), and a watcher task is launched to bridge external
// changes under the mount into the event bus.
func (v *VirtualFileSystem) Mount(virtualPath string, adapter mount.DiskAdapter, readOnly bool) error {
	virtualPath = pathutil.Normalize(virtualPath)
	return v.withMetrics(types.OpMount, func() error {
		v.mu.Lock()
		v.ensureLoaded()

		v.tree.EnsureDirPath(virtualPath)
		if err := v.mounts.Mount(virtualPath, adapter, readOnly); err != nil {
			v.mu.Unlock()
			return err
		}
		v.invalidateSubtree(virtualPath)
		err := v.saveMountsLocked()
		v.mu.Unlock()
		if err != nil {
			return err
		}

		v.startWatcher(virtualPath, adapter)
		v.publish(virtualPath, types.EventCreated)
		return nil
	})
}

// Unmount detaches the adapter at virtualPath, stops its watcher task, and
// drops every cached entry under the mount point. The mount-point directory
// itself remains in the tree.
func (v *VirtualFileSystem) Unmount(virtualPath string) error {
	virtualPath = pathutil.Normalize(virtualPath)
	return v.withMetrics(types.OpUnmount, func() error {
		v.stopWatcher(virtualPath)

		v.mu.Lock()
		v.ensureLoaded()
		if err := v.mounts.Unmount(virtualPath); err != nil {
			v.mu.Unlock()
			return err
		}
		v.breakers.RemoveBreaker(virtualPath)
		v.invalidateSubtree(virtualPath)
		err := v.saveMountsLocked()
		v.mu.Unlock()
		if err != nil {
			return err
		}

		v.publish(virtualPath, types.EventDeleted)
		return nil
	})
}

// Mounts lists every active and pending mount, for operational
// introspection.
func (v *VirtualFileSystem) Mounts() []types.MountInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureLoaded()
	return v.mounts.List()
}

// Sync reconciles the facade's view of a mounted subtree with what is on
// disk right now: every cached entry under path is dropped, every file is
// re-read and snapshotted into its version history if its content changed,
// and a MODIFIED event is published for each changed file. It is the
// fallback reconciliation path for mounts whose backend could not be
// watched (and works just as well alongside a watcher, which can miss
// events during bursts).
func (v *VirtualFileSystem) Sync(path string) error {
	path = pathutil.Normalize(path)
	return v.withMetrics(types.OpReadDir, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		onMount, da, _, rel := v.routeLocked(path)
		if !onMount {
			return vfserrors.New(vfserrors.ErrNotMounted, path, "sync requires a mounted path")
		}

		v.invalidateSubtree(path)
		return v.breakers.Guard(v.mountKeyLocked(path), func() error {
			return v.syncScanLocked(da, path, rel)
		})
	})
}

// syncScanLocked walks rel's subtree on da, versioning and announcing each
// changed file under its virtual path. Caller must hold mu.
func (v *VirtualFileSystem) syncScanLocked(da mount.DiskAdapter, virtualPath, rel string) error {
	entries, err := da.List(rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childVirtual := pathutil.Join(virtualPath, e.Name)
		childRel := pathutil.Join(rel, e.Name)
		if e.Info.Type == types.NodeDirectory {
			if err := v.syncScanLocked(da, childVirtual, childRel); err != nil {
				return err
			}
			continue
		}
		data, err := da.ReadFile(childRel, 0, int(e.Info.Size))
		if err != nil {
			continue
		}
		if v.versions.SaveIfChanged(childVirtual, data, v.clock()) {
			v.publish(childVirtual, types.EventModified)
		}
	}
	return nil
}

// startWatcher launches a supervised goroutine translating adapter's host
// filesystem notifications into cache invalidation and bus events. A mount
// whose root can't be watched (a transient backend, say) runs without one:
// a NewWatcher failure is ignored, neither logged nor surfaced as a Mount
// error, since the mount itself succeeded and read-through access still
// works without it.
func (v *VirtualFileSystem) startWatcher(virtualPath string, da mount.DiskAdapter) {
	w, err := adapter.NewWatcher(da.RootPath())
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	v.watchers[virtualPath] = cancel
	v.mu.Unlock()

	v.wg.Add(1)
	go v.runWatcher(ctx, virtualPath, w)
}

func (v *VirtualFileSystem) runWatcher(ctx context.Context, virtualPath string, w *adapter.Watcher) {
	defer v.wg.Done()
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			v.handleWatchEvent(virtualPath, ev)
		}
	}
}

// handleWatchEvent reacts to an externally observed change under a mount:
// it invalidates the corresponding cache entries and republishes the event
// under its virtual path. A MODIFIED event additionally snapshots the
// adapter's current bytes into the version history before the next read
// picks up the new content, since a mounted file's version history can
// only be captured from outside (the facade never owns its bytes).
func (v *VirtualFileSystem) handleWatchEvent(virtualPath string, ev adapter.WatchEvent) {
	full := pathutil.Join(virtualPath, ev.RelPath)

	v.mu.Lock()
	v.invalidatePath(full)
	_, da, _, rel, ok := v.mounts.Match(full)
	v.mu.Unlock()

	if ev.Kind == types.EventModified && ok {
		if info, err := da.Stat(rel); err == nil && info.Type == types.NodeFile {
			if data, err := da.ReadFile(rel, 0, int(info.Size)); err == nil {
				v.versions.SaveIfChanged(full, data, v.clock())
			}
		}
	}

	v.publish(full, ev.Kind)
}

// stopWatcher cancels the watcher goroutine for virtualPath, if one is
// running. It does not wait for the goroutine to exit; Close waits for all
// of them together.
func (v *VirtualFileSystem) stopWatcher(virtualPath string) {
	v.mu.Lock()
	cancel, ok := v.watchers[virtualPath]
	if ok {
		delete(v.watchers, virtualPath)
	}
	v.mu.Unlock()
	if ok {
		cancel()
	}
}

// routeLocked reports whether path falls under an active mount, and if so
// the adapter, read-only flag, and mount-relative path fileops.go and
// recursive.go need to dispatch to the adapter. The circuit breaker key
// (the mount's own virtual path) comes from mountKeyLocked instead.
// Caller must already hold mu.
func (v *VirtualFileSystem) routeLocked(path string) (onMount bool, da mount.DiskAdapter, readOnly bool, rel string) {
	_, da, readOnly, rel, ok := v.mounts.Match(path)
	if !ok {
		return false, nil, false, ""
	}
	return true, da, readOnly, rel
}

// mountKeyLocked returns the breaker key for path: the virtual path of the
// mount covering it, or "" if path isn't mounted. Caller must hold mu.
func (v *VirtualFileSystem) mountKeyLocked(path string) string {
	vp, _, _, _, ok := v.mounts.Match(path)
	if !ok {
		return ""
	}
	return vp
}

// checkWritable returns PermissionDenied if path is routed to a read-only
// mount.
func checkWritable(path string, readOnly bool) error {
	if readOnly {
		return vfserrors.New(vfserrors.ErrPermissionDenied, path, "mount is read-only")
	}
	return nil
}
