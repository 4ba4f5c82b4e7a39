package vfs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/pathutil"
	"github.com/objectfs/vfscore/pkg/types"
)

// Health reports a point-in-time operational summary: whether the
// coordinator lock is contended, each mount's circuit breaker state, the
// blended stat/readdir cache hit rate, and the number of paths currently
// holding an advisory lock. The coordinator probe takes the lock only to
// check TryLock's result and releases it immediately, so sampling health
// never perturbs in-flight operations.
func (v *VirtualFileSystem) Health() types.HealthReport {
	busy := !v.mu.TryLock()
	if !busy {
		v.mu.Unlock()
	}

	breakers := v.breakers.GetAllBreakers()
	mounts := make(map[string]string, len(breakers))
	for name, b := range breakers {
		mounts[name] = b.GetState().String()
	}

	statStats := v.statCache.Stats()
	dirStats := v.readdirCache.Stats()
	totalHits := statStats.Hits + dirStats.Hits
	totalOps := totalHits + statStats.Misses + dirStats.Misses
	var hitRate float64
	if totalOps > 0 {
		hitRate = float64(totalHits) / float64(totalOps)
	}

	return types.HealthReport{
		CheckedAt:       time.Now(),
		CoordinatorBusy: busy,
		Mounts:          mounts,
		CacheHitRate:    hitRate,
		OpenFileLocks:   v.locks.Count(),
	}
}

// Checksum computes path's content digest using algo ("crc32" or "sha256").
// It reads the full content through the same routing ReadAt uses, so it
// works uniformly for memory-resident and mounted files.
func (v *VirtualFileSystem) Checksum(path, algo string) (string, error) {
	path = pathutil.Normalize(path)
	var sum string
	err := v.withMetrics(types.OpRead, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.ensureLoaded()

		loc := v.locate(path)
		content, err := loc.readAll()
		if err != nil {
			return err
		}

		switch algo {
		case "crc32":
			sum = fmt.Sprintf("%08x", crc32.ChecksumIEEE(content))
		case "sha256":
			digest := sha256.Sum256(content)
			sum = hex.EncodeToString(digest[:])
		default:
			return errors.New(errors.ErrInvalidPath, path, "unsupported checksum algorithm: "+algo)
		}
		return nil
	})
	return sum, err
}
