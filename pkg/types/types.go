// Package types holds the plain data-transfer types shared across vfscore's
// internal packages and its public facade.
package types

import "time"

// NodeType discriminates the three kinds of node the tree holds.
type NodeType uint8

const (
	NodeFile NodeType = iota
	NodeDirectory
	NodeSymlink
)

func (t NodeType) String() string {
	switch t {
	case NodeFile:
		return "file"
	case NodeDirectory:
		return "directory"
	case NodeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Permissions packs read/write/execute bits, single-user (no owner/group).
type Permissions uint8

const (
	PermRead Permissions = 1 << iota
	PermWrite
	PermExecute
)

// DefaultFilePermissions and DefaultDirPermissions mirror common POSIX
// defaults for newly created nodes.
const (
	DefaultFilePermissions = PermRead | PermWrite
	DefaultDirPermissions  = PermRead | PermWrite | PermExecute
)

// FileInfo is the metadata returned by Stat/Lstat.
type FileInfo struct {
	Path        string
	Type        NodeType
	Size        int64
	CreatedAt   int64 // epoch ms
	ModifiedAt  int64 // epoch ms
	Permissions Permissions
	Target      string // populated for symlinks
}

// DirEntry is a single entry returned by ReadDir, in tree insertion order.
type DirEntry struct {
	Name string
	Info FileInfo
}

// CacheStats reports point-in-time LRU cache counters.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Size        int
	Capacity    int
	HitRate     float64
}

// EventKind enumerates the kinds of filesystem change an EventBus delivers.
type EventKind uint8

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FsEvent is a single filesystem change notification.
type FsEvent struct {
	Path string
	Kind EventKind
}

// LockMode distinguishes shared and exclusive advisory locks.
type LockMode uint8

const (
	LockShared LockMode = iota
	LockExclusive
)

// Version is a single historical snapshot of a file's content.
type Version struct {
	ID          string
	TimestampMs int64
	Data        []byte
}

// TrashEntry is a single moved-to-trash node, possibly with its subtree.
type TrashEntry struct {
	ID          string
	OriginalPath string
	Type        NodeType
	DeletedAtMs int64
	Content     []byte
	Children    []TrashEntry
	IsMounted   bool
}

// MountInfo is the persisted (and listed) form of a mount entry.
type MountInfo struct {
	VirtualPath string
	RootPath    string
	ReadOnly    bool
	Pending     bool
}

// LoadResult is returned by the persistence load protocol; it never carries
// a fatal error, only advisory warnings about recovered/degraded state.
type LoadResult struct {
	RecoveryWarnings []string
}

// HealthReport summarizes facade-level health for operational visibility.
type HealthReport struct {
	CheckedAt      time.Time
	CoordinatorBusy bool
	Mounts         map[string]string // virtual path -> circuit breaker state
	CacheHitRate   float64
	OpenFileLocks  int
}

// OperationName enumerates the 14 operations tracked by MetricsCollector.
type OperationName string

const (
	OpRead             OperationName = "read"
	OpWrite            OperationName = "write"
	OpCreateFile       OperationName = "create_file"
	OpCreateDir        OperationName = "create_dir"
	OpCreateSymlink    OperationName = "create_symlink"
	OpDelete           OperationName = "delete"
	OpStat             OperationName = "stat"
	OpReadDir          OperationName = "read_dir"
	OpMove             OperationName = "move"
	OpCopy             OperationName = "copy"
	OpMount            OperationName = "mount"
	OpUnmount          OperationName = "unmount"
	OpLock             OperationName = "lock"
	OpXattr            OperationName = "xattr"
)

// AllOperations lists every tracked operation, for iteration over metrics.
var AllOperations = [...]OperationName{
	OpRead, OpWrite, OpCreateFile, OpCreateDir, OpCreateSymlink, OpDelete,
	OpStat, OpReadDir, OpMove, OpCopy, OpMount, OpUnmount, OpLock, OpXattr,
}

// ArchiveWriter is the seam a caller-supplied archive codec must satisfy to
// stream a subtree out of the filesystem. No implementation ships here:
// archive codecs are deliberately left to the caller; this interface
// only defines where one would plug in.
type ArchiveWriter interface {
	WriteEntry(info FileInfo, data []byte) error
	Close() error
}

// ArchiveReader is the dual of ArchiveWriter, for importing a subtree from
// an externally produced archive stream.
type ArchiveReader interface {
	// Next returns the next entry's metadata and content, or io.EOF when
	// the archive is exhausted.
	Next() (FileInfo, []byte, error)
}
