// Package codec implements the persisted-blob wire format: CRC32 framing
// (single-object blobs and the WAL's concatenated records) plus two
// interchangeable payload encodings, a compact hand-rolled TLV and a
// self-describing CBOR alternative, selected by configuration.
package codec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

// crcTable is the standard IEEE/0xEDB88320 polynomial table used for every
// framed blob.
var crcTable = crc32.IEEETable

// FrameBlob wraps a single-object payload (snapshot, mounts, versions,
// trash) with a leading big-endian CRC32.
func FrameBlob(payload []byte) []byte {
	crc := crc32.Checksum(payload, crcTable)
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], crc)
	copy(out[4:], payload)
	return out
}

// UnframeBlob validates and strips a single-object blob's CRC header.
func UnframeBlob(blob []byte) ([]byte, error) {
	if len(blob) < 4 {
		return nil, errors.New(errors.ErrCorruptedData, "", "blob shorter than CRC header").WithComponent("codec")
	}
	crc := binary.BigEndian.Uint32(blob[:4])
	payload := blob[4:]
	if crc32.Checksum(payload, crcTable) != crc {
		return nil, errors.New(errors.ErrCorruptedData, "", "CRC mismatch").WithComponent("codec")
	}
	return payload, nil
}

// AppendWALRecord appends one CRC-framed, length-prefixed record to an
// existing WAL blob (which may be nil/empty).
func AppendWALRecord(log []byte, payload []byte) []byte {
	crc := crc32.Checksum(payload, crcTable)
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], crc)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	out := make([]byte, 0, len(log)+len(header)+len(payload))
	out = append(out, log...)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// IterateWALRecords decodes every well-formed record from the front of a
// WAL blob. The first truncated or CRC-mismatched record silently
// terminates iteration: everything decoded before it is still returned,
// nothing decoded after it is.
func IterateWALRecords(log []byte) [][]byte {
	var out [][]byte
	offset := 0
	for offset+8 <= len(log) {
		crc := binary.BigEndian.Uint32(log[offset : offset+4])
		length := binary.BigEndian.Uint32(log[offset+4 : offset+8])
		start := offset + 8
		end := start + int(length)
		if end > len(log) || end < start {
			break
		}
		payload := log[start:end]
		if crc32.Checksum(payload, crcTable) != crc {
			break
		}
		out = append(out, payload)
		offset = end
	}
	return out
}

// SnapshotNode is the serializable mirror of an internal/vfsnode.Node,
// used both as the TLV tree shape and as the CBOR struct tag target.
type SnapshotNode struct {
	Name        string        `cbor:"name"`
	Type        types.NodeType `cbor:"type"`
	CreatedAt   int64         `cbor:"created_at"`
	ModifiedAt  int64         `cbor:"modified_at"`
	Permissions types.Permissions `cbor:"permissions"`
	Xattrs      []XattrPair   `cbor:"xattrs,omitempty"`
	Content     []byte        `cbor:"content,omitempty"`
	Children    []SnapshotNode `cbor:"children,omitempty"`
	Target      string        `cbor:"target,omitempty"`
}

// XattrPair preserves insertion order across serialization, which a plain
// map cannot.
type XattrPair struct {
	Name  string `cbor:"name"`
	Value []byte `cbor:"value"`
}

// WALTag is the fixed 1-byte discriminant for each WAL entry kind.
type WALTag uint8

const (
	WALCreateFile WALTag = iota
	WALCreateDir
	WALCreateSymlink
	WALDelete
	WALWrite
	WALSetPermissions
	WALSetXattr
	WALRemoveXattr
	WALCopy
	WALMove
	WALMoveToTrash
	WALRestoreFromTrash
	WALTruncate
)

// WALEntry is a single self-contained, idempotent mutation record. Not
// every field is meaningful for every Tag; see the per-tag comments.
type WALEntry struct {
	Tag WALTag `cbor:"tag"`

	// Path is the primary operand: the path for single-path ops, the
	// source for Copy/Move, and the trash id for RestoreFromTrash.
	Path string `cbor:"path,omitempty"`
	// Path2 is the secondary operand: the symlink target, the xattr
	// name, the Copy/Move destination, the trash id for MoveToTrash, or
	// the destination path for RestoreFromTrash.
	Path2 string `cbor:"path2,omitempty"`

	Offset      int64             `cbor:"offset,omitempty"`
	Data        []byte            `cbor:"data,omitempty"`
	Permissions types.Permissions `cbor:"permissions,omitempty"`
}

// MountRecord is the persisted form of a mount table entry.
type MountRecord struct {
	VirtualPath string `cbor:"virtual_path"`
	RootPath    string `cbor:"root_path"`
	ReadOnly    bool   `cbor:"read_only"`
}

// VersionEntry is the persisted version history of one path: every
// historical snapshot of its content that the version manager holds.
type VersionEntry struct {
	Path    string          `cbor:"path"`
	Entries []types.Version `cbor:"entries"`
}

// TrashRecord is the persisted form of a trash entry.
type TrashRecord struct {
	ID           string         `cbor:"id"`
	OriginalPath string         `cbor:"original_path"`
	Type         types.NodeType `cbor:"type"`
	DeletedAtMs  int64          `cbor:"deleted_at_ms"`
	HasContent   bool           `cbor:"has_content"`
	Content      []byte         `cbor:"content,omitempty"`
	Children     []TrashRecord  `cbor:"children,omitempty"`
	IsMounted    bool           `cbor:"is_mounted"`
}

// PayloadCodec encodes and decodes the four persisted object shapes plus
// individual WAL entries, independent of the CRC framing layer above.
type PayloadCodec interface {
	EncodeSnapshot(root *SnapshotNode) ([]byte, error)
	DecodeSnapshot(data []byte) (*SnapshotNode, error)

	EncodeWALEntry(e WALEntry) ([]byte, error)
	DecodeWALEntry(data []byte) (WALEntry, error)

	EncodeMounts(mounts []MountRecord) ([]byte, error)
	DecodeMounts(data []byte) ([]MountRecord, error)

	EncodeVersions(versions []VersionEntry) ([]byte, error)
	DecodeVersions(data []byte) ([]VersionEntry, error)

	EncodeTrash(entries []TrashRecord) ([]byte, error)
	DecodeTrash(data []byte) ([]TrashRecord, error)
}

// ByEncoding returns the PayloadCodec named by a configuration string
// ("tlv" or "cbor"); unrecognized names fall back to TLV.
func ByEncoding(name string) PayloadCodec {
	if name == "cbor" {
		return CBORCodec{}
	}
	return TLVCodec{}
}
