package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

// TLVCodec is the compact, hand-rolled payload encoding: 1-byte type tags,
// VarInt (7-bit continuation) lengths, VarInt-prefixed UTF-8 strings and
// byte blobs, 8-byte big-endian integers, 1-byte booleans, and
// permissions/node-type packed into a single byte each.
type TLVCodec struct{}

func putVarInt(buf *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

func getVarInt(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("varint overflow")
		}
	}
	return result, nil
}

func putBytesField(buf *bytes.Buffer, b []byte) {
	putVarInt(buf, uint64(len(b)))
	buf.Write(b)
}

func getBytesField(r *bytes.Reader) ([]byte, error) {
	n, err := getVarInt(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func putString(buf *bytes.Buffer, s string) {
	putBytesField(buf, []byte(s))
}

func getString(r *bytes.Reader) (string, error) {
	b, err := getBytesField(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func putU64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func getU64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

func putBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func getBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func corrupted(cause error) error {
	return errors.Wrap(errors.ErrCorruptedData, "", "truncated or malformed TLV payload", cause).WithComponent("codec")
}

// --- SnapshotNode ---

func (TLVCodec) EncodeSnapshot(root *SnapshotNode) ([]byte, error) {
	var buf bytes.Buffer
	encodeSnapshotNode(&buf, root)
	return buf.Bytes(), nil
}

func encodeSnapshotNode(buf *bytes.Buffer, n *SnapshotNode) {
	buf.WriteByte(byte(n.Type))
	putString(buf, n.Name)
	putU64(buf, n.CreatedAt)
	putU64(buf, n.ModifiedAt)
	buf.WriteByte(byte(n.Permissions))

	putVarInt(buf, uint64(len(n.Xattrs)))
	for _, x := range n.Xattrs {
		putString(buf, x.Name)
		putBytesField(buf, x.Value)
	}

	switch n.Type {
	case types.NodeFile:
		putBytesField(buf, n.Content)
	case types.NodeDirectory:
		putVarInt(buf, uint64(len(n.Children)))
		for i := range n.Children {
			encodeSnapshotNode(buf, &n.Children[i])
		}
	case types.NodeSymlink:
		putString(buf, n.Target)
	}
}

func (TLVCodec) DecodeSnapshot(data []byte) (*SnapshotNode, error) {
	r := bytes.NewReader(data)
	n, err := decodeSnapshotNode(r)
	if err != nil {
		return nil, corrupted(err)
	}
	return n, nil
}

func decodeSnapshotNode(r *bytes.Reader) (*SnapshotNode, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	nodeType := types.NodeType(tagByte)
	if nodeType != types.NodeFile && nodeType != types.NodeDirectory && nodeType != types.NodeSymlink {
		return nil, fmt.Errorf("unknown node type tag %d", tagByte)
	}

	n := &SnapshotNode{Type: nodeType}
	if n.Name, err = getString(r); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = getU64(r); err != nil {
		return nil, err
	}
	if n.ModifiedAt, err = getU64(r); err != nil {
		return nil, err
	}
	permByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	n.Permissions = types.Permissions(permByte)

	xattrCount, err := getVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < xattrCount; i++ {
		name, err := getString(r)
		if err != nil {
			return nil, err
		}
		value, err := getBytesField(r)
		if err != nil {
			return nil, err
		}
		n.Xattrs = append(n.Xattrs, XattrPair{Name: name, Value: value})
	}

	switch nodeType {
	case types.NodeFile:
		if n.Content, err = getBytesField(r); err != nil {
			return nil, err
		}
	case types.NodeDirectory:
		childCount, err := getVarInt(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < childCount; i++ {
			child, err := decodeSnapshotNode(r)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, *child)
		}
	case types.NodeSymlink:
		if n.Target, err = getString(r); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// --- WALEntry ---

func (TLVCodec) EncodeWALEntry(e WALEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Tag))
	switch e.Tag {
	case WALCreateFile, WALCreateDir, WALDelete:
		putString(&buf, e.Path)
	case WALCreateSymlink:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
	case WALWrite:
		putString(&buf, e.Path)
		putU64(&buf, e.Offset)
		putBytesField(&buf, e.Data)
	case WALSetPermissions:
		putString(&buf, e.Path)
		buf.WriteByte(byte(e.Permissions))
	case WALSetXattr:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
		putBytesField(&buf, e.Data)
	case WALRemoveXattr:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
	case WALCopy, WALMove:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
	case WALMoveToTrash:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
	case WALRestoreFromTrash:
		putString(&buf, e.Path)
		putString(&buf, e.Path2)
	case WALTruncate:
		putString(&buf, e.Path)
		putU64(&buf, e.Offset)
	default:
		return nil, fmt.Errorf("unknown WAL tag %d", e.Tag)
	}
	return buf.Bytes(), nil
}

func (TLVCodec) DecodeWALEntry(data []byte) (WALEntry, error) {
	r := bytes.NewReader(data)
	tagByte, err := r.ReadByte()
	if err != nil {
		return WALEntry{}, corrupted(err)
	}
	e := WALEntry{Tag: WALTag(tagByte)}

	readStr := func() string {
		if err != nil {
			return ""
		}
		var s string
		s, err = getString(r)
		return s
	}

	switch e.Tag {
	case WALCreateFile, WALCreateDir, WALDelete:
		e.Path = readStr()
	case WALCreateSymlink, WALCopy, WALMove, WALMoveToTrash, WALRestoreFromTrash:
		e.Path = readStr()
		e.Path2 = readStr()
	case WALWrite:
		e.Path = readStr()
		if err == nil {
			e.Offset, err = getU64(r)
		}
		if err == nil {
			e.Data, err = getBytesField(r)
		}
	case WALSetPermissions:
		e.Path = readStr()
		if err == nil {
			var b byte
			b, err = r.ReadByte()
			e.Permissions = types.Permissions(b)
		}
	case WALSetXattr:
		e.Path = readStr()
		e.Path2 = readStr()
		if err == nil {
			e.Data, err = getBytesField(r)
		}
	case WALRemoveXattr:
		e.Path = readStr()
		e.Path2 = readStr()
	case WALTruncate:
		e.Path = readStr()
		if err == nil {
			e.Offset, err = getU64(r)
		}
	default:
		return WALEntry{}, corrupted(fmt.Errorf("unknown WAL tag %d", tagByte))
	}
	if err != nil {
		return WALEntry{}, corrupted(err)
	}
	return e, nil
}

// --- Mounts ---

func (TLVCodec) EncodeMounts(mounts []MountRecord) ([]byte, error) {
	var buf bytes.Buffer
	putVarInt(&buf, uint64(len(mounts)))
	for _, m := range mounts {
		putString(&buf, m.VirtualPath)
		putString(&buf, m.RootPath)
		putBool(&buf, m.ReadOnly)
	}
	return buf.Bytes(), nil
}

func (TLVCodec) DecodeMounts(data []byte) ([]MountRecord, error) {
	r := bytes.NewReader(data)
	count, err := getVarInt(r)
	if err != nil {
		return nil, corrupted(err)
	}
	out := make([]MountRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		var m MountRecord
		if m.VirtualPath, err = getString(r); err != nil {
			return nil, corrupted(err)
		}
		if m.RootPath, err = getString(r); err != nil {
			return nil, corrupted(err)
		}
		if m.ReadOnly, err = getBool(r); err != nil {
			return nil, corrupted(err)
		}
		out = append(out, m)
	}
	return out, nil
}

// --- Versions ---

func (TLVCodec) EncodeVersions(versions []VersionEntry) ([]byte, error) {
	var buf bytes.Buffer
	putVarInt(&buf, uint64(len(versions)))
	for _, ve := range versions {
		putString(&buf, ve.Path)
		putVarInt(&buf, uint64(len(ve.Entries)))
		for _, v := range ve.Entries {
			putString(&buf, v.ID)
			putU64(&buf, v.TimestampMs)
			putBytesField(&buf, v.Data)
		}
	}
	return buf.Bytes(), nil
}

func (TLVCodec) DecodeVersions(data []byte) ([]VersionEntry, error) {
	r := bytes.NewReader(data)
	count, err := getVarInt(r)
	if err != nil {
		return nil, corrupted(err)
	}
	out := make([]VersionEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var ve VersionEntry
		if ve.Path, err = getString(r); err != nil {
			return nil, corrupted(err)
		}
		vcount, err := getVarInt(r)
		if err != nil {
			return nil, corrupted(err)
		}
		for j := uint64(0); j < vcount; j++ {
			var v types.Version
			if v.ID, err = getString(r); err != nil {
				return nil, corrupted(err)
			}
			if v.TimestampMs, err = getU64(r); err != nil {
				return nil, corrupted(err)
			}
			if v.Data, err = getBytesField(r); err != nil {
				return nil, corrupted(err)
			}
			ve.Entries = append(ve.Entries, v)
		}
		out = append(out, ve)
	}
	return out, nil
}

// --- Trash ---

func (TLVCodec) EncodeTrash(entries []TrashRecord) ([]byte, error) {
	var buf bytes.Buffer
	encodeTrashList(&buf, entries)
	return buf.Bytes(), nil
}

func encodeTrashList(buf *bytes.Buffer, entries []TrashRecord) {
	putVarInt(buf, uint64(len(entries)))
	for _, e := range entries {
		encodeTrashRecord(buf, &e)
	}
}

func encodeTrashRecord(buf *bytes.Buffer, e *TrashRecord) {
	putString(buf, e.ID)
	putString(buf, e.OriginalPath)
	buf.WriteByte(byte(e.Type))
	putU64(buf, e.DeletedAtMs)
	putBool(buf, e.HasContent)
	if e.HasContent {
		putBytesField(buf, e.Content)
	}
	putBool(buf, e.IsMounted)
	encodeTrashList(buf, e.Children)
}

func (TLVCodec) DecodeTrash(data []byte) ([]TrashRecord, error) {
	r := bytes.NewReader(data)
	out, err := decodeTrashList(r)
	if err != nil {
		return nil, corrupted(err)
	}
	return out, nil
}

func decodeTrashList(r *bytes.Reader) ([]TrashRecord, error) {
	count, err := getVarInt(r)
	if err != nil {
		return nil, err
	}
	out := make([]TrashRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := decodeTrashRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func decodeTrashRecord(r *bytes.Reader) (*TrashRecord, error) {
	var e TrashRecord
	var err error
	if e.ID, err = getString(r); err != nil {
		return nil, err
	}
	if e.OriginalPath, err = getString(r); err != nil {
		return nil, err
	}
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.Type = types.NodeType(typeByte)
	if e.DeletedAtMs, err = getU64(r); err != nil {
		return nil, err
	}
	if e.HasContent, err = getBool(r); err != nil {
		return nil, err
	}
	if e.HasContent {
		if e.Content, err = getBytesField(r); err != nil {
			return nil, err
		}
	}
	if e.IsMounted, err = getBool(r); err != nil {
		return nil, err
	}
	if e.Children, err = decodeTrashList(r); err != nil {
		return nil, err
	}
	return &e, nil
}
