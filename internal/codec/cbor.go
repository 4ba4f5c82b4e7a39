package codec

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/objectfs/vfscore/pkg/errors"
)

// CBORCodec is the self-describing alternative payload encoding, useful
// for interoperability and ad-hoc inspection of persisted blobs. It
// reuses the exact struct shapes TLVCodec encodes field-by-field, letting
// both encodings round-trip through the same in-memory types.
type CBORCodec struct{}

func cborCorrupted(cause error) error {
	return errors.Wrap(errors.ErrCorruptedData, "", "malformed CBOR payload", cause).WithComponent("codec")
}

func (CBORCodec) EncodeSnapshot(root *SnapshotNode) ([]byte, error) {
	return cbor.Marshal(root)
}

func (CBORCodec) DecodeSnapshot(data []byte) (*SnapshotNode, error) {
	var n SnapshotNode
	if err := cbor.Unmarshal(data, &n); err != nil {
		return nil, cborCorrupted(err)
	}
	return &n, nil
}

func (CBORCodec) EncodeWALEntry(e WALEntry) ([]byte, error) {
	return cbor.Marshal(e)
}

func (CBORCodec) DecodeWALEntry(data []byte) (WALEntry, error) {
	var e WALEntry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return WALEntry{}, cborCorrupted(err)
	}
	return e, nil
}

func (CBORCodec) EncodeMounts(mounts []MountRecord) ([]byte, error) {
	return cbor.Marshal(mounts)
}

func (CBORCodec) DecodeMounts(data []byte) ([]MountRecord, error) {
	var m []MountRecord
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, cborCorrupted(err)
	}
	return m, nil
}

func (CBORCodec) EncodeVersions(versions []VersionEntry) ([]byte, error) {
	return cbor.Marshal(versions)
}

func (CBORCodec) DecodeVersions(data []byte) ([]VersionEntry, error) {
	var v []VersionEntry
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, cborCorrupted(err)
	}
	return v, nil
}

func (CBORCodec) EncodeTrash(entries []TrashRecord) ([]byte, error) {
	return cbor.Marshal(entries)
}

func (CBORCodec) DecodeTrash(data []byte) ([]TrashRecord, error) {
	var t []TrashRecord
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, cborCorrupted(err)
	}
	return t, nil
}
