package persistence

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// BlobStore is the key/value persistence seam PersistenceManager is built
// against. Append is optional: a backend without native append support
// (bbolt among them) simulates it as read-modify-write.
type BlobStore interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Append(key string, data []byte) error
	Close() error
}

var bucketName = []byte("vfscore")

// BoltBlobStore is a BlobStore backed by a single-bucket go.etcd.io/bbolt
// database file.
type BoltBlobStore struct {
	db *bbolt.DB
}

// OpenBoltBlobStore opens (creating if necessary) a bbolt-backed blob
// store at path.
func OpenBoltBlobStore(path string) (*BoltBlobStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening blob store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing blob store bucket: %w", err)
	}
	return &BoltBlobStore{db: db}, nil
}

// Read returns the bytes stored at key, and whether the key was present.
func (s *BoltBlobStore) Read(key string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			found = true
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// Write overwrites key with data.
func (s *BoltBlobStore) Write(key string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

// Delete removes key, if present.
func (s *BoltBlobStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// Append simulates append-in-place, since bbolt values have no native
// append operation: read the existing value, concatenate, write back,
// all inside one transaction so no other Append interleaves.
func (s *BoltBlobStore) Append(key string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		existing := b.Get([]byte(key))
		combined := make([]byte, 0, len(existing)+len(data))
		combined = append(combined, existing...)
		combined = append(combined, data...)
		return b.Put([]byte(key), combined)
	})
}

// Close releases the underlying database file.
func (s *BoltBlobStore) Close() error {
	return s.db.Close()
}
