// Package block implements sparse, fixed-size block storage for a single
// in-memory file's contents. Writes land on block boundaries so that a
// sparse file (one with holes) never materializes the skipped regions.
package block

// Size is the fixed block size in bytes used by every Storage instance.
const Size = 64 * 1024

// Storage holds a sparse, block-addressed byte stream. Blocks that were
// never written are implicit zero-filled holes and consume no memory.
type Storage struct {
	blocks map[int64][]byte // block index -> exactly Size bytes
	length int64            // logical length of the stream, including holes
}

// New returns an empty block storage.
func New() *Storage {
	return &Storage{blocks: make(map[int64][]byte)}
}

// Len returns the logical length of the stream.
func (s *Storage) Len() int64 {
	return s.length
}

// Truncate sets the logical length, dropping blocks entirely beyond it and
// zero-trimming the block straddling the new boundary.
func (s *Storage) Truncate(length int64) {
	if length < 0 {
		length = 0
	}
	if length >= s.length {
		s.length = length
		return
	}
	lastBlock := length / Size
	for idx := range s.blocks {
		switch {
		case idx > lastBlock:
			delete(s.blocks, idx)
		case idx == lastBlock:
			boundary := length % Size
			blk := s.blocks[idx]
			for i := boundary; i < int64(len(blk)); i++ {
				blk[i] = 0
			}
		}
	}
	s.length = length
}

// ReadAt copies into p the bytes at offset, returning the number of bytes
// actually copied. Reads past the logical length, or landing entirely in a
// hole, return zero-filled data up to the logical length.
func (s *Storage) ReadAt(p []byte, offset int64) int {
	if offset >= s.length || offset < 0 {
		return 0
	}
	end := offset + int64(len(p))
	if end > s.length {
		end = s.length
	}
	n := 0
	for cur := offset; cur < end; {
		blockIdx := cur / Size
		blockOff := cur % Size
		chunk := end - cur
		if remaining := Size - blockOff; chunk > remaining {
			chunk = remaining
		}
		if blk, ok := s.blocks[blockIdx]; ok {
			copy(p[n:n+int(chunk)], blk[blockOff:blockOff+chunk])
		}
		// else: hole, p is already zero-valued by the caller's allocation
		n += int(chunk)
		cur += chunk
	}
	return n
}

// WriteAt writes data at offset, allocating blocks and extending the
// logical length as needed. It returns the number of bytes written, which
// is always len(data).
func (s *Storage) WriteAt(data []byte, offset int64) int {
	if offset < 0 {
		return 0
	}
	end := offset + int64(len(data))
	written := 0
	for cur := offset; cur < end; {
		blockIdx := cur / Size
		blockOff := cur % Size
		chunk := end - cur
		if remaining := Size - blockOff; chunk > remaining {
			chunk = remaining
		}
		blk, ok := s.blocks[blockIdx]
		if !ok {
			blk = make([]byte, Size)
			s.blocks[blockIdx] = blk
		}
		copy(blk[blockOff:blockOff+chunk], data[written:written+int(chunk)])
		written += int(chunk)
		cur += chunk
	}
	if end > s.length {
		s.length = end
	}
	return written
}

// Bytes materializes the full logical stream, including holes as zero
// bytes. Intended for snapshotting and small files; callers needing to
// stream large sparse files should prefer ReadAt in a loop.
func (s *Storage) Bytes() []byte {
	out := make([]byte, s.length)
	for idx, blk := range s.blocks {
		start := idx * Size
		if start >= s.length {
			continue
		}
		end := start + Size
		if end > s.length {
			end = s.length
		}
		copy(out[start:end], blk[:end-start])
	}
	return out
}

// FromBytes builds a fully-materialized (hole-free) Storage from a flat
// byte slice, used when loading a snapshot that stored file contents as a
// contiguous blob.
func FromBytes(data []byte) *Storage {
	s := New()
	s.WriteAt(data, 0)
	return s
}

// BlockCount returns the number of allocated (non-hole) blocks.
func (s *Storage) BlockCount() int {
	return len(s.blocks)
}

// AllocatedBytes returns the number of bytes actually resident in memory,
// which can be smaller than Len() when the stream is sparse.
func (s *Storage) AllocatedBytes() int64 {
	return int64(len(s.blocks)) * Size
}
