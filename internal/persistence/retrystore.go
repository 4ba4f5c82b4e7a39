package persistence

import (
	"github.com/objectfs/vfscore/pkg/retry"
)

// RetryingStore decorates a BlobStore with bounded exponential-backoff
// retry of transient failures. Structured filesystem errors carry their
// own retryability; raw backend errors (a bbolt file briefly locked by
// another handle, say) are treated as transient.
type RetryingStore struct {
	inner   BlobStore
	retryer *retry.Retryer
}

// NewRetryingStore wraps inner so every operation is retried per cfg.
func NewRetryingStore(inner BlobStore, cfg retry.Config) *RetryingStore {
	return &RetryingStore{inner: inner, retryer: retry.New(cfg)}
}

func (s *RetryingStore) Read(key string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.retryer.Do(func() error {
		var err error
		out, found, err = s.inner.Read(key)
		return err
	})
	return out, found, err
}

func (s *RetryingStore) Write(key string, data []byte) error {
	return s.retryer.Do(func() error { return s.inner.Write(key, data) })
}

func (s *RetryingStore) Delete(key string) error {
	return s.retryer.Do(func() error { return s.inner.Delete(key) })
}

func (s *RetryingStore) Append(key string, data []byte) error {
	return s.retryer.Do(func() error { return s.inner.Append(key, data) })
}

// Close is not retried: a close that failed once is not going to succeed
// on a second attempt against the same handle.
func (s *RetryingStore) Close() error {
	return s.inner.Close()
}
