package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/objectfs/vfscore/pkg/retry"
)

// flakyStore fails every operation a fixed number of times before
// delegating to an in-memory map.
type flakyStore struct {
	failures int
	data     map[string][]byte
}

func (s *flakyStore) trip() error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("transient backend failure")
	}
	return nil
}

func (s *flakyStore) Read(key string) ([]byte, bool, error) {
	if err := s.trip(); err != nil {
		return nil, false, err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *flakyStore) Write(key string, data []byte) error {
	if err := s.trip(); err != nil {
		return err
	}
	s.data[key] = data
	return nil
}

func (s *flakyStore) Delete(key string) error {
	if err := s.trip(); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

func (s *flakyStore) Append(key string, data []byte) error {
	if err := s.trip(); err != nil {
		return err
	}
	s.data[key] = append(s.data[key], data...)
	return nil
}

func (s *flakyStore) Close() error { return nil }

func fastRetryConfig(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryingStoreRecoversFromTransientFailures(t *testing.T) {
	inner := &flakyStore{failures: 2, data: make(map[string][]byte)}
	s := NewRetryingStore(inner, fastRetryConfig(5))

	if err := s.Write("k", []byte("v")); err != nil {
		t.Fatalf("Write should have succeeded after retries: %v", err)
	}
	got, found, err := s.Read("k")
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("Read = (%q, %v, %v)", got, found, err)
	}
}

func TestRetryingStoreGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyStore{failures: 100, data: make(map[string][]byte)}
	s := NewRetryingStore(inner, fastRetryConfig(3))

	if err := s.Write("k", []byte("v")); err == nil {
		t.Fatal("expected error once attempts are exhausted")
	}
	if inner.failures != 97 {
		t.Fatalf("expected exactly 3 attempts, %d failures left", inner.failures)
	}
}
