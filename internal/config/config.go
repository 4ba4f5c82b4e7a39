// Package config defines the YAML-decoded configuration tree for a vfscore
// instance: cache sizing, persistence cadence, mount defaults, quota, and
// the retry/circuit-breaker tuning used around mounted disk adapters.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ByteSize is an int64 byte count that YAML may spell either as a plain
// number or as a human-readable string with a binary-unit suffix ("64KB",
// "50MB", "2GB").
type ByteSize int64

var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"GB", 1024 * 1024 * 1024},
	{"MB", 1024 * 1024},
	{"KB", 1024},
	{"B", 1},
}

// ParseSize converts a human-readable size string to a byte count.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(sizeStr)
	for _, u := range sizeUnits {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		numStr := strings.TrimSuffix(upper, u.suffix)
		val, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
		if err != nil {
			break
		}
		return int64(val * float64(u.multiplier)), nil
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}

// UnmarshalYAML accepts either an integer byte count or a unit-suffixed
// string.
func (s *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*s = ByteSize(n)
		return nil
	}
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	v, err := ParseSize(str)
	if err != nil {
		return err
	}
	*s = ByteSize(v)
	return nil
}

// Configuration is the root configuration object.
type Configuration struct {
	Cache       CacheConfig       `yaml:"cache"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Mount       MountConfig       `yaml:"mount"`
	Quota       QuotaConfig       `yaml:"quota"`
	Version     VersionConfig     `yaml:"version"`
	Trash       TrashConfig       `yaml:"trash"`
	Retry       RetryConfig       `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// CacheConfig sizes the facade's stat/readdir LRU caches.
type CacheConfig struct {
	StatCacheEntries    int `yaml:"stat_cache_entries"`
	ReaddirCacheEntries int `yaml:"readdir_cache_entries"`
}

// PersistenceConfig tunes the write-ahead log and snapshot cadence.
type PersistenceConfig struct {
	AutoSnapshotEvery int   `yaml:"auto_snapshot_every"`
	Encoding         string `yaml:"encoding"` // "tlv" or "cbor"
	SnapshotKey      string `yaml:"snapshot_key"`
	WALKey           string `yaml:"wal_key"`
	MountsKey        string `yaml:"mounts_key"`
	VersionsKey      string `yaml:"versions_key"`
	TrashKey         string `yaml:"trash_key"`
}

// MountConfig holds defaults applied to newly registered mounts.
type MountConfig struct {
	EventBufferSize int `yaml:"event_buffer_size"`
}

// QuotaConfig caps total bytes used by memory-resident files. -1 disables
// the quota.
type QuotaConfig struct {
	QuotaBytes ByteSize `yaml:"quota_bytes"`
}

// VersionConfig bounds per-path version history.
type VersionConfig struct {
	MaxVersions int `yaml:"max_versions"`
}

// TrashConfig bounds the trash store.
type TrashConfig struct {
	MaxItems int      `yaml:"max_items"`
	MaxBytes ByteSize `yaml:"max_bytes"`
}

// RetryConfig configures retry of transient persistence blob-store
// failures. Disk-adapter calls are not retried.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig configures the breaker wrapping each mount.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus exposition server.
type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// Default returns a complete configuration populated with the defaults
// documented on each section.
func Default() *Configuration {
	return &Configuration{
		Cache: CacheConfig{
			StatCacheEntries:    256,
			ReaddirCacheEntries: 128,
		},
		Persistence: PersistenceConfig{
			AutoSnapshotEvery: 20,
			Encoding:          "tlv",
			SnapshotKey:       "snapshot",
			WALKey:            "wal",
			MountsKey:         "mounts",
			VersionsKey:       "versions",
			TrashKey:          "trash",
		},
		Mount: MountConfig{
			EventBufferSize: 256,
		},
		Quota: QuotaConfig{
			QuotaBytes: -1,
		},
		Version: VersionConfig{
			MaxVersions: 10,
		},
		Trash: TrashConfig{
			MaxItems: 100,
			MaxBytes: 50 * 1024 * 1024,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     30 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Port:           9090,
			Path:           "/metrics",
			UpdateInterval: 30 * time.Second,
		},
	}
}

// Load reads and decodes a YAML configuration file, applying defaults for
// anything the file leaves zero-valued.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency of the configuration.
func (c *Configuration) Validate() error {
	if c.Persistence.Encoding != "tlv" && c.Persistence.Encoding != "cbor" {
		return fmt.Errorf("persistence.encoding must be 'tlv' or 'cbor', got %q", c.Persistence.Encoding)
	}
	if c.Persistence.AutoSnapshotEvery <= 0 {
		return fmt.Errorf("persistence.auto_snapshot_every must be positive")
	}
	if c.Version.MaxVersions <= 0 {
		return fmt.Errorf("version.max_versions must be positive")
	}
	if c.Trash.MaxItems <= 0 || c.Trash.MaxBytes <= 0 {
		return fmt.Errorf("trash.max_items and trash.max_bytes must be positive")
	}
	return nil
}
