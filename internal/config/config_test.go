package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestLoadAppliesOverridesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := []byte("cache:\n  stat_cache_entries: 512\ntrash:\n  max_items: 10\n  max_bytes: 1024\n")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.StatCacheEntries != 512 {
		t.Errorf("expected override 512, got %d", cfg.Cache.StatCacheEntries)
	}
	if cfg.Cache.ReaddirCacheEntries != 128 {
		t.Errorf("expected default 128 to survive, got %d", cfg.Cache.ReaddirCacheEntries)
	}
	if cfg.Persistence.AutoSnapshotEvery != 20 {
		t.Errorf("expected default snapshot cadence to survive, got %d", cfg.Persistence.AutoSnapshotEvery)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadEncoding(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Encoding = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		input string
		want  int64
		ok    bool
	}{
		{"1024", 1024, true},
		{"1KB", 1024, true},
		{"1.5KB", 1536, true},
		{"50MB", 50 * 1024 * 1024, true},
		{"2gb", 2 * 1024 * 1024 * 1024, true},
		{"512B", 512, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSize(tc.input)
		if tc.ok != (err == nil) {
			t.Errorf("ParseSize(%q): unexpected error state: %v", tc.input, err)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestLoadAcceptsHumanReadableSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := []byte("trash:\n  max_bytes: 10MB\nquota:\n  quota_bytes: 1GB\n")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trash.MaxBytes != 10*1024*1024 {
		t.Errorf("trash.max_bytes = %d, want 10MiB", cfg.Trash.MaxBytes)
	}
	if cfg.Quota.QuotaBytes != 1024*1024*1024 {
		t.Errorf("quota.quota_bytes = %d, want 1GiB", cfg.Quota.QuotaBytes)
	}
}

func TestValidateRejectsNonPositiveBounds(t *testing.T) {
	cfg := Default()
	cfg.Trash.MaxItems = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero trash.max_items")
	}
}
