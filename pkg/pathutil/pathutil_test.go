package pathutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/", "/"},
		{"", "/"},
		{"/a/../b", "/b"},
		{"//a///b/", "/a/b"},
		{"/..", "/"},
		{"/a/./b", "/a/b"},
		{"/a/b/..", "/a"},
		{"a/b", "/a/b"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/a/../b", "//a///b/", "/..", "/a/b/c"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in       string
		wantDir  string
		wantName string
	}{
		{"/", "/", ""},
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/c", "/a/b", "c"},
	}
	for _, tt := range tests {
		dir, name := Split(tt.in)
		if dir != tt.wantDir || name != tt.wantName {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tt.in, dir, name, tt.wantDir, tt.wantName)
		}
	}
}

func TestIsAncestor(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a", "/ab", false},
		{"/", "/anything", true},
		{"/a/b", "/a/c", false},
	}
	for _, tt := range tests {
		if got := IsAncestor(tt.parent, tt.child); got != tt.want {
			t.Errorf("IsAncestor(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"*.txt", "a.txt", true},
		{"*.txt", "a.md", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		if got := MatchGlob(tt.pattern, tt.name); got != tt.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestMountLongestPrefix(t *testing.T) {
	// longest-prefix selection at the path-utility level
	mounts := []string{"/a", "/a/b"}
	best := ""
	for _, m := range mounts {
		if IsAncestor(m, "/a/b/c") && len(m) > len(best) {
			best = m
		}
	}
	if best != "/a/b" {
		t.Errorf("expected longest prefix /a/b, got %q", best)
	}
}
