// Package pathutil normalizes and manipulates the absolute, slash-separated
// virtual paths used throughout vfscore. Normalization is pure and is the
// first step of every public path-accepting operation in the facade.
package pathutil

import "strings"

// Root is the canonical path of the filesystem root.
const Root = "/"

// Normalize collapses "." and ".." segments, dedupes "/", and produces a
// canonical absolute path. ".." never escapes the root. A trailing slash is
// removed except for the root itself.
func Normalize(p string) string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	if len(out) == 0 {
		return Root
	}
	return "/" + strings.Join(out, "/")
}

// Join normalizes the concatenation of base and the given elements.
func Join(base string, elems ...string) string {
	all := append([]string{base}, elems...)
	return Normalize(strings.Join(all, "/"))
}

// Split returns the normalized parent directory and final segment name of p.
// For the root, both are "/" and "" respectively.
func Split(p string) (dir, name string) {
	norm := Normalize(p)
	if norm == Root {
		return Root, ""
	}
	idx := strings.LastIndex(norm, "/")
	if idx <= 0 {
		return Root, norm[1:]
	}
	return norm[:idx], norm[idx+1:]
}

// Dir returns the normalized parent directory of p.
func Dir(p string) string {
	dir, _ := Split(p)
	return dir
}

// Base returns the final path segment of p, or "/" if p is the root.
func Base(p string) string {
	_, name := Split(p)
	if name == "" {
		return Root
	}
	return name
}

// IsAncestor reports whether child is equal to parent or nested under it.
// Both arguments must already be normalized.
func IsAncestor(parent, child string) bool {
	if parent == child {
		return true
	}
	if parent == Root {
		return strings.HasPrefix(child, "/")
	}
	return strings.HasPrefix(child, parent+"/")
}

// Depth returns the number of path segments, 0 for the root.
func Depth(p string) int {
	norm := Normalize(p)
	if norm == Root {
		return 0
	}
	return strings.Count(norm, "/")
}

// MatchGlob reports whether name matches a shell-style glob pattern
// ('*' matches any run of characters, '?' matches exactly one, no
// directory-separator special-casing since it operates on a single path
// segment or a full normalized path at the caller's discretion).
func MatchGlob(pattern, name string) bool {
	return matchGlob([]rune(pattern), []rune(name))
}

func matchGlob(pattern, name []rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	switch pattern[0] {
	case '*':
		if matchGlob(pattern[1:], name) {
			return true
		}
		for len(name) > 0 {
			name = name[1:]
			if matchGlob(pattern[1:], name) {
				return true
			}
		}
		return matchGlob(pattern[1:], name)
	case '?':
		if len(name) == 0 {
			return false
		}
		return matchGlob(pattern[1:], name[1:])
	default:
		if len(name) == 0 || name[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], name[1:])
	}
}
