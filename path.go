package kvfs

import "strings"

// Path is a sequence of non-empty name segments. The empty Path is the root.
// "." and ".." have no special meaning.
type Path []string

// ParsePath splits a slash separated path, dropping empty segments. Both
// "/" and "" parse to the root.
func ParsePath(name string) Path {
	var p Path
	for _, seg := range strings.Split(name, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// IsRoot reports whether p names the root directory.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Split returns the parent path and the final segment. Splitting the root
// returns the root and an empty name.
func (p Path) Split() (Path, string) {
	if len(p) == 0 {
		return nil, ""
	}
	return p[:len(p)-1], p[len(p)-1]
}

// Join returns a new Path with name appended.
func (p Path) Join(name ...string) Path {
	out := make(Path, 0, len(p)+len(name))
	out = append(out, p...)
	for _, n := range name {
		out = append(out, ParsePath(n)...)
	}
	return out
}

// HasPrefix reports whether p equals prefix or lies beneath it.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders p in absolute form.
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// resolveTarget resolves a symlink target found at link. Absolute targets
// start from the root, relative ones from the directory holding the link.
func resolveTarget(link Path, target string) Path {
	if strings.HasPrefix(target, "/") {
		return ParsePath(target)
	}
	dir, _ := link.Split()
	return dir.Join(target)
}
