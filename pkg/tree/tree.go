// Package tree provides path utilities for mapping hierarchical paths onto
// the store's flat, location-tagged records.
package tree

import (
	"strings"
)

// StoreRoot is the store-native prefix in front of every owner's files.
const StoreRoot = "origin/(c) users/"

// CleanPath turns a raw store path into a client path key: lowercase,
// store root and owner segment removed, single separators, no trailing
// slash, "/" when empty. CleanPath(CleanPath(p)) == CleanPath(p).
func CleanPath(p string) string {
	p = strings.ToLower(p)
	p = strings.TrimPrefix(p, StoreRoot)

	parts := strings.Split(p, "/")
	if len(parts) >= 2 {
		p = strings.Join(parts[1:], "/")
	} else {
		p = ""
	}

	return Normalize(p)
}

// Normalize collapses repeated separators, adds a leading slash and strips
// a trailing one. It does not change case.
func Normalize(p string) string {
	var b strings.Builder
	b.Grow(len(p) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}

	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// EntryPath rebuilds the client path of a record from its location, name
// and type fields.
func EntryPath(location, name, typ string) string {
	raw := strings.TrimPrefix(location, "/") + "/" + name + typ
	return CleanPath(raw)
}

// FormatLocation builds the store-native location string for dir inside
// owner's root.
func FormatLocation(owner, dir string) string {
	base := StoreRoot + owner + "/"
	dir = strings.TrimPrefix(dir, "/")
	dir = strings.TrimSuffix(dir, "/")
	return strings.TrimSuffix(base+dir, "/")
}

// SplitDir splits p at its last separator. A path without one has an empty
// directory.
func SplitDir(p string) (dir, file string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// SplitName splits a file name at its last dot. The extension keeps the dot;
// a name without a dot has no extension.
func SplitName(file string) (name, ext string) {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return file, ""
	}
	return file[:i], file[i:]
}

// Key turns a caller-supplied path into an index key: lowercase with
// separators normalized. Unlike CleanPath it never strips the store root.
func Key(p string) string {
	return strings.ToLower(Normalize(p))
}

// DirKey normalizes the argument of a directory listing. It is Key under
// another name; "" and "/" both list the root.
func DirKey(p string) string {
	return Key(p)
}

// DirPrefix returns the prefix shared by every descendant of dir.
func DirPrefix(dir string) string {
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}

// ChildName returns the first segment of full below dir. ok is false when
// full is not a descendant of dir.
func ChildName(dir, full string) (string, bool) {
	prefix := DirPrefix(dir)
	if !strings.HasPrefix(full, prefix) {
		return "", false
	}
	rest := full[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Ancestor is one directory level of a path.
type Ancestor struct {
	Key    string // lowercased client path of the directory
	Name   string // final segment as given
	Parent string // client path of the parent directory, case kept
}

// Ancestors returns every directory level of dir from the root down.
func Ancestors(dir string) []Ancestor {
	var out []Ancestor
	parent := "/"
	for _, name := range strings.Split(dir, "/") {
		if name == "" {
			continue
		}
		p := ChildPath(parent, name)
		out = append(out, Ancestor{Key: strings.ToLower(p), Name: name, Parent: parent})
		parent = p
	}
	return out
}

// JoinPath joins elements into a lowercase client path.
func JoinPath(elements ...string) string {
	joined := strings.Join(elements, "/")
	return strings.ToLower(Normalize(joined))
}

// ChildPath appends name to the client directory parent.
func ChildPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
