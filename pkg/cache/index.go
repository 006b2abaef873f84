package cache

import (
	"sort"
	"strings"

	"github.com/tidwall/btree"

	"github.com/originfs/originfs/pkg/tree"
)

// Index maps normalized client paths to record identifiers. Keys are kept
// ordered so a directory listing is a range walk over one prefix.
//
// Index is not safe for concurrent use; the owning client serializes access.
type Index struct {
	paths *btree.Map[string, string]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{paths: btree.NewMap[string, string](0)}
}

// Load adds every raw store path from a snapshot, cleaning it first. Raw
// paths are inserted in sorted order, so when several fold to one key the
// greatest raw path wins on every load.
func (x *Index) Load(raw map[string]string) {
	keys := make([]string, 0, len(raw))
	for p := range raw {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	for _, p := range keys {
		x.paths.Set(tree.CleanPath(p), raw[p])
	}
}

// Get returns the identifier stored under key.
func (x *Index) Get(key string) (string, bool) {
	return x.paths.Get(key)
}

// Has reports whether key is present.
func (x *Index) Has(key string) bool {
	_, ok := x.paths.Get(key)
	return ok
}

// Set stores id under key.
func (x *Index) Set(key, id string) {
	x.paths.Set(key, id)
}

// Delete removes key and returns the identifier it held.
func (x *Index) Delete(key string) (string, bool) {
	return x.paths.Delete(key)
}

// Len returns the number of keys.
func (x *Index) Len() int {
	return x.paths.Len()
}

// Keys returns every key in order.
func (x *Index) Keys() []string {
	return x.paths.Keys()
}

// Children returns the unique immediate child names under dir, in key
// order. dir must already be a directory key (see tree.DirKey).
func (x *Index) Children(dir string) []string {
	prefix := tree.DirPrefix(dir)
	seen := make(map[string]struct{})
	var out []string

	x.paths.Ascend(prefix, func(key, _ string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		name, ok := tree.ChildName(dir, key)
		if !ok {
			return true
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		return true
	})

	return out
}

// Entry is one key of the index with its identifier.
type Entry struct {
	Key string
	ID  string
}

// Descendants returns every entry strictly below dir, in key order.
func (x *Index) Descendants(dir string) []Entry {
	prefix := tree.DirPrefix(dir)
	var out []Entry
	x.paths.Ascend(prefix, func(key, id string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if key != dir {
			out = append(out, Entry{Key: key, ID: id})
		}
		return true
	})
	return out
}
