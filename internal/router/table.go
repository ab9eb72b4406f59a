package router

import (
	"fmt"
	"sort"
	"strings"
)

// Entry maps one exact path to an upstream base URL.
type Entry struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// RouteTable is an immutable path to target mapping. It is safe for
// concurrent use because nothing mutates it after construction.
type RouteTable struct {
	entries []Entry
	byPath  map[string]string
	paths   []string
}

// NewRouteTable builds a table from entries, keeping their order for
// diagnostics. Paths must be non-empty, start with '/', and be unique.
// Targets are not checked here; the executor rejects unusable targets.
func NewRouteTable(entries []Entry) (*RouteTable, error) {
	t := &RouteTable{
		entries: make([]Entry, 0, len(entries)),
		byPath:  make(map[string]string, len(entries)),
		paths:   make([]string, 0, len(entries)),
	}

	for i, e := range entries {
		if e.Path == "" {
			return nil, fmt.Errorf("route %d: path is empty", i)
		}
		if !strings.HasPrefix(e.Path, "/") {
			return nil, fmt.Errorf("route %d: path %q must start with '/'", i, e.Path)
		}
		if _, exists := t.byPath[e.Path]; exists {
			return nil, fmt.Errorf("route %d: duplicate path %q", i, e.Path)
		}
		t.byPath[e.Path] = e.Target
		t.entries = append(t.entries, e)
		t.paths = append(t.paths, e.Path)
	}

	sort.Strings(t.paths)
	return t, nil
}

// MustRouteTable is like NewRouteTable but panics on error.
func MustRouteTable(entries []Entry) *RouteTable {
	t, err := NewRouteTable(entries)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the target for an exact path match.
func (t *RouteTable) Lookup(path string) (string, bool) {
	target, ok := t.byPath[path]
	return target, ok
}

// Paths returns the configured paths in sorted order.
func (t *RouteTable) Paths() []string {
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}

// Entries returns the entries in declaration order.
func (t *RouteTable) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.entries)
}
