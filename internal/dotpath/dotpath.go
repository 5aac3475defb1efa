// Package dotpath resolves dot-separated key paths inside nested
// map[string]any data bags. Lookups are pure; a missing segment simply
// reports absence instead of panicking.
package dotpath

import "strings"

// Get returns the value at path ("a.b.c") inside data. The second return
// reports whether every segment of the path resolved.
func Get(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = data
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path inside data, creating intermediate maps as
// needed. Existing non-map intermediates are overwritten.
func Set(data map[string]any, path string, value any) {
	if path == "" {
		return
	}
	parts := strings.Split(path, ".")
	cur := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
