// Package match implements structural containment of JSON-like values and
// the match specifications used to judge replies and events.
//
// # Containment
//
// Contains(actual, pattern) holds when every key present in pattern is also
// present in actual with a contained value. Extra keys in actual are ignored:
//
//	Contains(map[string]any{"jtype": "afb-reply", "request": map[string]any{"status": "success"}},
//	    map[string]any{"request": map[string]any{"status": "success"}}) // true
//
// A nil pattern is a wildcard, both at the top level and as the value of a
// key: {"status": nil} requires the key to exist but accepts any value.
//
// Slices in a pattern are compared index by index with subset semantics, not
// as ordered sequences: []any{1} is contained in []any{1, 2}. An actual map
// keyed by decimal indices ("0", "1", ...) also satisfies a slice pattern.
//
// Numbers compare by value regardless of their Go representation, so an int
// read from YAML equals the float64 decoded from a JSON reply. No other
// coercion happens: "1" never equals 1.
//
// Behavior on cyclic values is undefined.
package match
