// Package core holds the identity and value types shared by the hook
// pipeline, the event bus and the guest language adapters.
//
// Nothing in this package depends on a guest runtime. Values that cross a
// language boundary are represented with plain Go types:
//
//	nil, bool, int64, float64, string, []any, map[string]any
//
// Normalize converts other Go values (typed slices, int, float32, ...) into
// that vocabulary so adapters only have to handle one shape.
package core
