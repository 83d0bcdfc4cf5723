// Package history holds the state of a history view and the reducer that
// evolves it.
//
// Allowed here:
// - step/state/action types and the pure Reduce function
// - the Store that owns one State and runs reducer effects
//
// Not allowed here:
// - rendering, key handling or anything terminal specific
// - decoding of step payloads (owned by the host application)
package history
