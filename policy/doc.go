// Package policy provides an optional per-run browser filter attached to the
// run via context. It is deliberately decoupled from the orchestrator so
// that using it is entirely opt-in - runs that do not embed a Policy in
// their context execute every browser in the collection.
package policy
