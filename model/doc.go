// Package model defines the data carried between the orchestrator, its
// sub-runners and the reporting layer: opaque test items grouped into
// per-browser collections, and the result payloads attached to lifecycle
// events.
package model
