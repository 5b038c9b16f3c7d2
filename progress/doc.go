// Package progress provides a lightweight tracker that keeps aggregated
// test counters (total, running, passed, failed, ...) for a single
// orchestrated run. The tracker feeds off the orchestrator's event stream,
// so any component holding the emitter can observe progress without a
// global registry.
package progress
