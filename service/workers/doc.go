// Package workers implements the worker pool that executes test code
// out-of-process. The orchestrator creates one pool per run, every
// sub-runner submits its tasks through the shared handle, and the
// orchestrator ends the pool exactly once after the run settles.
package workers
