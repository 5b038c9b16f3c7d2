// Package event provides the orchestrator's observable surface: the fixed
// lifecycle vocabulary, a cycle-safe interceptor router that can rewrite,
// reroute or suppress emissions, and a concurrency-safe emitter that
// dispatches the surviving events to subscribers.
package event
