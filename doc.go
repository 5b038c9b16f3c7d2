// Package flotilla orchestrates parallel browser test execution. A Service
// fans a test collection out across browser targets, runs each target's
// tests through a shared worker pool and pooled browser sessions, and
// exposes a single event stream whose emissions can be reshaped through an
// ordered interceptor pipeline.
//
// Typical usage:
//
//	svc, err := flotilla.New(nil,
//	    flotilla.WithInterceptors(interceptors...),
//	    flotilla.WithReporter(reporter.New()))
//	if err != nil { ... }
//	svc.Events().On(event.TestFail, onFailure)
//	err = svc.Run(ctx, collection)
package flotilla
