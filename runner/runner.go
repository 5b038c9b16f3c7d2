// Package runner defines the contract between the orchestrator and the
// per-browser execution units it drives. The orchestrator is polymorphic
// over any implementation; the default one lives in runner/browser.
package runner

import (
	"context"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/model"
	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
)

// Runner executes the tests grouped under one browser identifier.
//
// Run executes every test grouped under the runner's identifier in the
// given collection; the orchestrator invokes it at most once per
// constructed runner. AddTestToRun injects one more test into an
// in-progress run. Cancel is a best-effort abort of in-flight work.
// Events is the private emission side channel the orchestrator subscribes
// to for the duration of the run.
type Runner interface {
	ID() string
	Run(ctx context.Context, collection *model.Collection) error
	AddTestToRun(test *model.TestItem) error
	Cancel()
	Events() *event.Emitter
}

// Spec carries everything a factory needs to construct a runner: the
// browser identity plus the pool handles shared across the whole run.
type Spec struct {
	Browser    string
	RetryLimit int
	Sessions   *sessions.Pool
	Workers    workers.Handle
}

// Factory constructs a runner for one browser target. The orchestrator
// calls it once per browser seen in the collection, and again for browsers
// introduced through test injection.
type Factory func(spec Spec) Runner
