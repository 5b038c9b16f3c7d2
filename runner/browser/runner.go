// Package browser provides the default per-browser execution unit. It
// drains the tests grouped under one browser identifier, executing each
// through the shared worker pool against a pooled browser session, with
// per-test retries and cooperative cancellation.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/internal/idgen"
	"github.com/viant/flotilla/model"
	"github.com/viant/flotilla/runner"
	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
	"github.com/viant/flotilla/tracing"
)

// ErrFinished is returned by AddTestToRun once the runner has drained its
// queue and settled.
var ErrFinished = errors.New("browser runner already finished")

// ErrReused is returned when Run is invoked on a runner that already ran.
var ErrReused = errors.New("browser runner cannot be re-run")

// TaskBuilder translates an opaque test item into an executable worker
// task. Only this layer inspects test payloads.
type TaskBuilder func(test *model.TestItem) *workers.Task

// Option customizes a Runner.
type Option func(r *Runner)

// WithTaskBuilder overrides how test items become worker tasks.
func WithTaskBuilder(builder TaskBuilder) Option {
	return func(r *Runner) { r.buildTask = builder }
}

// Runner executes the tests of a single browser target sequentially,
// relying on the worker pool for execution parallelism across browsers.
type Runner struct {
	spec      runner.Spec
	emitter   *event.Emitter
	buildTask TaskBuilder

	cancelled atomic.Bool

	mu        sync.Mutex
	pending   []*model.TestItem
	started   bool
	finished  bool
	cancelRun context.CancelFunc
	sessionID string
}

var _ runner.Runner = (*Runner)(nil)

// New constructs a runner for the supplied spec.
func New(spec runner.Spec, options ...Option) *Runner {
	r := &Runner{
		spec:    spec,
		emitter: event.NewEmitter(nil),
	}
	for _, option := range options {
		option(r)
	}
	if r.buildTask == nil {
		r.buildTask = defaultTaskBuilder
	}
	return r
}

// ID returns the browser identifier this runner is bound to.
func (r *Runner) ID() string { return r.spec.Browser }

// Events returns the runner's private emission side channel.
func (r *Runner) Events() *event.Emitter { return r.emitter }

// Run drains the tests grouped under this runner's browser, plus any test
// injected while the run is in progress. Test failures surface as events,
// not as an error; the returned error reports infrastructural failures
// only.
func (r *Runner) Run(ctx context.Context, collection *model.Collection) (err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrReused
	}
	r.started = true
	r.cancelRun = cancel
	r.pending = append(r.pending, collection.Tests(r.spec.Browser)...)
	r.mu.Unlock()

	runCtx, span := tracing.StartSpan(runCtx, fmt.Sprintf("browser.run %s", r.spec.Browser), "INTERNAL")
	span.WithAttributes(map[string]string{"browser": r.spec.Browser})
	defer tracing.EndSpan(span, err)

	defer func() {
		r.mu.Lock()
		r.finished = true
		r.mu.Unlock()
		r.releaseSession()
	}()

	for {
		if r.cancelled.Load() || runCtx.Err() != nil {
			return nil
		}
		test := r.popOrFinish()
		if test == nil {
			return nil
		}
		if testErr := r.runTest(runCtx, test); testErr != nil {
			err = testErr
			return err
		}
	}
}

// AddTestToRun injects one more test into the in-progress run.
func (r *Runner) AddTestToRun(test *model.TestItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return ErrFinished
	}
	r.pending = append(r.pending, test)
	return nil
}

// Cancel requests a best-effort abort: the queue stops draining and the
// in-flight worker task is released through context cancellation.
func (r *Runner) Cancel() {
	if !r.cancelled.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	cancel := r.cancelRun
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// popOrFinish dequeues the next pending test. Emptiness and the finished
// flag are decided under one lock acquisition so that an injection accepted
// by AddTestToRun is always executed.
func (r *Runner) popOrFinish() *model.TestItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.finished = true
		return nil
	}
	test := r.pending[0]
	r.pending = r.pending[1:]
	return test
}

// runTest executes one test with retries. The returned error reports a
// failure to obtain a session or reach the worker pool; a failing test is
// reported via events and returns nil.
func (r *Runner) runTest(ctx context.Context, test *model.TestItem) error {
	retries := r.spec.RetryLimit
	for attempt := 1; ; attempt++ {
		result := &model.TestResult{
			Browser:  r.spec.Browser,
			TestID:   test.ID,
			TestName: test.Name,
			Attempt:  attempt,
		}
		if attempt == 1 {
			r.emitter.Emit(event.TestBegin, result)
		}

		session, err := r.acquireSession(ctx)
		if err != nil {
			result.Status = model.TestStatusFail
			result.Error = err.Error()
			r.emitter.Emit(event.TestFail, result)
			return err
		}
		result.SessionID = session.ID

		started := clock.Now()
		task := r.buildTask(test)
		task.Browser = r.spec.Browser
		if task.Env == nil {
			task.Env = map[string]string{}
		}
		task.Env["FLOTILLA_SESSION"] = session.ID
		taskResult, execErr := r.spec.Workers.Run(ctx, task)
		result.Duration = clock.Now().Sub(started)
		r.spec.Sessions.Release(session)

		if execErr == nil && taskResult != nil && taskResult.ExitCode == 0 {
			result.Status = model.TestStatusPass
			result.Output = taskResult.Stdout
			r.emitter.Emit(event.TestPass, result)
			return nil
		}
		if execErr != nil {
			result.Error = execErr.Error()
		} else if taskResult != nil {
			result.Error = fmt.Sprintf("exit status %d", taskResult.ExitCode)
			result.Output = taskResult.Stderr
		}
		if attempt <= retries && !r.cancelled.Load() && ctx.Err() == nil {
			r.emitter.Emit(event.Retry, result)
			continue
		}
		result.Status = model.TestStatusFail
		r.emitter.Emit(event.TestFail, result)
		return nil
	}
}

// acquireSession reuses the session pool, emitting session lifecycle events
// when the underlying session identity changes.
func (r *Runner) acquireSession(ctx context.Context) (*sessions.Session, error) {
	session, err := r.spec.Sessions.Acquire(ctx, r.spec.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %v session: %w", r.spec.Browser, err)
	}
	r.mu.Lock()
	previous := r.sessionID
	r.sessionID = session.ID
	r.mu.Unlock()
	if previous != session.ID {
		if previous != "" {
			r.emitter.Emit(event.SessionEnd, previous)
		}
		r.emitter.Emit(event.SessionStart, session)
	}
	return session, nil
}

func (r *Runner) releaseSession() {
	r.mu.Lock()
	last := r.sessionID
	r.sessionID = ""
	r.mu.Unlock()
	if last != "" {
		r.emitter.Emit(event.SessionEnd, last)
	}
}

func defaultTaskBuilder(test *model.TestItem) *workers.Task {
	if task, ok := test.Payload.(*workers.Task); ok {
		copied := *task
		if copied.ID == "" {
			copied.ID = idgen.New()
		}
		copied.TestID = test.ID
		return &copied
	}
	return &workers.Task{ID: idgen.New(), TestID: test.ID}
}
