package flotilla

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/internal/idgen"
	"github.com/viant/flotilla/model"
	"github.com/viant/flotilla/policy"
	"github.com/viant/flotilla/progress"
	"github.com/viant/flotilla/reporter"
	"github.com/viant/flotilla/runner"
	"github.com/viant/flotilla/runner/browser"
	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
)

var (
	// ErrRunActive indicates Run was called while a previous run is in flight.
	ErrRunActive = errors.New("run already in progress")
	// ErrCancelled indicates the service was cancelled and accepts no new runs.
	ErrCancelled = errors.New("orchestrator cancelled")
)

// PoolFactory builds the worker pool handle for one run.
type PoolFactory func(config workers.Config) (workers.Handle, error)

type runStatus int

const (
	statusIdle runStatus = iota
	statusStarting
	statusRunning
	statusCancelled
)

// Service fans a test collection out across browser targets, runs one
// sub-runner per target concurrently and exposes a single event stream
// shaped by the registered interceptors.
type Service struct {
	config         *Config
	emitter        *event.Emitter
	interceptors   []event.Interceptor
	runnerFactory  runner.Factory
	poolFactory    PoolFactory
	executor       workers.Executor
	sessions       *sessions.Pool
	sessionOptions []sessions.Option
	reporter       *reporter.Reporter
	progress       *progress.Progress

	mu      sync.Mutex
	cond    *sync.Cond
	status  runStatus
	active  map[string]runner.Runner
	running int
	pool    workers.Handle
}

// New creates a Service with the supplied configuration and options. A nil
// config inherits DefaultConfig.
func New(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		config: config,
		active: make(map[string]runner.Runner),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, option := range options {
		option(s)
	}
	s.emitter = event.NewEmitter(event.NewRouter(s.interceptors))
	if s.sessions == nil {
		pool, err := sessions.New(config.Sessions, s.sessionOptions...)
		if err != nil {
			return nil, err
		}
		s.sessions = pool
	}
	if s.runnerFactory == nil {
		s.runnerFactory = func(spec runner.Spec) runner.Runner {
			return browser.New(spec)
		}
	}
	if s.poolFactory == nil {
		s.poolFactory = func(config workers.Config) (workers.Handle, error) {
			var opts []workers.Option
			if s.executor != nil {
				opts = append(opts, workers.WithExecutor(s.executor))
			}
			return workers.New(config, opts...)
		}
	}
	if s.reporter != nil {
		s.reporter.Attach(s.emitter)
	}
	if s.progress != nil {
		s.progress.Attach(s.emitter)
	}
	return s, nil
}

// Events exposes the service event stream.
func (s *Service) Events() *event.Emitter {
	return s.emitter
}

// Sessions exposes the session pool shared across runs.
func (s *Service) Sessions() *sessions.Pool {
	return s.sessions
}

// Run executes every test in the collection, fanning out one sub-runner per
// browser. It returns after every started sub-runner has settled; individual
// browser failures surface as events, never as a returned error. Only worker
// pool creation failure fails the call itself.
func (s *Service) Run(ctx context.Context, collection *model.Collection) error {
	if collection == nil {
		collection = model.NewCollection()
	}
	s.mu.Lock()
	switch s.status {
	case statusStarting, statusRunning:
		s.mu.Unlock()
		return ErrRunActive
	case statusCancelled:
		s.mu.Unlock()
		return ErrCancelled
	}
	s.status = statusStarting
	s.mu.Unlock()

	pool, err := s.poolFactory(s.config.Workers)
	if err != nil {
		s.mu.Lock()
		if s.status == statusStarting {
			s.status = statusIdle
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for s.running > 0 {
			s.cond.Wait()
		}
		if s.status != statusCancelled {
			s.status = statusIdle
		}
		s.pool = nil
		s.mu.Unlock()
		s.emitter.Emit(event.End, nil)
		pool.End()
	}()

	info := &model.RunInfo{
		RunID:     idgen.New(),
		Browsers:  collection.Browsers(),
		StartedAt: clock.Now(),
	}
	if err := s.emitter.EmitSync(event.RunnerStart, info); err != nil {
		return nil
	}

	s.mu.Lock()
	if s.status == statusCancelled {
		s.mu.Unlock()
		return nil
	}
	s.status = statusRunning
	s.mu.Unlock()

	if s.config.Warmup {
		if err := s.sessions.Warmup(ctx, info.Browsers, s.config.Sessions.PerBrowserLimit); err != nil {
			s.emitter.Emit(event.Warning, fmt.Sprintf("session warmup: %v", err))
		}
	}

	s.emitter.Emit(event.Begin, info)

	pol := policy.FromContext(ctx)
	for _, browserID := range info.Browsers {
		if !pol.IsAllowed(browserID) {
			s.emitter.Emit(event.Warning, fmt.Sprintf("browser %v excluded by policy", browserID))
			continue
		}
		s.startRunner(ctx, browserID, collection)
	}
	return nil
}

// AddTestToRun injects one more test into an in-flight run. It returns false
// without side effects when no run is active, the worker pool has ended or
// the service was cancelled. When no sub-runner is active for the browser a
// new one is started asynchronously with a single-test collection.
func (s *Service) AddTestToRun(test *model.TestItem, browserID string) bool {
	s.mu.Lock()
	if !s.acceptsWork() {
		s.mu.Unlock()
		return false
	}
	if active, ok := s.active[browserID]; ok {
		s.mu.Unlock()
		if err := active.AddTestToRun(test); err == nil {
			return true
		}
		// the runner drained between lookup and injection
		s.mu.Lock()
		if !s.acceptsWork() {
			s.mu.Unlock()
			return false
		}
	}
	r := s.launch(browserID)
	s.mu.Unlock()
	go s.drive(context.Background(), r, browserID, model.Single(browserID, test))
	return true
}

// Cancel stops new sub-runners from starting, cancels the session pool and
// requests cancellation on every still-active sub-runner. Settled ones are
// left alone. Safe to call more than once.
func (s *Service) Cancel() {
	s.mu.Lock()
	if s.status == statusCancelled {
		s.mu.Unlock()
		return
	}
	s.status = statusCancelled
	active := make([]runner.Runner, 0, len(s.active))
	for _, r := range s.active {
		active = append(active, r)
	}
	s.mu.Unlock()

	s.sessions.Cancel()
	for _, r := range active {
		r.Cancel()
	}
}

func (s *Service) acceptsWork() bool {
	return s.status == statusRunning && s.pool != nil && !s.pool.IsEnded()
}

func (s *Service) startRunner(ctx context.Context, browserID string, collection *model.Collection) {
	s.mu.Lock()
	if s.status != statusRunning {
		s.mu.Unlock()
		return
	}
	r := s.launch(browserID)
	s.mu.Unlock()
	go s.drive(ctx, r, browserID, collection)
}

// launch constructs a sub-runner wired into the service event stream and
// registers it as active. Callers must hold s.mu.
func (s *Service) launch(browserID string) runner.Runner {
	r := s.runnerFactory(runner.Spec{
		Browser:    browserID,
		RetryLimit: s.config.RetryLimit,
		Sessions:   s.sessions,
		Workers:    s.pool,
	})
	r.Events().OnAny(func(evt event.Event) error {
		s.emitter.Emit(evt.Name, evt.Data)
		return nil
	})
	s.active[browserID] = r
	s.running++
	return r
}

func (s *Service) drive(ctx context.Context, r runner.Runner, browserID string, collection *model.Collection) {
	err := r.Run(ctx, collection)
	if err != nil {
		s.emitter.Emit(event.Err, fmt.Errorf("browser %v: %w", browserID, err))
	}
	s.mu.Lock()
	if s.active[browserID] == r {
		delete(s.active, browserID)
	}
	s.running--
	s.cond.Broadcast()
	s.mu.Unlock()
}
