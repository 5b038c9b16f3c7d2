package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/internal/idgen"
	"github.com/viant/flotilla/model"
	"github.com/viant/flotilla/runner"
	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
)

type stubDialer struct {
	mu    sync.Mutex
	dials int
}

func (d *stubDialer) Dial(_ context.Context, browser string) (*sessions.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return &sessions.Session{ID: idgen.New(), Browser: browser}, nil
}

func (d *stubDialer) Hangup(_ context.Context, _ *sessions.Session) error {
	return nil
}

type stubWorkers struct {
	mu      sync.Mutex
	tasks   []*workers.Task
	results []*workers.Result
	errs    []error
	block   chan struct{}
}

func (w *stubWorkers) Run(ctx context.Context, task *workers.Task) (*workers.Result, error) {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = append(w.tasks, task)
	i := len(w.tasks) - 1
	var result *workers.Result
	var err error
	if i < len(w.results) {
		result = w.results[i]
	} else {
		result = &workers.Result{}
	}
	if i < len(w.errs) {
		err = w.errs[i]
	}
	return result, err
}

func (w *stubWorkers) End()          {}
func (w *stubWorkers) IsEnded() bool { return false }

func newSpec(t *testing.T, pool workers.Handle, retries int) runner.Spec {
	sessionPool, err := sessions.New(sessions.Config{PerBrowserLimit: 1}, sessions.WithDialer(&stubDialer{}))
	if err != nil {
		t.Fatalf("failed to create session pool: %v", err)
	}
	return runner.Spec{Browser: "chrome", RetryLimit: retries, Sessions: sessionPool, Workers: pool}
}

func record(r *Runner) map[event.Name]*int {
	counts := map[event.Name]*int{}
	r.Events().OnAny(func(evt event.Event) error {
		n, ok := counts[evt.Name]
		if !ok {
			n = new(int)
			counts[evt.Name] = n
		}
		*n++
		return nil
	})
	return counts
}

func count(counts map[event.Name]*int, name event.Name) int {
	if n, ok := counts[name]; ok {
		return *n
	}
	return 0
}

func TestRunnerExecutesAllTests(t *testing.T) {
	pool := &stubWorkers{}
	r := New(newSpec(t, pool, 0))
	counts := record(r)

	collection := model.NewCollection().Add("chrome",
		&model.TestItem{ID: "1", Name: "login"},
		&model.TestItem{ID: "2", Name: "checkout"},
	)
	err := r.Run(context.Background(), collection)
	assert.Nil(t, err)
	assert.Equal(t, 2, count(counts, event.TestBegin))
	assert.Equal(t, 2, count(counts, event.TestPass))
	assert.Equal(t, 0, count(counts, event.TestFail))
	assert.Equal(t, 1, count(counts, event.SessionStart), "session is reused across tests")
	assert.Equal(t, 1, count(counts, event.SessionEnd))
	assert.Equal(t, 2, len(pool.tasks))
	assert.NotEmpty(t, pool.tasks[0].Env["FLOTILLA_SESSION"])
}

func TestRunnerRetriesFailedTest(t *testing.T) {
	pool := &stubWorkers{results: []*workers.Result{
		{ExitCode: 1, Stderr: "boom"},
		{ExitCode: 0},
	}}
	r := New(newSpec(t, pool, 1))
	counts := record(r)

	err := r.Run(context.Background(), model.Single("chrome", &model.TestItem{ID: "1", Name: "flaky"}))
	assert.Nil(t, err)
	assert.Equal(t, 1, count(counts, event.TestBegin), "a retried test begins once")
	assert.Equal(t, 1, count(counts, event.Retry))
	assert.Equal(t, 1, count(counts, event.TestPass))
	assert.Equal(t, 0, count(counts, event.TestFail))
}

func TestRunnerExhaustsRetries(t *testing.T) {
	pool := &stubWorkers{results: []*workers.Result{
		{ExitCode: 1}, {ExitCode: 1},
	}}
	r := New(newSpec(t, pool, 1))
	counts := record(r)

	err := r.Run(context.Background(), model.Single("chrome", &model.TestItem{ID: "1", Name: "broken"}))
	assert.Nil(t, err)
	assert.Equal(t, 1, count(counts, event.Retry))
	assert.Equal(t, 1, count(counts, event.TestFail))
	assert.Equal(t, 0, count(counts, event.TestPass))
}

func TestRunnerCannotBeReused(t *testing.T) {
	r := New(newSpec(t, &stubWorkers{}, 0))
	assert.Nil(t, r.Run(context.Background(), model.NewCollection()))
	assert.True(t, errors.Is(r.Run(context.Background(), model.NewCollection()), ErrReused))
}

func TestRunnerExecutesInjectionDuringLastTest(t *testing.T) {
	pool := &stubWorkers{}
	r := New(newSpec(t, pool, 0))
	counts := record(r)

	injected := false
	r.Events().On(event.TestPass, func(event.Event) error {
		if injected {
			return nil
		}
		injected = true
		assert.Nil(t, r.AddTestToRun(&model.TestItem{ID: "2", Name: "followup"}))
		return nil
	})

	err := r.Run(context.Background(), model.Single("chrome", &model.TestItem{ID: "1", Name: "login"}))
	assert.Nil(t, err)
	assert.Equal(t, 2, count(counts, event.TestPass), "an accepted injection is executed")
	assert.Equal(t, 2, len(pool.tasks))
}

func TestRunnerRejectsInjectionAfterFinish(t *testing.T) {
	r := New(newSpec(t, &stubWorkers{}, 0))
	assert.Nil(t, r.Run(context.Background(), model.NewCollection()))
	err := r.AddTestToRun(&model.TestItem{ID: "9"})
	assert.True(t, errors.Is(err, ErrFinished))
}

func TestRunnerCancelStopsDraining(t *testing.T) {
	block := make(chan struct{})
	pool := &stubWorkers{block: block}
	r := New(newSpec(t, pool, 0))
	counts := record(r)

	collection := model.NewCollection().Add("chrome",
		&model.TestItem{ID: "1"}, &model.TestItem{ID: "2"}, &model.TestItem{ID: "3"},
	)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), collection)
	}()
	r.Cancel()
	close(block)
	assert.Nil(t, <-done)
	assert.True(t, count(counts, event.TestBegin) < 3, "cancellation stops the queue")
}

func TestRunnerSessionFailureIsFatal(t *testing.T) {
	sessionPool, err := sessions.New(sessions.Config{PerBrowserLimit: 1}, sessions.WithDialer(&stubDialer{}))
	assert.Nil(t, err)
	sessionPool.Cancel()

	r := New(runner.Spec{Browser: "chrome", Sessions: sessionPool, Workers: &stubWorkers{}})
	counts := record(r)
	err = r.Run(context.Background(), model.Single("chrome", &model.TestItem{ID: "1"}))
	assert.NotNil(t, err)
	assert.Equal(t, 1, count(counts, event.TestFail))
}

func TestDefaultTaskBuilder(t *testing.T) {
	task := defaultTaskBuilder(&model.TestItem{
		ID:      "t1",
		Payload: &workers.Task{Command: "npm test -- --grep login"},
	})
	assert.Equal(t, "t1", task.TestID)
	assert.Equal(t, "npm test -- --grep login", task.Command)
	assert.NotEmpty(t, task.ID)

	blank := defaultTaskBuilder(&model.TestItem{ID: "t2"})
	assert.Equal(t, "t2", blank.TestID)
	assert.Equal(t, "", blank.Command)
}
