package progress

import (
	"sync"
	"time"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/model"
)

// Delta represents an incremental counter change. Fields are signed and can
// be either positive (increment) or negative (decrement).
type Delta struct {
	Total   int
	Running int
	Passed  int
	Failed  int
	Pending int
	Retried int
}

// Snapshot is a read-only copy of the aggregated counters.
type Snapshot struct {
	RunID     string
	StartedAt time.Time

	TotalTests   int
	RunningTests int
	PassedTests  int
	FailedTests  int
	PendingTests int
	RetriedTests int
}

// Progress keeps aggregated test counters for one run. It is safe for
// concurrent use.
type Progress struct {
	mu       sync.Mutex
	state    Snapshot
	onChange func(Snapshot)
}

// New returns an empty tracker.
func New() *Progress {
	return &Progress{}
}

// Update applies the supplied delta. If an onChange callback is registered
// it is invoked with an updated snapshot outside the critical section so
// the callback can perform slow work without blocking emitters.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.state.TotalTests += d.Total
	p.state.RunningTests += d.Running
	p.state.PassedTests += d.Passed
	p.state.FailedTests += d.Failed
	p.state.PendingTests += d.Pending
	p.state.RetriedTests += d.Retried

	snapshot := p.state
	callback := p.onChange
	p.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

// Snapshot returns a copy suitable for read-only inspection.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables the callback; only one callback can be active.
func (p *Progress) OnChange(callback func(Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = callback
	p.mu.Unlock()
}

// Attach subscribes the tracker to an orchestrator event stream. Test
// lifecycle events drive the counters; run identity is captured from the
// start-of-run event.
func (p *Progress) Attach(emitter *event.Emitter) {
	if p == nil || emitter == nil {
		return
	}
	emitter.OnAny(func(ev event.Event) error {
		switch ev.Name {
		case event.RunnerStart:
			p.observeRun(ev.Data)
		case event.TestBegin:
			p.Update(Delta{Total: 1, Running: 1})
		case event.TestPass:
			p.Update(Delta{Running: -1, Passed: 1})
		case event.TestFail:
			p.Update(Delta{Running: -1, Failed: 1})
		case event.TestPending:
			p.Update(Delta{Running: -1, Pending: 1})
		case event.Retry:
			p.Update(Delta{Retried: 1})
		}
		return nil
	})
}

func (p *Progress) observeRun(data interface{}) {
	info, ok := data.(*model.RunInfo)
	if !ok {
		return
	}
	p.mu.Lock()
	p.state.RunID = info.RunID
	p.state.StartedAt = info.StartedAt
	p.mu.Unlock()
}
