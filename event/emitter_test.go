package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterChainDispatchesFinalNameOnly(t *testing.T) {
	emitter := NewEmitter(NewRouter([]Interceptor{
		reroute("e1", "e2"),
		reroute("e2", "e3"),
	}))
	counts := map[Name]int{}
	for _, name := range []Name{"e1", "e2", "e3"} {
		name := name
		emitter.On(name, func(Event) error {
			counts[name]++
			return nil
		})
	}
	emitter.Emit("e1", nil)
	assert.Equal(t, 0, counts["e1"])
	assert.Equal(t, 0, counts["e2"])
	assert.Equal(t, 1, counts["e3"])
}

func TestEmitterSuppressionReachesNoListener(t *testing.T) {
	emitter := NewEmitter(NewRouter([]Interceptor{
		{Event: "x", Handler: func(Event) (Outcome, error) {
			return Suppress(), nil
		}},
	}))
	var named, any int
	emitter.On("x", func(Event) error { named++; return nil })
	emitter.OnAny(func(Event) error { any++; return nil })
	emitter.Emit("x", nil)
	assert.Equal(t, 0, named)
	assert.Equal(t, 0, any)
}

func TestEmitterCatchAllSeesRerouteTargets(t *testing.T) {
	emitter := NewEmitter(NewRouter([]Interceptor{
		reroute("testPass", "adHoc"),
	}))
	var seen []Name
	emitter.OnAny(func(evt Event) error {
		seen = append(seen, evt.Name)
		return nil
	})
	emitter.Emit("testPass", nil)
	assert.Equal(t, []Name{"adHoc"}, seen)
}

func TestEmitterInterceptorErrorBecomesErrEvent(t *testing.T) {
	boom := errors.New("bad handler")
	emitter := NewEmitter(NewRouter([]Interceptor{
		{Event: "e", Handler: func(Event) (Outcome, error) {
			return Outcome{}, boom
		}},
	}))
	var errEvents []*ListenerError
	emitter.On(Err, func(evt Event) error {
		errEvents = append(errEvents, evt.Data.(*ListenerError))
		return nil
	})
	var delivered int
	emitter.On("e", func(Event) error { delivered++; return nil })

	emitter.Emit("e", nil)
	assert.Equal(t, 1, delivered)
	if assert.Equal(t, 1, len(errEvents)) {
		assert.True(t, errors.Is(errEvents[0], boom))
		assert.Equal(t, Name("e"), errEvents[0].Source)
	}
}

func TestEmitterListenerErrorBecomesErrEvent(t *testing.T) {
	boom := errors.New("listener failed")
	emitter := NewEmitter(nil)
	emitter.On("e", func(Event) error { return boom })
	var errEvents int
	emitter.On(Err, func(evt Event) error {
		errEvents++
		assert.True(t, errors.Is(evt.Data.(*ListenerError), boom))
		return nil
	})
	emitter.Emit("e", nil)
	assert.Equal(t, 1, errEvents)
}

func TestEmitterErrListenerFailureDoesNotRecurse(t *testing.T) {
	emitter := NewEmitter(nil)
	var calls int
	emitter.On(Err, func(Event) error {
		calls++
		return errors.New("still failing")
	})
	emitter.On("e", func(Event) error { return errors.New("boom") })
	emitter.Emit("e", nil)
	assert.Equal(t, 1, calls)
}

func TestEmitterListenerPanicContained(t *testing.T) {
	emitter := NewEmitter(nil)
	emitter.On("e", func(Event) error { panic("oops") })
	var after int
	emitter.On("e", func(Event) error { after++; return nil })
	assert.NotPanics(t, func() {
		emitter.Emit("e", nil)
	})
	assert.Equal(t, 1, after)
}

func TestEmitSyncAggregatesListenerErrors(t *testing.T) {
	emitter := NewEmitter(nil)
	boom := errors.New("refused")
	emitter.On(RunnerStart, func(Event) error { return boom })
	emitter.On(RunnerStart, func(Event) error { return nil })

	err := emitter.EmitSync(RunnerStart, nil)
	assert.True(t, errors.Is(err, boom))

	assert.Nil(t, emitter.EmitSync(Begin, nil))
}
