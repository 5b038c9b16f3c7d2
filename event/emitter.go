package event

import (
	"errors"
	"fmt"
	"sync"
)

// Listener consumes a routed emission. A returned error does not stop the
// emission; the emitter re-emits it as a structured Err event (or, for
// EmitSync, returns it to the caller as well).
type Listener func(Event) error

// ListenerError is the payload of Err events produced when a listener or an
// interceptor handler fails while processing an emission.
type ListenerError struct {
	Source Name
	Err    error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("event %q: %v", e.Source, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// Emitter is a routed publish/subscribe hub. Every emission is first reduced
// through the interceptor router; the surviving event, if any, is dispatched
// to listeners bound to its final name and to catch-all listeners.
//
// Emitter is safe for concurrent use; sub-runners emit from their own
// goroutines.
type Emitter struct {
	router *Router

	mu       sync.RWMutex
	named    map[Name][]Listener
	catchAll []Listener
}

// NewEmitter returns an emitter routing through router; a nil router makes
// every emission pass through unchanged.
func NewEmitter(router *Router) *Emitter {
	return &Emitter{
		router: router,
		named:  make(map[Name][]Listener),
	}
}

// On subscribes fn to emissions whose final (post-routing) name equals name.
func (e *Emitter) On(name Name, fn Listener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.named[name] = append(e.named[name], fn)
	e.mu.Unlock()
}

// OnAny subscribes fn to every surviving emission regardless of name. This
// is the catch-all channel that also observes ad hoc names introduced by
// reroute interceptors.
func (e *Emitter) OnAny(fn Listener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.catchAll = append(e.catchAll, fn)
	e.mu.Unlock()
}

// Emit routes and dispatches one emission. Interceptor and listener failures
// are contained: each is re-emitted as an Err event and never propagates to
// the caller.
func (e *Emitter) Emit(name Name, data interface{}) {
	e.emit(Event{Name: name, Data: data})
}

// EmitSync behaves like Emit but additionally returns the aggregated
// listener errors of this emission. The orchestrator uses it for lifecycle
// events whose handlers must be awaited, such as RunnerStart.
func (e *Emitter) EmitSync(name Name, data interface{}) error {
	return errors.Join(e.emit(Event{Name: name, Data: data})...)
}

func (e *Emitter) emit(raw Event) []error {
	final, ok, handlerErrs := Event{}, false, []error(nil)
	if e.router != nil {
		final, ok, handlerErrs = e.router.Reduce(raw)
	} else {
		final, ok = raw, true
	}
	for _, err := range handlerErrs {
		e.dispatchError(&ListenerError{Source: raw.Name, Err: err})
	}
	if !ok {
		return nil
	}
	var errs []error
	for _, err := range e.dispatch(final) {
		errs = append(errs, err)
		e.dispatchError(&ListenerError{Source: final.Name, Err: err})
	}
	return errs
}

// dispatch invokes the listeners bound to ev's name plus the catch-all
// listeners, collecting their errors.
func (e *Emitter) dispatch(ev Event) []error {
	e.mu.RLock()
	listeners := append([]Listener(nil), e.named[ev.Name]...)
	listeners = append(listeners, e.catchAll...)
	e.mu.RUnlock()

	var errs []error
	for _, fn := range listeners {
		if err := safeInvoke(fn, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// dispatchError surfaces a contained failure as an Err event. Errors raised
// by Err listeners themselves are dropped so one misbehaving listener cannot
// recurse.
func (e *Emitter) dispatchError(lerr *ListenerError) {
	if lerr.Source == Err {
		return
	}
	e.dispatch(Event{Name: Err, Data: lerr})
}

func safeInvoke(fn Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic on %q: %v", ev.Name, r)
		}
	}()
	return fn(ev)
}
