package event

import "fmt"

type outcomeKind int

const (
	outcomePassthrough outcomeKind = iota
	outcomeSuppress
	outcomeReroute
)

// Outcome is the explicit result of one interceptor handler invocation.
type Outcome struct {
	kind  outcomeKind
	event Event
}

// Passthrough leaves the current (event, data) pair unchanged.
func Passthrough() Outcome { return Outcome{kind: outcomePassthrough} }

// Suppress terminates the reduction; nothing is re-emitted.
func Suppress() Outcome { return Outcome{kind: outcomeSuppress} }

// Reroute replaces the current pair with (name, data).
func Reroute(name Name, data interface{}) Outcome {
	if name == "" {
		return Suppress()
	}
	return Outcome{kind: outcomeReroute, event: Event{Name: name, Data: data}}
}

// Handler transforms an emission. A returned error is isolated to this
// handler: the reduction continues with the current pair unchanged and the
// error is surfaced as an Err event by the emitter.
type Handler func(Event) (Outcome, error)

// Interceptor binds a handler to the event name that triggers it. Several
// interceptors may share a triggering name; they apply in registration
// order.
type Interceptor struct {
	Event   Name
	Handler Handler
}

// Router reduces a raw emission through the registered interceptors into
// zero or one final emission. The interceptor list is captured at
// construction and never mutated, so reduction needs no locking.
type Router struct {
	groups map[Name][]Interceptor
}

// NewRouter builds a router over the supplied ordered interceptor list.
func NewRouter(interceptors []Interceptor) *Router {
	groups := make(map[Name][]Interceptor, len(interceptors))
	for _, interceptor := range interceptors {
		if interceptor.Event == "" || interceptor.Handler == nil {
			continue
		}
		groups[interceptor.Event] = append(groups[interceptor.Event], interceptor)
	}
	return &Router{groups: groups}
}

// Reduce applies the interception algorithm to the supplied emission. It
// returns the final event and true, or a zero event and false when the
// emission was suppressed. Handler errors are collected and returned; they
// never abort the reduction.
//
// Interceptors are grouped by the name that triggered the current pass, not
// re-queried per handler, so independently registered interceptors chain
// deterministically on one original event. The visited set guarantees
// termination when interceptors form a cycle.
func (r *Router) Reduce(emitted Event) (Event, bool, []error) {
	if r == nil || len(r.groups) == 0 {
		return emitted, true, nil
	}
	var errs []error
	visited := map[Name]bool{emitted.Name: true}
	current := emitted
	trigger := emitted.Name
	for {
		group := r.groups[trigger]
		if len(group) == 0 {
			return current, true, errs
		}
		for i := range group {
			outcome, err := applyHandler(group[i].Handler, current)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			switch outcome.kind {
			case outcomePassthrough:
			case outcomeSuppress:
				return Event{}, false, errs
			case outcomeReroute:
				current = outcome.event
			}
		}
		if current.Name == trigger || visited[current.Name] {
			return current, true, errs
		}
		visited[current.Name] = true
		trigger = current.Name
	}
}

func applyHandler(handler Handler, current Event) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Passthrough()
			err = fmt.Errorf("interceptor panic on %q: %v", current.Name, r)
		}
	}()
	return handler(current)
}
