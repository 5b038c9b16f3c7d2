package event

// Name identifies a lifecycle event on the orchestrator's stream.
type Name string

// Lifecycle vocabulary. Every sub-runner event with one of these names is
// synchronized onto the orchestrator's own stream after interception.
const (
	RunnerStart  Name = "runnerStart"
	Begin        Name = "begin"
	SessionStart Name = "sessionStart"
	SessionEnd   Name = "sessionEnd"
	SuiteBegin   Name = "suiteBegin"
	SuiteEnd     Name = "suiteEnd"
	TestBegin    Name = "testBegin"
	TestPass     Name = "testPass"
	TestFail     Name = "testFail"
	TestPending  Name = "testPending"
	Retry        Name = "retry"
	Err          Name = "err"
	Info         Name = "info"
	Warning      Name = "warning"
	End          Name = "end"
)

var synchronizable = []Name{
	RunnerStart, Begin,
	SessionStart, SessionEnd,
	SuiteBegin, SuiteEnd,
	TestBegin, TestPass, TestFail, TestPending, Retry,
	Err, Info, Warning,
	End,
}

// Synchronizable returns the fixed, ordered vocabulary of lifecycle event
// names. Interceptors may reroute emissions to names outside this set; such
// events still reach catch-all subscribers.
func Synchronizable() []Name {
	return append([]Name(nil), synchronizable...)
}

// IsSynchronizable reports whether n belongs to the lifecycle vocabulary.
func IsSynchronizable(n Name) bool {
	for _, candidate := range synchronizable {
		if candidate == n {
			return true
		}
	}
	return false
}

// Event is a single (name, data) emission. Data is opaque to the router and
// emitter; subscribers assert the payload types they understand.
type Event struct {
	Name Name
	Data interface{}
}
