package model

import "time"

// TestStatus represents the terminal outcome of one test item.
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusPending TestStatus = "pending"
)

// TestResult is the payload carried by per-test lifecycle events. The
// orchestration core never inspects it; sub-runners produce it and
// reporting consumes it.
type TestResult struct {
	Browser   string
	TestID    string
	TestName  string
	SessionID string
	Status    TestStatus
	Attempt   int
	Duration  time.Duration
	Output    string
	Expected  string
	Actual    string
	Error     string
}

// RunInfo is the payload of run-level lifecycle events.
type RunInfo struct {
	RunID     string
	Browsers  []string
	StartedAt time.Time
}
