// Package sessions pools remote browser sessions for reuse across tests.
// The pool is created once per orchestrator and shared by reference with
// every sub-runner; cancellation is advisory and makes further acquisition
// fail.
package sessions
