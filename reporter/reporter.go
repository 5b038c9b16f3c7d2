// Package reporter aggregates lifecycle events into per-run results and
// renders human readable summaries. It is a passive consumer: attach it to
// an event stream and it observes, never influencing run semantics.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/metrics"
	"github.com/viant/flotilla/model"
	"github.com/viant/flotilla/service/dao/store"
)

// BrowserStats aggregates test outcomes for one browser within a run.
type BrowserStats struct {
	Browser string `json:"browser"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
	Retried int    `json:"retried"`
}

// RunResult is the aggregate outcome of a single run.
type RunResult struct {
	RunID      string                   `json:"runId"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
	Browsers   []string                 `json:"browsers"`
	Stats      map[string]*BrowserStats `json:"stats"`
	Results    []*model.TestResult      `json:"results"`
}

// Passed reports whether the run completed without failures.
func (r *RunResult) Passed() bool {
	for _, s := range r.Stats {
		if s.Failed > 0 {
			return false
		}
	}
	return true
}

// Failures returns results with a failed status, in recorded order.
func (r *RunResult) Failures() []*model.TestResult {
	var failures []*model.TestResult
	for _, res := range r.Results {
		if res.Status == model.TestStatusFail {
			failures = append(failures, res)
		}
	}
	return failures
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithOutput redirects the rendered summary; default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Reporter) {
		r.out = w
	}
}

// WithReportURL enables persistence of finished run results as JSON
// documents under the supplied base URL (any scheme afs understands).
func WithReportURL(URL string) Option {
	return func(r *Reporter) {
		r.reportURL = URL
	}
}

// Reporter listens on an event stream and aggregates run results.
type Reporter struct {
	mu        sync.Mutex
	runs      *store.MemoryStore[string, RunResult]
	current   *RunResult
	fs        afs.Service
	reportURL string
	out       io.Writer
}

// New creates a Reporter.
func New(options ...Option) *Reporter {
	ret := &Reporter{
		runs: store.NewMemoryStore[string, RunResult](func(r *RunResult) string {
			return r.RunID
		}),
		fs:  afs.New(),
		out: os.Stdout,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Attach subscribes the reporter to all events on the supplied emitter.
func (r *Reporter) Attach(emitter *event.Emitter) {
	emitter.OnAny(r.observe)
}

// Run returns the aggregate for a given run id, or nil when unknown.
func (r *Reporter) Run(ctx context.Context, runID string) (*RunResult, error) {
	return r.runs.Load(ctx, runID)
}

// Runs returns all recorded run results.
func (r *Reporter) Runs(ctx context.Context) ([]*RunResult, error) {
	return r.runs.List(ctx)
}

func (r *Reporter) observe(evt event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Name {
	case event.RunnerStart:
		info, ok := evt.Data.(*model.RunInfo)
		if !ok {
			return nil
		}
		r.current = &RunResult{
			RunID:     info.RunID,
			StartedAt: info.StartedAt,
			Browsers:  append([]string(nil), info.Browsers...),
			Stats:     make(map[string]*BrowserStats),
		}
		for _, browser := range info.Browsers {
			r.current.Stats[browser] = &BrowserStats{Browser: browser}
		}
	case event.TestPass, event.TestFail, event.TestPending:
		r.record(evt)
	case event.Retry:
		if res, ok := evt.Data.(*model.TestResult); ok && r.current != nil {
			r.stats(res.Browser).Retried++
			metrics.RecordRetry(res.Browser)
		}
	case event.End:
		r.finish()
	}
	return nil
}

func (r *Reporter) record(evt event.Event) {
	if r.current == nil {
		return
	}
	res, ok := evt.Data.(*model.TestResult)
	if !ok {
		return
	}
	r.current.Results = append(r.current.Results, res)
	stats := r.stats(res.Browser)
	switch res.Status {
	case model.TestStatusPass:
		stats.Passed++
	case model.TestStatusFail:
		stats.Failed++
	case model.TestStatusPending:
		stats.Pending++
	}
	metrics.RecordTest(res.Browser, string(res.Status))
}

func (r *Reporter) stats(browser string) *BrowserStats {
	stats, ok := r.current.Stats[browser]
	if !ok {
		stats = &BrowserStats{Browser: browser}
		r.current.Stats[browser] = stats
	}
	return stats
}

func (r *Reporter) finish() {
	if r.current == nil {
		return
	}
	result := r.current
	r.current = nil
	result.FinishedAt = clock.Now()

	outcome := "pass"
	if !result.Passed() {
		outcome = "fail"
	}
	metrics.RecordRun(outcome, result.FinishedAt.Sub(result.StartedAt))

	_ = r.runs.Save(context.Background(), result)
	if r.out != nil {
		_, _ = fmt.Fprintln(r.out, Summary(result))
	}
	if r.reportURL != "" {
		_ = r.persist(result)
	}
}

func (r *Reporter) persist(result *RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	URL := fmt.Sprintf("%v/%v.json", r.reportURL, result.RunID)
	return r.fs.Upload(context.Background(), URL, file.DefaultFileOsMode, bytes.NewReader(data))
}

// Summary renders a per-browser outcome table followed by failure diffs.
func Summary(result *RunResult) string {
	writer := table.NewWriter()
	writer.SetTitle("run %v", result.RunID)
	writer.AppendHeader(table.Row{"Browser", "Passed", "Failed", "Pending", "Retried"})

	browsers := make([]string, 0, len(result.Stats))
	for browser := range result.Stats {
		browsers = append(browsers, browser)
	}
	sort.Strings(browsers)

	var passed, failed, pending, retried int
	for _, browser := range browsers {
		stats := result.Stats[browser]
		writer.AppendRow(table.Row{browser, stats.Passed, stats.Failed, stats.Pending, stats.Retried})
		passed += stats.Passed
		failed += stats.Failed
		pending += stats.Pending
		retried += stats.Retried
	}
	writer.AppendFooter(table.Row{"total", passed, failed, pending, retried})

	var buf bytes.Buffer
	buf.WriteString(writer.Render())
	for _, failure := range result.Failures() {
		buf.WriteString("\n\n")
		buf.WriteString(fmt.Sprintf("FAIL %v [%v]", failure.TestName, failure.Browser))
		if failure.Error != "" {
			buf.WriteString(": " + failure.Error)
		}
		if diff := Diff(failure); diff != "" {
			buf.WriteString("\n" + diff)
		}
	}
	return buf.String()
}

// Diff renders a unified diff between the expected and actual output of a
// failed test, or an empty string when either side is absent.
func Diff(result *model.TestResult) string {
	if result.Expected == "" && result.Actual == "" {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(result.Expected),
		B:        difflib.SplitLines(result.Actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
