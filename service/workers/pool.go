package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/service/messaging"
	"github.com/viant/flotilla/service/messaging/memory"
)

// ErrEnded is returned by Run once the pool has been shut down.
var ErrEnded = errors.New("worker pool ended")

// Config represents worker pool configuration.
type Config struct {
	// Count is the number of workers consuming the task queue.
	Count int `json:"count" yaml:"count"`

	// QueueBuffer bounds the number of tasks waiting for a worker.
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`

	// Host selects where test commands execute; empty or "localhost" runs
	// them on the local host, anything else is treated as an SSH endpoint.
	Host string `json:"host" yaml:"host"`

	// Credentials names the scy secret resource holding SSH credentials
	// for a remote Host.
	Credentials string `json:"credentials" yaml:"credentials"`

	// DefaultTimeout applies to tasks that do not carry their own.
	DefaultTimeout time.Duration `json:"defaultTimeout" yaml:"defaultTimeout"`
}

// DefaultConfig returns the default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Count:          4,
		QueueBuffer:    100,
		DefaultTimeout: time.Minute,
	}
}

// Validate returns an error describing invalid settings or nil. A zero
// value inherits the package default on construction and is valid.
func (c *Config) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("workers.count must be >= 0")
	}
	if c.QueueBuffer < 0 {
		return fmt.Errorf("workers.queueBuffer must be >= 0")
	}
	return nil
}

// UnmarshalYAML accepts defaultTimeout as a duration literal such as "30s".
// Absent fields keep whatever value the receiver already holds.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Count          int    `yaml:"count"`
		QueueBuffer    int    `yaml:"queueBuffer"`
		Host           string `yaml:"host"`
		Credentials    string `yaml:"credentials"`
		DefaultTimeout string `yaml:"defaultTimeout"`
	}{
		Count:       c.Count,
		QueueBuffer: c.QueueBuffer,
		Host:        c.Host,
		Credentials: c.Credentials,
	}
	if c.DefaultTimeout != 0 {
		raw.DefaultTimeout = c.DefaultTimeout.String()
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Count = raw.Count
	c.QueueBuffer = raw.QueueBuffer
	c.Host = raw.Host
	c.Credentials = raw.Credentials
	if raw.DefaultTimeout != "" {
		timeout, err := time.ParseDuration(raw.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("invalid workers.defaultTimeout: %w", err)
		}
		c.DefaultTimeout = timeout
	}
	return nil
}

// Task describes one unit of out-of-process test work.
type Task struct {
	ID      string
	Browser string
	TestID  string
	Command string
	Env     map[string]string
	Timeout time.Duration
}

// Result is the outcome of one executed task.
type Result struct {
	TaskID   string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs a single task. The default implementation shells out via
// gosh; tests substitute their own.
type Executor interface {
	Execute(ctx context.Context, task *Task) (*Result, error)
	Close(ctx context.Context) error
}

// Handle is the lifecycle surface the orchestrator owns: created once per
// run, shared read-only with every sub-runner, ended exactly once.
type Handle interface {
	Run(ctx context.Context, task *Task) (*Result, error)
	End()
	IsEnded() bool
}

type outcome struct {
	result *Result
	err    error
}

type job struct {
	task *Task
	done chan outcome
}

// Option customizes a Pool.
type Option func(p *Pool)

// WithExecutor overrides the task executor.
func WithExecutor(executor Executor) Option {
	return func(p *Pool) { p.executor = executor }
}

// Pool executes test tasks through a fixed set of workers consuming a
// shared queue.
type Pool struct {
	config   Config
	queue    messaging.Queue[job]
	executor Executor

	cancel  context.CancelFunc
	stopped context.Context
	wg      sync.WaitGroup
	ended   atomic.Bool
	endOnce sync.Once
}

var _ Handle = (*Pool)(nil)

// New creates a worker pool and starts its workers. A configuration error
// is fatal to the run that requested the pool.
func New(config Config, options ...Option) (*Pool, error) {
	if config.Count == 0 {
		config.Count = DefaultConfig().Count
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker pool config: %w", err)
	}
	pool := &Pool{config: config}
	for _, option := range options {
		option(pool)
	}
	if pool.queue == nil {
		queueConfig := memory.DefaultConfig()
		queueConfig.QueueBuffer = config.QueueBuffer
		pool.queue = memory.NewQueue[job](queueConfig)
	}
	if pool.executor == nil {
		pool.executor = NewCommandExecutor(config)
	}

	poolCtx, cancel := context.WithCancel(context.Background())
	pool.cancel = cancel
	pool.stopped = poolCtx
	for i := 0; i < config.Count; i++ {
		pool.wg.Add(1)
		go pool.worker(poolCtx, i)
	}
	return pool, nil
}

// worker consumes tasks from the queue until the pool shuts down.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		msg, err := p.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		pending := msg.T()
		result, execErr := p.execute(ctx, pending.task)
		if execErr != nil && ctx.Err() == nil && !errors.Is(execErr, context.Canceled) {
			if nackErr := msg.Nack(execErr); nackErr == nil {
				// redelivered, a later attempt settles the job
				continue
			}
			pending.done <- outcome{result: result, err: execErr}
			continue
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("worker %d: ack failed: %v", id, ackErr)
		}
		pending.done <- outcome{result: result, err: execErr}
	}
}

func (p *Pool) execute(ctx context.Context, task *Task) (*Result, error) {
	if task.Timeout == 0 {
		task.Timeout = p.config.DefaultTimeout
	}
	started := clock.Now()
	result, err := p.executor.Execute(ctx, task)
	if result != nil && result.Duration == 0 {
		result.Duration = clock.Now().Sub(started)
	}
	return result, err
}

// Run submits a task and blocks until a worker has executed it, the caller
// context ends, or the pool shuts down.
func (p *Pool) Run(ctx context.Context, task *Task) (*Result, error) {
	if p.IsEnded() {
		return nil, ErrEnded
	}
	pending := job{task: task, done: make(chan outcome, 1)}
	if err := p.queue.Publish(ctx, &pending); err != nil {
		return nil, err
	}
	select {
	case settled := <-pending.done:
		return settled.result, settled.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopped.Done():
		return nil, ErrEnded
	}
}

// End shuts the pool down gracefully. It is safe to call more than once;
// only the first call has an effect.
func (p *Pool) End() {
	p.endOnce.Do(func() {
		p.ended.Store(true)
		p.cancel()
		p.wg.Wait()
		if err := p.executor.Close(context.Background()); err != nil {
			log.Printf("worker pool: executor close failed: %v", err)
		}
	})
}

// IsEnded reports whether shutdown has begun.
func (p *Pool) IsEnded() bool {
	return p.ended.Load()
}
