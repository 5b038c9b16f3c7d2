package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/flotilla/internal/clock"
	"github.com/viant/flotilla/internal/idgen"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned by Acquire once the pool has been cancelled.
var ErrCancelled = errors.New("session pool cancelled")

// Session is one pooled remote browser session. The engine driving the
// session lives outside this package; Handle carries whatever that engine
// needs.
type Session struct {
	ID        string
	Browser   string
	CreatedAt time.Time
	Handle    interface{}
}

// Dialer establishes and tears down browser sessions against the remote
// grid. Implementations belong to the execution engine, not to the
// orchestration core.
type Dialer interface {
	Dial(ctx context.Context, browser string) (*Session, error)
	Hangup(ctx context.Context, session *Session) error
}

// Config represents session pool configuration.
type Config struct {
	// PerBrowserLimit caps concurrently open sessions per browser.
	PerBrowserLimit int `json:"perBrowserLimit" yaml:"perBrowserLimit"`

	// GridURL locates the remote session grid.
	GridURL string `json:"gridURL" yaml:"gridURL"`

	// Credentials names the scy secret resource guarding the grid.
	Credentials string `json:"credentials" yaml:"credentials"`
}

// DefaultConfig returns the default session pool configuration.
func DefaultConfig() Config {
	return Config{PerBrowserLimit: 2}
}

// Validate returns an error describing invalid settings or nil. A zero
// limit inherits the package default on construction and is valid.
func (c *Config) Validate() error {
	if c.PerBrowserLimit < 0 {
		return fmt.Errorf("sessions.perBrowserLimit must be >= 0")
	}
	return nil
}

// Option customizes a Pool.
type Option func(p *Pool)

// WithDialer overrides the session dialer.
func WithDialer(dialer Dialer) Option {
	return func(p *Pool) { p.dialer = dialer }
}

// Pool reuses remote browser sessions across tests. It is created once per
// orchestrator instance and shared by reference with every sub-runner; the
// orchestrator's cancel is the only lifecycle call it receives.
type Pool struct {
	config Config
	dialer Dialer

	cancelled atomic.Bool

	mu     sync.Mutex
	idle   map[string][]*Session
	open   map[string]int
	slotCh map[string]chan struct{}
}

// New creates a session pool. A configuration error is fatal.
func New(config Config, options ...Option) (*Pool, error) {
	if config.PerBrowserLimit == 0 {
		config.PerBrowserLimit = DefaultConfig().PerBrowserLimit
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session pool config: %w", err)
	}
	pool := &Pool{
		config: config,
		idle:   make(map[string][]*Session),
		open:   make(map[string]int),
		slotCh: make(map[string]chan struct{}),
	}
	for _, option := range options {
		option(pool)
	}
	if pool.dialer == nil {
		pool.dialer = &gridDialer{gridURL: config.GridURL, credentials: config.Credentials}
	}
	return pool, nil
}

// Acquire returns an idle session for the browser, dialing a new one while
// the per-browser limit permits, otherwise waiting for a release.
func (p *Pool) Acquire(ctx context.Context, browser string) (*Session, error) {
	if p.cancelled.Load() {
		return nil, ErrCancelled
	}
	for {
		p.mu.Lock()
		if sessions := p.idle[browser]; len(sessions) > 0 {
			session := sessions[len(sessions)-1]
			p.idle[browser] = sessions[:len(sessions)-1]
			p.mu.Unlock()
			return session, nil
		}
		if p.open[browser] < p.config.PerBrowserLimit {
			p.open[browser]++
			p.mu.Unlock()
			session, err := p.dialer.Dial(ctx, browser)
			if err != nil {
				p.mu.Lock()
				p.open[browser]--
				p.mu.Unlock()
				p.notify(browser)
				return nil, fmt.Errorf("failed to dial %v session: %w", browser, err)
			}
			return session, nil
		}
		waitCh := p.slot(browser)
		p.mu.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if p.cancelled.Load() {
			return nil, ErrCancelled
		}
	}
}

// Release returns a session to the pool for reuse. Sessions released after
// cancellation are hung up instead.
func (p *Pool) Release(session *Session) {
	if session == nil {
		return
	}
	if p.cancelled.Load() {
		p.discard(session)
		return
	}
	p.mu.Lock()
	p.idle[session.Browser] = append(p.idle[session.Browser], session)
	p.mu.Unlock()
	p.notify(session.Browser)
}

// Discard drops a broken session without returning it to the pool.
func (p *Pool) Discard(session *Session) {
	if session == nil {
		return
	}
	p.discard(session)
	p.notify(session.Browser)
}

// Warmup dials count sessions per browser ahead of the run so the first
// tests do not pay the connection cost.
func (p *Pool) Warmup(ctx context.Context, browsers []string, count int) error {
	if count <= 0 {
		return nil
	}
	if count > p.config.PerBrowserLimit {
		count = p.config.PerBrowserLimit
	}
	var warmedMu sync.Mutex
	var warmed []*Session
	group, groupCtx := errgroup.WithContext(ctx)
	for _, browser := range browsers {
		for i := 0; i < count; i++ {
			browser := browser
			group.Go(func() error {
				session, err := p.Acquire(groupCtx, browser)
				if err != nil {
					return err
				}
				warmedMu.Lock()
				warmed = append(warmed, session)
				warmedMu.Unlock()
				return nil
			})
		}
	}
	err := group.Wait()
	for _, session := range warmed {
		p.Release(session)
	}
	return err
}

// Cancel makes every subsequent Acquire fail and hangs up idle sessions.
// In-flight sessions are hung up as they are released.
func (p *Pool) Cancel() {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	idle := p.idle
	waiters := p.slotCh
	p.idle = make(map[string][]*Session)
	p.slotCh = make(map[string]chan struct{})
	p.mu.Unlock()

	for _, sessions := range idle {
		for _, session := range sessions {
			p.discard(session)
		}
	}
	for _, ch := range waiters {
		close(ch)
	}
}

// Cancelled reports whether Cancel has been called.
func (p *Pool) Cancelled() bool {
	return p.cancelled.Load()
}

func (p *Pool) discard(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.dialer.Hangup(ctx, session)
	p.mu.Lock()
	if p.open[session.Browser] > 0 {
		p.open[session.Browser]--
	}
	p.mu.Unlock()
}

// slot returns the channel closed on the next release for the browser.
// Callers must hold p.mu.
func (p *Pool) slot(browser string) chan struct{} {
	ch, ok := p.slotCh[browser]
	if !ok {
		ch = make(chan struct{})
		p.slotCh[browser] = ch
	}
	return ch
}

func (p *Pool) notify(browser string) {
	p.mu.Lock()
	ch, ok := p.slotCh[browser]
	if ok {
		delete(p.slotCh, browser)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

// gridDialer is the default dialer; it mints detached session descriptors
// so the pool is usable without a live grid. The secret resource, when
// configured, is resolved once to fail fast on bad credentials.
type gridDialer struct {
	gridURL     string
	credentials string

	credOnce sync.Once
	credErr  error
}

func (d *gridDialer) Dial(ctx context.Context, browser string) (*Session, error) {
	if d.credentials != "" {
		d.credOnce.Do(func() {
			secrets := secret.New()
			_, d.credErr = secrets.GetCredentials(ctx, d.credentials)
		})
		if d.credErr != nil {
			return nil, fmt.Errorf("failed to resolve grid credentials: %w", d.credErr)
		}
	}
	return &Session{
		ID:        idgen.New(),
		Browser:   browser,
		CreatedAt: clock.Now(),
	}, nil
}

func (d *gridDialer) Hangup(ctx context.Context, session *Session) error {
	return nil
}
