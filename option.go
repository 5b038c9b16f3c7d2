package flotilla

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/viant/flotilla/event"
	"github.com/viant/flotilla/progress"
	"github.com/viant/flotilla/reporter"
	"github.com/viant/flotilla/runner"
	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
	"github.com/viant/flotilla/tracing"
)

// Option customises a Service.
type Option func(s *Service)

// WithInterceptors registers the ordered interceptor list applied to every
// emission before it reaches external listeners.
func WithInterceptors(interceptors ...event.Interceptor) Option {
	return func(s *Service) {
		s.interceptors = append(s.interceptors, interceptors...)
	}
}

// WithRunnerFactory replaces the default per-browser runner implementation.
func WithRunnerFactory(factory runner.Factory) Option {
	return func(s *Service) {
		s.runnerFactory = factory
	}
}

// WithSessionPool supplies a pre-built session pool; the pool is shared
// across every run of this service.
func WithSessionPool(pool *sessions.Pool) Option {
	return func(s *Service) {
		s.sessions = pool
	}
}

// WithSessionDialer sets the dialer used by the default session pool.
func WithSessionDialer(dialer sessions.Dialer) Option {
	return func(s *Service) {
		s.sessionOptions = append(s.sessionOptions, sessions.WithDialer(dialer))
	}
}

// WithWorkerExecutor sets the executor used by the default worker pool.
func WithWorkerExecutor(executor workers.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithWorkerPoolFactory replaces worker pool construction entirely; the
// factory is invoked once per run.
func WithWorkerPoolFactory(factory PoolFactory) Option {
	return func(s *Service) {
		s.poolFactory = factory
	}
}

// WithReporter attaches a reporter to the service event stream.
func WithReporter(r *reporter.Reporter) Option {
	return func(s *Service) {
		s.reporter = r
	}
}

// WithProgress attaches a progress tracker to the service event stream.
func WithProgress(p *progress.Progress) Option {
	return func(s *Service) {
		s.progress = p
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling integrations beyond the built-in stdout exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
