package flotilla

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/flotilla/service/sessions"
	"github.com/viant/flotilla/service/workers"
)

// Config is a serialisable representation of the orchestrator configuration.
// It can be populated from YAML, environment variables or code. The
// zero-value is useful - all nested fields inherit their package defaults.
type Config struct {
	Workers  workers.Config  `json:"workers" yaml:"workers"`
	Sessions sessions.Config `json:"sessions" yaml:"sessions"`

	// RetryLimit is the number of additional attempts a failed test gets
	// before it is reported as failed.
	RetryLimit int `json:"retryLimit" yaml:"retryLimit"`

	// Warmup pre-dials sessions for every browser before tests start.
	Warmup bool `json:"warmup" yaml:"warmup"`

	// ReportURL, when set, persists finished run reports under this base
	// URL (any scheme afs understands).
	ReportURL string `json:"reportURL" yaml:"reportURL"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Workers:  workers.DefaultConfig(),
		Sessions: sessions.DefaultConfig(),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := c.Workers.Validate(); err != nil {
		return err
	}
	if err := c.Sessions.Validate(); err != nil {
		return err
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("retryLimit must be >= 0")
	}
	return nil
}

// LoadConfig reads a YAML configuration document from the supplied URL,
// expanding ${env.KEY} expressions before decoding. Fields absent from the
// document keep their defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	config := DefaultConfig()
	expanded := expandEnvExpr(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// expandEnvExpr replaces all occurrences of ${env.KEY} in the input with the
// value of the environment variable KEY, or "" when unset. Expressions with
// a malformed key are left as literal text.
func expandEnvExpr(value string) string {
	const prefix = "${env."
	var b strings.Builder
	for {
		idx := strings.Index(value, prefix)
		if idx < 0 {
			b.WriteString(value)
			return b.String()
		}
		b.WriteString(value[:idx])
		rest := value[idx+len(prefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 || !validEnvKey(rest[:end]) {
			b.WriteString(prefix)
			value = rest
			continue
		}
		b.WriteString(os.Getenv(rest[:end]))
		value = rest[end+1:]
	}
}

func validEnvKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
