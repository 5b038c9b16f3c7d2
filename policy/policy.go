package policy

import (
	"context"
	"strings"
)

// Policy narrows the set of browser targets a run may start.
//
//   - BlockList always wins over AllowList.
//   - An empty AllowList admits every browser not blocked.
//
// A nil *Policy means "run every browser" and is therefore the zero-cost
// default.
type Policy struct {
	AllowList []string
	BlockList []string
}

// IsAllowed evaluates AllowList / BlockList against a browser identifier.
// Both lists match by exact, case-insensitive comparison.
func (p *Policy) IsAllowed(browser string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(browser)
	for _, blocked := range p.BlockList {
		if normalized == strings.ToLower(blocked) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, allowed := range p.AllowList {
		if normalized == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds the policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts the policy or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
