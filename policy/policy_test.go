package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	testCases := []struct {
		description string
		policy      *Policy
		browser     string
		expect      bool
	}{
		{description: "nil policy allows everything", policy: nil, browser: "chrome", expect: true},
		{description: "empty policy allows everything", policy: &Policy{}, browser: "chrome", expect: true},
		{description: "block list wins", policy: &Policy{AllowList: []string{"chrome"}, BlockList: []string{"chrome"}}, browser: "chrome", expect: false},
		{description: "allow list admits listed", policy: &Policy{AllowList: []string{"firefox"}}, browser: "firefox", expect: true},
		{description: "allow list rejects unlisted", policy: &Policy{AllowList: []string{"firefox"}}, browser: "safari", expect: false},
		{description: "case insensitive", policy: &Policy{BlockList: []string{"Safari"}}, browser: "safari", expect: false},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, testCase.policy.IsAllowed(testCase.browser), testCase.description)
	}
}

func TestContextRoundTrip(t *testing.T) {
	p := &Policy{AllowList: []string{"chrome"}}
	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
