package model

// TestItem is a single unit of browser test work. The orchestration core
// treats the payload as opaque - only the sub-runner implementation that
// finally executes the item is expected to understand it.
type TestItem struct {
	ID      string
	Name    string
	Browser string
	Payload interface{}
}

// Collection groups test items by browser identifier. Browser order is
// preserved as first seen, so fan-out across browsers is deterministic.
type Collection struct {
	order  []string
	groups map[string][]*TestItem
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{groups: make(map[string][]*TestItem)}
}

// Add appends tests to the supplied browser group, registering the browser
// on first use.
func (c *Collection) Add(browser string, tests ...*TestItem) *Collection {
	if _, ok := c.groups[browser]; !ok {
		c.order = append(c.order, browser)
		c.groups[browser] = nil
	}
	c.groups[browser] = append(c.groups[browser], tests...)
	return c
}

// Browsers returns the browser identifiers in first-seen order.
func (c *Collection) Browsers() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Tests returns the ordered tests grouped under the supplied browser.
func (c *Collection) Tests(browser string) []*TestItem {
	if c == nil {
		return nil
	}
	return c.groups[browser]
}

// Size returns the total number of test items across all browsers.
func (c *Collection) Size() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, tests := range c.groups {
		total += len(tests)
	}
	return total
}

// Single builds a one-entry collection holding just the supplied test; it is
// used when a test is injected into an already-running session.
func Single(browser string, test *TestItem) *Collection {
	return NewCollection().Add(browser, test)
}
