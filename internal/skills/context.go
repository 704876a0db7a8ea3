package skills

import "sync"

// ExecutionContext holds the knowledge body of the skill currently being
// executed, visible to exactly one subsequent reasoning invocation.
// ReasoningLoop reads it when building its system prompt and never
// mutates it; SkillService is the only writer.
type ExecutionContext struct {
	mu   sync.Mutex
	body string
	set  bool
}

// NewExecutionContext returns an empty ExecutionContext.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{}
}

// Set installs body as the active skill context, replacing any prior one.
func (c *ExecutionContext) Set(body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = body
	c.set = true
}

// Take returns the active skill context and clears it, so a second caller
// in the same process sees none: callers consume it via Take exactly once
// per reasoning invocation rather than relying on a separate Clear call
// that a crash could skip.
func (c *ExecutionContext) Take() (body string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return "", false
	}
	body, ok = c.body, true
	c.body, c.set = "", false
	return body, ok
}

// Clear discards the active context without returning it, used by
// SkillService when execution fails before the reasoning loop ever reads
// it.
func (c *ExecutionContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body, c.set = "", false
}
