// Package turn implements the ambient per-unit-of-work turn tracker. A
// Turn is threaded explicitly through the call graph via Context rather
// than a process-global or goroutine-local: two concurrent reasoning
// invocations must never observe each other's turn, so Context is a value
// every caller owns and passes down, the same way request-scoped structs
// are passed rather than stashed in a package-level variable.
package turn

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one open reasoning-loop invocation: a session key, a stable id,
// and the ordered list of screenshot image ids recorded against it.
type Turn struct {
	ID         string
	SessionKey string
	StartedAt  time.Time
	ImageIDs   []string
}

// Context is a single unit of work's turn tracker. Begin is re-entrant:
// a nested Begin call returns the already-open outer Turn unchanged, and
// the matching End is a no-op until the outermost End runs. Create one
// Context per inbound request or scheduled-task execution; never share one
// across concurrent callers.
type Context struct {
	mu     sync.Mutex
	depth  int
	active *Turn
}

// New returns an empty, not-yet-begun turn Context.
func New() *Context {
	return &Context{}
}

// Begin opens a turn for sessionKey, or returns the already-open outer
// turn if Begin was already called without a matching End (re-entrant).
func (c *Context) Begin(sessionKey string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth++
	if c.active == nil {
		c.active = &Turn{
			ID:         uuid.NewString(),
			SessionKey: sessionKey,
			StartedAt:  time.Now(),
		}
	}
	return *c.active
}

// Current returns the open turn, if any, and whether one is open.
func (c *Context) Current() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Turn{}, false
	}
	return *c.active, true
}

// End closes the outermost matching Begin and returns the ended turn. An
// End call with no matching Begin is a no-op and returns (Turn{}, false).
func (c *Context) End() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Turn{}, false
	}
	c.depth--
	if c.depth > 0 {
		return *c.active, true
	}
	ended := *c.active
	c.active = nil
	c.depth = 0
	return ended, true
}

// RecordImage appends imageID to the turn's image list, unless it is
// already the last recorded id (duplicate recaptures collapse).
func (c *Context) RecordImage(imageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	ids := c.active.ImageIDs
	if len(ids) > 0 && ids[len(ids)-1] == imageID {
		return
	}
	c.active.ImageIDs = append(ids, imageID)
}
