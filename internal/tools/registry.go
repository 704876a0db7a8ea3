package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// FailureMarker prefixes every tool-execution-failure string returned by
// Execute, giving the reasoning loop (and any downstream log scraping) an
// unambiguous way to recognize a failed dispatch without parsing prose.
const FailureMarker = "TOOL_ERROR:"

// CompleteToolName is the reserved terminator tool name. Execute still
// dispatches it like any other tool (it has no side effect); the
// reasoning loop recognizes the name to stop iterating.
const CompleteToolName = "complete_tool"

// Registry is ToolRegistry: the union of built-in and skill tools,
// globally unique by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t under its own name. Returns an error if the name is
// already registered (built-in/skill name collisions are rejected at
// registration).
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Spec().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: %q is already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Unregister removes a tool by name (used when a skill is deleted/reloaded).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Specifications returns every registered tool's Spec, sorted by name for
// deterministic prompt construction.
func (r *Registry) Specifications() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Spec())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute dispatches name with argsJSON and always returns a non-empty
// string: a successful result, or a FailureMarker-prefixed string on any
// failure (unknown tool, malformed args, execution error). It never
// returns a Go error to the caller — the reasoning loop treats every
// outcome as a tool-result message body.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON []byte) string {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("%s tool %q is not registered", FailureMarker, name)
	}
	if len(argsJSON) == 0 {
		argsJSON = []byte("{}")
	}
	if !json.Valid(argsJSON) {
		return fmt.Sprintf("%s tool %q received malformed JSON arguments", FailureMarker, name)
	}
	result, err := t.Execute(ctx, argsJSON)
	if err != nil {
		return fmt.Sprintf("%s %v", FailureMarker, err)
	}
	if result == "" {
		return fmt.Sprintf("%s tool %q returned an empty result", FailureMarker, name)
	}
	return result
}

// IsVisualImpactTool reports whether executing name can change what's on
// screen, driving the reasoning loop's adaptive wait and forced recapture.
func (r *Registry) IsVisualImpactTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	return t.Spec().IsVisualImpact
}
