// Package tools implements ToolRegistry: the union of built-in OS-control
// tools and dynamically loaded skill tools the reasoning loop dispatches
// against.
package tools

import (
	"context"

	"lavis/internal/llm"
)

// Spec is one tool's specification, as surfaced to the chat model and to
// HTTP/introspection callers.
type Spec struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
	IsVisualImpact  bool // true if executing this tool can change what's on screen
}

// Tool is a single dispatchable tool implementation.
type Tool interface {
	Spec() Spec
	// Execute runs the tool and returns a result string. Execute must
	// never panic on malformed input; invalid arguments are reported as a
	// returned Go error, which Registry.Execute turns into a
	// FailureMarker-prefixed result string so the reasoning loop can
	// inject it as an ordinary tool-result message.
	Execute(ctx context.Context, argsJSON []byte) (string, error)
}

// ToSchemas converts specs into the llm package's provider-facing shape.
func ToSchemas(specs []Spec) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.ParameterSchema})
	}
	return out
}
