// Package llm defines the provider-agnostic chat abstraction the reasoning
// loop talks to. Concrete adapters for Anthropic, OpenAI-compatible, and
// Google Gemini backends live in the anthropic, openai, and google
// subpackages.
package llm

import "context"

// ToolCall is a single tool invocation the model asked for.
type ToolCall struct {
	ID   string
	Name string
	Args []byte // raw JSON arguments
}

// ImageContent is an inline image attached to a Message: used both for
// screenshots sent to the model as input and for the placeholder
// bookkeeping ConversationMemory performs on eviction.
type ImageContent struct {
	ImageID  string
	MIMEType string // e.g. "image/png"
	Data     []byte // nil once evicted/compressed; the ImageID still resolves via ColdStorage
}

// Message is one entry in a chat request/response. Role is one of "system",
// "user", "assistant", or "tool". An Image field lets screenshots travel as
// multimodal user content instead of only as model-generated output.
type Message struct {
	Role      string
	Content   string
	Image     *ImageContent
	ToolCalls []ToolCall
	ToolID    string // set on "tool" role messages; the ToolCall.ID being answered
}

// ToolSchema is a tool specification sent to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatResult is what a model call returns: either free text, or one or more
// tool-call requests. Providers may return trailing text alongside calls;
// the loop treats ToolCalls as authoritative when present.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the narrow boundary contract every chat backend implements:
// generate(messages, toolSpecs) -> { text?, toolRequests[] }. Streaming is
// intentionally not part of this contract: the reasoning loop makes a
// single blocking call per step and expects one text response, not
// incremental deltas.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (ChatResult, error)
}

// Available reports whether a provider is configured well enough to use
// (e.g. has a model configured). The reasoning loop uses it to short-circuit
// a configuration/availability failure before opening a turn.
type Available interface {
	Available() bool
}
