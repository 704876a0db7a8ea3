// Package persistence defines the row-level data model (sessions, messages,
// scheduled tasks, task run logs, skills) and the Store
// contract every backend (memstore, postgres) must satisfy.
package persistence

import "time"

// MessageKind tags the variant a Message carries: user input, assistant
// text/tool-calls, a tool's result, or a system observation.
type MessageKind string

const (
	MessageUser              MessageKind = "user"
	MessageAssistant         MessageKind = "assistant"
	MessageToolResult        MessageKind = "tool-result"
	MessageSystemObservation MessageKind = "system-observation"
)

// Session is a single conversational context with the reasoning loop.
type Session struct {
	Key           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	MessageCount  int
	TokenEstimate int
	Metadata      map[string]any
}

// ToolCallRequest is one tool invocation requested by the chat model in an
// assistant message.
type ToolCallRequest struct {
	ID       string
	Name     string
	ArgsJSON string
}

// Message is a single row in a session's ordered message log.
type Message struct {
	ID            string
	SessionKey    string
	TurnID        string
	Position      int
	Kind          MessageKind
	Content       string
	ImageID       string // optional; set when this message carries a screenshot reference
	ToolCalls     []ToolCallRequest
	ToolCallID    string // for MessageToolResult: the request this answers
	ToolResult    string
	TokenEstimate int
	IsCompressed  bool
	CreatedAt     time.Time
}

// ScheduledTask is a cron-driven unit of work.
type ScheduledTask struct {
	ID            string
	Name          string
	Description   string
	CronExpr      string
	Command       string
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastRunAt     *time.Time
	LastRunStatus string // "", "SUCCESS", "FAILED", "RUNNING"
	RunCount      int
}

// TaskRunLog records one execution of a ScheduledTask.
type TaskRunLog struct {
	ID         int64
	TaskID     string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     string
	Output     string
	ErrorText  string
	DurationMS int64
}

// Skill is a loaded/installed skill definition.
type Skill struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Version       string
	Author        string
	Body          string // markdown knowledge body, below the frontmatter
	Command       string
	Enabled       bool
	InstallSource string
	LastUsedAt    *time.Time
	UseCount      int
}
