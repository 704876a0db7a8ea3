// Package command implements the agent:/shell: command grammar shared by
// ScheduledTask.command and Skill.command.
package command

import "strings"

// Kind tags which executor a parsed command routes to.
type Kind int

const (
	// Shell spawns a child process (the default when no prefix matches).
	Shell Kind = iota
	// Agent enters the reasoning loop with the stripped goal text.
	Agent
)

const (
	agentPrefix = "agent:"
	shellPrefix = "shell:"
)

// Parse splits raw into its dispatch kind and payload, per the grammar:
// "agent:<goal>" routes to the reasoning loop, "shell:<cmd>" spawns a
// child process, and a bare string (no recognized prefix) defaults to
// shell.
func Parse(raw string) (kind Kind, payload string) {
	switch {
	case strings.HasPrefix(raw, agentPrefix):
		return Agent, strings.TrimSpace(strings.TrimPrefix(raw, agentPrefix))
	case strings.HasPrefix(raw, shellPrefix):
		return Shell, strings.TrimSpace(strings.TrimPrefix(raw, shellPrefix))
	default:
		return Shell, raw
	}
}
