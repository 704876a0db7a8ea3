package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lavis/internal/command"
	"lavis/internal/persistence"
	"lavis/internal/tools/cli"
)

// AgentRunner is the narrow slice of ReasoningLoop a skill's "agent:"
// command dispatches into. Defined here (rather than importing the
// reasoning package directly) to avoid a cyclic dependency: reasoning
// depends on skills for the execution-context it reads, skills depends on
// reasoning only through this interface.
type AgentRunner interface {
	Run(ctx context.Context, goal string) (string, error)
}

// Service is SkillService: list/get/create/update/delete/execute/reload/
// list-categories over the skills the Loader has parsed. Create and Update
// also upsert the skill into persistence.SkillStore, and Execute records
// usage there. The enabled flag is read from the Loader only, which marks
// every skill it writes or parses enabled; the flag kept in the store is
// not read back.
type Service struct {
	loader      *Loader
	store       persistence.SkillStore
	execCtx     *ExecutionContext
	shell       cli.Executor
	agent       AgentRunner
	invalidator *Invalidator

	shellTimeout time.Duration
}

// NewService builds a Service. agent may be nil until the reasoning loop
// is constructed; "agent:" skills fail with a descriptive error until it
// is wired in via SetAgentRunner.
func NewService(loader *Loader, store persistence.SkillStore, execCtx *ExecutionContext, shell cli.Executor, shellTimeout time.Duration) *Service {
	return &Service{loader: loader, store: store, execCtx: execCtx, shell: shell, shellTimeout: shellTimeout}
}

// SetAgentRunner wires the reasoning loop in after construction, breaking
// the natural initialization cycle (the reasoning loop needs a built tool
// registry, which needs skill tools, which need a Service).
func (s *Service) SetAgentRunner(agent AgentRunner) {
	s.agent = agent
}

// SetInvalidator wires in cross-process hot-reload broadcast (nil is
// valid and disables it).
func (s *Service) SetInvalidator(inv *Invalidator) {
	s.invalidator = inv
}

func (s *Service) publishInvalidation(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Publish(ctx); err != nil {
		_ = err // best-effort: the local hot-reload tick still converges eventually
	}
}

// List returns every loaded skill.
func (s *Service) List() []persistence.Skill {
	return s.loader.List()
}

// Get returns one skill by id.
func (s *Service) Get(id string) (persistence.Skill, bool) {
	return s.loader.Get(id)
}

// Categories returns the distinct, non-empty categories across every
// loaded skill, sorted.
func (s *Service) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, sk := range s.loader.List() {
		if sk.Category == "" || seen[sk.Category] {
			continue
		}
		seen[sk.Category] = true
		out = append(out, sk.Category)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Create writes a new skill to disk and records it in the store. id
// defaults to a generated uuid if empty.
func (s *Service) Create(ctx context.Context, skill persistence.Skill) (persistence.Skill, error) {
	if skill.ID == "" {
		skill.ID = uuid.NewString()
	}
	if skill.Name == "" || skill.Command == "" {
		return persistence.Skill{}, fmt.Errorf("skills: name and command are required")
	}
	skill.Enabled = true
	if err := s.loader.Write(skill); err != nil {
		return persistence.Skill{}, err
	}
	out, err := s.store.UpsertSkill(ctx, skill)
	s.publishInvalidation(ctx)
	return out, err
}

// Update overwrites an existing skill's file and store row.
func (s *Service) Update(ctx context.Context, skill persistence.Skill) (persistence.Skill, error) {
	if _, ok := s.loader.Get(skill.ID); !ok {
		return persistence.Skill{}, persistence.ErrNotFound
	}
	if err := s.loader.Write(skill); err != nil {
		return persistence.Skill{}, err
	}
	out, err := s.store.UpsertSkill(ctx, skill)
	s.publishInvalidation(ctx)
	return out, err
}

// Delete removes a skill from disk, the loader, and the store.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.loader.Delete(id); err != nil {
		return err
	}
	err := s.store.DeleteSkill(ctx, id)
	s.publishInvalidation(ctx)
	return err
}

// Reload forces an immediate re-walk of the skills directory outside the
// regular hot-reload cadence.
func (s *Service) Reload(ctx context.Context) error {
	return s.loader.Reload(ctx)
}

// Execute runs skill id with the given parameters: substitute {{param}}
// placeholders in its command, install its body as the one-shot
// ExecutionContext, dispatch per the command grammar, then clear the
// context on every return path.
func (s *Service) Execute(ctx context.Context, id string, params map[string]string) (string, error) {
	skill, ok := s.loader.Get(id)
	if !ok {
		return "", persistence.ErrNotFound
	}
	if !skill.Enabled {
		return "", fmt.Errorf("skills: %q is disabled", skill.Name)
	}

	resolved := substituteParams(skill.Command, params)
	s.execCtx.Set(skill.Body)
	defer s.execCtx.Clear()

	kind, payload := command.Parse(resolved)
	var (
		result string
		err    error
	)
	switch kind {
	case command.Agent:
		if s.agent == nil {
			err = fmt.Errorf("skills: agent runner not yet available")
			break
		}
		result, err = s.agent.Run(ctx, payload)
	default:
		var res cli.Result
		res, err = s.shell.Run(ctx, cli.Request{Shell: payload, Timeout: s.shellTimeout})
		if err == nil {
			result = res.Stdout
			if !res.OK {
				err = fmt.Errorf("skills: shell command exited %d: %s", res.ExitCode, res.Stderr)
			}
		}
	}

	if recErr := s.store.RecordSkillUse(ctx, id); recErr != nil {
		// Usage-tracking is best-effort; it must never mask the real
		// execution outcome.
		_ = recErr
	}
	return result, err
}

// substituteParams replaces every {{key}} occurrence in cmd with its
// value from params. Unmatched placeholders are left verbatim so a
// missing parameter surfaces as a visible error in the downstream command
// rather than silently vanishing.
func substituteParams(cmd string, params map[string]string) string {
	if len(params) == 0 {
		return cmd
	}
	out := cmd
	for k, v := range params {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
