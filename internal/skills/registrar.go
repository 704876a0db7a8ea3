package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lavis/internal/tools"
)

// skillTool adapts one loaded skill into a tools.Tool, so ToolRegistry
// dispatches skill-backed and built-in tools identically (a tool is either
// built-in actuator-backed, or skill-backed and dispatched through the
// skill's own command).
type skillTool struct {
	id      string
	name    string
	desc    string
	service *Service
}

func (t skillTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        t.name,
		Description: t.desc,
		ParameterSchema: map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		IsVisualImpact: true, // a skill's command may do anything to the screen; assume impact
	}
}

func (t skillTool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	params := map[string]string{}
	if len(argsJSON) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(argsJSON, &raw); err != nil {
			return "", fmt.Errorf("skills: decoding arguments: %w", err)
		}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				params[k] = s
			} else {
				b, _ := json.Marshal(v)
				params[k] = string(b)
			}
		}
	}
	return t.service.Execute(ctx, t.id, params)
}

// Registrar keeps a tools.Registry's skill-backed tools in sync with a
// Loader's current set, re-registering on every hot reload.
type Registrar struct {
	registry *tools.Registry
	service  *Service

	mu   sync.Mutex
	byID map[string]string // skill id -> registered tool name
}

// NewRegistrar builds a Registrar wiring service's skills into registry.
func NewRegistrar(registry *tools.Registry, service *Service) *Registrar {
	return &Registrar{registry: registry, service: service, byID: map[string]string{}}
}

// Sync diffs the loader's current skill set against what is currently
// registered, unregistering removed/renamed skills and registering
// new/changed ones. A skill whose tool name collides with a built-in (or
// another skill) is skipped and reported, never silently dropped.
func (r *Registrar) Sync() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.service.List()
	seen := make(map[string]bool, len(current))
	var errs []error

	for _, sk := range current {
		seen[sk.ID] = true
		if !sk.Enabled {
			if prev, ok := r.byID[sk.ID]; ok {
				r.registry.Unregister(prev)
				delete(r.byID, sk.ID)
			}
			continue
		}
		if prev, ok := r.byID[sk.ID]; ok {
			if prev == sk.Name {
				continue // unchanged
			}
			r.registry.Unregister(prev)
			delete(r.byID, sk.ID)
		}
		t := skillTool{id: sk.ID, name: sk.Name, desc: sk.Description, service: r.service}
		if err := r.registry.Register(t); err != nil {
			errs = append(errs, fmt.Errorf("skills: registering %q: %w", sk.Name, err))
			continue
		}
		r.byID[sk.ID] = sk.Name
	}

	for id, name := range r.byID {
		if !seen[id] {
			r.registry.Unregister(name)
			delete(r.byID, id)
		}
	}
	return errs
}
