package skills

import (
	"context"
	"testing"
	"time"

	"lavis/internal/persistence"
	"lavis/internal/persistence/memstore"
	"lavis/internal/tools"
)

type collisionTool struct{}

func (collisionTool) Spec() tools.Spec { return tools.Spec{Name: "taken"} }
func (collisionTool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	return "ok", nil
}

func TestRegistrarSyncRegistersAndRemovesOnReload(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := memstore.New()
	svc := NewService(loader, store, NewExecutionContext(), &fakeExecutor{}, time.Second)
	registry := tools.NewRegistry()
	registrar := NewRegistrar(registry, svc)

	if err := loader.Write(persistence.Skill{ID: "s1", Name: "s1-tool", Command: "shell:echo hi"}); err != nil {
		t.Fatal(err)
	}
	if errs := registrar.Sync(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !registry.IsVisualImpactTool("s1-tool") {
		t.Fatal("expected skill tool registered")
	}

	if err := loader.Delete("s1"); err != nil {
		t.Fatal(err)
	}
	if errs := registrar.Sync(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	specs := registry.Specifications()
	for _, s := range specs {
		if s.Name == "s1-tool" {
			t.Fatal("expected skill tool unregistered after delete")
		}
	}
}

func TestRegistrarSyncRejectsNameCollision(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := memstore.New()
	svc := NewService(loader, store, NewExecutionContext(), &fakeExecutor{}, time.Second)
	registry := tools.NewRegistry()
	registrar := NewRegistrar(registry, svc)

	if err := registry.Register(collisionTool{}); err != nil {
		t.Fatal(err)
	}
	if err := loader.Write(persistence.Skill{ID: "s1", Name: "taken", Command: "shell:echo hi"}); err != nil {
		t.Fatal(err)
	}
	errs := registrar.Sync()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one collision error, got %v", errs)
	}
}
