package tools

import (
	"context"
	"strings"
	"testing"
)

type echoTool struct{ spec Spec }

func (e echoTool) Spec() Spec { return e.spec }
func (e echoTool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	return "ok:" + string(argsJSON), nil
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool{spec: Spec{Name: "dup"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool{spec: Spec{Name: "dup"}}); err == nil {
		t.Fatal("expected duplicate registration to error")
	}
}

func TestExecuteUnknownToolReturnsFailureMarker(t *testing.T) {
	r := NewRegistry()
	out := r.Execute(context.Background(), "missing", nil)
	if !strings.HasPrefix(out, FailureMarker) {
		t.Fatalf("expected failure marker, got %q", out)
	}
}

func TestExecuteMalformedArgsReturnsFailureMarker(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool{spec: Spec{Name: "t1"}})
	out := r.Execute(context.Background(), "t1", []byte("{not json"))
	if !strings.HasPrefix(out, FailureMarker) {
		t.Fatalf("expected failure marker for malformed json, got %q", out)
	}
}

func TestIsVisualImpactTool(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool{spec: Spec{Name: "click", IsVisualImpact: true}})
	_ = r.Register(echoTool{spec: Spec{Name: "wait"}})

	if !r.IsVisualImpactTool("click") {
		t.Fatal("click should be visual-impact")
	}
	if r.IsVisualImpactTool("wait") {
		t.Fatal("wait should not be visual-impact")
	}
	if r.IsVisualImpactTool("missing") {
		t.Fatal("unknown tool should not be visual-impact")
	}
}

func TestSpecificationsSortedByName(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool{spec: Spec{Name: "zebra"}})
	_ = r.Register(echoTool{spec: Spec{Name: "alpha"}})
	specs := r.Specifications()
	if len(specs) != 2 || specs[0].Name != "alpha" || specs[1].Name != "zebra" {
		t.Fatalf("expected sorted specs, got %+v", specs)
	}
}
