package reasoning

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lavis/internal/capture"
	"lavis/internal/coldstorage"
	"lavis/internal/config"
	"lavis/internal/llm"
	"lavis/internal/memory"
	"lavis/internal/persistence/memstore"
	"lavis/internal/skills"
	"lavis/internal/tools"
)

// fakePerceiver always returns the same non-image bytes, which dHash
// cannot decode, so the DedupCapturer never dedups and its own dHash logic
// never interferes with these tests.
type fakePerceiver struct{ n int32 }

func (f *fakePerceiver) Capture(ctx context.Context) (capture.Frame, error) {
	atomic.AddInt32(&f.n, 1)
	return capture.Frame{Data: []byte("frame-bytes"), Width: 2, Height: 2}, nil
}

// scriptedChat replays one llm.ChatResult per call, looping on the last
// entry if Chat is called more times than scripted.
type scriptedChat struct {
	results []llm.ChatResult
	calls   int
}

func (s *scriptedChat) Chat(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.ChatResult, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i], nil
}

type stubTool struct {
	name   string
	visual bool
	result string
}

func (t stubTool) Spec() tools.Spec {
	return tools.Spec{Name: t.name, Description: "stub", IsVisualImpact: t.visual}
}

func (t stubTool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	return t.result, nil
}

func buildManager(t *testing.T) *memory.Manager {
	t.Helper()
	store := memstore.New()
	cold, err := coldstorage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	conv := memory.New(50, 4)
	compactor := memory.NewVisualCompactor(cold, nil)
	return memory.NewManager(store, conv, compactor, cold, nil, config.MemoryConfig{})
}

func TestRunReturnsTextWithNoToolCalls(t *testing.T) {
	chat := &scriptedChat{results: []llm.ChatResult{{Content: "hello there"}}}
	registry := tools.NewRegistry()
	perceiver := &fakePerceiver{}
	capturer := capture.NewDedupCapturer(perceiver, 10, 0, 0)
	mgr := buildManager(t)
	execCtx := skills.NewExecutionContext()

	loop := New(chat, "test-model", "you are a desktop agent", capturer, registry, mgr, execCtx, config.ReasoningConfig{MaxSteps: 5})

	out, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello there" {
		t.Fatalf("expected plain text reply, got %q", out)
	}
	if atomic.LoadInt32(&perceiver.n) != 1 {
		t.Fatalf("expected exactly one initial capture, got %d", perceiver.n)
	}
}

func TestRunDispatchesVisualImpactToolAndRecaptures(t *testing.T) {
	clickArgs, _ := json.Marshal(map[string]string{"x": "1"})
	chat := &scriptedChat{results: []llm.ChatResult{
		{ToolCalls: []llm.ToolCall{{Name: "click", Args: clickArgs}}},
		{Content: "done clicking"},
	}}
	registry := tools.NewRegistry()
	if err := registry.Register(stubTool{name: "click", visual: true, result: "clicked"}); err != nil {
		t.Fatal(err)
	}
	perceiver := &fakePerceiver{}
	capturer := capture.NewDedupCapturer(perceiver, 10, 0, 0)
	mgr := buildManager(t)
	execCtx := skills.NewExecutionContext()

	cfg := config.ReasoningConfig{MaxSteps: 5, ToolWaitDefault: time.Millisecond}
	loop := New(chat, "test-model", "system prompt", capturer, registry, mgr, execCtx, cfg)

	start := time.Now()
	out, err := loop.Run(context.Background(), "click the button")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done clicking" {
		t.Fatalf("expected final text after tool dispatch, got %q", out)
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Fatalf("expected the click adaptive wait (800ms) to be honored, elapsed %v", elapsed)
	}
	// initial capture + forced post-click recapture
	if n := atomic.LoadInt32(&perceiver.n); n != 2 {
		t.Fatalf("expected initial capture plus one forced recapture, got %d perceiver calls", n)
	}
}

func TestRunStopsOnCompleteTool(t *testing.T) {
	chat := &scriptedChat{results: []llm.ChatResult{
		{ToolCalls: []llm.ToolCall{{Name: tools.CompleteToolName, Args: []byte("{}")}}},
	}}
	registry := tools.NewRegistry()
	if err := registry.Register(stubTool{name: tools.CompleteToolName, result: "task finished"}); err != nil {
		t.Fatal(err)
	}
	perceiver := &fakePerceiver{}
	capturer := capture.NewDedupCapturer(perceiver, 10, 0, 0)
	mgr := buildManager(t)
	execCtx := skills.NewExecutionContext()

	loop := New(chat, "test-model", "system prompt", capturer, registry, mgr, execCtx, config.ReasoningConfig{MaxSteps: 10})

	out, err := loop.Run(context.Background(), "finish the task")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "max iterations") {
		t.Fatalf("expected the complete_tool call to stop the loop, got %q", out)
	}
	if atomic.LoadInt32(&perceiver.n) != 1 {
		t.Fatalf("complete_tool carries no visual impact; expected no recapture, got %d captures", perceiver.n)
	}
}

func TestRunHitsStepCap(t *testing.T) {
	alwaysClicks := llm.ChatResult{ToolCalls: []llm.ToolCall{{Name: "click"}}}
	chat := &scriptedChat{results: []llm.ChatResult{alwaysClicks}}
	registry := tools.NewRegistry()
	if err := registry.Register(stubTool{name: "click", visual: true, result: "clicked"}); err != nil {
		t.Fatal(err)
	}
	perceiver := &fakePerceiver{}
	capturer := capture.NewDedupCapturer(perceiver, 10, 0, 0)
	mgr := buildManager(t)
	execCtx := skills.NewExecutionContext()

	cfg := config.ReasoningConfig{ToolWaitDefault: time.Millisecond}
	loop := New(chat, "test-model", "system prompt", capturer, registry, mgr, execCtx, cfg)

	out, err := loop.RunWithCap(context.Background(), "keep clicking forever", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "max iterations reached") {
		t.Fatalf("expected step cap notice, got %q", out)
	}
}

func TestRunReturnsInstructionalStringWhenUnavailable(t *testing.T) {
	chat := &unavailableChat{}
	registry := tools.NewRegistry()
	perceiver := &fakePerceiver{}
	capturer := capture.NewDedupCapturer(perceiver, 10, 0, 0)
	mgr := buildManager(t)
	execCtx := skills.NewExecutionContext()

	loop := New(chat, "test-model", "system prompt", capturer, registry, mgr, execCtx, config.ReasoningConfig{})

	out, err := loop.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("the reasoning loop must never return a Go error, got %v", err)
	}
	if !strings.Contains(out, "not available") {
		t.Fatalf("expected an availability notice, got %q", out)
	}
	if atomic.LoadInt32(&perceiver.n) != 0 {
		t.Fatal("an unavailable provider must short-circuit before any screen capture")
	}
}

type unavailableChat struct{}

func (u *unavailableChat) Chat(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.ChatResult, error) {
	return llm.ChatResult{}, nil
}

func (u *unavailableChat) Available() bool { return false }
