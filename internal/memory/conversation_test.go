package memory

import (
	"testing"

	"lavis/internal/llm"
)

func TestAppendEvictsOldestTurnWholesale(t *testing.T) {
	cm := New(4, 10)
	cm.Append("turn-1", "m1", llm.Message{Role: "user", Content: "hi"})
	cm.Append("turn-1", "m2", llm.Message{Role: "assistant", Content: "hello"})
	cm.Append("turn-2", "m3", llm.Message{Role: "user", Content: "next"})
	cm.Append("turn-2", "m4", llm.Message{Role: "assistant", Content: "ok"})
	cm.Append("turn-2", "m5", llm.Message{Role: "user", Content: "more"})

	msgs := cm.Messages()
	for _, m := range msgs {
		if m.Content == "hi" || m.Content == "hello" {
			t.Fatalf("expected turn-1 fully evicted, found %q", m.Content)
		}
	}
}

func TestAppendNeverOrphansSingleOversizedTurn(t *testing.T) {
	cm := New(2, 10)
	cm.Append("turn-1", "m1", llm.Message{Role: "user", Content: "a"})
	cm.Append("turn-1", "m2", llm.Message{Role: "assistant", Content: "b"})
	warning := cm.Append("turn-1", "m3", llm.Message{Role: "user", Content: "c"})
	if warning == "" {
		t.Fatal("expected a warning when a single turn exceeds the bound")
	}
	if len(cm.Messages()) != 3 {
		t.Fatal("over-bound single turn must not be split")
	}
}

func TestImageEvictionPreservesTurnAnchors(t *testing.T) {
	cm := New(100, 1)
	img := func(id string) llm.Message {
		return llm.Message{Role: "user", Content: "screenshot", Image: &llm.ImageContent{ImageID: id, Data: []byte("bytes")}}
	}
	cm.Append("turn-1", "m1", img("img-1"))
	cm.Append("turn-1", "m2", img("img-2"))
	cm.Append("turn-1", "m3", img("img-3"))

	msgs := cm.Messages()
	if msgs[0].Image == nil {
		t.Fatal("first image of the turn is an anchor and must be retained")
	}
	if msgs[2].Image == nil {
		t.Fatal("last image of the turn is an anchor and must be retained")
	}
	if msgs[1].Image != nil {
		t.Fatal("middle image should have been collapsed once keepImages exceeded")
	}
}

func TestClearEmptiesWindow(t *testing.T) {
	cm := New(10, 10)
	cm.Append("turn-1", "m1", llm.Message{Role: "user", Content: "hi"})
	cm.Clear()
	if len(cm.Messages()) != 0 {
		t.Fatal("expected empty window after Clear")
	}
}
