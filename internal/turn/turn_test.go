package turn

import "testing"

func TestBeginEndNotOpen(t *testing.T) {
	c := New()
	if _, ok := c.Current(); ok {
		t.Fatal("expected no current turn before Begin")
	}
	if _, ok := c.End(); ok {
		t.Fatal("End without Begin must be a no-op")
	}
}

func TestReentrantBeginReturnsOuterTurn(t *testing.T) {
	c := New()
	outer := c.Begin("sess-1")
	inner := c.Begin("sess-1")
	if inner.ID != outer.ID {
		t.Fatalf("nested Begin must return the outer turn unchanged, got %q want %q", inner.ID, outer.ID)
	}

	if _, ok := c.End(); !ok {
		t.Fatal("inner End should succeed")
	}
	if _, ok := c.Current(); !ok {
		t.Fatal("turn should still be open after inner End")
	}
	ended, ok := c.End()
	if !ok {
		t.Fatal("outer End should succeed")
	}
	if ended.ID != outer.ID {
		t.Fatal("ended turn id mismatch")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("turn should be closed after matching End count reached")
	}
}

func TestRecordImageCollapsesDuplicates(t *testing.T) {
	c := New()
	c.Begin("sess-1")
	c.RecordImage("img-1")
	c.RecordImage("img-1")
	c.RecordImage("img-2")

	current, _ := c.Current()
	if len(current.ImageIDs) != 2 {
		t.Fatalf("expected duplicate recapture to collapse, got %v", current.ImageIDs)
	}
}
