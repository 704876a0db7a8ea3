// Package memory implements ConversationMemory, VisualCompactor, and
// MemoryManager: the bounded in-process prompt window, turn-close image
// compaction into cold storage, and the session-level coordinator tying
// both to persistence.
package memory

import (
	"fmt"
	"sync"

	"lavis/internal/llm"
)

// Entry is one ConversationMemory window slot: a chat message plus the
// turn it belongs to and a monotonic sequence number used to find anchor
// images without re-scanning the whole window on every append.
type Entry struct {
	Seq     int64
	TurnID  string
	MsgID   string // persistence.Message.ID, for MarkCompressed bookkeeping
	Message llm.Message
	ImageID string // mirrors Message.Image.ImageID when an image is attached
}

const placeholderFormat = "[Visual_Placeholder: %s]"

// ConversationMemory is a bounded, mutex-guarded prompt window. It evicts
// oldest turns wholesale (never splitting a tool-call from its
// tool-result) once the window exceeds maxMessages, and separately caps
// the number of entries still carrying inline image bytes, preserving
// each turn's first/last ("anchor") image.
type ConversationMemory struct {
	mu sync.Mutex

	maxMessages int
	keepImages  int

	window  []Entry
	nextSeq int64
}

// New returns an empty ConversationMemory bounded to maxMessages entries
// and keepImages inline images.
func New(maxMessages, keepImages int) *ConversationMemory {
	if maxMessages < 2 {
		maxMessages = 2
	}
	if keepImages < 2 {
		keepImages = 2
	}
	return &ConversationMemory{maxMessages: maxMessages, keepImages: keepImages}
}

// Append adds msg to the window for turnID, then enforces the message and
// image bounds. Returns a non-empty warning string if the message bound
// could not be satisfied without orphaning a tool-result.
func (c *ConversationMemory) Append(turnID, msgID string, msg llm.Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	entry := Entry{Seq: c.nextSeq, TurnID: turnID, MsgID: msgID, Message: msg}
	if msg.Image != nil {
		entry.ImageID = msg.Image.ImageID
	}
	c.window = append(c.window, entry)

	warning := c.evictMessages()
	c.evictImages()
	return warning
}

// Messages returns an ordered snapshot of the current window's messages.
// Callers must not hold any ConversationMemory lock while using the
// result for a model call.
func (c *ConversationMemory) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.window))
	for i, e := range c.window {
		out[i] = e.Message
	}
	return out
}

// Clear empties the window (resetSession).
func (c *ConversationMemory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
}

// evictMessages drops the oldest whole turn-group at a time while the
// window exceeds maxMessages. A turn-group is a contiguous run of entries
// sharing the oldest entry's TurnID; evicting it as a unit keeps every
// ToolCalls message together with its ToolResult answers, which always
// share a turn. If only the single most-recent turn remains and the
// window is still over bound, eviction stops and a warning is returned
// rather than splitting that turn (no-orphan guarantee).
func (c *ConversationMemory) evictMessages() string {
	for len(c.window) > c.maxMessages {
		oldestTurn := c.window[0].TurnID
		end := 0
		for end < len(c.window) && c.window[end].TurnID == oldestTurn {
			end++
		}
		if end == len(c.window) {
			return fmt.Sprintf("conversation memory: window has %d entries (bound %d) but all belong to one turn; bound violated to avoid orphaning a tool-result", len(c.window), c.maxMessages)
		}
		c.window = c.window[end:]
	}
	return ""
}

// evictImages collapses the oldest non-anchor inline images to placeholder
// text once the number of image-carrying entries exceeds keepImages. The
// first and last image-carrying entry of every turn currently in the
// window is an anchor and is never collapsed by this pass (VisualCompactor
// handles turn-local anchor retention separately at turn close).
func (c *ConversationMemory) evictImages() {
	type imgPos struct {
		index int
		turn  string
	}
	var imgs []imgPos
	for i, e := range c.window {
		if e.Message.Image != nil && len(e.Message.Image.Data) > 0 {
			imgs = append(imgs, imgPos{index: i, turn: e.TurnID})
		}
	}
	if len(imgs) <= c.keepImages {
		return
	}

	firstOfTurn := map[string]int{}
	lastOfTurn := map[string]int{}
	for _, p := range imgs {
		if _, ok := firstOfTurn[p.turn]; !ok {
			firstOfTurn[p.turn] = p.index
		}
		lastOfTurn[p.turn] = p.index
	}
	isAnchor := func(p imgPos) bool {
		return firstOfTurn[p.turn] == p.index || lastOfTurn[p.turn] == p.index
	}

	toDrop := len(imgs) - c.keepImages
	for _, p := range imgs {
		if toDrop <= 0 {
			break
		}
		if isAnchor(p) {
			continue
		}
		entry := &c.window[p.index]
		id := entry.ImageID
		entry.Message.Content += "\n" + fmt.Sprintf(placeholderFormat, id)
		entry.Message.Image = nil
		toDrop--
	}
}

// ReplacePrefix drops the oldest n entries and inserts a single
// replacement entry (typically a summary message) at the front, used by
// MemoryManager's summary-compression pass.
func (c *ConversationMemory) ReplacePrefix(n int, msgID string, replacement llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.window) {
		n = len(c.window)
	}
	c.nextSeq++
	summary := Entry{Seq: c.nextSeq, MsgID: msgID, Message: replacement}
	rest := make([]Entry, len(c.window)-n)
	copy(rest, c.window[n:])
	c.window = append([]Entry{summary}, rest...)
}

// peekImage returns the inline bytes and message text of the window entry
// carrying imageID, without mutating it, for VisualCompactor to archive
// before collapsing. ok is false if no entry still carries that image
// inline (already collapsed, or evicted from the window entirely).
func (c *ConversationMemory) peekImage(imageID string) (data []byte, content string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.window {
		if e.ImageID == imageID && e.Message.Image != nil && len(e.Message.Image.Data) > 0 {
			return e.Message.Image.Data, e.Message.Content, true
		}
	}
	return nil, "", false
}

// collapseImage replaces the inline image bytes of the window entry
// carrying imageID with a placeholder, returning the owning message's
// persistence id so the caller can mark it compressed.
func (c *ConversationMemory) collapseImage(imageID string) (msgID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.window {
		e := &c.window[i]
		if e.ImageID == imageID && e.Message.Image != nil && len(e.Message.Image.Data) > 0 {
			e.Message.Content += "\n" + fmt.Sprintf(placeholderFormat, imageID)
			e.Message.Image = nil
			return e.MsgID, true
		}
	}
	return "", false
}
