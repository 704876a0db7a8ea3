package memory

import (
	"context"
	"fmt"
	"strings"

	"lavis/internal/coldstorage"
	"lavis/internal/persistence"
	turnpkg "lavis/internal/turn"
)

// ExceptionFramePattern reports whether a frame's surrounding text marks
// it as an "exception frame" (e.g. an error dialog) that VisualCompactor
// must retain inline alongside the turn's anchors, even though it isn't
// the first or last image. The default matches a small set of common
// failure indicators; callers may supply a stricter/looser variant.
type ExceptionFramePattern func(messageContent string) bool

// DefaultExceptionFramePattern matches on-screen error/failure language a
// reviewer would want to see without retrieving it from cold storage.
func DefaultExceptionFramePattern(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range []string{"error", "exception", "failed", "crash", "not responding"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// VisualCompactor runs on turn close: it retains inline bytes only for a
// turn's anchor frames (first/last) and any exception frame, archiving
// every other frame to ColdStorage and marking the owning message
// is_compressed in persistence.
type VisualCompactor struct {
	store       coldstorage.ColdStorage
	isException ExceptionFramePattern
}

// NewVisualCompactor builds a VisualCompactor. A nil pattern falls back to
// DefaultExceptionFramePattern.
func NewVisualCompactor(store coldstorage.ColdStorage, isException ExceptionFramePattern) *VisualCompactor {
	if isException == nil {
		isException = DefaultExceptionFramePattern
	}
	return &VisualCompactor{store: store, isException: isException}
}

// Compact runs turn-close compaction for the given turn. mem supplies the
// live in-process entries (so bytes can be archived before being
// discarded), db records which messages were marked compressed. Turns
// with 0 or 1 recorded images are a no-op; the single image in a 1-image
// turn is itself the (only) anchor and is never archived.
func (v *VisualCompactor) Compact(ctx context.Context, t turnpkg.Turn, mem *ConversationMemory, db persistence.MessageStore) error {
	n := len(t.ImageIDs)
	if n < 2 {
		return nil
	}

	anchors := map[string]bool{t.ImageIDs[0]: true, t.ImageIDs[n-1]: true}

	var compressedIDs []string
	var firstErr error
	for _, imageID := range t.ImageIDs {
		if anchors[imageID] {
			continue
		}
		data, content, ok := mem.peekImage(imageID)
		if !ok {
			continue // already compacted or evicted by ConversationMemory
		}
		if v.isException(content) {
			continue // exception frames stay inline
		}
		if err := v.store.Archive(ctx, imageID, data); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("visual compactor: archive %s: %w", imageID, err)
			}
			continue
		}
		if msgID, ok := mem.collapseImage(imageID); ok {
			compressedIDs = append(compressedIDs, msgID)
		}
	}

	if len(compressedIDs) > 0 && db != nil {
		if err := db.MarkCompressed(ctx, compressedIDs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
