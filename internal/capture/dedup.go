package capture

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/google/uuid"
)

// CaptureOptions controls a single DedupCapturer.Capture call.
type CaptureOptions struct {
	// Force bypasses dedup entirely: always perceive and return a fresh frame.
	Force bool
	// SkipDedup perceives a fresh frame but does not compare it against the
	// cache. Used by the reasoning loop's forced post-tool recapture, which
	// must never reuse a stale frame.
	SkipDedup bool
}

// Result is the outcome of one Capture call.
type Result struct {
	Frame   Frame
	ImageID string // the id the caller must bind to any message carrying this frame
	Reused  bool   // true if Data/Width/Height were served from cache, not freshly perceived
}

// DedupCapturer wraps a ScreenPerceiver with dHash-based duplicate-frame
// suppression. Threshold is the Hamming distance (0..64) at or below
// which a newly perceived frame is considered a duplicate of the cached
// one and the cached bytes are returned instead.
type DedupCapturer struct {
	perceiver ScreenPerceiver
	threshold int
	dsWidth   int
	dsHeight  int

	mu        sync.Mutex
	lastFrame *Frame
	lastID    string
	lastHash  uint64
	hasHash   bool
}

// NewDedupCapturer builds a DedupCapturer over perceiver. threshold is
// clamped to [0, 64]; downscaleWidth/Height default to the canonical 9x8
// dHash grid when zero.
func NewDedupCapturer(perceiver ScreenPerceiver, threshold, downscaleWidth, downscaleHeight int) *DedupCapturer {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 64 {
		threshold = 64
	}
	if downscaleWidth <= 0 {
		downscaleWidth = 9
	}
	if downscaleHeight <= 0 {
		downscaleHeight = 8
	}
	return &DedupCapturer{perceiver: perceiver, threshold: threshold, dsWidth: downscaleWidth, dsHeight: downscaleHeight}
}

// Capture perceives the screen, consulting (and updating) the dedup cache
// per opts. A perceiver failure always propagates as an error; a forced
// recapture after the cache was cleared still goes through the perceiver,
// so a broken perceiver surfaces as a hard screenshot failure rather than
// silently serving stale cached bytes.
func (d *DedupCapturer) Capture(ctx context.Context, opts CaptureOptions) (Result, error) {
	frame, err := d.perceiver.Capture(ctx)
	if err != nil {
		return Result{}, err
	}

	hash, hashErr := dHash(frame.Data, d.dsWidth, d.dsHeight)
	canHash := hashErr == nil

	d.mu.Lock()
	defer d.mu.Unlock()

	if !opts.Force && !opts.SkipDedup && canHash && d.hasHash && d.lastFrame != nil {
		if hammingDistance(hash, d.lastHash) <= d.threshold {
			cached := *d.lastFrame
			return Result{Frame: cached, ImageID: d.lastID, Reused: true}, nil
		}
	}

	newID := uuid.NewString()
	d.lastFrame = &frame
	d.lastID = newID
	if canHash {
		d.lastHash = hash
		d.hasHash = true
	}
	return Result{Frame: frame, ImageID: newID}, nil
}

// GetLastBase64 returns the base64-encoded bytes of the most recently
// captured (or reused) frame, or ("", false) if nothing has been captured
// yet.
func (d *DedupCapturer) GetLastBase64() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastFrame == nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(d.lastFrame.Data), true
}

// ClearCache discards the cached frame/hash, forcing the next non-forced
// Capture to treat its result as fresh regardless of similarity.
func (d *DedupCapturer) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFrame = nil
	d.lastID = ""
	d.hasHash = false
	d.lastHash = 0
}
