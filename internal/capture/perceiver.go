// Package capture implements ScreenPerceiver and DedupCapturer: taking
// screenshots and suppressing perceptually-duplicate frames via a
// difference hash (dHash), the same perceptual-hash-over-downscaled-pixels
// technique the image-processing agents elsewhere in the pack use
// golang.org/x/image/draw for.
package capture

import "context"

// Frame is one captured screenshot.
type Frame struct {
	Data   []byte // encoded image bytes (PNG)
	Width  int
	Height int
}

// ScreenPerceiver captures the current screen. Implementations must be
// safe to call repeatedly/reentrantly.
type ScreenPerceiver interface {
	Capture(ctx context.Context) (Frame, error)
}
