package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
)

type fakePerceiver struct {
	frames []Frame
	i      int
}

func (f *fakePerceiver) Capture(ctx context.Context) (Frame, error) {
	fr := f.frames[f.i]
	if f.i < len(f.frames)-1 {
		f.i++
	}
	return fr, nil
}

func solidFrame(t *testing.T, c color.Gray) Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return Frame{Data: buf.Bytes(), Width: 40, Height: 40}
}

// gradientFrame renders a horizontal brightness ramp. dHash compares
// neighbouring pixels, so an ascending ramp sets no hash bits and a
// descending one sets all 64 (a solid frame of any brightness hashes to 0).
func gradientFrame(t *testing.T, descending bool) Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(x * 6)
			if descending {
				v = uint8((39 - x) * 6)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return Frame{Data: buf.Bytes(), Width: 40, Height: 40}
}

func TestDedupCapturerReusesIdenticalFrame(t *testing.T) {
	frame := solidFrame(t, color.Gray{Y: 120})
	p := &fakePerceiver{frames: []Frame{frame, frame}}
	d := NewDedupCapturer(p, 10, 0, 0)

	r1, err := d.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r1.Reused {
		t.Fatal("first capture should never be reused")
	}

	r2, err := d.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Reused {
		t.Fatal("identical second frame should be reused")
	}
	if r2.ImageID != r1.ImageID {
		t.Fatalf("reused capture must carry the same image id: %q vs %q", r1.ImageID, r2.ImageID)
	}
}

func TestDedupCapturerDetectsDistinctFrame(t *testing.T) {
	a := gradientFrame(t, false)
	b := gradientFrame(t, true)
	p := &fakePerceiver{frames: []Frame{a, b}}
	d := NewDedupCapturer(p, 4, 0, 0)

	_, err := d.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := d.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Reused {
		t.Fatal("drastically different frame must not be treated as duplicate")
	}
}

func TestDedupCapturerSkipDedupForcesFresh(t *testing.T) {
	frame := solidFrame(t, color.Gray{Y: 50})
	p := &fakePerceiver{frames: []Frame{frame, frame}}
	d := NewDedupCapturer(p, 64, 0, 0)

	_, _ = d.Capture(context.Background(), CaptureOptions{})
	r2, err := d.Capture(context.Background(), CaptureOptions{SkipDedup: true})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Reused {
		t.Fatal("SkipDedup must bypass cache reuse even for an identical frame")
	}
}

func TestClearCacheForcesFreshNextCapture(t *testing.T) {
	frame := solidFrame(t, color.Gray{Y: 77})
	p := &fakePerceiver{frames: []Frame{frame, frame}}
	d := NewDedupCapturer(p, 64, 0, 0)

	_, _ = d.Capture(context.Background(), CaptureOptions{})
	d.ClearCache()
	r2, err := d.Capture(context.Background(), CaptureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Reused {
		t.Fatal("cleared cache must not report reuse")
	}

	if _, ok := d.GetLastBase64(); !ok {
		t.Fatal("expected a last frame to be available after capture")
	}
}
