package capture

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"golang.org/x/image/draw"
)

// dHash computes a 64-bit difference hash over a 9x8 grayscale downscale of
// data: for each of the 8 rows, set a bit wherever pixel[x] is brighter
// than pixel[x+1] across the row's 9 columns, yielding 8 bits/row * 8 rows.
func dHash(data []byte, width, height int) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}

	small := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := uint(0)
	for y := 0; y < height; y++ {
		for x := 0; x < width-1; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			if left > right {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash, nil
}

// hammingDistance returns the number of differing bits between a and b.
func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
