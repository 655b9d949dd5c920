package bitmap

import "github.com/deepteams/fastscale/internal/core"

// FloatBitmap is a 3- or 4-channel linear working-space buffer. Channels
// 0/1/2 are B/G/R; channel 3, when present, is alpha. When AlphaMeaningful
// is set the colour channels are premultiplied by alpha.
type FloatBitmap struct {
	W, H     int
	Channels int
	// FloatStride is the element count per row, padded to a 16-element
	// multiple.
	FloatStride int
	FloatCount  int
	Pixels      []float32

	AlphaMeaningful    bool
	AlphaPremultiplied bool
}

// NewFloatHeader creates a float bitmap header without a pixel buffer.
func NewFloatHeader(c *core.Context, sx, sy, channels int) *FloatBitmap {
	if channels != 3 && channels != 4 {
		c.SetError(core.StatusUnsupportedFormat)
		return nil
	}
	if !dimensionsValid(sx, sy) {
		c.SetErrorf(core.StatusInvalidDimensions, "float bitmap dimensions %dx%d invalid", sx, sy)
		return nil
	}
	b := &FloatBitmap{
		W:                  sx,
		H:                  sy,
		Channels:           channels,
		AlphaMeaningful:    channels == 4,
		AlphaPremultiplied: true,
	}
	elems := sx * channels
	if elems%floatStrideAlignment != 0 {
		elems += floatStrideAlignment - elems%floatStrideAlignment
	}
	b.FloatStride = elems
	b.FloatCount = elems * sy
	if !c.Track(b, 0, nil, nil) {
		c.AddToCallstack()
		return nil
	}
	return b
}

// NewFloat creates a float bitmap with pixels owned by the header.
func NewFloat(c *core.Context, sx, sy, channels int, zeroed bool) *FloatBitmap {
	b := NewFloatHeader(c, sx, sy, channels)
	if b == nil {
		c.AddToCallstack()
		return nil
	}
	b.Pixels = make([]float32, b.FloatCount)
	_ = zeroed
	if !c.Realloc(b, b.FloatCount*4) {
		c.AddToCallstack()
		return nil
	}
	return b
}

// RowFloats returns the full padded row y.
func (b *FloatBitmap) RowFloats(y int) []float32 {
	start := y * b.FloatStride
	return b.Pixels[start : start+b.FloatStride]
}
