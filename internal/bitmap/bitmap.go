// Package bitmap implements the byte-oriented and float-oriented pixel
// buffers the pipeline operates on, together with the in-place geometric
// primitives: fill, crop aliasing, flips, transpose, region copy, EXIF
// orientation, colour matrix and histogram.
//
// Byte bitmaps store interleaved BGR/BGRA/GRAY rows with an explicit stride;
// float bitmaps store 3- or 4-channel linear working-space rows, channel 3
// being alpha (premultiplied when meaningful).
package bitmap

import (
	"math"

	"github.com/deepteams/fastscale/internal/core"
)

// PixelFormat identifies the byte layout of a bitmap. The numeric values
// are part of the external interface.
type PixelFormat int

const (
	Gray8  PixelFormat = 1
	BGR24  PixelFormat = 3
	BGRA32 PixelFormat = 4
	BGR32  PixelFormat = 70
)

// BytesPerPixel returns the storage width of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Gray8:
		return 1
	case BGR24:
		return 3
	case BGRA32, BGR32:
		return 4
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case BGR24:
		return "bgr24"
	case BGRA32:
		return "bgra32"
	case BGR32:
		return "bgr32"
	}
	return "unknown"
}

// CompositingMode controls how scaled output lands on a canvas.
type CompositingMode int

const (
	CompositingReplaceSelf CompositingMode = 0
	CompositingBlendWithSelf CompositingMode = 1
	CompositingBlendWithMatte CompositingMode = 2
)

const (
	strideAlignment      = 64
	floatStrideAlignment = 16
	maxBytesPerPixel     = 4
)

// ByteBitmap is a byte-oriented pixel buffer. Pixels are owned by the header
// unless Borrowed is set; the stride may exceed the content width.
type ByteBitmap struct {
	W, H   int
	Stride int
	Fmt    PixelFormat
	Pixels []byte

	AlphaMeaningful bool
	Compositing     CompositingMode
	// MatteColor is stored in sRGB BGRA order.
	MatteColor [4]byte
	Borrowed   bool
}

// dimensionsValid guards sx*sy*bpp against overflow.
func dimensionsValid(sx, sy int) bool {
	return sx > 0 && sy > 0 &&
		sx < math.MaxInt32/sy &&
		sx*maxBytesPerPixel < (math.MaxInt32-maxBytesPerPixel)/sy
}

// NewHeader creates a bitmap header with no pixel buffer. Callers attach
// external pixels and a stride themselves.
func NewHeader(c *core.Context, sx, sy int) *ByteBitmap {
	if !dimensionsValid(sx, sy) {
		c.SetErrorf(core.StatusInvalidDimensions, "bitmap dimensions %dx%d invalid", sx, sy)
		return nil
	}
	b := &ByteBitmap{
		W:               sx,
		H:               sy,
		Fmt:             BGRA32,
		AlphaMeaningful: true,
		Borrowed:        true,
	}
	if !c.Track(b, 0, nil, nil) {
		c.AddToCallstack()
		return nil
	}
	return b
}

// New creates a bitmap with pixels owned by the header. The stride is padded
// to a 64-byte multiple.
func New(c *core.Context, sx, sy int, zeroed bool, fmt PixelFormat) *ByteBitmap {
	if fmt.BytesPerPixel() == 0 {
		c.SetError(core.StatusUnsupportedFormat)
		return nil
	}
	if !dimensionsValid(sx, sy) {
		c.SetErrorf(core.StatusInvalidDimensions, "bitmap dimensions %dx%d invalid", sx, sy)
		return nil
	}
	unpadded := sx * fmt.BytesPerPixel()
	padding := 0
	if unpadded%strideAlignment != 0 {
		padding = strideAlignment - unpadded%strideAlignment
	}
	b := &ByteBitmap{
		W:               sx,
		H:               sy,
		Stride:          unpadded + padding,
		Fmt:             fmt,
		AlphaMeaningful: fmt == BGRA32,
	}
	b.Pixels = make([]byte, b.Stride*sy)
	_ = zeroed // Go allocations are zeroed already.
	if !c.Track(b, len(b.Pixels), nil, nil) {
		c.AddToCallstack()
		return nil
	}
	return b
}

// EffectiveFormat reports BGR32 for a BGRA32 bitmap whose alpha channel
// carries no information.
func (b *ByteBitmap) EffectiveFormat() PixelFormat {
	if b.Fmt == BGRA32 && !b.AlphaMeaningful {
		return BGR32
	}
	return b.Fmt
}

// Row returns the content bytes of row y (stride padding excluded).
func (b *ByteBitmap) Row(y int) []byte {
	start := y * b.Stride
	return b.Pixels[start : start+b.W*b.Fmt.BytesPerPixel()]
}

// CropAlias returns a header that shares pixels with b over the half-open
// window (x1,y1)-(x2,y2). The alias must not outlive b's pixel buffer; the
// heap expresses that by making the alias owned by b.
func CropAlias(c *core.Context, b *ByteBitmap, x1, y1, x2, y2 int) *ByteBitmap {
	if x1 >= x2 || y1 >= y2 || x2 > b.W || y2 > b.H || x1 < 0 || y1 < 0 {
		c.SetError(core.StatusInvalidArgument)
		return nil
	}
	bpp := b.Fmt.BytesPerPixel()
	alias := &ByteBitmap{
		W:               x2 - x1,
		H:               y2 - y1,
		Stride:          b.Stride,
		Fmt:             b.Fmt,
		Pixels:          b.Pixels[y1*b.Stride+x1*bpp:],
		AlphaMeaningful: b.AlphaMeaningful,
		Compositing:     b.Compositing,
		MatteColor:      b.MatteColor,
		Borrowed:        true,
	}
	if !c.Track(alias, 0, b, nil) {
		c.AddToCallstack()
		return nil
	}
	return alias
}

// Compare reports whether two bitmaps hold identical content. Only the
// content width of each row is compared, never stride padding.
func Compare(c *core.Context, a, b *ByteBitmap) (bool, bool) {
	if a == nil || b == nil {
		c.SetError(core.StatusNullArgument)
		return false, false
	}
	if a.W != b.W || a.H != b.H || a.Fmt != b.Fmt {
		return false, true
	}
	width := a.W * a.Fmt.BytesPerPixel()
	for y := 0; y < a.H; y++ {
		ra := a.Pixels[y*a.Stride : y*a.Stride+width]
		rb := b.Pixels[y*b.Stride : y*b.Stride+width]
		for i := range ra {
			if ra[i] != rb[i] {
				return false, true
			}
		}
	}
	return true, true
}

// FillRect fills the half-open rectangle with an sRGB colour given as
// 0xAARRGGBB. The alpha byte is ignored for 3-byte formats; GRAY8 is not
// supported.
func FillRect(c *core.Context, b *ByteBitmap, x1, y1, x2, y2 int, colorSRGBARGB uint32) bool {
	if x1 >= x2 || y1 >= y2 || y2 > b.H || x2 > b.W || x1 < 0 || y1 < 0 {
		c.SetError(core.StatusInvalidArgument)
		return false
	}
	step := b.Fmt.BytesPerPixel()
	if step == 1 {
		// TODO: gamma-correct grayscale fill once the conversion is specified.
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	var px [4]byte
	px[0] = byte(colorSRGBARGB)       // B
	px[1] = byte(colorSRGBARGB >> 8)  // G
	px[2] = byte(colorSRGBARGB >> 16) // R
	px[3] = byte(colorSRGBARGB >> 24) // A

	topLeft := y1*b.Stride + x1*step
	rectWidthBytes := step * (x2 - x1)
	first := b.Pixels[topLeft : topLeft+rectWidthBytes]
	for off := 0; off < rectWidthBytes; off += step {
		copy(first[off:off+step], px[:step])
	}
	for y := 1; y < y2-y1; y++ {
		copy(b.Pixels[topLeft+y*b.Stride:topLeft+y*b.Stride+rectWidthBytes], first)
	}
	return true
}

// CopyRectToCanvas overwrites a region of canvas with a region of b.
// Formats must match and both regions must be in bounds.
func CopyRectToCanvas(c *core.Context, b, canvas *ByteBitmap, fromX, fromY, w, h, x, y int) bool {
	if b.Fmt != canvas.Fmt {
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	if fromX < 0 || fromY < 0 || x < 0 || y < 0 || w <= 0 || h <= 0 ||
		fromX+w > b.W || fromY+h > b.H || x+w > canvas.W || y+h > canvas.H {
		c.SetError(core.StatusInvalidArgument)
		return false
	}
	bpp := b.Fmt.BytesPerPixel()
	for row := 0; row < h; row++ {
		src := b.Pixels[(fromY+row)*b.Stride+fromX*bpp:]
		dst := canvas.Pixels[(y+row)*canvas.Stride+x*bpp:]
		copy(dst[:w*bpp], src[:w*bpp])
	}
	return true
}
