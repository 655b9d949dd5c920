// Package fastscale is an image transformation engine: it decodes JPEG or
// PNG input, applies geometric and photometric operations (scale, flip,
// transpose, crop, rotate, composite, fill, colour-matrix, content trim),
// and re-encodes the result.
//
// Scaling runs in a linear working space over premultiplied alpha with a
// family of windowed interpolation filters. Every resource allocated during
// a pipeline is tracked by a Context whose ownership graph guarantees
// deterministic, recursive cleanup; destroy the context and everything it
// reaches is released.
package fastscale

import (
	"fmt"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/codec"
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
	"github.com/deepteams/fastscale/internal/scaling"
	"github.com/deepteams/fastscale/internal/trim"
)

// Re-exported core types. A Context and everything reachable through it is
// single-threaded; use one context per goroutine.
type (
	Context = core.Context
	Status  = core.Status
	Error   = core.Error

	Bitmap          = bitmap.ByteBitmap
	PixelFormat     = bitmap.PixelFormat
	CompositingMode = bitmap.CompositingMode

	Filter     = scaling.Filter
	Floatspace = colorspace.Floatspace

	Rect = trim.Rect

	DecoderInfo    = codec.DecoderInfo
	ColorInfo      = codec.ColorInfo
	DownscaleHints = codec.DownscaleHints
	EncoderHints   = codec.EncoderHints
	IO             = codec.IO
)

// Pixel formats. The numeric values are stable.
const (
	Gray8  = bitmap.Gray8
	BGR24  = bitmap.BGR24
	BGRA32 = bitmap.BGRA32
	BGR32  = bitmap.BGR32
)

// Compositing modes.
const (
	CompositingReplaceSelf    = bitmap.CompositingReplaceSelf
	CompositingBlendWithSelf  = bitmap.CompositingBlendWithSelf
	CompositingBlendWithMatte = bitmap.CompositingBlendWithMatte
)

// Working floatspaces.
const (
	FloatspaceSRGB   = colorspace.FloatspaceSRGB
	FloatspaceLinear = colorspace.FloatspaceLinear
	FloatspaceGamma  = colorspace.FloatspaceGamma
)

// Interpolation filters.
const (
	FilterRobidouxFast        = scaling.FilterRobidouxFast
	FilterRobidoux            = scaling.FilterRobidoux
	FilterRobidouxSharp       = scaling.FilterRobidouxSharp
	FilterGinseng             = scaling.FilterGinseng
	FilterGinsengSharp        = scaling.FilterGinsengSharp
	FilterLanczos             = scaling.FilterLanczos
	FilterLanczosSharp        = scaling.FilterLanczosSharp
	FilterLanczos2            = scaling.FilterLanczos2
	FilterLanczos2Sharp       = scaling.FilterLanczos2Sharp
	FilterCubicFast           = scaling.FilterCubicFast
	FilterCubic               = scaling.FilterCubic
	FilterCubicSharp          = scaling.FilterCubicSharp
	FilterCatmullRom          = scaling.FilterCatmullRom
	FilterMitchell            = scaling.FilterMitchell
	FilterCubicBSpline        = scaling.FilterCubicBSpline
	FilterHermite             = scaling.FilterHermite
	FilterJinc                = scaling.FilterJinc
	FilterRawLanczos3         = scaling.FilterRawLanczos3
	FilterRawLanczos3Sharp    = scaling.FilterRawLanczos3Sharp
	FilterRawLanczos2         = scaling.FilterRawLanczos2
	FilterRawLanczos2Sharp    = scaling.FilterRawLanczos2Sharp
	FilterTriangle            = scaling.FilterTriangle
	FilterLinear              = scaling.FilterLinear
	FilterBox                 = scaling.FilterBox
	FilterCatmullRomFast      = scaling.FilterCatmullRomFast
	FilterCatmullRomFastSharp = scaling.FilterCatmullRomFastSharp
	FilterFastest             = scaling.FilterFastest
	FilterMitchellFast        = scaling.FilterMitchellFast
)

// NewContext creates a context with the default codec registry installed.
func NewContext() *Context {
	c := core.NewContext()
	c.CodecSet = codec.NewDefaultSet()
	return c
}

// Image is a decoded frame together with the decoder's report.
type Image struct {
	Bitmap *Bitmap
	Info   DecoderInfo
	Color  ColorInfo
}

// Decode reads a JPEG or PNG from data, selecting the codec by signature.
// hints may be nil. On failure nil is returned and the context carries the
// error.
func Decode(c *Context, data []byte, hints *DownscaleHints) *Image {
	ioObj := codec.NewMemoryIO(c, data, nil)
	if ioObj == nil {
		c.AddToCallstack()
		return nil
	}
	return decodeFrom(c, ioObj, hints)
}

// DecodeFile reads a JPEG or PNG from a file path.
func DecodeFile(c *Context, path string, hints *DownscaleHints) *Image {
	ioObj := codec.OpenFileIO(c, path, nil)
	if ioObj == nil {
		c.AddToCallstack()
		return nil
	}
	defer c.DestroyObj(ioObj)
	return decodeFrom(c, ioObj, hints)
}

func decodeFrom(c *Context, ioObj codec.IO, hints *DownscaleHints) *Image {
	inst := codec.NewDecoder(c, 0, ioObj)
	if inst == nil {
		c.AddToCallstack()
		return nil
	}
	if hints != nil {
		if !codec.SetDownscaleHints(c, inst, hints) {
			c.AddToCallstack()
			return nil
		}
	}
	var info DecoderInfo
	if !codec.GetInfo(c, inst, &info) {
		c.AddToCallstack()
		return nil
	}
	canvas := bitmap.New(c, info.Width, info.Height, true, info.FrameDecodesInto)
	if canvas == nil {
		c.AddToCallstack()
		return nil
	}
	var color ColorInfo
	if !codec.ReadFrame(c, inst, canvas, &color) {
		c.AddToCallstack()
		return nil
	}
	if !c.DestroyObj(inst) {
		c.AddToCallstack()
		return nil
	}
	return &Image{Bitmap: canvas, Info: info, Color: color}
}

// DefaultEncoderHints selects zlib's default compression level (-1) with
// alpha enabled.
func DefaultEncoderHints() *EncoderHints {
	return &EncoderHints{ZlibCompressionLevel: -1}
}

// EncodePNG encodes b and returns the PNG bytes. hints may be nil.
func EncodePNG(c *Context, b *Bitmap, hints *EncoderHints) []byte {
	sizeHint := b.W*b.H + 1024
	buf := codec.NewBufferIO(c, sizeHint, nil)
	if buf == nil {
		c.AddToCallstack()
		return nil
	}
	if !encodePNGTo(c, b, buf, hints) {
		c.AddToCallstack()
		return nil
	}
	out := buf.Bytes()
	if !c.DestroyObj(buf) {
		c.AddToCallstack()
		return nil
	}
	return out
}

// EncodePNGFile encodes b to a file at path.
func EncodePNGFile(c *Context, b *Bitmap, path string, hints *EncoderHints) bool {
	f := codec.CreateFileIO(c, path, nil)
	if f == nil {
		c.AddToCallstack()
		return false
	}
	ok := encodePNGTo(c, b, f, hints)
	if !c.DestroyObj(f) {
		return false
	}
	if !ok {
		c.AddToCallstack()
	}
	return ok
}

func encodePNGTo(c *Context, b *Bitmap, ioObj codec.IO, hints *EncoderHints) bool {
	inst := codec.NewEncoder(c, codec.EncodePNG, ioObj)
	if inst == nil {
		c.AddToCallstack()
		return false
	}
	if hints == nil {
		hints = DefaultEncoderHints()
	}
	if !codec.WriteFrame(c, inst, b, hints) {
		c.AddToCallstack()
		return false
	}
	return c.DestroyObj(inst)
}

// ScaleOptions configure Scale. The zero Filter means Robidoux.
type ScaleOptions struct {
	Filter             Filter
	SharpenPercentGoal float32
	Floatspace         Floatspace
	Compositing        CompositingMode
	// MatteColor is used with CompositingBlendWithMatte, sRGB BGRA order.
	MatteColor [4]byte
}

// Scale resamples src to w x h on a fresh canvas and returns it. src must
// be a 4-byte-per-pixel bitmap.
func Scale(c *Context, src *Bitmap, w, h int, opts ScaleOptions) *Bitmap {
	if src == nil {
		c.SetError(core.StatusNullArgument)
		return nil
	}
	if opts.Filter == 0 {
		opts.Filter = FilterRobidoux
	}
	if opts.Floatspace == 0 {
		opts.Floatspace = FloatspaceLinear
	}
	canvas := bitmap.New(c, w, h, true, bitmap.BGRA32)
	if canvas == nil {
		c.AddToCallstack()
		return nil
	}
	canvas.AlphaMeaningful = src.AlphaMeaningful
	canvas.Compositing = opts.Compositing
	canvas.MatteColor = opts.MatteColor
	if !scaling.RenderToCanvas(c, src, canvas, scaling.RenderOptions{
		X: 0, Y: 0, W: w, H: h,
		Filter:             opts.Filter,
		SharpenPercentGoal: opts.SharpenPercentGoal,
		Floatspace:         opts.Floatspace,
	}) {
		c.AddToCallstack()
		return nil
	}
	return canvas
}

// ScaleToCanvas resamples src into the {x,y,w,h} window of canvas,
// honouring the canvas's compositing mode and matte colour.
func ScaleToCanvas(c *Context, src, canvas *Bitmap, x, y, w, h int, opts ScaleOptions) bool {
	if opts.Filter == 0 {
		opts.Filter = FilterRobidoux
	}
	if opts.Floatspace == 0 {
		opts.Floatspace = FloatspaceLinear
	}
	return scaling.RenderToCanvas(c, src, canvas, scaling.RenderOptions{
		X: x, Y: y, W: w, H: h,
		Filter:             opts.Filter,
		SharpenPercentGoal: opts.SharpenPercentGoal,
		Floatspace:         opts.Floatspace,
	})
}

// NewBitmap creates a zeroed bitmap tracked on the context.
func NewBitmap(c *Context, w, h int, fmt PixelFormat) *Bitmap {
	return bitmap.New(c, w, h, true, fmt)
}

// FillRect fills a half-open rectangle with an 0xAARRGGBB sRGB colour.
func FillRect(c *Context, b *Bitmap, x1, y1, x2, y2 int, color uint32) bool {
	return bitmap.FillRect(c, b, x1, y1, x2, y2, color)
}

// Crop returns an alias of the half-open window (x1,y1)-(x2,y2) sharing
// pixels with b.
func Crop(c *Context, b *Bitmap, x1, y1, x2, y2 int) *Bitmap {
	return bitmap.CropAlias(c, b, x1, y1, x2, y2)
}

// CopyRect copies a region of src over canvas.
func CopyRect(c *Context, src, canvas *Bitmap, fromX, fromY, w, h, x, y int) bool {
	return bitmap.CopyRectToCanvas(c, src, canvas, fromX, fromY, w, h, x, y)
}

// FlipHorizontal mirrors b left-to-right in place.
func FlipHorizontal(c *Context, b *Bitmap) bool { return bitmap.FlipHorizontal(c, b) }

// FlipVertical mirrors b top-to-bottom in place.
func FlipVertical(c *Context, b *Bitmap) bool { return bitmap.FlipVertical(c, b) }

// Transpose writes the transposition of b into to.
func Transpose(c *Context, b, to *Bitmap) bool { return bitmap.Transpose(c, b, to) }

// ApplyOrientation normalises b per an EXIF orientation code 1..8.
func ApplyOrientation(c *Context, b *Bitmap, orientation int) *Bitmap {
	return bitmap.ApplyOrientation(c, b, orientation)
}

// Rotate90 rotates a quarter turn clockwise.
func Rotate90(c *Context, b *Bitmap) *Bitmap { return bitmap.Rotate90(c, b) }

// Rotate180 rotates a half turn in place.
func Rotate180(c *Context, b *Bitmap) *Bitmap { return bitmap.Rotate180(c, b) }

// Rotate270 rotates a quarter turn counter-clockwise.
func Rotate270(c *Context, b *Bitmap) *Bitmap { return bitmap.Rotate270(c, b) }

// ApplyColorMatrix applies a 5x4 colour matrix to all rows of b.
func ApplyColorMatrix(c *Context, b *Bitmap, m *[5][4]float32) bool {
	return bitmap.ApplyColorMatrix(c, b, 0, b.H, m)
}

// DetectContent returns the tight bounding rectangle of non-background
// content, or trim.RectFailure.
func DetectContent(c *Context, b *Bitmap, threshold uint8) Rect {
	return trim.DetectContent(c, b, threshold)
}

// TrimWhitespace crops b to its detected content bounds, returning an
// alias. When nothing is detected the original bitmap is returned.
func TrimWhitespace(c *Context, b *Bitmap, threshold uint8) *Bitmap {
	r := trim.DetectContent(c, b, threshold)
	if r == trim.RectFailure {
		return b
	}
	return bitmap.CropAlias(c, b, r.X1, r.Y1, r.X2, r.Y2)
}

// FormatError renders the context's recorded error with its callstack.
func FormatError(c *Context) string {
	err := c.Err()
	if err == nil {
		return ""
	}
	e := err.(*core.Error)
	return fmt.Sprintf("%v\n%s", e, e.Callstack)
}
