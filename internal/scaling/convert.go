package scaling

import (
	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
)

// ConvertToLinear linearises rowCount rows of src into dest, starting at
// fromRow/destRow. BGRA32 input with meaningful alpha is premultiplied;
// opaque 3- and 4-byte formats are linearised channel-wise and the
// destination alpha channel is left untouched.
func ConvertToLinear(c *core.Context, color *colorspace.Context, src *bitmap.ByteBitmap, fromRow int,
	dest *bitmap.FloatBitmap, destRow, rowCount int) bool {
	if src.W != dest.W {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	if fromRow+rowCount > src.H || destRow+rowCount > dest.H {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	fromStep := src.Fmt.BytesPerPixel()
	toStep := dest.Channels
	copyStep := fromStep
	if toStep < copyStep {
		copyStep = toStep
	}
	if copyStep != 3 && copyStep != 4 {
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	units := src.W * fromStep

	if copyStep == 4 && src.EffectiveFormat() == bitmap.BGRA32 {
		for row := 0; row < rowCount; row++ {
			srcStart := src.Pixels[(fromRow+row)*src.Stride:]
			buf := dest.Pixels[dest.FloatStride*(row+destRow):]
			toX := 0
			for bix := 0; bix < units; bix += fromStep {
				alpha := float32(srcStart[bix+3]) / 255.0
				buf[toX] = alpha * color.ByteToFloatspace(srcStart[bix])
				buf[toX+1] = alpha * color.ByteToFloatspace(srcStart[bix+1])
				buf[toX+2] = alpha * color.ByteToFloatspace(srcStart[bix+2])
				buf[toX+3] = alpha
				toX += toStep
			}
		}
		return true
	}

	for row := 0; row < rowCount; row++ {
		srcStart := src.Pixels[(fromRow+row)*src.Stride:]
		buf := dest.Pixels[dest.FloatStride*(row+destRow):]
		toX := 0
		for bix := 0; bix < units; bix += fromStep {
			buf[toX] = color.ByteToFloatspace(srcStart[bix])
			buf[toX+1] = color.ByteToFloatspace(srcStart[bix+1])
			buf[toX+2] = color.ByteToFloatspace(srcStart[bix+2])
			toX += toStep
		}
	}
	return true
}

// DemultiplyAlpha divides the colour channels of 4-channel rows by their
// alpha, where alpha is nonzero.
func DemultiplyAlpha(c *core.Context, src *bitmap.FloatBitmap, fromRow, rowCount int) bool {
	for row := fromRow; row < fromRow+rowCount; row++ {
		start := row * src.FloatStride
		end := start + src.W*src.Channels
		for ix := start; ix < end; ix += 4 {
			alpha := src.Pixels[ix+3]
			if alpha > 0 {
				src.Pixels[ix] /= alpha
				src.Pixels[ix+1] /= alpha
				src.Pixels[ix+2] /= alpha
			}
		}
	}
	return true
}

// blendMatte composites a premultiplied source over a fixed matte colour in
// linear space, leaving the rows demultiplied with opaque-ish alpha.
func blendMatte(c *core.Context, color *colorspace.Context, src *bitmap.FloatBitmap, fromRow, rowCount int,
	matte [4]byte) bool {
	matteA := float32(matte[3]) / 255.0
	b := color.ByteToFloatspace(matte[0])
	g := color.ByteToFloatspace(matte[1])
	r := color.ByteToFloatspace(matte[2])

	for row := fromRow; row < fromRow+rowCount; row++ {
		start := row * src.FloatStride
		end := start + src.W*src.Channels
		for ix := start; ix < end; ix += 4 {
			srcA := src.Pixels[ix+3]
			a := (1.0 - srcA) * matteA
			finalAlpha := srcA + a
			src.Pixels[ix] = (src.Pixels[ix] + b*a) / finalAlpha
			src.Pixels[ix+1] = (src.Pixels[ix+1] + g*a) / finalAlpha
			src.Pixels[ix+2] = (src.Pixels[ix+2] + r*a) / finalAlpha
			src.Pixels[ix+3] = finalAlpha
		}
	}
	return true
}

// CopyLinearOverSRGB converts float rows back to bytes, overwriting the
// destination. With transpose set, the destination's row and pixel strides
// are swapped so rows land as columns.
func CopyLinearOverSRGB(c *core.Context, color *colorspace.Context, src *bitmap.FloatBitmap, fromRow int,
	dest *bitmap.ByteBitmap, destRow, rowCount, fromCol, colCount int, transpose bool) bool {
	destBPP := dest.Fmt.BytesPerPixel()
	ch := src.Channels
	srcItems := fromCol + colCount
	if srcItems > src.W {
		srcItems = src.W
	}
	srcItems *= ch

	copyAlpha := dest.Fmt == bitmap.BGRA32 && ch == 4 && src.AlphaMeaningful
	cleanAlpha := !copyAlpha && dest.Fmt == bitmap.BGRA32

	destRowStride := dest.Stride
	destPixelStride := destBPP
	if transpose {
		destRowStride, destPixelStride = destPixelStride, destRowStride
	}

	for row := 0; row < rowCount; row++ {
		srcRow := src.Pixels[(row+fromRow)*src.FloatStride:]
		destOff := (destRow+row)*destRowStride + fromCol*destPixelStride
		for ix := fromCol * ch; ix < srcItems; ix += ch {
			db := dest.Pixels[destOff:]
			db[0] = color.FloatspaceToByte(srcRow[ix])
			db[1] = color.FloatspaceToByte(srcRow[ix+1])
			db[2] = color.FloatspaceToByte(srcRow[ix+2])
			if copyAlpha {
				db[3] = colorspace.ClampToByte(srcRow[ix+3] * 255.0)
			}
			if cleanAlpha {
				db[3] = 0xff
			}
			destOff += destPixelStride
		}
	}
	return true
}

// composeLinearOverSRGB alpha-composites premultiplied float rows over the
// destination's existing sRGB pixels.
func composeLinearOverSRGB(c *core.Context, color *colorspace.Context, src *bitmap.FloatBitmap, fromRow int,
	dest *bitmap.ByteBitmap, destRow, rowCount, fromCol, colCount int, transpose bool) bool {
	destBPP := dest.Fmt.BytesPerPixel()
	destRowStride := dest.Stride
	destPixelStride := destBPP
	if transpose {
		destRowStride, destPixelStride = destPixelStride, destRowStride
	}
	ch := src.Channels
	srcItems := fromCol + colCount
	if srcItems > src.W {
		srcItems = src.W
	}
	srcItems *= ch

	destAlpha := dest.Fmt == bitmap.BGRA32 && dest.AlphaMeaningful
	destAlphaIndex := 0
	destAlphaCoeff := float32(0.0)
	destAlphaOffset := float32(1.0)
	if destAlpha {
		destAlphaIndex = 3
		destAlphaCoeff = 1.0 / 255.0
		destAlphaOffset = 0.0
	}

	for row := 0; row < rowCount; row++ {
		srcRow := src.Pixels[(row+fromRow)*src.FloatStride:]
		destOff := (destRow+row)*destRowStride + fromCol*destPixelStride
		for ix := fromCol * ch; ix < srcItems; ix += ch {
			db := dest.Pixels[destOff:]
			destB := db[0]
			destG := db[1]
			destR := db[2]
			destA := db[destAlphaIndex]

			srcB := srcRow[ix]
			srcG := srcRow[ix+1]
			srcR := srcRow[ix+2]
			srcA := srcRow[ix+3]
			a := (1.0 - srcA) * (destAlphaCoeff*float32(destA) + destAlphaOffset)

			b := color.ByteToFloatspace(destB)*a + srcB
			g := color.ByteToFloatspace(destG)*a + srcG
			r := color.ByteToFloatspace(destR)*a + srcR
			finalAlpha := srcA + a

			db[0] = color.FloatspaceToByte(b / finalAlpha)
			db[1] = color.FloatspaceToByte(g / finalAlpha)
			db[2] = color.FloatspaceToByte(r / finalAlpha)
			if destAlpha {
				db[3] = colorspace.ClampToByte(finalAlpha * 255)
			}
			destOff += destPixelStride
		}
	}
	return true
}

// CompositeLinearOverSRGB writes float rows back into a byte canvas,
// honouring the canvas compositing mode: blend with existing pixels, blend
// with matte, or plain replace (demultiplying first as needed).
func CompositeLinearOverSRGB(c *core.Context, color *colorspace.Context, src *bitmap.FloatBitmap, fromRow int,
	dest *bitmap.ByteBitmap, destRow, rowCount int, transpose bool) bool {
	checkW := dest.W
	if transpose {
		checkW = dest.H
	}
	if src.W != checkW {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	if dest.Compositing == bitmap.CompositingBlendWithSelf && src.AlphaMeaningful && src.Channels == 4 {
		if !src.AlphaPremultiplied {
			// Compositing requires premultiplied input.
			c.SetError(core.StatusInvalidInternal)
			return false
		}
		if !composeLinearOverSRGB(c, color, src, fromRow, dest, destRow, rowCount, 0, src.W, transpose) {
			c.AddToCallstack()
			return false
		}
		return true
	}
	if src.Channels == 4 {
		demultiply := src.AlphaPremultiplied
		if dest.Compositing == bitmap.CompositingBlendWithMatte && src.AlphaMeaningful {
			if !blendMatte(c, color, src, fromRow, rowCount, dest.MatteColor) {
				c.AddToCallstack()
				return false
			}
			demultiply = false
		}
		if demultiply {
			if !DemultiplyAlpha(c, src, fromRow, rowCount) {
				c.AddToCallstack()
				return false
			}
		}
	}
	if !CopyLinearOverSRGB(c, color, src, fromRow, dest, destRow, rowCount, 0, src.W, transpose) {
		c.AddToCallstack()
		return false
	}
	return true
}

// ScaleRows applies a horizontal contribution table to rowCount float rows.
func ScaleRows(c *core.Context, from *bitmap.FloatBitmap, fromRow int, to *bitmap.FloatBitmap, toRow, rowCount int,
	weights []PixelContributions) bool {
	fromStep := from.Channels
	toStep := to.Channels
	destBufferCount := to.W
	minChannels := fromStep
	if toStep < minChannels {
		minChannels = toStep
	}
	if minChannels > 4 {
		c.SetError(core.StatusInvalidInternal)
		return false
	}

	if fromStep == 4 && toStep == 4 {
		for row := 0; row < rowCount; row++ {
			sourceBuffer := from.Pixels[(fromRow+row)*from.FloatStride:]
			destBuffer := to.Pixels[(toRow+row)*to.FloatStride:]
			for ndx := 0; ndx < destBufferCount; ndx++ {
				var s0, s1, s2, s3 float32
				left := weights[ndx].Left
				right := weights[ndx].Right
				wa := weights[ndx].Weights
				for i := left; i <= right; i++ {
					w := wa[i-left]
					src := sourceBuffer[i*4:]
					s0 += w * src[0]
					s1 += w * src[1]
					s2 += w * src[2]
					s3 += w * src[3]
				}
				db := destBuffer[ndx*4:]
				db[0], db[1], db[2], db[3] = s0, s1, s2, s3
			}
		}
		return true
	}
	if fromStep == 3 && toStep == 3 {
		for row := 0; row < rowCount; row++ {
			sourceBuffer := from.Pixels[(fromRow+row)*from.FloatStride:]
			destBuffer := to.Pixels[(toRow+row)*to.FloatStride:]
			for ndx := 0; ndx < destBufferCount; ndx++ {
				var s0, s1, s2 float32
				left := weights[ndx].Left
				right := weights[ndx].Right
				wa := weights[ndx].Weights
				for i := left; i <= right; i++ {
					w := wa[i-left]
					src := sourceBuffer[i*3:]
					s0 += w * src[0]
					s1 += w * src[1]
					s2 += w * src[2]
				}
				db := destBuffer[ndx*3:]
				db[0], db[1], db[2] = s0, s1, s2
			}
		}
		return true
	}

	var avg [4]float32
	for row := 0; row < rowCount; row++ {
		sourceBuffer := from.Pixels[(fromRow+row)*from.FloatStride:]
		destBuffer := to.Pixels[(toRow+row)*to.FloatStride:]
		for ndx := 0; ndx < destBufferCount; ndx++ {
			for j := 0; j < minChannels; j++ {
				avg[j] = 0
			}
			left := weights[ndx].Left
			right := weights[ndx].Right
			wa := weights[ndx].Weights
			for i := left; i <= right; i++ {
				w := wa[i-left]
				for j := 0; j < minChannels; j++ {
					avg[j] += w * sourceBuffer[i*fromStep+j]
				}
			}
			for j := 0; j < minChannels; j++ {
				destBuffer[ndx*toStep+j] = avg[j]
			}
		}
	}
	return true
}
