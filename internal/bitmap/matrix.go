package bitmap

import (
	"github.com/deepteams/fastscale/internal/core"
)

func clampFF(f float32) uint8 {
	i := int32(f + 0.5)
	if i < 0 {
		return 0
	}
	if i > 255 {
		return 255
	}
	return uint8(i)
}

// ApplyColorMatrix applies a 5x4 colour matrix to rows [row, row+count) of a
// byte bitmap. m is indexed [input channel][output channel] with row 4 the
// constant term in 0..1 units.
func ApplyColorMatrix(c *core.Context, b *ByteBitmap, row, count int, m *[5][4]float32) bool {
	ch := b.Fmt.BytesPerPixel()
	h := row + count
	if h > b.H {
		h = b.H
	}
	m40 := m[4][0] * 255.0
	m41 := m[4][1] * 255.0
	m42 := m[4][2] * 255.0
	m43 := m[4][3] * 255.0

	switch ch {
	case 4:
		for y := row; y < h; y++ {
			for x := 0; x < b.W; x++ {
				data := b.Pixels[b.Stride*y+x*ch:]
				db := float32(data[0])
				dg := float32(data[1])
				dr := float32(data[2])
				da := float32(data[3])
				r := clampFF(m[0][0]*dr + m[1][0]*dg + m[2][0]*db + m[3][0]*da + m40)
				g := clampFF(m[0][1]*dr + m[1][1]*dg + m[2][1]*db + m[3][1]*da + m41)
				bb := clampFF(m[0][2]*dr + m[1][2]*dg + m[2][2]*db + m[3][2]*da + m42)
				a := clampFF(m[0][3]*dr + m[1][3]*dg + m[2][3]*db + m[3][3]*da + m43)
				data[0] = bb
				data[1] = g
				data[2] = r
				data[3] = a
			}
		}
	case 3:
		for y := row; y < h; y++ {
			for x := 0; x < b.W; x++ {
				data := b.Pixels[b.Stride*y+x*ch:]
				db := float32(data[0])
				dg := float32(data[1])
				dr := float32(data[2])
				r := clampFF(m[0][0]*dr + m[1][0]*dg + m[2][0]*db + m40)
				g := clampFF(m[0][1]*dr + m[1][1]*dg + m[2][1]*db + m41)
				bb := clampFF(m[0][2]*dr + m[1][2]*dg + m[2][2]*db + m42)
				data[0] = bb
				data[1] = g
				data[2] = r
			}
		}
	default:
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	return true
}

// ApplyColorMatrixFloat applies a 5x4 colour matrix to rows of a float
// bitmap, without clamping.
func ApplyColorMatrixFloat(c *core.Context, b *FloatBitmap, row, count int, m *[5][4]float32) bool {
	h := row + count
	if h > b.H {
		h = b.H
	}
	switch b.Channels {
	case 4:
		for y := row; y < h; y++ {
			for x := 0; x < b.W; x++ {
				data := b.Pixels[b.FloatStride*y+x*4:]
				db, dg, dr, da := data[0], data[1], data[2], data[3]
				r := m[0][0]*dr + m[1][0]*dg + m[2][0]*db + m[3][0]*da + m[4][0]
				g := m[0][1]*dr + m[1][1]*dg + m[2][1]*db + m[3][1]*da + m[4][1]
				bb := m[0][2]*dr + m[1][2]*dg + m[2][2]*db + m[3][2]*da + m[4][2]
				a := m[0][3]*dr + m[1][3]*dg + m[2][3]*db + m[3][3]*da + m[4][3]
				data[0], data[1], data[2], data[3] = bb, g, r, a
			}
		}
	case 3:
		for y := row; y < h; y++ {
			for x := 0; x < b.W; x++ {
				data := b.Pixels[b.FloatStride*y+x*3:]
				db, dg, dr := data[0], data[1], data[2]
				r := m[0][0]*dr + m[1][0]*dg + m[2][0]*db + m[4][0]
				g := m[0][1]*dr + m[1][1]*dg + m[2][1]*db + m[4][1]
				bb := m[0][2]*dr + m[1][2]*dg + m[2][2]*db + m[4][2]
				data[0], data[1], data[2] = bb, g, r
			}
		}
	default:
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	return true
}

// PopulateHistogram fills histogramCount channels of 256-bin histograms from
// b. One histogram collects luminosity; two adds a saturation estimate;
// three collects R, G and B separately. Returns the number of pixels
// sampled.
func PopulateHistogram(c *core.Context, b *ByteBitmap, histograms []uint64, binsPerChannel, histogramCount int) (int64, bool) {
	if binsPerChannel != 256 {
		c.SetError(core.StatusInvalidArgument)
		return 0, false
	}
	ch := b.Fmt.BytesPerPixel()
	if ch != 3 && ch != 4 {
		c.SetError(core.StatusUnsupportedFormat)
		return 0, false
	}
	if len(histograms) < binsPerChannel*histogramCount {
		c.SetError(core.StatusInvalidArgument)
		return 0, false
	}
	switch histogramCount {
	case 1:
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				d := b.Pixels[b.Stride*y+x*ch:]
				histograms[(306*uint32(d[2])+601*uint32(d[1])+117*uint32(d[0]))>>10]++
			}
		}
	case 3:
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				d := b.Pixels[b.Stride*y+x*ch:]
				histograms[d[2]]++
				histograms[int(d[1])+binsPerChannel]++
				histograms[int(d[0])+2*binsPerChannel]++
			}
		}
	case 2:
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				d := b.Pixels[b.Stride*y+x*ch:]
				histograms[(306*uint32(d[2])+601*uint32(d[1])+117*uint32(d[0]))>>10]++
				sat := absInt(int(d[2]) - int(d[1]))
				if s2 := absInt(int(d[1]) - int(d[0])); s2 > sat {
					sat = s2
				}
				histograms[binsPerChannel+sat]++
			}
		}
	default:
		c.SetError(core.StatusInvalidInternal)
		return 0, false
	}
	return int64(b.H) * int64(b.W), true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
