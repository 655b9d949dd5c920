package bitmap

import (
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
)

// LinearToLuvRows converts rows [startRow, startRow+rowCount) of a float
// bitmap from linear BGR to Luv in place. Alpha, when present, is left
// untouched.
func LinearToLuvRows(c *core.Context, b *FloatBitmap, startRow, rowCount int) bool {
	if startRow+rowCount > b.H {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	for row := startRow; row < startRow+rowCount; row++ {
		base := row * b.FloatStride
		for x := 0; x < b.W; x++ {
			colorspace.LinearToLuv(b.Pixels[base+x*b.Channels:])
		}
	}
	return true
}

// LuvToLinearRows converts rows back from Luv to linear BGR in place.
func LuvToLinearRows(c *core.Context, b *FloatBitmap, startRow, rowCount int) bool {
	if startRow+rowCount > b.H {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	for row := startRow; row < startRow+rowCount; row++ {
		base := row * b.FloatStride
		for x := 0; x < b.W; x++ {
			colorspace.LuvToLinear(b.Pixels[base+x*b.Channels:])
		}
	}
	return true
}
