package bitmap

import (
	"encoding/binary"

	"github.com/deepteams/fastscale/internal/core"
	"github.com/deepteams/fastscale/internal/pool"
)

// FlipVertical mirrors b top-to-bottom in place using one scratch row.
func FlipVertical(c *core.Context, b *ByteBitmap) bool {
	rowLength := b.W * b.Fmt.BytesPerPixel()
	if rowLength > b.Stride {
		rowLength = b.Stride
	}
	swap := pool.Get(rowLength)
	defer pool.Put(swap)
	for i := 0; i < b.H/2; i++ {
		top := b.Pixels[i*b.Stride : i*b.Stride+rowLength]
		bottom := b.Pixels[(b.H-1-i)*b.Stride : (b.H-1-i)*b.Stride+rowLength]
		copy(swap, top)
		copy(top, bottom)
		copy(bottom, swap)
	}
	return true
}

// FlipHorizontal mirrors b left-to-right in place. 32-bit formats swap
// whole words; 24-bit uses a 4-byte stage.
func FlipHorizontal(c *core.Context, b *ByteBitmap) bool {
	bpp := b.Fmt.BytesPerPixel()
	if bpp == 4 {
		for y := 0; y < b.H; y++ {
			row := b.Pixels[y*b.Stride:]
			left := 0
			right := 4 * (b.W - 1)
			for left < right {
				l := binary.LittleEndian.Uint32(row[left:])
				r := binary.LittleEndian.Uint32(row[right:])
				binary.LittleEndian.PutUint32(row[left:], r)
				binary.LittleEndian.PutUint32(row[right:], l)
				left += 4
				right -= 4
			}
		}
		return true
	}
	var swap [4]byte
	for y := 0; y < b.H; y++ {
		row := b.Pixels[y*b.Stride:]
		left := 0
		right := bpp * (b.W - 1)
		for left < right {
			copy(swap[:bpp], row[left:])
			copy(row[left:left+bpp], row[right:right+bpp])
			copy(row[right:right+bpp], swap[:bpp])
			left += bpp
			right -= bpp
		}
	}
	return true
}

const transposeBlock = 4

// Transpose writes the transposition of from into to. Formats must match
// and to's dimensions must be from's, inverted. The 32-bit path runs a 4x4
// word-block kernel over the aligned interior and finishes the two ragged
// edges per pixel.
func Transpose(c *core.Context, from, to *ByteBitmap) bool {
	if from == to {
		c.SetError(core.StatusInvalidArgument)
		return false
	}
	if from.Fmt != to.Fmt || to.W != from.H || to.H != from.W {
		c.SetError(core.StatusInvalidArgument)
		return false
	}
	bpp := from.Fmt.BytesPerPixel()
	if bpp == 4 {
		transposeWords(from, to)
		return true
	}
	if bpp == 3 || bpp == 1 {
		for y := 0; y < from.H; y++ {
			src := from.Pixels[y*from.Stride:]
			for x := 0; x < from.W; x++ {
				dst := to.Pixels[x*to.Stride+y*bpp:]
				copy(dst[:bpp], src[x*bpp:x*bpp+bpp])
			}
		}
		return true
	}
	c.SetError(core.StatusUnsupportedFormat)
	return false
}

func transposeWords(from, to *ByteBitmap) {
	alignedW := from.W - from.W%transposeBlock
	alignedH := from.H - from.H%transposeBlock

	var block [transposeBlock][transposeBlock]uint32
	for by := 0; by < alignedH; by += transposeBlock {
		for bx := 0; bx < alignedW; bx += transposeBlock {
			for y := 0; y < transposeBlock; y++ {
				row := from.Pixels[(by+y)*from.Stride+bx*4:]
				for x := 0; x < transposeBlock; x++ {
					block[x][y] = binary.LittleEndian.Uint32(row[x*4:])
				}
			}
			for y := 0; y < transposeBlock; y++ {
				row := to.Pixels[(bx+y)*to.Stride+by*4:]
				for x := 0; x < transposeBlock; x++ {
					binary.LittleEndian.PutUint32(row[x*4:], block[y][x])
				}
			}
		}
	}
	// Ragged right edge.
	for y := 0; y < from.H; y++ {
		src := from.Pixels[y*from.Stride:]
		for x := alignedW; x < from.W; x++ {
			v := binary.LittleEndian.Uint32(src[x*4:])
			binary.LittleEndian.PutUint32(to.Pixels[x*to.Stride+y*4:], v)
		}
	}
	// Ragged bottom edge.
	for y := alignedH; y < from.H; y++ {
		src := from.Pixels[y*from.Stride:]
		for x := 0; x < alignedW; x++ {
			v := binary.LittleEndian.Uint32(src[x*4:])
			binary.LittleEndian.PutUint32(to.Pixels[x*to.Stride+y*4:], v)
		}
	}
}

func transposeToNew(c *core.Context, b *ByteBitmap) *ByteBitmap {
	t := New(c, b.H, b.W, false, b.Fmt)
	if t == nil {
		c.AddToCallstack()
		return nil
	}
	t.AlphaMeaningful = b.AlphaMeaningful
	t.Compositing = b.Compositing
	t.MatteColor = b.MatteColor
	if !Transpose(c, b, t) {
		c.AddToCallstack()
		return nil
	}
	return t
}

// ApplyOrientation normalises b according to an EXIF orientation code 1..8,
// returning the upright bitmap. Codes with a 90-degree component allocate a
// transposed bitmap and destroy b; the others mutate in place. Code 0 and 1
// are no-ops.
func ApplyOrientation(c *core.Context, b *ByteBitmap, orientation int) *ByteBitmap {
	switch orientation {
	case 0, 1:
		return b
	case 2:
		if !FlipHorizontal(c, b) {
			c.AddToCallstack()
			return nil
		}
		return b
	case 3:
		if !FlipHorizontal(c, b) || !FlipVertical(c, b) {
			c.AddToCallstack()
			return nil
		}
		return b
	case 4:
		if !FlipVertical(c, b) {
			c.AddToCallstack()
			return nil
		}
		return b
	case 5, 6, 7, 8:
		t := transposeToNew(c, b)
		if t == nil {
			c.AddToCallstack()
			return nil
		}
		ok := true
		switch orientation {
		case 6: // rotate 90 clockwise
			ok = FlipHorizontal(c, t)
		case 7: // transverse
			ok = FlipHorizontal(c, t) && FlipVertical(c, t)
		case 8: // rotate 270 clockwise
			ok = FlipVertical(c, t)
		}
		if !ok {
			c.AddToCallstack()
			return nil
		}
		if !c.DestroyObj(b) {
			c.AddToCallstack()
			return nil
		}
		return t
	}
	c.SetErrorf(core.StatusInvalidArgument, "EXIF orientation %d out of range", orientation)
	return nil
}

// Rotate90 returns b rotated a quarter turn clockwise, destroying b.
func Rotate90(c *core.Context, b *ByteBitmap) *ByteBitmap {
	return ApplyOrientation(c, b, 6)
}

// Rotate180 rotates b in place.
func Rotate180(c *core.Context, b *ByteBitmap) *ByteBitmap {
	return ApplyOrientation(c, b, 3)
}

// Rotate270 returns b rotated a quarter turn counter-clockwise, destroying b.
func Rotate270(c *core.Context, b *ByteBitmap) *ByteBitmap {
	return ApplyOrientation(c, b, 8)
}
