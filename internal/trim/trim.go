// Package trim implements the content-trim heuristic: a windowed
// Scharr-gradient scan that finds the tight bounding rectangle of
// non-background content in a byte bitmap.
//
// The scan works through a fixed-size luma window buffer. Horizontal strips
// are scanned first (they glean the most per byte read), vertical strips
// next, and regions already enclosed by the known content bounds are
// skipped. When a window shows gradient activity, the bounds are refined
// per pixel by contrast against the background luma sampled from the image
// border, which keeps the result exact to the pixel.
package trim

import (
	"math"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/core"
	"github.com/deepteams/fastscale/internal/pool"
)

// Rect is a half-open rectangle.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// RectFailure is returned when detection fails or finds nothing.
var RectFailure = Rect{-1, -1, -1, -1}

const scanBufferSize = 2048

type scanRegion struct {
	// edgeTRBL: 1 top, 2 right, 3 bottom, 4 left, 0 non-directional.
	edgeTRBL                               int
	x1Pct, x2Pct, y1Pct, y2Pct             float64
}

// Horizontal strips first; they are faster per pixel of coverage.
var quickStrips = []scanRegion{
	{4, 0, 0.5, 0.5, 0.5},      // left half, middle, ->
	{2, 0.5, 1, 0.5, 0.5},      // right half, middle, <-
	{4, 0, 0.5, 0.677, 0.677},  // left half, bottom third ->
	{2, 0.5, 1, 0.677, 0.677},  // right half, bottom third <-
	{4, 0, 0.5, 0.333, 0.333},  // left half, top third ->
	{2, 0.5, 1, 0.333, 0.333},  // right half, top third <-
	{1, 0.5, 0.5, 0, 0.5},      // top half, center
	{1, 0.677, 0.677, 0, 0.5},  // top half, right third
	{1, 0.333, 0.333, 0, 0.5},  // top half, left third
	{3, 0.5, 0.5, 0.5, 1},      // bottom half, center
	{3, 0.677, 0.677, 0.5, 1},  // bottom half, right third
	{3, 0.333, 0.333, 0.5, 1},  // bottom half, left third
}

var everythingInward = []scanRegion{
	{1, 0, 1, 0, 1},
	{4, 0, 1, 0, 1},
	{2, 0, 1, 0, 1},
	{3, 0, 1, 0, 1},
}

type searchInfo struct {
	w, h       int
	buf        []byte
	bufSize    int
	bufX, bufY int
	bufW, bufH int

	minX, maxX int
	minY, maxY int

	bitmap     *bitmap.ByteBitmap
	threshold  uint32
	background uint8
}

// DetectContent returns the tight half-open bounding rectangle of pixels
// whose luma differs from the background by more than threshold. The
// background is the modal luma of the image border. Returns RectFailure on
// error or when no content is found.
func DetectContent(c *core.Context, b *bitmap.ByteBitmap, threshold uint8) Rect {
	if b == nil {
		c.SetError(core.StatusNullArgument)
		return RectFailure
	}
	if threshold == 0 {
		threshold = 1
	}
	info := &searchInfo{
		w:          b.W,
		h:          b.H,
		bufSize:    scanBufferSize,
		buf:        pool.Get(scanBufferSize),
		minX:       b.W,
		maxX:       0,
		minY:       b.H,
		maxY:       0,
		bitmap:     b,
		threshold:  uint32(threshold),
		background: borderBackgroundLuma(b),
	}
	defer pool.Put(info.buf)

	if !checkRegions(c, info, quickStrips) {
		c.AddToCallstack()
		return RectFailure
	}

	// If the strips suggest most of the image is whitespace, one
	// non-directional scan beats four inward passes.
	areaToScanSeparately := info.minX*info.h + info.minY*info.w +
		(info.w-info.maxX)*info.h + (info.h-info.maxY)*info.w
	if areaToScanSeparately > info.h*info.w {
		if !checkRegion(c, info, scanRegion{0, 0, 1, 0, 1}) {
			c.AddToCallstack()
			return RectFailure
		}
	} else {
		// Scan whatever is left inward from each edge. Whitespace corners
		// overlap and are scanned twice.
		if !checkRegions(c, info, everythingInward) {
			c.AddToCallstack()
			return RectFailure
		}
	}

	if info.minX > info.maxX || info.minY > info.maxY {
		return RectFailure
	}
	return Rect{X1: info.minX, Y1: info.minY, X2: info.maxX, Y2: info.maxY}
}

// pixelLuma converts one pixel to the same single-byte luma fillBuffer
// produces.
func pixelLuma(b *bitmap.ByteBitmap, x, y int) uint8 {
	bpp := b.Fmt.BytesPerPixel()
	p := b.Pixels[y*b.Stride+x*bpp:]
	switch {
	case bpp == 4 && b.AlphaMeaningful:
		gray := ((233*uint32(p[0]) + 1197*uint32(p[1]) + 610*uint32(p[2])) * uint32(p[3]) + 524288 - 1) / 524288
		if gray > 255 {
			gray = 255
		}
		return uint8(gray)
	case bpp == 3 || bpp == 4:
		return uint8((233*uint32(p[0]) + 1197*uint32(p[1]) + 610*uint32(p[2])) / 2048)
	default:
		sum := uint32(0)
		for ch := 0; ch < bpp; ch++ {
			sum += uint32(p[ch])
		}
		return uint8(sum / uint32(bpp))
	}
}

// borderBackgroundLuma samples the image border (corners and edge
// midpoints) and returns the most frequent luma.
func borderBackgroundLuma(b *bitmap.ByteBitmap) uint8 {
	xs := []int{0, b.W - 1, 0, b.W - 1, b.W / 2, b.W / 2, 0, b.W - 1}
	ys := []int{0, 0, b.H - 1, b.H - 1, 0, b.H - 1, b.H / 2, b.H / 2}
	var counts [256]int
	for i := range xs {
		counts[pixelLuma(b, xs[i], ys[i])]++
	}
	best := 0
	for v := 1; v < 256; v++ {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return uint8(best)
}

func fillBuffer(c *core.Context, info *searchInfo) bool {
	w := info.bufW
	h := info.bufH
	b := info.bitmap
	bpp := b.Fmt.BytesPerPixel()
	bytesAccessed := b.Stride*(info.bufY+h-1) + bpp*(w+info.bufX)
	if bytesAccessed > b.Stride*b.H {
		c.SetError(core.StatusInvalidArgument)
		return false
	}
	bufIx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			info.buf[bufIx] = pixelLuma(b, info.bufX+x, info.bufY+y)
			bufIx++
		}
	}
	return true
}

// expandOver grows the candidate bounds to cover pixel (x, y) exactly.
func (info *searchInfo) expandOver(x, y int) {
	if x < info.minX {
		info.minX = x
	}
	if x+1 > info.maxX {
		info.maxX = x + 1
	}
	if y < info.minY {
		info.minY = y
	}
	if y+1 > info.maxY {
		info.maxY = y + 1
	}
}

func absDiff(a, b uint8) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

// scharrDetect runs the (±3, ±10, ±3) gradient over the interior of the
// window buffer. Around each triggering pixel the bounds are refined per
// pixel: only neighbours contrasting with the background count as content.
func scharrDetect(c *core.Context, info *searchInfo) bool {
	w := info.bufW
	h := info.bufH
	yEnd := h - 1
	xEnd := w - 1
	threshold := info.threshold
	buf := info.buf
	bg := info.background

	bufIx := w + 1
	for y := 1; y < yEnd; y++ {
		for x := 1; x < xEnd; x++ {
			gx := -3*int32(buf[bufIx-w-1]) + -10*int32(buf[bufIx-1]) + -3*int32(buf[bufIx+w-1]) +
				3*int32(buf[bufIx-w+1]) + 10*int32(buf[bufIx+1]) + 3*int32(buf[bufIx+w+1])
			gy := 3*int32(buf[bufIx-w-1]) + 10*int32(buf[bufIx-w]) + 3*int32(buf[bufIx-w+1]) +
				-3*int32(buf[bufIx+w-1]) + -10*int32(buf[bufIx+w]) + -3*int32(buf[bufIx+w+1])
			value := uint32(abs32(gx) + abs32(gy))
			if value > threshold {
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						qx := x + dx
						qy := y + dy
						if absDiff(buf[qy*w+qx], bg) > threshold {
							info.expandOver(info.bufX+qx, info.bufY+qy)
						}
					}
				}
			}
			bufIx++
		}
		bufIx += 2
	}
	return true
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func checkRegions(c *core.Context, info *searchInfo, regions []scanRegion) bool {
	for _, r := range regions {
		if !checkRegion(c, info, r) {
			c.AddToCallstack()
			return false
		}
	}
	return true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func checkRegion(c *core.Context, info *searchInfo, r scanRegion) bool {
	x1 := clampInt(int(math.Floor(r.x1Pct*float64(info.w)))-1, 0, info.w)
	x2 := clampInt(int(math.Ceil(r.x2Pct*float64(info.w)))+1, 0, info.w)
	y1 := clampInt(int(math.Floor(r.y1Pct*float64(info.h)))-1, 0, info.h)
	y2 := clampInt(int(math.Ceil(r.y2Pct*float64(info.h)))+1, 0, info.h)

	// Snap the boundary depending on which side is being searched.
	switch r.edgeTRBL {
	case 4:
		x1 = 0
		if info.minX < x2 {
			x2 = info.minX
		}
	case 2:
		if info.maxX > x1 {
			x1 = info.maxX
		}
		x2 = info.w
	case 1:
		y1 = 0
		if info.minY < y2 {
			y2 = info.minY
		}
	case 3:
		if info.maxY > y1 {
			y1 = info.maxY
		}
		y2 = info.h
	}
	if x1 == x2 || y1 == y2 {
		return true // nothing left to search
	}

	// Search at least a few pixels in the perpendicular direction.
	minRegionWidth := 7
	minRegionHeight := 7
	if r.edgeTRBL == 2 || r.edgeTRBL == 4 {
		minRegionWidth = 3
	}
	if r.edgeTRBL == 1 || r.edgeTRBL == 3 {
		minRegionHeight = 3
	}
	for y2-y1 < minRegionHeight && (y1 > 0 || y2 < info.h) {
		if y1 > 0 {
			y1--
		}
		if y2 < info.h {
			y2++
		}
	}
	for x2-x1 < minRegionWidth && (x1 > 0 || x2 < info.w) {
		if x1 > 0 {
			x1--
		}
		if x2 < info.w {
			x2++
		}
	}

	w := x2 - x1
	h := y2 - y1

	// Full scans want windows wide along X; directional scans square.
	windowWidth := info.bufSize / 7
	if r.edgeTRBL != 0 {
		windowWidth = int(math.Ceil(math.Sqrt(float64(info.bufSize))))
	}
	if windowWidth > w {
		windowWidth = w
	}
	windowHeight := info.bufSize / windowWidth
	if windowHeight > h {
		windowHeight = h
	}

	verticalWindows := ceilDiv(h, windowHeight-2)
	horizontalWindows := ceilDiv(w, windowWidth-2)

	for windowRow := 0; windowRow < verticalWindows; windowRow++ {
		for windowColumn := 0; windowColumn < horizontalWindows; windowColumn++ {
			info.bufX = x1 + (windowWidth-2)*windowColumn
			info.bufY = y1 + (windowHeight-2)*windowRow
			info.bufW = clampInt(x2-info.bufX, 3, windowWidth)
			info.bufH = clampInt(y2-info.bufY, 3, windowHeight)
			bufX2 := info.bufX + info.bufW
			bufY2 := info.bufY + info.bufH

			excludedX := info.minX <= info.bufX && info.maxX >= bufX2
			excludedY := info.minY <= info.bufY && info.maxY >= bufY2
			if excludedX && excludedY {
				// Entire window already inside the known content bounds.
				continue
			}
			if excludedY && info.minX < bufX2 && bufX2 < info.maxX {
				info.bufW = max(3, info.minX-info.bufX)
			} else if excludedY && info.maxX > info.bufX && info.bufX > info.minX {
				info.bufX = min(bufX2-3, info.maxX)
				info.bufW = bufX2 - info.bufX
			}
			if excludedX && info.minY < bufY2 && bufY2 < info.maxY {
				info.bufH = max(3, info.minY-info.bufY)
			} else if excludedX && info.maxY > info.bufY && info.bufY > info.minY {
				info.bufY = min(bufY2-3, info.maxY)
				info.bufH = bufY2 - info.bufY
			}

			if info.bufY+info.bufH > info.h || info.bufX+info.bufW > info.w {
				continue
			}

			if !fillBuffer(c, info) {
				c.AddToCallstack()
				return false
			}
			if !scharrDetect(c, info) {
				c.AddToCallstack()
				return false
			}
		}
	}
	return true
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 1
	}
	return (a + b - 1) / b
}
