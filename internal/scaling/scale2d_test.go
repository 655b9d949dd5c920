package scaling

import (
	"math"
	"testing"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
)

func absDiffByte(a, b byte) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func solidBitmap(t *testing.T, c *core.Context, w, h int, bgra [4]byte) *bitmap.ByteBitmap {
	t.Helper()
	b := bitmap.New(c, w, h, true, bitmap.BGRA32)
	if b == nil {
		t.Fatalf("bitmap: %v", c.Err())
	}
	for y := 0; y < h; y++ {
		row := b.Pixels[y*b.Stride:]
		for x := 0; x < w; x++ {
			copy(row[x*4:x*4+4], bgra[:])
		}
	}
	return b
}

func TestScaleIdentitySolid(t *testing.T) {
	c := newTestContext(t)
	src := solidBitmap(t, c, 33, 21, [4]byte{40, 90, 200, 255})
	dst := bitmap.New(c, 33, 21, true, bitmap.BGRA32)

	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 33, H: 21,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	for y := 0; y < 21; y++ {
		for x := 0; x < 33; x++ {
			for ch := 0; ch < 4; ch++ {
				got := dst.Pixels[y*dst.Stride+x*4+ch]
				want := src.Pixels[y*src.Stride+x*4+ch]
				if absDiffByte(got, want) > 2 {
					t.Fatalf("(%d,%d) ch %d: %d, want within 2 of %d", x, y, ch, got, want)
				}
			}
		}
	}
}

func TestScaleIdentityGradient(t *testing.T) {
	c := newTestContext(t)
	src := bitmap.New(c, 64, 16, true, bitmap.BGRA32)
	for y := 0; y < 16; y++ {
		row := src.Pixels[y*src.Stride:]
		for x := 0; x < 64; x++ {
			v := byte(x * 4)
			row[x*4] = v
			row[x*4+1] = v
			row[x*4+2] = v
			row[x*4+3] = 255
		}
	}
	dst := bitmap.New(c, 64, 16, true, bitmap.BGRA32)
	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 64, H: 16,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 64; x++ {
			got := dst.Pixels[y*dst.Stride+x*4]
			want := src.Pixels[y*src.Stride+x*4]
			if absDiffByte(got, want) > 3 {
				t.Fatalf("(%d,%d): %d, want within 3 of %d", x, y, got, want)
			}
		}
	}
}

func TestScaleDownSolidStaysSolid(t *testing.T) {
	c := newTestContext(t)
	src := solidBitmap(t, c, 128, 96, [4]byte{17, 130, 220, 255})
	dst := bitmap.New(c, 16, 12, true, bitmap.BGRA32)

	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 16, H: 12,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			p := dst.Pixels[y*dst.Stride+x*4:]
			if absDiffByte(p[0], 17) > 1 || absDiffByte(p[1], 130) > 1 || absDiffByte(p[2], 220) > 1 {
				t.Fatalf("(%d,%d) = %v, want solid source colour", x, y, p[:4])
			}
			if p[3] != 255 {
				t.Fatalf("(%d,%d) alpha = %d, want 255", x, y, p[3])
			}
		}
	}
}

func TestScaleAveragesInLinearSpace(t *testing.T) {
	// Downscaling alternating black and white columns must produce linear
	// 50% grey (sRGB 188), not byte-average grey (128).
	c := newTestContext(t)
	src := bitmap.New(c, 64, 8, true, bitmap.BGRA32)
	for y := 0; y < 8; y++ {
		row := src.Pixels[y*src.Stride:]
		for x := 0; x < 64; x++ {
			v := byte(0)
			if x%2 == 1 {
				v = 255
			}
			row[x*4] = v
			row[x*4+1] = v
			row[x*4+2] = v
			row[x*4+3] = 255
		}
	}
	dst := bitmap.New(c, 8, 1, true, bitmap.BGRA32)
	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 8, H: 1,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	// Interior pixels only: the edges see clamped windows.
	for x := 2; x < 6; x++ {
		got := dst.Pixels[x*4]
		if absDiffByte(got, 188) > 4 {
			t.Fatalf("pixel %d = %d, want about 188 (linear-light average)", x, got)
		}
	}
}

func TestScaleRejectsNarrowFormats(t *testing.T) {
	c := newTestContext(t)
	src := bitmap.New(c, 10, 10, true, bitmap.BGR24)
	dst := bitmap.New(c, 5, 5, true, bitmap.BGRA32)
	if RenderToCanvas(c, src, dst, RenderOptions{W: 5, H: 5, Filter: FilterRobidoux}) {
		t.Fatal("scale from BGR24 succeeded, want Not-implemented")
	}
	if got := c.ErrorStatus(); got != core.StatusNotImplemented {
		t.Errorf("status = %v, want StatusNotImplemented", got)
	}
}

func TestScaleRejectsBadWindow(t *testing.T) {
	c := newTestContext(t)
	src := bitmap.New(c, 10, 10, true, bitmap.BGRA32)
	dst := bitmap.New(c, 5, 5, true, bitmap.BGRA32)
	if RenderToCanvas(c, src, dst, RenderOptions{X: 2, Y: 0, W: 5, H: 5, Filter: FilterRobidoux}) {
		t.Fatal("out-of-bounds window accepted")
	}
}

func TestScaleIntoCanvasWindow(t *testing.T) {
	// Rendering into a sub-window must leave the rest of the canvas
	// untouched.
	c := newTestContext(t)
	src := solidBitmap(t, c, 40, 40, [4]byte{0, 0, 255, 255}) // red
	dst := bitmap.New(c, 20, 20, true, bitmap.BGRA32)
	bitmap.FillRect(c, dst, 0, 0, 20, 20, 0xFF00FF00) // green

	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 5, Y: 5, W: 10, H: 10,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	inside := dst.Pixels[10*dst.Stride+10*4:]
	if inside[2] < 250 {
		t.Errorf("window interior R = %d, want red", inside[2])
	}
	outside := dst.Pixels[1*dst.Stride+1*4:]
	if outside[1] != 255 || outside[2] != 0 {
		t.Errorf("outside pixel = %v, want untouched green", outside[:4])
	}
	// The working memory is released whether or not the scale succeeded;
	// only the two bitmaps remain.
	if got := c.LiveCount(); got != 2 {
		t.Errorf("LiveCount = %d, want 2 (src and dst only)", got)
	}
}

func TestScaleCleanupOnFailure(t *testing.T) {
	c := newTestContext(t)
	src := bitmap.New(c, 10, 10, true, bitmap.BGR24)
	dst := bitmap.New(c, 5, 5, true, bitmap.BGRA32)
	RenderToCanvas(c, src, dst, RenderOptions{W: 5, H: 5, Filter: FilterRobidoux})
	if got := c.LiveCount(); got != 2 {
		t.Errorf("LiveCount after failed scale = %d, want 2", got)
	}
}

func TestScaleMatteBlend(t *testing.T) {
	// A fully transparent source over a white matte must come out white.
	c := newTestContext(t)
	src := solidBitmap(t, c, 16, 16, [4]byte{0, 0, 0, 0})
	dst := bitmap.New(c, 8, 8, true, bitmap.BGRA32)
	dst.Compositing = bitmap.CompositingBlendWithMatte
	dst.MatteColor = [4]byte{255, 255, 255, 255}

	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 8, H: 8,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	p := dst.Pixels[4*dst.Stride+4*4:]
	if p[0] != 255 || p[1] != 255 || p[2] != 255 {
		t.Errorf("matte result = %v, want white", p[:4])
	}
}

func TestScaleComposeOverSelf(t *testing.T) {
	// A half-transparent black source blended over a white canvas lands in
	// the middle, in linear light.
	c := newTestContext(t)
	src := solidBitmap(t, c, 16, 16, [4]byte{0, 0, 0, 128})
	dst := bitmap.New(c, 8, 8, true, bitmap.BGRA32)
	bitmap.FillRect(c, dst, 0, 0, 8, 8, 0xFFFFFFFF)
	dst.Compositing = bitmap.CompositingBlendWithSelf

	ok := RenderToCanvas(c, src, dst, RenderOptions{
		X: 0, Y: 0, W: 8, H: 8,
		Filter:     FilterRobidoux,
		Floatspace: colorspace.FloatspaceLinear,
	})
	if !ok {
		t.Fatalf("RenderToCanvas failed: %v", c.Err())
	}
	p := dst.Pixels[4*dst.Stride+4*4:]
	// 50% linear white is sRGB ~188.
	if absDiffByte(p[0], 188) > 4 {
		t.Errorf("blend result = %v, want about 188", p[:4])
	}
	if p[3] != 255 {
		t.Errorf("alpha = %d, want opaque", p[3])
	}
}

func TestScaleRowsHorizontal(t *testing.T) {
	c := newTestContext(t)
	src := bitmap.NewFloat(c, 4, 1, 4, true)
	for x := 0; x < 4; x++ {
		for ch := 0; ch < 4; ch++ {
			src.Pixels[x*4+ch] = float32(x)
		}
	}
	dst := bitmap.NewFloat(c, 2, 1, 4, true)
	weights := []PixelContributions{
		{Left: 0, Right: 1, Weights: []float32{0.5, 0.5}},
		{Left: 2, Right: 3, Weights: []float32{0.5, 0.5}},
	}
	if !ScaleRows(c, src, 0, dst, 0, 1, weights) {
		t.Fatalf("ScaleRows failed: %v", c.Err())
	}
	if math.Abs(float64(dst.Pixels[0]-0.5)) > 1e-6 {
		t.Errorf("dst[0] = %v, want 0.5", dst.Pixels[0])
	}
	if math.Abs(float64(dst.Pixels[4]-2.5)) > 1e-6 {
		t.Errorf("dst[1] = %v, want 2.5", dst.Pixels[4])
	}
}

func TestConvertToLinearPremultiplies(t *testing.T) {
	c := newTestContext(t)
	var colorctx colorspace.Context
	colorctx.Init(colorspace.FloatspaceLinear, 0, 0, 0)

	src := bitmap.New(c, 2, 1, true, bitmap.BGRA32)
	// Pixel 0: opaque white; pixel 1: half-transparent white.
	copy(src.Pixels[0:4], []byte{255, 255, 255, 255})
	copy(src.Pixels[4:8], []byte{255, 255, 255, 128})

	dst := bitmap.NewFloat(c, 2, 1, 4, true)
	if !ConvertToLinear(c, &colorctx, src, 0, dst, 0, 1) {
		t.Fatalf("ConvertToLinear failed: %v", c.Err())
	}
	if math.Abs(float64(dst.Pixels[0]-1)) > 1e-5 || math.Abs(float64(dst.Pixels[3]-1)) > 1e-5 {
		t.Errorf("opaque pixel = %v", dst.Pixels[0:4])
	}
	wantAlpha := float32(128) / 255
	if math.Abs(float64(dst.Pixels[7]-wantAlpha)) > 1e-5 {
		t.Errorf("alpha = %v, want %v", dst.Pixels[7], wantAlpha)
	}
	if math.Abs(float64(dst.Pixels[4]-wantAlpha)) > 1e-5 {
		t.Errorf("premultiplied B = %v, want %v", dst.Pixels[4], wantAlpha)
	}
}

func TestDemultiplyAlpha(t *testing.T) {
	c := newTestContext(t)
	b := bitmap.NewFloat(c, 2, 1, 4, true)
	b.Pixels[0], b.Pixels[1], b.Pixels[2], b.Pixels[3] = 0.25, 0.25, 0.25, 0.5
	b.Pixels[4], b.Pixels[5], b.Pixels[6], b.Pixels[7] = 0, 0, 0, 0
	if !DemultiplyAlpha(c, b, 0, 1) {
		t.Fatalf("DemultiplyAlpha failed: %v", c.Err())
	}
	if math.Abs(float64(b.Pixels[0]-0.5)) > 1e-6 {
		t.Errorf("demultiplied = %v, want 0.5", b.Pixels[0])
	}
	// Zero alpha leaves channels alone instead of dividing by zero.
	if b.Pixels[4] != 0 {
		t.Errorf("zero-alpha pixel changed: %v", b.Pixels[4])
	}
}

func TestConvolutionKernelNormalised(t *testing.T) {
	c := newTestContext(t)
	k := NewGaussianKernel(c, 1.4, 3, nil)
	if k == nil {
		t.Fatalf("kernel: %v", c.Err())
	}
	if math.Abs(k.Sum()-1.0) > 1e-6 {
		t.Errorf("gaussian sum = %v, want 1", k.Sum())
	}
	sharp := NewGaussianSharpenKernel(c, 1.4, 3, nil)
	if math.Abs(sharp.Sum()-1.0) > 1e-6 {
		t.Errorf("sharpen sum = %v, want 1", sharp.Sum())
	}
	if sharp.Kernel[0] >= 0 {
		t.Errorf("sharpen edge weight = %v, want negative", sharp.Kernel[0])
	}
	if sharp.Kernel[3] <= 0 {
		t.Errorf("sharpen centre weight = %v, want positive", sharp.Kernel[3])
	}
}

func TestConvolveRowsUniformUnchanged(t *testing.T) {
	c := newTestContext(t)
	b := bitmap.NewFloat(c, 16, 2, 4, true)
	for i := range b.Pixels {
		b.Pixels[i] = 0.6
	}
	k := NewGaussianKernel(c, 2, 3, nil)
	if !ConvolveRows(c, b, k, 4, 0, -1) {
		t.Fatalf("ConvolveRows failed: %v", c.Err())
	}
	for x := 0; x < 16; x++ {
		for ch := 0; ch < 4; ch++ {
			v := b.Pixels[x*4+ch]
			if math.Abs(float64(v-0.6)) > 1e-4 {
				t.Fatalf("pixel %d ch %d = %v, want 0.6", x, ch, v)
			}
		}
	}
}

func TestConvolveRowsBlursEdge(t *testing.T) {
	c := newTestContext(t)
	b := bitmap.NewFloat(c, 16, 1, 4, true)
	for x := 8; x < 16; x++ {
		for ch := 0; ch < 4; ch++ {
			b.Pixels[x*4+ch] = 1
		}
	}
	k := NewGaussianKernel(c, 2, 3, nil)
	if !ConvolveRows(c, b, k, 4, 0, 1) {
		t.Fatalf("ConvolveRows failed: %v", c.Err())
	}
	// The step edge spreads: just left of it must now be above zero.
	if b.Pixels[7*4] <= 0 {
		t.Errorf("pixel 7 = %v, want blurred above 0", b.Pixels[7*4])
	}
	if b.Pixels[8*4] >= 1 {
		t.Errorf("pixel 8 = %v, want blurred below 1", b.Pixels[8*4])
	}
}
