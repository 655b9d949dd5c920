package bitmap

import (
	"testing"

	"github.com/deepteams/fastscale/internal/core"
)

func newTestContext(t *testing.T) *core.Context {
	t.Helper()
	c := core.NewContext()
	t.Cleanup(func() { c.Destroy() })
	return c
}

// fillPattern writes a position-dependent pattern so every pixel is unique.
func fillPattern(b *ByteBitmap) {
	bpp := b.Fmt.BytesPerPixel()
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			p := b.Pixels[y*b.Stride+x*bpp:]
			for ch := 0; ch < bpp; ch++ {
				p[ch] = byte(x*7 + y*13 + ch*31)
			}
		}
	}
}

func TestNewPadsStrideTo64(t *testing.T) {
	c := newTestContext(t)
	tests := []struct {
		w, h       int
		fmt        PixelFormat
		wantStride int
	}{
		{1, 1, BGRA32, 64},
		{16, 16, BGRA32, 64},
		{17, 3, BGRA32, 128},
		{10, 10, BGR24, 64},
		{100, 5, Gray8, 128},
	}
	for _, tt := range tests {
		b := New(c, tt.w, tt.h, true, tt.fmt)
		if b == nil {
			t.Fatalf("New(%d,%d,%v) failed: %v", tt.w, tt.h, tt.fmt, c.Err())
		}
		if b.Stride != tt.wantStride {
			t.Errorf("New(%d,%d,%v): stride = %d, want %d", tt.w, tt.h, tt.fmt, b.Stride, tt.wantStride)
		}
		if len(b.Pixels) != b.Stride*tt.h {
			t.Errorf("pixels length = %d, want %d", len(b.Pixels), b.Stride*tt.h)
		}
	}
}

func TestNewRejectsBadDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"zero width", 0, 10},
		{"zero height", 10, 0},
		{"negative", -1, 10},
		{"overflow", 1 << 30, 1 << 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t)
			if b := New(c, tt.w, tt.h, true, BGRA32); b != nil {
				t.Fatalf("New(%d,%d) succeeded, want failure", tt.w, tt.h)
			}
			if got := c.ErrorStatus(); got != core.StatusInvalidDimensions {
				t.Errorf("status = %v, want StatusInvalidDimensions", got)
			}
		})
	}
}

func TestFlipRoundTrip(t *testing.T) {
	for _, fmt := range []PixelFormat{BGRA32, BGR32, BGR24, Gray8} {
		t.Run(fmt.String(), func(t *testing.T) {
			c := newTestContext(t)
			b := New(c, 13, 9, true, fmt)
			fillPattern(b)
			orig := New(c, 13, 9, true, fmt)
			copy(orig.Pixels, b.Pixels)

			FlipHorizontal(c, b)
			FlipHorizontal(c, b)
			FlipVertical(c, b)
			FlipVertical(c, b)

			same, ok := Compare(c, b, orig)
			if !ok {
				t.Fatalf("Compare failed: %v", c.Err())
			}
			if !same {
				t.Error("flip_h(flip_h(flip_v(flip_v(b)))) != b")
			}
		})
	}
}

func TestFlipHorizontalReverses(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 4, 1, true, BGRA32)
	for x := 0; x < 4; x++ {
		b.Pixels[x*4] = byte(x)
	}
	FlipHorizontal(c, b)
	for x := 0; x < 4; x++ {
		if b.Pixels[x*4] != byte(3-x) {
			t.Fatalf("pixel %d = %d, want %d", x, b.Pixels[x*4], 3-x)
		}
	}
}

func TestTransposeInvolution(t *testing.T) {
	for _, fmt := range []PixelFormat{BGRA32, BGR32, BGR24} {
		t.Run(fmt.String(), func(t *testing.T) {
			c := newTestContext(t)
			// Deliberately not a multiple of the 4x4 block so both ragged
			// edges get exercised.
			b := New(c, 13, 7, true, fmt)
			fillPattern(b)
			orig := New(c, 13, 7, true, fmt)
			copy(orig.Pixels, b.Pixels)

			tr := New(c, 7, 13, true, fmt)
			if !Transpose(c, b, tr) {
				t.Fatalf("Transpose failed: %v", c.Err())
			}
			back := New(c, 13, 7, true, fmt)
			if !Transpose(c, tr, back) {
				t.Fatalf("Transpose back failed: %v", c.Err())
			}
			same, _ := Compare(c, back, orig)
			if !same {
				t.Error("transpose(transpose(b)) != b")
			}
		})
	}
}

func TestTransposeMovesPixels(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 5, 3, true, BGRA32)
	fillPattern(b)
	tr := New(c, 3, 5, true, BGRA32)
	if !Transpose(c, b, tr) {
		t.Fatalf("Transpose failed: %v", c.Err())
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			src := b.Pixels[y*b.Stride+x*4 : y*b.Stride+x*4+4]
			dst := tr.Pixels[x*tr.Stride+y*4 : x*tr.Stride+y*4+4]
			for ch := 0; ch < 4; ch++ {
				if src[ch] != dst[ch] {
					t.Fatalf("(%d,%d) ch %d: %d != %d", x, y, ch, src[ch], dst[ch])
				}
			}
		}
	}
}

func TestTransposeRejectsMismatch(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 5, 3, true, BGRA32)
	bad := New(c, 5, 3, true, BGRA32)
	if Transpose(c, b, bad) {
		t.Fatal("Transpose with uninverted dimensions succeeded")
	}
}

func TestFillRectScenario(t *testing.T) {
	// 400x300 white canvas; a 50x100 blue rectangle in the corner.
	c := newTestContext(t)
	b := New(c, 400, 300, true, BGRA32)
	if !FillRect(c, b, 0, 0, 400, 300, 0xFFFFFFFF) {
		t.Fatalf("background fill failed: %v", c.Err())
	}
	if !FillRect(c, b, 0, 0, 50, 100, 0xFF0000FF) {
		t.Fatalf("rect fill failed: %v", c.Err())
	}

	pixel := func(x, y int) []byte {
		return b.Pixels[y*b.Stride+x*4 : y*b.Stride+x*4+4]
	}
	if p := pixel(25, 50); p[0] != 0xFF || p[1] != 0x00 || p[2] != 0x00 || p[3] != 0xFF {
		t.Errorf("pixel(25,50) = %v, want blue", p)
	}
	if p := pixel(200, 200); p[0] != 0xFF || p[1] != 0xFF || p[2] != 0xFF {
		t.Errorf("pixel(200,200) = %v, want white", p)
	}
	// The rectangle is half-open; (50,100) is outside it.
	if p := pixel(50, 100); p[0] != 0xFF || p[1] != 0xFF || p[2] != 0xFF {
		t.Errorf("pixel(50,100) = %v, want white", p)
	}
}

func TestFillRectValidation(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 10, 10, true, BGRA32)
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"inverted x", 5, 0, 2, 5},
		{"inverted y", 0, 5, 5, 2},
		{"past right", 0, 0, 11, 5},
		{"past bottom", 0, 0, 5, 11},
		{"empty", 3, 3, 3, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.ClearError()
			if FillRect(c, b, tt.x1, tt.y1, tt.x2, tt.y2, 0xFF000000) {
				t.Fatal("FillRect succeeded, want failure")
			}
		})
	}
}

func TestFillRectGray8Unsupported(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 10, 10, true, Gray8)
	if FillRect(c, b, 0, 0, 5, 5, 0xFF000000) {
		t.Fatal("FillRect on Gray8 succeeded")
	}
	if got := c.ErrorStatus(); got != core.StatusUnsupportedFormat {
		t.Errorf("status = %v, want StatusUnsupportedFormat", got)
	}
}

func TestFillRectBGR24IgnoresAlpha(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 4, 4, true, BGR24)
	if !FillRect(c, b, 0, 0, 4, 4, 0x80FF8040) {
		t.Fatalf("FillRect failed: %v", c.Err())
	}
	p := b.Pixels[0:3]
	if p[0] != 0x40 || p[1] != 0x80 || p[2] != 0xFF {
		t.Errorf("pixel = %v, want B=40 G=80 R=FF", p)
	}
}

func TestCropAliasSharesPixels(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 20, 20, true, BGRA32)
	fillPattern(b)
	alias := CropAlias(c, b, 5, 5, 15, 15)
	if alias == nil {
		t.Fatalf("CropAlias failed: %v", c.Err())
	}
	if alias.W != 10 || alias.H != 10 || alias.Stride != b.Stride {
		t.Fatalf("alias dims %dx%d stride %d", alias.W, alias.H, alias.Stride)
	}
	// Writing through the alias must land in the parent.
	alias.Pixels[0] = 0xEE
	if b.Pixels[5*b.Stride+5*4] != 0xEE {
		t.Error("alias write did not reach the parent buffer")
	}
	// The alias is owned by the parent: destroying the parent releases it.
	if !c.DestroyObj(b) {
		t.Fatalf("DestroyObj(parent): %v", c.Err())
	}
	if got := c.LiveCount(); got != 0 {
		t.Errorf("LiveCount = %d, want 0 (alias released with parent)", got)
	}
}

func TestCopyRectToCanvas(t *testing.T) {
	c := newTestContext(t)
	src := New(c, 8, 8, true, BGRA32)
	fillPattern(src)
	dst := New(c, 8, 8, true, BGRA32)
	if !CopyRectToCanvas(c, src, dst, 2, 2, 4, 4, 1, 1) {
		t.Fatalf("CopyRectToCanvas failed: %v", c.Err())
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			s := src.Pixels[(2+y)*src.Stride+(2+x)*4]
			d := dst.Pixels[(1+y)*dst.Stride+(1+x)*4]
			if s != d {
				t.Fatalf("(%d,%d): %d != %d", x, y, s, d)
			}
		}
	}
	c.ClearError()
	if CopyRectToCanvas(c, src, dst, 6, 6, 4, 4, 0, 0) {
		t.Fatal("out-of-bounds copy succeeded")
	}
}

func TestCompareIgnoresPadding(t *testing.T) {
	c := newTestContext(t)
	a := New(c, 3, 3, true, BGR24)
	b := New(c, 3, 3, true, BGR24)
	fillPattern(a)
	fillPattern(b)
	// Scribble on padding only.
	a.Pixels[a.Stride-1] = 0xAA
	b.Pixels[b.Stride-1] = 0x55
	same, _ := Compare(c, a, b)
	if !same {
		t.Error("Compare considered stride padding")
	}
	b.Pixels[0] ^= 1
	same, _ = Compare(c, a, b)
	if same {
		t.Error("Compare missed a content difference")
	}
}

func TestApplyOrientationRotate90(t *testing.T) {
	// A 2x1 bitmap with distinct pixels: after rotating 90 degrees
	// clockwise the left pixel ends up on top.
	c := newTestContext(t)
	b := New(c, 2, 1, true, BGRA32)
	b.Pixels[0] = 1 // left
	b.Pixels[4] = 2 // right
	r := Rotate90(c, b)
	if r == nil {
		t.Fatalf("Rotate90 failed: %v", c.Err())
	}
	if r.W != 1 || r.H != 2 {
		t.Fatalf("rotated dims %dx%d, want 1x2", r.W, r.H)
	}
	if r.Pixels[0] != 1 || r.Pixels[r.Stride] != 2 {
		t.Errorf("rotation order wrong: top=%d bottom=%d", r.Pixels[0], r.Pixels[r.Stride])
	}
}

func TestApplyOrientationAll(t *testing.T) {
	// Every orientation code must produce a bitmap and codes 5..8 must
	// swap dimensions.
	for code := 1; code <= 8; code++ {
		c := newTestContext(t)
		b := New(c, 4, 2, true, BGRA32)
		fillPattern(b)
		r := ApplyOrientation(c, b, code)
		if r == nil {
			t.Fatalf("orientation %d failed: %v", code, c.Err())
		}
		wantW, wantH := 4, 2
		if code >= 5 {
			wantW, wantH = 2, 4
		}
		if r.W != wantW || r.H != wantH {
			t.Errorf("orientation %d: dims %dx%d, want %dx%d", code, r.W, r.H, wantW, wantH)
		}
	}
}

func TestApplyOrientationInvolutions(t *testing.T) {
	// Orientations 2, 3 and 4 are involutions.
	for _, code := range []int{2, 3, 4} {
		c := newTestContext(t)
		b := New(c, 5, 4, true, BGRA32)
		fillPattern(b)
		orig := New(c, 5, 4, true, BGRA32)
		copy(orig.Pixels, b.Pixels)
		ApplyOrientation(c, b, code)
		ApplyOrientation(c, b, code)
		same, _ := Compare(c, b, orig)
		if !same {
			t.Errorf("orientation %d applied twice is not identity", code)
		}
	}
}

func TestColorMatrixIdentity(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 6, 6, true, BGRA32)
	fillPattern(b)
	orig := New(c, 6, 6, true, BGRA32)
	copy(orig.Pixels, b.Pixels)

	identity := [5][4]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{0, 0, 0, 0},
	}
	if !ApplyColorMatrix(c, b, 0, b.H, &identity) {
		t.Fatalf("ApplyColorMatrix failed: %v", c.Err())
	}
	same, _ := Compare(c, b, orig)
	if !same {
		t.Error("identity matrix changed pixels")
	}
}

func TestColorMatrixGrayscale(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 1, 1, true, BGRA32)
	b.Pixels[0] = 100 // B
	b.Pixels[1] = 150 // G
	b.Pixels[2] = 200 // R
	b.Pixels[3] = 255

	lum := [5][4]float32{
		{0.299, 0.299, 0.299, 0},
		{0.587, 0.587, 0.587, 0},
		{0.114, 0.114, 0.114, 0},
		{0, 0, 0, 1},
		{0, 0, 0, 0},
	}
	if !ApplyColorMatrix(c, b, 0, 1, &lum) {
		t.Fatalf("ApplyColorMatrix failed: %v", c.Err())
	}
	wantF := 0.299*200 + 0.587*150 + 0.114*100 + 0.5
	want := uint8(wantF)
	if b.Pixels[0] != want || b.Pixels[1] != want || b.Pixels[2] != want {
		t.Errorf("grayscale = %v %v %v, want %d", b.Pixels[0], b.Pixels[1], b.Pixels[2], want)
	}
	if b.Pixels[3] != 255 {
		t.Errorf("alpha = %d, want 255", b.Pixels[3])
	}
}

func TestHistogram(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 4, 4, true, BGRA32)
	FillRect(c, b, 0, 0, 4, 4, 0xFFFFFFFF)

	hist := make([]uint64, 256*3)
	sampled, ok := PopulateHistogram(c, b, hist, 256, 3)
	if !ok {
		t.Fatalf("PopulateHistogram failed: %v", c.Err())
	}
	if sampled != 16 {
		t.Errorf("sampled = %d, want 16", sampled)
	}
	if hist[255] != 16 || hist[256+255] != 16 || hist[512+255] != 16 {
		t.Errorf("white pixels not counted in bin 255 of each channel")
	}

	c.ClearError()
	if _, ok := PopulateHistogram(c, b, hist, 128, 1); ok {
		t.Error("histogram with 128 bins accepted")
	}
}

func TestEffectiveFormat(t *testing.T) {
	c := newTestContext(t)
	b := New(c, 2, 2, true, BGRA32)
	if b.EffectiveFormat() != BGRA32 {
		t.Error("BGRA32 with meaningful alpha should stay BGRA32")
	}
	b.AlphaMeaningful = false
	if b.EffectiveFormat() != BGR32 {
		t.Error("BGRA32 without meaningful alpha should report BGR32")
	}
}
