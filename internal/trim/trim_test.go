package trim

import (
	"testing"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/core"
)

func newTestContext(t *testing.T) *core.Context {
	t.Helper()
	c := core.NewContext()
	t.Cleanup(func() { c.Destroy() })
	return c
}

func rectBitmap(t *testing.T, c *core.Context, w, h, x1, y1, x2, y2 int, color uint32) *bitmap.ByteBitmap {
	t.Helper()
	b := bitmap.New(c, w, h, true, bitmap.BGRA32)
	if b == nil {
		t.Fatalf("bitmap: %v", c.Err())
	}
	if !bitmap.FillRect(c, b, 0, 0, w, h, 0xFF000000) {
		t.Fatalf("background: %v", c.Err())
	}
	if !bitmap.FillRect(c, b, x1, y1, x2, y2, color) {
		t.Fatalf("rect: %v", c.Err())
	}
	return b
}

func TestDetectContentSmallRect(t *testing.T) {
	c := newTestContext(t)
	b := rectBitmap(t, c, 10, 10, 1, 1, 9, 9, 0xFF0000FF)
	r := DetectContent(c, b, 1)
	if c.HasError() {
		t.Fatalf("DetectContent errored: %v", c.Err())
	}
	want := Rect{X1: 1, Y1: 1, X2: 9, Y2: 9}
	if r != want {
		t.Errorf("rect = %+v, want %+v", r, want)
	}
}

func TestDetectContentLargerRect(t *testing.T) {
	c := newTestContext(t)
	b := rectBitmap(t, c, 100, 100, 2, 3, 70, 70, 0xFF0000FF)
	r := DetectContent(c, b, 1)
	if c.HasError() {
		t.Fatalf("DetectContent errored: %v", c.Err())
	}
	want := Rect{X1: 2, Y1: 3, X2: 70, Y2: 70}
	if r != want {
		t.Errorf("rect = %+v, want %+v", r, want)
	}
}

func TestDetectContentExhaustiveSinglePixel(t *testing.T) {
	// Every position of a single blue pixel on a small black canvas must
	// be found exactly.
	c := newTestContext(t)
	for w := 3; w < 12; w++ {
		for h := 3; h < 12; h++ {
			b := bitmap.New(c, w, h, true, bitmap.BGRA32)
			for x := 0; x < w; x++ {
				for y := 0; y < h; y++ {
					if x == 1 && y == 1 && w == 3 && h == 3 {
						// A center dot on 3x3 is a checkerboard to the
						// gradient; unsupported.
						continue
					}
					bitmap.FillRect(c, b, 0, 0, w, h, 0xFF000000)
					bitmap.FillRect(c, b, x, y, x+1, y+1, 0xFF0000FF)
					if c.HasError() {
						t.Fatalf("setup failed: %v", c.Err())
					}
					r := DetectContent(c, b, 1)
					want := Rect{X1: x, Y1: y, X2: x + 1, Y2: y + 1}
					if r != want {
						t.Fatalf("%dx%d pixel (%d,%d): rect = %+v, want %+v",
							w, h, x, y, r, want)
					}
				}
			}
			if !c.DestroyObj(b) {
				t.Fatalf("DestroyObj: %v", c.Err())
			}
		}
	}
}

func TestDetectContentUniformImage(t *testing.T) {
	c := newTestContext(t)
	b := bitmap.New(c, 20, 20, true, bitmap.BGRA32)
	bitmap.FillRect(c, b, 0, 0, 20, 20, 0xFF000000)
	r := DetectContent(c, b, 1)
	if r != RectFailure {
		t.Errorf("uniform image: rect = %+v, want RectFailure", r)
	}
}

func TestDetectContentDarkOnLight(t *testing.T) {
	// Content darker than the background must be found too.
	c := newTestContext(t)
	b := bitmap.New(c, 40, 40, true, bitmap.BGRA32)
	bitmap.FillRect(c, b, 0, 0, 40, 40, 0xFFFFFFFF)
	bitmap.FillRect(c, b, 10, 12, 30, 25, 0xFF000000)
	r := DetectContent(c, b, 1)
	want := Rect{X1: 10, Y1: 12, X2: 30, Y2: 25}
	if r != want {
		t.Errorf("rect = %+v, want %+v", r, want)
	}
}

func TestDetectContentBGR24(t *testing.T) {
	c := newTestContext(t)
	b := bitmap.New(c, 30, 30, true, bitmap.BGR24)
	bitmap.FillRect(c, b, 0, 0, 30, 30, 0xFF000000)
	bitmap.FillRect(c, b, 5, 6, 20, 21, 0xFF0000FF)
	r := DetectContent(c, b, 1)
	want := Rect{X1: 5, Y1: 6, X2: 20, Y2: 21}
	if r != want {
		t.Errorf("rect = %+v, want %+v", r, want)
	}
}

func TestDetectContentHighThresholdIgnoresFaint(t *testing.T) {
	// A barely-off-background rectangle must disappear under a high
	// threshold.
	c := newTestContext(t)
	b := bitmap.New(c, 30, 30, true, bitmap.BGRA32)
	bitmap.FillRect(c, b, 0, 0, 30, 30, 0xFF000000)
	bitmap.FillRect(c, b, 5, 5, 20, 20, 0xFF050505) // luma about 5
	r := DetectContent(c, b, 200)
	if r != RectFailure {
		t.Errorf("faint rect above threshold 200: %+v, want RectFailure", r)
	}
}

func TestDetectContentUnionOfBlobs(t *testing.T) {
	// Two separated dots must produce the union of their bounds.
	c := newTestContext(t)
	b := bitmap.New(c, 50, 50, true, bitmap.BGRA32)
	bitmap.FillRect(c, b, 0, 0, 50, 50, 0xFF000000)
	bitmap.FillRect(c, b, 5, 8, 7, 10, 0xFF0000FF)
	bitmap.FillRect(c, b, 40, 30, 43, 35, 0xFF0000FF)
	r := DetectContent(c, b, 1)
	want := Rect{X1: 5, Y1: 8, X2: 43, Y2: 35}
	if r != want {
		t.Errorf("rect = %+v, want %+v", r, want)
	}
}

func TestDetectContentNilBitmap(t *testing.T) {
	c := newTestContext(t)
	r := DetectContent(c, nil, 1)
	if r != RectFailure {
		t.Errorf("nil bitmap: rect = %+v, want RectFailure", r)
	}
	if got := c.ErrorStatus(); got != core.StatusNullArgument {
		t.Errorf("status = %v, want StatusNullArgument", got)
	}
}
