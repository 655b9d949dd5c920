// Package scaling implements the resampling engine: the interpolation filter
// registry, contribution tables with sharpening redistribution, the scanline
// converters between byte bitmaps and linear premultiplied float rows, the
// fused vertical+horizontal Scale2D renderer, and 1-D convolution kernels.
package scaling

import (
	"math"

	"github.com/deepteams/fastscale/internal/core"
)

// Filter selects one of the built-in interpolation kernels. The values are
// stable identifiers.
type Filter int

const (
	FilterRobidouxFast Filter = 1
	FilterRobidoux     Filter = 2
	FilterRobidouxSharp Filter = 3
	FilterGinseng       Filter = 4
	FilterGinsengSharp  Filter = 5
	FilterLanczos       Filter = 6
	FilterLanczosSharp  Filter = 7
	FilterLanczos2      Filter = 8
	FilterLanczos2Sharp Filter = 9
	FilterCubicFast     Filter = 10
	FilterCubic         Filter = 11
	FilterCubicSharp    Filter = 12
	FilterCatmullRom    Filter = 13
	FilterMitchell      Filter = 14
	FilterCubicBSpline  Filter = 15
	FilterHermite       Filter = 16
	FilterJinc          Filter = 17
	FilterRawLanczos3   Filter = 18
	FilterRawLanczos3Sharp Filter = 19
	FilterRawLanczos2      Filter = 20
	FilterRawLanczos2Sharp Filter = 21
	FilterTriangle         Filter = 22
	FilterLinear           Filter = 23
	FilterBox              Filter = 24
	FilterCatmullRomFast   Filter = 25
	FilterCatmullRomFastSharp Filter = 26
	FilterFastest             Filter = 27
	FilterMitchellFast        Filter = 28
	FilterNCubic              Filter = 29
	FilterNCubicSharp         Filter = 30
)

// lanczos{2,3}-sharp blur factors, chosen so the kernel's first zero
// crossing lands on the pixel grid.
const (
	blur2Sharp = 0.9549963639785485
	blur3Sharp = 0.9812505644269356
)

// KernelFunc evaluates a filter kernel at offset t (in source pixels).
type KernelFunc func(d *Details, t float64) float64

// Details carries one configured interpolation kernel: its support window,
// blur factor, the seven cubic coefficients when the kernel is a bicubic,
// and the sharpening goal contribution tables read.
type Details struct {
	// Window is the support radius in source pixels.
	Window float64
	// Blur stretches (>1) or shrinks (<1) the kernel's effective footprint.
	Blur float64

	P1, P2, P3     float64
	Q1, Q2, Q3, Q4 float64

	// SharpenPercentGoal is the desired negative-weight percentage, 0..100.
	SharpenPercentGoal float32

	Kernel KernelFunc
}

func deriveCubicCoefficients(b, c float64, out *Details) {
	bx2 := b + b
	out.P1 = 1.0 - (1.0/3.0)*b
	out.P2 = -3.0 + bx2 + c
	out.P3 = 2.0 - 1.5*b - c
	out.Q1 = (4.0/3.0)*b + 4.0*c
	out.Q2 = -8.0*c - bx2
	out.Q3 = b + 5.0*c
	out.Q4 = (-1.0/6.0)*b - c
}

func filterFlexCubic(d *Details, x float64) float64 {
	t := math.Abs(x) / d.Blur
	if t < 1.0 {
		return d.P1 + t*(t*(d.P2+t*d.P3))
	}
	if t < 2.0 {
		return d.Q1 + t*(d.Q2+t*(d.Q3+t*d.Q4))
	}
	return 0.0
}

func filterBicubicFast(d *Details, t float64) float64 {
	absT := math.Abs(t) / d.Blur
	absT2 := absT * absT
	if absT < 1 {
		return 1 - 2*absT2 + absT2*absT
	}
	if absT < 2 {
		return 4 - 8*absT + 5*absT2 - absT2*absT
	}
	return 0
}

func filterSinc(d *Details, t float64) float64 {
	absT := math.Abs(t) / d.Blur
	if absT == 0 {
		return 1
	}
	if absT > d.Window {
		return 0
	}
	a := absT * math.Pi
	return math.Sin(a) / a
}

func filterSincWindowed(d *Details, t float64) float64 {
	x := t / d.Blur
	absT := math.Abs(x)
	if absT == 0 {
		return 1
	}
	if absT > d.Window {
		return 0
	}
	return d.Window * math.Sin(math.Pi*x/d.Window) * math.Sin(x*math.Pi) / (math.Pi * math.Pi * x * x)
}

func filterTriangle(d *Details, t float64) float64 {
	x := math.Abs(t) / d.Blur
	if x < 1.0 {
		return 1.0 - x
	}
	return 0.0
}

func filterBox(d *Details, t float64) float64 {
	x := t / d.Blur
	if x >= -1*d.Window && x < d.Window {
		return 1
	}
	return 0
}

func filterJinc(d *Details, t float64) float64 {
	x := math.Abs(t) / d.Blur
	if x == 0.0 {
		return 0.5 * math.Pi
	}
	return math.J1(math.Pi*x) / x
}

// jincZero1 is the first positive zero crossing of jinc(x).
const jincZero1 = 1.2196698912665045

func filterGinseng(d *Details, t float64) float64 {
	// Sinc windowed by jinc.
	absT := math.Abs(t) / d.Blur
	tPi := absT * math.Pi
	if absT == 0 {
		return 1
	}
	if absT > 3 {
		return 0
	}
	jincInput := jincZero1 * tPi / d.Window
	jincOutput := math.J1(jincInput) / (jincInput * 0.5)
	return jincOutput * math.Sin(tPi) / tPi
}

// PercentNegativeWeight integrates the kernel and returns the fraction of
// its area that is negative; the intrinsic sharpness of the filter.
func (d *Details) PercentNegativeWeight() float64 {
	const samples = 50
	step := d.Window / float64(samples)

	lastHeight := d.Kernel(d, -step)
	positiveArea := 0.0
	negativeArea := 0.0
	for i := 0; i <= samples+2; i++ {
		height := d.Kernel(d, float64(i)*step)
		area := (height + lastHeight) / 2.0 * step
		lastHeight = height
		if area > 0 {
			positiveArea += area
		} else {
			negativeArea -= area
		}
	}
	return negativeArea / positiveArea
}

func newDetails() *Details {
	return &Details{
		Blur:   1,
		Window: 2,
		P2:     1, P3: 1,
		Q2: 1, Q3: 1, Q4: 1,
	}
}

func newCustom(window, blur float64, kernel KernelFunc) *Details {
	d := newDetails()
	d.Window = window
	d.Blur = blur
	d.Kernel = kernel
	return d
}

func newBicubicCustom(window, blur, b, c float64) *Details {
	d := newDetails()
	d.Blur = blur
	d.Window = window
	deriveCubicCoefficients(b, c, d)
	d.Kernel = filterFlexCubic
	return d
}

// Robidoux cubic coefficients.
const (
	robidouxB      = 0.37821575509399867
	robidouxC      = 0.31089212245300067
	robidouxSharpB = 0.2620145123990142
	robidouxSharpC = 0.3689927438004929
)

// NewDetails builds the kernel record for a named filter, tracked on the
// context and owned by owner (nil for the context).
func NewDetails(c *core.Context, filter Filter, owner any) *Details {
	d := detailsFor(filter)
	if d == nil {
		c.SetErrorf(core.StatusInvalidArgument, "invalid interpolation filter %d", int(filter))
		return nil
	}
	if !c.Track(d, 0, owner, nil) {
		c.AddToCallstack()
		return nil
	}
	return d
}

// FilterExists reports whether filter names a known kernel.
func FilterExists(filter Filter) bool {
	return detailsFor(filter) != nil
}

func detailsFor(filter Filter) *Details {
	switch filter {
	case FilterLinear, FilterTriangle:
		return newCustom(1, 1, filterTriangle)
	case FilterRawLanczos2:
		return newCustom(2, 1, filterSinc)
	case FilterRawLanczos3:
		return newCustom(3, 1, filterSinc)
	case FilterRawLanczos2Sharp:
		return newCustom(2, blur2Sharp, filterSinc)
	case FilterRawLanczos3Sharp:
		return newCustom(3, blur3Sharp, filterSinc)
	case FilterCubicBSpline:
		// No negative weights, like Hermite.
		return newBicubicCustom(2, 1, 1, 0)
	case FilterLanczos2:
		return newCustom(2, 1, filterSincWindowed)
	case FilterLanczos:
		return newCustom(3, 1, filterSincWindowed)
	case FilterLanczos2Sharp:
		return newCustom(2, blur2Sharp, filterSincWindowed)
	case FilterLanczosSharp:
		return newCustom(3, blur3Sharp, filterSincWindowed)
	case FilterCubicFast:
		return newCustom(2, 1, filterBicubicFast)
	case FilterCubic:
		return newBicubicCustom(2, 1, 0, 1)
	case FilterCubicSharp:
		return newBicubicCustom(2, blur2Sharp, 0, 1)
	case FilterCatmullRom:
		return newBicubicCustom(2, 1, 0, 0.5)
	case FilterCatmullRomFast:
		return newBicubicCustom(1, 1, 0, 0.5)
	case FilterCatmullRomFastSharp:
		return newBicubicCustom(1, 13.0/16.0, 0, 0.5)
	case FilterMitchell:
		return newBicubicCustom(2, 1, 1.0/3.0, 1.0/3.0)
	case FilterMitchellFast:
		return newBicubicCustom(1, 1, 1.0/3.0, 1.0/3.0)
	case FilterNCubic:
		return newBicubicCustom(2.5, 1./1.1685777620836932, robidouxB, robidouxC)
	case FilterNCubicSharp:
		return newBicubicCustom(2.5, 1./1.105822933719019, robidouxSharpB, robidouxSharpC)
	case FilterRobidoux:
		return newBicubicCustom(2, 1, robidouxB, robidouxC)
	case FilterFastest:
		return newBicubicCustom(0.74, 0.74, robidouxB, robidouxC)
	case FilterRobidouxFast:
		return newBicubicCustom(1.05, 1, robidouxB, robidouxC)
	case FilterRobidouxSharp:
		return newBicubicCustom(2, 1, robidouxSharpB, robidouxSharpC)
	case FilterHermite:
		return newBicubicCustom(1, 1, 0, 0)
	case FilterBox:
		return newCustom(0.5, 1, filterBox)
	case FilterGinseng:
		return newCustom(3, 1, filterGinseng)
	case FilterGinsengSharp:
		return newCustom(3, blur3Sharp, filterGinseng)
	case FilterJinc:
		return newCustom(6, 1.0, filterJinc)
	}
	return nil
}
