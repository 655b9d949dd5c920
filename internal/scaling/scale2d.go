package scaling

import (
	"math"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
)

// RenderOptions describe one Scale2D render: the destination window within
// the canvas, the kernel, the working floatspace and the sharpening goal.
type RenderOptions struct {
	X, Y, W, H         int
	Filter             Filter
	SharpenPercentGoal float32
	Floatspace         colorspace.Floatspace
}

// scaleWorkspace owns every transient buffer of one render so teardown is a
// single DestroyObj regardless of which step failed.
type scaleWorkspace struct {
	rowFloats int
}

func multiplyRow(row []float32, coefficient float32) {
	for i := range row {
		row[i] *= coefficient
	}
}

func addRow(mutate, input []float32) {
	for i := range mutate {
		mutate[i] += input[i]
	}
}

// RenderToCanvas resamples input into the {x,y,w,h} window of canvas,
// running vertical then horizontal contributions over linearised
// premultiplied rows and compositing the result back to bytes. Both bitmaps
// must be 4 bytes per pixel.
func RenderToCanvas(c *core.Context, input, uncroppedCanvas *bitmap.ByteBitmap, opts RenderOptions) bool {
	if opts.H+opts.Y > uncroppedCanvas.H || opts.W+opts.X > uncroppedCanvas.W {
		c.SetError(core.StatusInvalidArgument)
		return false
	}

	croppedCanvas := uncroppedCanvas
	if opts.X != 0 || opts.Y != 0 || opts.W != uncroppedCanvas.W || opts.H != uncroppedCanvas.H {
		croppedCanvas = bitmap.CropAlias(c, uncroppedCanvas, opts.X, opts.Y, opts.X+opts.W, opts.Y+opts.H)
		if croppedCanvas == nil {
			c.AddToCallstack()
			return false
		}
	}

	inputFmt := input.EffectiveFormat()
	canvasFmt := croppedCanvas.EffectiveFormat()
	if inputFmt != bitmap.BGRA32 && inputFmt != bitmap.BGR32 {
		c.SetError(core.StatusNotImplemented)
		return false
	}
	if canvasFmt != bitmap.BGRA32 && canvasFmt != bitmap.BGR32 {
		c.SetError(core.StatusNotImplemented)
		return false
	}

	var colorctx colorspace.Context
	colorctx.Init(opts.Floatspace, 0, 0, 0)

	// The workspace owns the kernel details, contribution tables and float
	// buffers, so a single destroy releases them whether or not the render
	// succeeds.
	ws := &scaleWorkspace{rowFloats: 4 * input.W}
	if !c.Track(ws, 0, nil, nil) {
		c.AddToCallstack()
		return false
	}
	defer c.DestroyObj(ws)

	details := NewDetails(c, opts.Filter, ws)
	if details == nil {
		c.AddToCallstack()
		return false
	}
	details.SharpenPercentGoal = opts.SharpenPercentGoal

	c.ProfStart("contributions_calc", false)
	contribV := NewLineContributions(c, opts.H, input.H, details, ws)
	if contribV == nil {
		c.AddToCallstack()
		return false
	}
	contribH := NewLineContributions(c, opts.W, input.W, details, ws)
	if contribH == nil {
		c.AddToCallstack()
		return false
	}
	c.ProfStop("contributions_calc", true, false)

	c.ProfStart("create_bitmap_float (buffers)", false)
	sourceBuf := bitmap.NewFloatHeader(c, input.W, 1, 4)
	if sourceBuf == nil || !c.SetOwner(sourceBuf, ws) {
		c.AddToCallstack()
		return false
	}
	destBuf := bitmap.NewFloat(c, opts.W, 1, 4, true)
	if destBuf == nil || !c.SetOwner(destBuf, ws) {
		c.AddToCallstack()
		return false
	}
	sourceBuf.AlphaMeaningful = inputFmt == bitmap.BGRA32
	destBuf.AlphaMeaningful = sourceBuf.AlphaMeaningful
	sourceBuf.AlphaPremultiplied = sourceBuf.Channels == 4
	destBuf.AlphaPremultiplied = sourceBuf.AlphaPremultiplied
	c.ProfStop("create_bitmap_float (buffers)", true, false)

	// How many source rows the tallest vertical window needs buffered.
	maxInputRows := 0
	for i := 0; i < contribV.LineLength; i++ {
		inputs := contribV.Rows[i].Right - contribV.Rows[i].Left + 1
		if inputs > maxInputRows {
			maxInputRows = inputs
		}
	}

	rowFloats := ws.rowFloats
	buf := make([]float32, rowFloats*(maxInputRows+1))
	rows := make([][]float32, maxInputRows)
	rowCoefficients := make([]float32, maxInputRows)
	rowIndexes := make([]int, maxInputRows)
	if !c.Realloc(ws, 4*rowFloats*(maxInputRows+1)) {
		c.AddToCallstack()
		return false
	}
	outputAddress := buf[rowFloats*maxInputRows : rowFloats*(maxInputRows+1)]
	for i := 0; i < maxInputRows; i++ {
		rows[i] = buf[rowFloats*i : rowFloats*(i+1)]
		rowCoefficients[i] = 1
		rowIndexes[i] = -1
	}

	for outRow := 0; outRow < croppedCanvas.H; outRow++ {
		contrib := contribV.Rows[outRow]
		for i := range outputAddress {
			outputAddress[i] = 0
		}

		for inputRow := contrib.Left; inputRow <= contrib.Right; inputRow++ {
			// Look for the row in the buffer pool.
			loaded := false
			activeBufIx := -1
			for bufRow := 0; bufRow < maxInputRows; bufRow++ {
				if rowIndexes[bufRow] == inputRow {
					activeBufIx = bufRow
					loaded = true
					break
				}
			}
			if !loaded {
				// Evict a row that the sliding window has passed.
				for bufRow := 0; bufRow < maxInputRows; bufRow++ {
					if rowIndexes[bufRow] < contrib.Left {
						activeBufIx = bufRow
						break
					}
				}
			}
			if activeBufIx < 0 {
				c.SetError(core.StatusInvalidInternal) // Buffer too small.
				return false
			}
			if !loaded {
				sourceBuf.Pixels = rows[activeBufIx]
				c.ProfStart("convert_srgb_to_linear", false)
				if !ConvertToLinear(c, &colorctx, input, inputRow, sourceBuf, 0, 1) {
					c.AddToCallstack()
					return false
				}
				c.ProfStop("convert_srgb_to_linear", true, false)
				rowCoefficients[activeBufIx] = 1
				rowIndexes[activeBufIx] = inputRow
			}
			weight := contrib.Weights[inputRow-contrib.Left]
			if math.Abs(float64(weight)) > weightEpsilon {
				// Bake the weight into the cached row, then accumulate.
				deltaCoefficient := weight / rowCoefficients[activeBufIx]
				multiplyRow(rows[activeBufIx], deltaCoefficient)
				rowCoefficients[activeBufIx] = weight
				addRow(outputAddress, rows[activeBufIx])
			}
		}

		// outputAddress now holds the vertically scaled row.
		sourceBuf.Pixels = outputAddress

		c.ProfStart("ScaleBgraFloatRows", false)
		if !ScaleRows(c, sourceBuf, 0, destBuf, 0, 1, contribH.Rows) {
			c.AddToCallstack()
			return false
		}
		c.ProfStop("ScaleBgraFloatRows", true, false)

		if !CompositeLinearOverSRGB(c, &colorctx, destBuf, 0, croppedCanvas, outRow, 1, false) {
			c.AddToCallstack()
			return false
		}
	}
	if croppedCanvas != uncroppedCanvas {
		if !c.DestroyObj(croppedCanvas) {
			c.AddToCallstack()
			return false
		}
	}
	return true
}
