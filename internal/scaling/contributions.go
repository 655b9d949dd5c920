package scaling

import (
	"math"

	"github.com/deepteams/fastscale/internal/core"
)

// weightEpsilon is the truncation threshold below which weights are forced
// to zero before normalisation. Weights this small make cross-platform
// results unstable (positive/negative zero and the like); the exact value
// must not change.
const weightEpsilon = 0.00000002

// tony is the epsilon used when sizing the allocation window.
const tony = 0.00001

// PixelContributions maps one destination pixel to a run of source pixels
// and their weights. Weights aliases a shared per-table array.
type PixelContributions struct {
	Left    int
	Right   int
	Weights []float32
}

// LineContributions holds one contribution row per destination pixel along
// a single axis.
type LineContributions struct {
	Rows       []PixelContributions
	WindowSize int
	LineLength int
	// PercentNegative is the measured fraction of negative weight across
	// the whole table, after redistribution.
	PercentNegative float64

	weights []float32
}

func newLineContributions(c *core.Context, lineLength, windowSize int, owner any) *LineContributions {
	res := &LineContributions{
		Rows:       make([]PixelContributions, lineLength),
		WindowSize: windowSize,
		LineLength: lineLength,
		weights:    make([]float32, windowSize*lineLength),
	}
	for i := range res.Rows {
		res.Rows[i].Weights = res.weights[i*windowSize : (i+1)*windowSize]
	}
	if !c.Track(res, (windowSize*lineLength)*4, owner, nil) {
		c.AddToCallstack()
		return nil
	}
	return res
}

// NewLineContributions computes the contribution table mapping an input line
// of inputLineSize pixels onto outputLineSize destination pixels using the
// given kernel. The kernel's SharpenPercentGoal drives weight
// redistribution when it exceeds the filter's intrinsic negative weight.
func NewLineContributions(c *core.Context, outputLineSize, inputLineSize int, details *Details, owner any) *LineContributions {
	if outputLineSize <= 0 || inputLineSize <= 0 {
		c.SetError(core.StatusInvalidArgument)
		return nil
	}
	sharpenRatio := details.PercentNegativeWeight()
	desiredSharpenRatio := math.Min(0.999999999, math.Max(sharpenRatio, float64(details.SharpenPercentGoal)/100.0))

	scaleFactor := float64(outputLineSize) / float64(inputLineSize)
	downscaleFactor := math.Min(1.0, scaleFactor)
	halfSourceWindow := (details.Window + 0.5) / downscaleFactor

	allocatedWindowSize := int(math.Ceil(2*(halfSourceWindow-tony))) + 1
	res := newLineContributions(c, outputLineSize, allocatedWindowSize, owner)
	if res == nil {
		c.AddToCallstack()
		return nil
	}

	negativeArea := 0.0
	positiveArea := 0.0

	for u := 0; u < outputLineSize; u++ {
		centerSrcPixel := (float64(u)+0.5)/scaleFactor - 0.5

		leftEdge := int(math.Floor(centerSrcPixel)) - (allocatedWindowSize-1)/2
		rightEdge := leftEdge + allocatedWindowSize - 1

		leftSrcPixel := leftEdge
		if leftSrcPixel < 0 {
			leftSrcPixel = 0
		}
		rightSrcPixel := rightEdge
		if rightSrcPixel > inputLineSize-1 {
			rightSrcPixel = inputLineSize - 1
		}

		totalWeight := 0.0
		totalNegativeWeight := 0.0
		totalPositiveWeight := 0.0

		sourcePixelCount := rightSrcPixel - leftSrcPixel + 1
		if sourcePixelCount > allocatedWindowSize {
			c.DestroyObj(res)
			c.SetError(core.StatusInvalidInternal)
			return nil
		}

		row := &res.Rows[u]
		row.Left = leftSrcPixel
		row.Right = rightSrcPixel
		weights := row.Weights

		for ix := leftSrcPixel; ix <= rightSrcPixel; ix++ {
			tx := ix - leftSrcPixel
			add := details.Kernel(details, downscaleFactor*(float64(ix)-centerSrcPixel))
			if math.Abs(add) <= weightEpsilon {
				add = 0.0
			}
			weights[tx] = float32(add)
			totalWeight += add
			totalNegativeWeight += math.Min(0, add)
			totalPositiveWeight += math.Max(0, add)
		}

		negFactor := float32(1.0 / totalWeight)
		posFactor := negFactor
		if totalWeight <= 0.0 || desiredSharpenRatio > sharpenRatio {
			if totalNegativeWeight < 0.0 && desiredSharpenRatio < 1.0 {
				targetPositiveWeight := 1.0 / (1.0 - desiredSharpenRatio)
				targetNegativeWeight := desiredSharpenRatio * -targetPositiveWeight
				posFactor = float32(targetPositiveWeight / totalPositiveWeight)
				if totalNegativeWeight == 0 {
					negFactor = 1.0
				} else {
					negFactor = float32(targetNegativeWeight / totalNegativeWeight)
				}
			}
		}

		if totalPositiveWeight != 0 || totalNegativeWeight != 0 {
			for ix := 0; ix < sourcePixelCount; ix++ {
				if weights[ix] < 0 {
					weights[ix] *= negFactor
					negativeArea -= float64(weights[ix])
				} else {
					weights[ix] *= posFactor
					positiveArea += float64(weights[ix])
				}
			}
		}

		// Trim zero weights from both ends to shrink the apply loop and keep
		// results consistent.
		for iix := sourcePixelCount - 1; iix >= 0; iix-- {
			if weights[iix] != 0 {
				break
			}
			row.Right--
		}
		for iix := 0; iix < sourcePixelCount; iix++ {
			if weights[0] != 0 {
				break
			}
			weights = weights[1:]
			row.Weights = weights
			row.Left++
		}
	}
	res.PercentNegative = negativeArea / positiveArea
	return res
}
