package scaling

import (
	"math"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/core"
)

// ConvolutionKernel is a 1-D convolution kernel with its scratch buffer.
type ConvolutionKernel struct {
	Kernel []float32
	Width  int
	Radius int
	// ThresholdMinChange / ThresholdMaxChange suppress the kernel's effect
	// on pixels whose total change falls outside the band. Zero disables.
	ThresholdMinChange float32
	ThresholdMaxChange float32

	buffer []float32
}

// NewConvolutionKernel creates an empty kernel of the given radius.
func NewConvolutionKernel(c *core.Context, radius int, owner any) *ConvolutionKernel {
	k := &ConvolutionKernel{
		Kernel: make([]float32, radius*2+1),
		Width:  radius*2 + 1,
		Radius: radius,
		// Room for radius+1 queued pixels plus the running average, at up
		// to four channels each, so one buffer serves both.
		buffer: make([]float32, (radius+2)*4+4),
	}
	if !c.Track(k, (radius*2+1)*4, owner, nil) {
		c.AddToCallstack()
		return nil
	}
	return k
}

func gaussianValue(x, stdDev float64) float64 {
	return math.Exp(-(x*x)/(2.0*stdDev*stdDev)) / (math.Sqrt(2.0*math.Pi) * stdDev)
}

// Sum returns the integrated kernel weight.
func (k *ConvolutionKernel) Sum() float64 {
	sum := 0.0
	for _, v := range k.Kernel {
		sum += float64(v)
	}
	return sum
}

// Normalize scales the kernel so it sums to desiredSum.
func (k *ConvolutionKernel) Normalize(desiredSum float32) {
	sum := k.Sum()
	if sum == 0 {
		return // zeroes are as normalized as you can get
	}
	factor := float32(float64(desiredSum) / sum)
	for i := range k.Kernel {
		k.Kernel[i] *= factor
	}
}

// NewGaussianKernel creates a gaussian kernel with the given standard
// deviation, normalised to sum to one.
func NewGaussianKernel(c *core.Context, stdDev float64, radius int, owner any) *ConvolutionKernel {
	k := NewConvolutionKernel(c, radius, owner)
	if k == nil {
		c.AddToCallstack()
		return nil
	}
	for i := 0; i < k.Width; i++ {
		k.Kernel[i] = float32(gaussianValue(math.Abs(float64(i-radius)), stdDev))
	}
	k.Normalize(1)
	return k
}

// NewGaussianSharpenKernel creates an unsharp-mask kernel: the negated
// gaussian with its centre raised so the kernel sums to one.
func NewGaussianSharpenKernel(c *core.Context, stdDev float64, radius int, owner any) *ConvolutionKernel {
	k := NewConvolutionKernel(c, radius, owner)
	if k == nil {
		c.AddToCallstack()
		return nil
	}
	for i := 0; i < k.Width; i++ {
		k.Kernel[i] = float32(gaussianValue(math.Abs(float64(i-radius)), stdDev))
	}
	sum := k.Sum()
	for i := 0; i < k.Width; i++ {
		if i == radius {
			k.Kernel[i] = float32(2*sum - float64(k.Kernel[i]))
		} else {
			k.Kernel[i] *= -1
		}
	}
	k.Normalize(1)
	return k
}

// ConvolveRows convolves convolveChannels channels of rowCount float rows
// in place. rowCount < 0 means every row. Edges renormalise over the
// weights actually sampled.
func ConvolveRows(c *core.Context, buf *bitmap.FloatBitmap, k *ConvolutionKernel, convolveChannels, fromRow, rowCount int) bool {
	radius := k.Radius
	if buf.W < radius+1 {
		return true // image narrower than the kernel; nothing to do
	}
	if convolveChannels > buf.Channels || convolveChannels > 4 {
		c.SetError(core.StatusInvalidArgument)
		return false
	}

	bufferCount := radius + 1
	w := buf.W
	step := buf.Channels
	untilRow := fromRow + rowCount
	if rowCount < 0 {
		untilRow = buf.H
	}
	chUsed := convolveChannels
	circular := k.buffer[:bufferCount*chUsed]
	avg := k.buffer[bufferCount*chUsed : bufferCount*chUsed+chUsed]

	for row := fromRow; row < untilRow; row++ {
		sourceBuffer := buf.Pixels[row*buf.FloatStride:]
		circularIdx := 0

		for ndx := 0; ndx < w+bufferCount; ndx++ {
			// Flush the oldest queued value back into the row.
			if ndx >= bufferCount {
				copy(sourceBuffer[(ndx-bufferCount)*step:(ndx-bufferCount)*step+chUsed],
					circular[circularIdx*chUsed:circularIdx*chUsed+chUsed])
			}
			if ndx < w {
				left := ndx - radius
				right := ndx + radius
				for j := 0; j < chUsed; j++ {
					avg[j] = 0
				}
				if left < 0 || right >= w {
					// Sample only what's present and renormalise.
					totalWeight := float32(0)
					for i := left; i <= right; i++ {
						if i > 0 && i < w {
							weight := k.Kernel[i-left]
							totalWeight += weight
							for j := 0; j < chUsed; j++ {
								avg[j] += weight * sourceBuffer[i*step+j]
							}
						}
					}
					for j := 0; j < chUsed; j++ {
						avg[j] /= totalWeight
					}
				} else {
					for i := left; i <= right; i++ {
						weight := k.Kernel[i-left]
						for j := 0; j < chUsed; j++ {
							avg[j] += weight * sourceBuffer[i*step+j]
						}
					}
				}
				copy(circular[circularIdx*chUsed:circularIdx*chUsed+chUsed], avg)

				if k.ThresholdMinChange > 0 || k.ThresholdMaxChange > 0 {
					change := float32(0)
					for j := 0; j < chUsed; j++ {
						change += float32(math.Abs(float64(sourceBuffer[ndx*step+j] - avg[j])))
					}
					if change < k.ThresholdMinChange || change > k.ThresholdMaxChange {
						copy(circular[circularIdx*chUsed:circularIdx*chUsed+chUsed],
							sourceBuffer[ndx*step:ndx*step+chUsed])
					}
				}
			}
			circularIdx = (circularIdx + 1) % bufferCount
		}
	}
	return true
}
