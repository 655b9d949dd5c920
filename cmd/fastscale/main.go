// Command fastscale resizes and transforms JPEG and PNG images from the
// command line.
//
// Usage:
//
//	fastscale scale [options] <input>   Resize to -w x -h, write PNG
//	fastscale trim [options] <input>    Crop away background margins
//	fastscale info <input>              Display image metadata
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/deepteams/fastscale"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scale":
		err = runScale(os.Args[2:])
	case "trim":
		err = runTrim(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "fastscale: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "fastscale: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  fastscale scale [options] <input>   Resize a JPEG/PNG and write a PNG
  fastscale trim [options] <input>    Crop background margins and write a PNG
  fastscale info <input>              Display image metadata

Run "fastscale <command> -h" for command-specific options.
`)
}

func parseFilter(s string) (fastscale.Filter, error) {
	switch strings.ToLower(s) {
	case "robidoux", "":
		return fastscale.FilterRobidoux, nil
	case "robidouxsharp":
		return fastscale.FilterRobidouxSharp, nil
	case "robidouxfast":
		return fastscale.FilterRobidouxFast, nil
	case "ginseng":
		return fastscale.FilterGinseng, nil
	case "lanczos":
		return fastscale.FilterLanczos, nil
	case "lanczos2":
		return fastscale.FilterLanczos2, nil
	case "mitchell":
		return fastscale.FilterMitchell, nil
	case "catmullrom", "catrom":
		return fastscale.FilterCatmullRom, nil
	case "bspline":
		return fastscale.FilterCubicBSpline, nil
	case "hermite":
		return fastscale.FilterHermite, nil
	case "triangle", "linear":
		return fastscale.FilterTriangle, nil
	case "box":
		return fastscale.FilterBox, nil
	case "jinc":
		return fastscale.FilterJinc, nil
	case "fastest":
		return fastscale.FilterFastest, nil
	default:
		return 0, fmt.Errorf("unknown filter %q", s)
	}
}

// contextError converts the context's recorded status into a Go error for
// the CLI exit path, including the callstack.
func contextError(c *fastscale.Context) error {
	if !c.HasError() {
		return fmt.Errorf("operation failed without recording a status")
	}
	return fmt.Errorf("%s", fastscale.FormatError(c))
}

func runScale(args []string) error {
	fs := flag.NewFlagSet("scale", flag.ContinueOnError)
	width := fs.Int("w", 0, "output width (0 = derive from height)")
	height := fs.Int("h", 0, "output height (0 = derive from width)")
	filterName := fs.String("filter", "robidoux", "interpolation filter")
	sharpen := fs.Float64("sharpen", 0, "sharpen percent goal 0-100")
	zlibLevel := fs.Int("zlib", -1, "PNG zlib compression level -1..9")
	noAlpha := fs.Bool("noalpha", false, "strip the alpha channel from PNG output")
	autorotate := fs.Bool("autorotate", true, "apply EXIF orientation")
	matte := fs.String("matte", "", "matte color as AARRGGBB hex; blends transparency")
	output := fs.String("o", "", "output path (default: <input>.scaled.png)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("scale: missing input file")
	}
	inputPath := fs.Arg(0)
	if *width <= 0 && *height <= 0 {
		return fmt.Errorf("scale: at least one of -w and -h is required")
	}
	filter, err := parseFilter(*filterName)
	if err != nil {
		return fmt.Errorf("scale: %v", err)
	}

	c := fastscale.NewContext()
	defer c.Destroy()

	img := fastscale.DecodeFile(c, inputPath, nil)
	if img == nil {
		return contextError(c)
	}
	b := img.Bitmap
	if *autorotate && img.Info.ExifOrientation > 1 {
		b = fastscale.ApplyOrientation(c, b, img.Info.ExifOrientation)
		if b == nil {
			return contextError(c)
		}
	}

	w, h := *width, *height
	if w <= 0 {
		w = b.W * h / b.H
	}
	if h <= 0 {
		h = b.H * w / b.W
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	opts := fastscale.ScaleOptions{
		Filter:             filter,
		SharpenPercentGoal: float32(*sharpen),
	}
	if *matte != "" {
		var argb uint32
		if _, err := fmt.Sscanf(*matte, "%08x", &argb); err != nil {
			return fmt.Errorf("scale: bad matte color %q", *matte)
		}
		opts.Compositing = fastscale.CompositingBlendWithMatte
		opts.MatteColor = [4]byte{byte(argb), byte(argb >> 8), byte(argb >> 16), byte(argb >> 24)}
	}

	scaled := fastscale.Scale(c, b, w, h, opts)
	if scaled == nil {
		return contextError(c)
	}

	outPath := *output
	if outPath == "" {
		outPath = inputPath + ".scaled.png"
	}
	hints := &fastscale.EncoderHints{
		ZlibCompressionLevel: *zlibLevel,
		DisablePNGAlpha:      *noAlpha,
	}
	if !fastscale.EncodePNGFile(c, scaled, outPath, hints) {
		return contextError(c)
	}
	fmt.Printf("%s: %dx%d -> %s: %dx%d\n", inputPath, b.W, b.H, outPath, w, h)
	return nil
}

func runTrim(args []string) error {
	fs := flag.NewFlagSet("trim", flag.ContinueOnError)
	threshold := fs.Int("threshold", 80, "edge threshold 1-255")
	output := fs.String("o", "", "output path (default: <input>.trimmed.png)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("trim: missing input file")
	}
	inputPath := fs.Arg(0)

	c := fastscale.NewContext()
	defer c.Destroy()

	img := fastscale.DecodeFile(c, inputPath, nil)
	if img == nil {
		return contextError(c)
	}
	r := fastscale.DetectContent(c, img.Bitmap, uint8(*threshold))
	if c.HasError() {
		return contextError(c)
	}
	if r.X1 < 0 {
		return fmt.Errorf("trim: no content detected in %s", inputPath)
	}
	cropped := fastscale.Crop(c, img.Bitmap, r.X1, r.Y1, r.X2, r.Y2)
	if cropped == nil {
		return contextError(c)
	}

	outPath := *output
	if outPath == "" {
		outPath = inputPath + ".trimmed.png"
	}
	if !fastscale.EncodePNGFile(c, cropped, outPath, nil) {
		return contextError(c)
	}
	fmt.Printf("%s: content %d,%d-%d,%d -> %s\n", inputPath, r.X1, r.Y1, r.X2, r.Y2, outPath)
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("info: missing input file")
	}
	inputPath := fs.Arg(0)

	c := fastscale.NewContext()
	defer c.Destroy()

	img := fastscale.DecodeFile(c, inputPath, nil)
	if img == nil {
		return contextError(c)
	}

	fmt.Printf("File:        %s\n", inputPath)
	fmt.Printf("Format:      %s\n", img.Info.PreferredMimeType)
	fmt.Printf("Dimensions:  %dx%d\n", img.Info.Width, img.Info.Height)
	fmt.Printf("Decodes to:  %s\n", img.Info.FrameDecodesInto)
	if img.Info.ExifOrientation > 0 {
		fmt.Printf("Orientation: %d\n", img.Info.ExifOrientation)
	}
	if len(img.Color.ProfileBytes) > 0 {
		fmt.Printf("ICC profile: %d bytes\n", len(img.Color.ProfileBytes))
	} else if img.Color.Gamma != 0 {
		fmt.Printf("Gamma:       %.5f\n", img.Color.Gamma)
	}
	return nil
}
