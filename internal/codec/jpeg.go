package codec

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/colorspace"
	"github.com/deepteams/fastscale/internal/core"
)

// decoderStage tracks a decoder state machine. Failed is absorbing.
type decoderStage int

const (
	stageNull decoderStage = iota
	stageNotStarted
	stageBeginRead
	stageFinishRead
	stageFailed
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
	markerAPP2 = 0xE2
)

// jpegSourceBufferSize matches the chunk size the pull-based source manager
// hands the entropy decoder.
const jpegSourceBufferSize = 4096

type jpegDecoderState struct {
	stage decoderStage
	data  []byte

	w, h           int // post-downscale dimensions
	originalW      int
	originalH      int
	channels       int
	exifOrientation int
	color          ColorInfo
	hints          DownscaleHints
	// StrictEOF makes a mid-stream EOF fatal instead of synthesising an
	// end-of-image marker.
	strictEOF bool

	scaleNum   int // selected numerator over a fixed denominator of 8
	scaleDenom int

	markersParsed bool
}

// jpegSource feeds the entropy decoder in fixed-size chunks. A zero-byte
// read at the start of the stream is fatal; mid-stream it synthesises a
// single end-of-image marker so partial decode can be attempted.
type jpegSource struct {
	data        []byte
	pos         int
	strict      bool
	emittedEOI  bool
	Truncated   bool
}

func (s *jpegSource) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		if s.pos == 0 {
			return 0, io.ErrUnexpectedEOF // empty input
		}
		if !s.strict && !s.emittedEOI && !bytes.HasSuffix(s.data, []byte{0xFF, markerEOI}) {
			s.emittedEOI = true
			s.Truncated = true
			n := copy(p, []byte{0xFF, markerEOI})
			return n, nil
		}
		return 0, io.EOF
	}
	limit := len(s.data) - s.pos
	if limit > jpegSourceBufferSize {
		limit = jpegSourceBufferSize
	}
	if limit > len(p) {
		limit = len(p)
	}
	n := copy(p, s.data[s.pos:s.pos+limit])
	s.pos += n
	return n, nil
}

func jpegDecoderDefinition() *Definition {
	return &Definition{
		ID:                 DecodeJPEG,
		Direction:          Decoder,
		Name:               "decode jpeg",
		PreferredMimeType:  "image/jpeg",
		PreferredExtension: "jpg",
		Initialize:         jpegInitialize,
		GetInfo:            jpegGetInfo,
		GetFrameInfo:       jpegGetInfo,
		SetDownscaleHints:  jpegSetDownscaleHints,
		ReadFrame:          jpegReadFrame,
	}
}

func jpegInitialize(c *core.Context, inst *Instance) bool {
	buf, ok := inst.State.(*decodeBuffer)
	if !ok {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	state := &jpegDecoderState{
		stage: stageNotStarted,
		data:  buf.data,
		hints: DownscaleHints{
			DownscaleIfWiderThan: -1,
			OrIfTallerThan:       -1,
			DownscaledMinWidth:   -1,
			DownscaledMinHeight:  -1,
		},
		scaleNum:   8,
		scaleDenom: 8,
	}
	if !c.Track(state, len(state.data), inst, nil) {
		c.AddToCallstack()
		return false
	}
	inst.State = state
	return true
}

func (s *jpegDecoderState) fail() { s.stage = stageFailed }

// parseMarkers walks the segment stream collecting the Exif APP1 payload
// and assembling the (possibly multi-segment) APP2 ICC profile.
func (s *jpegDecoderState) parseMarkers(c *core.Context) bool {
	if s.markersParsed {
		return true
	}
	s.markersParsed = true

	data := s.data
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		c.SetErrorf(core.StatusDecodingFailed, "not a JPEG stream")
		return false
	}
	var iccSegments [][]byte
	iccPrefix := []byte("ICC_PROFILE\x00")

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker == 0xFF || marker == 0x00 || (marker >= 0xD0 && marker <= 0xD7) {
			i++
			continue
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if segLen < 2 || i+2+segLen > len(data) {
			break
		}
		payload := data[i+4 : i+2+segLen]
		switch marker {
		case markerAPP1:
			if s.exifOrientation == 0 && bytes.HasPrefix(payload, exifIdent) {
				s.exifOrientation = parseExifOrientation(payload)
			}
		case markerAPP2:
			if bytes.HasPrefix(payload, iccPrefix) && len(payload) > len(iccPrefix)+2 {
				iccSegments = append(iccSegments, payload[len(iccPrefix)+2:])
			}
		}
		i += 2 + segLen
	}

	if len(iccSegments) > 0 {
		profile := bytes.Join(iccSegments, nil)
		if !profileIsSRGB(profile) && len(profile) > 0 {
			s.color.Source = ColorSourceICC
			s.color.ProfileBytes = profile
		}
	}
	if s.color.Source == ColorSourceNull {
		s.color.Gamma = defaultGamma
	}
	return true
}

func (s *jpegDecoderState) beginRead(c *core.Context) bool {
	if s.stage == stageFailed {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	if !s.parseMarkers(c) {
		s.fail()
		c.AddToCallstack()
		return false
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(s.data))
	if err != nil {
		s.fail()
		c.SetErrorf(core.StatusDecodingFailed, "reading JPEG header: %v", err)
		return false
	}
	s.originalW = cfg.Width
	s.originalH = cfg.Height
	s.w = cfg.Width
	s.h = cfg.Height
	s.channels = 3
	s.stage = stageBeginRead
	return true
}

// applyDownscaling selects the smallest numerator i in {1..6, 8} over a
// denominator of 8 that keeps both axes at or above the requested minimums.
// 7/8ths is skipped because it decodes slower than full size.
func (s *jpegDecoderState) applyDownscaling() {
	if s.hints.DownscaledMinWidth <= 0 || s.hints.DownscaledMinHeight <= 0 {
		return
	}
	if s.originalW > s.hints.DownscaleIfWiderThan || s.originalH > s.hints.OrIfTallerThan {
		for i := 1; i < 9; i++ {
			if i == 7 {
				continue
			}
			newW := (s.originalW*i + 7) / 8
			newH := (s.originalH*i + 7) / 8
			if newW >= s.hints.DownscaledMinWidth && newH >= s.hints.DownscaledMinHeight {
				s.scaleDenom = 8
				s.scaleNum = i
				s.w = newW
				s.h = newH
				return
			}
		}
	}
}

func jpegGetInfo(c *core.Context, state any, info *DecoderInfo) bool {
	s, ok := state.(*jpegDecoderState)
	if !ok || s == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	if s.stage < stageBeginRead {
		if !s.beginRead(c) {
			c.AddToCallstack()
			return false
		}
	}
	if s.stage != stageFinishRead {
		s.applyDownscaling()
	}
	info.CurrentFrameIndex = 0
	info.FrameCount = 1
	info.FrameDecodesInto = bitmap.BGR32
	info.Width = s.w
	info.Height = s.h
	info.ChannelCount = s.channels
	info.ExifOrientation = s.exifOrientation
	info.Color = s.color
	return true
}

func jpegSetDownscaleHints(c *core.Context, inst *Instance, hints *DownscaleHints) bool {
	s, ok := inst.State.(*jpegDecoderState)
	if !ok || s == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	s.hints = *hints
	s.strictEOF = hints.StrictEOF
	return true
}

func jpegReadFrame(c *core.Context, state any, canvas *bitmap.ByteBitmap, color *ColorInfo) bool {
	s, ok := state.(*jpegDecoderState)
	if !ok || s == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	if s.stage == stageFailed {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	if s.stage < stageBeginRead {
		if !s.beginRead(c) {
			c.AddToCallstack()
			return false
		}
		s.applyDownscaling()
	}
	if canvas == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	if canvas.W != s.w || canvas.H != s.h {
		c.SetErrorf(core.StatusInvalidArgument, "canvas is %dx%d but the frame decodes to %dx%d",
			canvas.W, canvas.H, s.w, s.h)
		return false
	}
	if canvas.Fmt.BytesPerPixel() != 4 {
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}

	src := &jpegSource{data: s.data, strict: s.strictEOF}
	img, err := jpeg.Decode(src)
	if err != nil {
		s.fail()
		c.SetErrorf(core.StatusDecodingFailed, "decoding JPEG: %v", err)
		return false
	}

	if s.scaleNum < s.scaleDenom {
		img = downscaleSpatially(img, s.w, s.h,
			s.hints.GammaCorrectForSRGBDuringSpatialLumaScaling)
	}
	if !drawIntoBGRACanvas(c, img, canvas) {
		s.fail()
		c.AddToCallstack()
		return false
	}
	if color != nil {
		*color = s.color
	}
	s.stage = stageFinishRead
	return true
}

// drawIntoBGRACanvas converts a decoded image into a 4-byte-per-pixel
// canvas, writing opaque alpha.
func drawIntoBGRACanvas(c *core.Context, img image.Image, canvas *bitmap.ByteBitmap) bool {
	b := img.Bounds()
	if b.Dx() != canvas.W || b.Dy() != canvas.H {
		c.SetError(core.StatusReportingInconsistency)
		return false
	}
	switch im := img.(type) {
	case *image.YCbCr:
		for y := 0; y < canvas.H; y++ {
			row := canvas.Pixels[y*canvas.Stride:]
			for x := 0; x < canvas.W; x++ {
				r, g, bl, _ := im.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x*4] = byte(bl >> 8)
				row[x*4+1] = byte(g >> 8)
				row[x*4+2] = byte(r >> 8)
				row[x*4+3] = 0xFF
			}
		}
	case *image.Gray:
		for y := 0; y < canvas.H; y++ {
			row := canvas.Pixels[y*canvas.Stride:]
			srcRow := im.Pix[(b.Min.Y+y-im.Rect.Min.Y)*im.Stride:]
			for x := 0; x < canvas.W; x++ {
				v := srcRow[b.Min.X+x-im.Rect.Min.X]
				row[x*4] = v
				row[x*4+1] = v
				row[x*4+2] = v
				row[x*4+3] = 0xFF
			}
		}
	case *image.NRGBA:
		for y := 0; y < canvas.H; y++ {
			row := canvas.Pixels[y*canvas.Stride:]
			srcRow := im.Pix[(b.Min.Y+y-im.Rect.Min.Y)*im.Stride:]
			for x := 0; x < canvas.W; x++ {
				p := srcRow[(b.Min.X+x-im.Rect.Min.X)*4:]
				row[x*4] = p[2]
				row[x*4+1] = p[1]
				row[x*4+2] = p[0]
				row[x*4+3] = p[3]
			}
		}
	case *image.RGBA:
		for y := 0; y < canvas.H; y++ {
			row := canvas.Pixels[y*canvas.Stride:]
			srcRow := im.Pix[(b.Min.Y+y-im.Rect.Min.Y)*im.Stride:]
			for x := 0; x < canvas.W; x++ {
				p := srcRow[(b.Min.X+x-im.Rect.Min.X)*4:]
				row[x*4] = p[2]
				row[x*4+1] = p[1]
				row[x*4+2] = p[0]
				row[x*4+3] = p[3]
			}
		}
	default:
		// CMYK and anything more exotic is out of scope.
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}
	return true
}

// downscaleSpatially reduces a full-resolution decode to the selected i/8
// scale with a box average, optionally averaging in linear light. This
// stands in for a scaled IDCT: the output dimensions match what a
// block-level spatial downsample would produce.
func downscaleSpatially(img image.Image, newW, newH int, gammaCorrect bool) image.Image {
	b := img.Bounds()
	srcW := b.Dx()
	srcH := b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, newW, newH))

	var toLinear [256]float64
	for i := 0; i < 256; i++ {
		if gammaCorrect {
			toLinear[i] = float64(colorspace.SRGBToLinear(float32(i) / 255.0))
		} else {
			toLinear[i] = float64(i)
		}
	}
	fromLinear := func(v float64) byte {
		if gammaCorrect {
			return colorspace.ClampToByte(colorspace.LinearToSRGB(float32(v)))
		}
		return colorspace.ClampToByte(float32(v))
	}

	for oy := 0; oy < newH; oy++ {
		y0 := oy * srcH / newH
		y1 := (oy + 1) * srcH / newH
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for ox := 0; ox < newW; ox++ {
			x0 := ox * srcW / newW
			x1 := (ox + 1) * srcW / newW
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sr, sg, sb float64
			n := float64((x1 - x0) * (y1 - y0))
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					r, g, bl, _ := img.At(b.Min.X+sx, b.Min.Y+sy).RGBA()
					sr += toLinear[r>>8]
					sg += toLinear[g>>8]
					sb += toLinear[bl>>8]
				}
			}
			o := out.Pix[oy*out.Stride+ox*4:]
			o[0] = fromLinear(sr / n)
			o[1] = fromLinear(sg / n)
			o[2] = fromLinear(sb / n)
			o[3] = 0xFF
		}
	}
	return out
}
