package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"io"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/core"
)

type pngDecoderState struct {
	stage decoderStage
	data  []byte

	w, h      int
	hasAlpha  bool
	colorType byte
	color     ColorInfo
}

func pngDecoderDefinition() *Definition {
	return &Definition{
		ID:                 DecodePNG,
		Direction:          Decoder,
		Name:               "decode png",
		PreferredMimeType:  "image/png",
		PreferredExtension: "png",
		Initialize:         pngInitialize,
		GetInfo:            pngGetInfo,
		GetFrameInfo:       pngGetInfo,
		ReadFrame:          pngReadFrame,
	}
}

func pngInitialize(c *core.Context, inst *Instance) bool {
	buf, ok := inst.State.(*decodeBuffer)
	if !ok {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	state := &pngDecoderState{stage: stageNotStarted, data: buf.data}
	if !c.Track(state, len(state.data), inst, nil) {
		c.AddToCallstack()
		return false
	}
	inst.State = state
	return true
}

// sRGB chromaticities, used when a cHRM chunk is absent.
var srgbChromaticities = Chromaticities{
	WhiteX: 0.3127, WhiteY: 0.329,
	RedX: 0.64, RedY: 0.33,
	GreenX: 0.3, GreenY: 0.6,
	BlueX: 0.15, BlueY: 0.06,
}

// beginRead parses IHDR plus the colour chunks: iCCP when present, then
// sRGB, then gAMA/cHRM as the fallback.
func (s *pngDecoderState) beginRead(c *core.Context) bool {
	if s.stage == stageFailed {
		c.SetError(core.StatusInvalidInternal)
		return false
	}
	data := s.data
	if !bytes.HasPrefix(data, pngSignature) {
		s.fail()
		c.SetErrorf(core.StatusDecodingFailed, "not a PNG stream")
		return false
	}

	sawSRGB := false
	sawGAMA := false
	sawCHRM := false
	gamma := 0.0
	chrm := srgbChromaticities
	var iccProfile []byte

	i := len(pngSignature)
	for i+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		ctype := string(data[i+4 : i+8])
		if length < 0 || i+12+length > len(data) {
			break
		}
		payload := data[i+8 : i+8+length]
		switch ctype {
		case "IHDR":
			if length < 13 {
				s.fail()
				c.SetErrorf(core.StatusDecodingFailed, "short IHDR chunk")
				return false
			}
			s.w = int(binary.BigEndian.Uint32(payload[0:4]))
			s.h = int(binary.BigEndian.Uint32(payload[4:8]))
			s.colorType = payload[9]
		case "sRGB":
			sawSRGB = true
		case "gAMA":
			if length >= 4 {
				sawGAMA = true
				gamma = float64(binary.BigEndian.Uint32(payload[0:4])) / 100000.0
			}
		case "cHRM":
			if length >= 32 {
				sawCHRM = true
				f := func(off int) float64 {
					return float64(binary.BigEndian.Uint32(payload[off:off+4])) / 100000.0
				}
				chrm = Chromaticities{
					WhiteX: f(0), WhiteY: f(4),
					RedX: f(8), RedY: f(12),
					GreenX: f(16), GreenY: f(20),
					BlueX: f(24), BlueY: f(28),
				}
			}
		case "iCCP":
			// profile name, null, compression method, zlib stream
			if nameEnd := bytes.IndexByte(payload, 0); nameEnd >= 0 && nameEnd+2 <= len(payload) {
				zr, err := zlib.NewReader(bytes.NewReader(payload[nameEnd+2:]))
				if err == nil {
					profile, rerr := io.ReadAll(zr)
					zr.Close()
					if rerr == nil {
						iccProfile = profile
					}
				}
			}
		case "IDAT", "IEND":
			i = len(data) // colour chunks precede IDAT
		}
		i += 12 + length
	}

	if s.w <= 0 || s.h <= 0 {
		s.fail()
		c.SetErrorf(core.StatusDecodingFailed, "missing or invalid IHDR")
		return false
	}

	switch {
	case len(iccProfile) > 0 && !profileIsSRGB(iccProfile):
		s.color.Source = ColorSourceICC
		if s.colorType == 0 || s.colorType == 4 {
			s.color.Source = ColorSourceICCGray
		}
		s.color.ProfileBytes = iccProfile
	case sawSRGB:
		s.color.Source = ColorSourceSRGB
	case sawGAMA || sawCHRM:
		s.color.Source = ColorSourceGammaChromaticities
		if sawGAMA {
			s.color.Gamma = gamma
		} else {
			s.color.Gamma = defaultGamma
		}
		s.color.Chromaticities = chrm
	default:
		s.color.Gamma = defaultGamma
	}

	// Alpha survives the expand transforms for alpha and palette types.
	s.hasAlpha = s.colorType == 3 || s.colorType == 4 || s.colorType == 6
	s.stage = stageBeginRead
	return true
}

func (s *pngDecoderState) fail() { s.stage = stageFailed }

func (s *pngDecoderState) outputFormat() bitmap.PixelFormat {
	if s.hasAlpha {
		return bitmap.BGRA32
	}
	return bitmap.BGR32
}

func pngGetInfo(c *core.Context, state any, info *DecoderInfo) bool {
	s, ok := state.(*pngDecoderState)
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
	info.CurrentFrameIndex = 0
	info.FrameCount = 1
	info.Width = s.w
	info.Height = s.h
	info.FrameDecodesInto = s.outputFormat()
	info.ChannelCount = 4
	info.ExifOrientation = 0
	info.Color = s.color
	return true
}

func pngReadFrame(c *core.Context, state any, canvas *bitmap.ByteBitmap, color *ColorInfo) bool {
	s, ok := state.(*pngDecoderState)
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
	}
	if canvas == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	if canvas.W != s.w || canvas.H != s.h || canvas.Fmt.BytesPerPixel() != 4 {
		c.SetErrorf(core.StatusInvalidArgument, "canvas must be %dx%d at 4 bytes per pixel", s.w, s.h)
		return false
	}

	img, err := png.Decode(bytes.NewReader(s.data))
	if err != nil {
		// Short reads are always fatal for PNG.
		s.fail()
		c.SetErrorf(core.StatusDecodingFailed, "decoding PNG: %v", err)
		return false
	}
	if !pngIntoBGRACanvas(c, img, canvas) {
		s.fail()
		c.AddToCallstack()
		return false
	}
	canvas.AlphaMeaningful = s.hasAlpha
	if color != nil {
		*color = s.color
	}
	s.stage = stageFinishRead
	return true
}

// pngIntoBGRACanvas expands any decoded PNG representation (palette,
// low-bit gray, 16-bit) to 8-bit BGRA.
func pngIntoBGRACanvas(c *core.Context, img image.Image, canvas *bitmap.ByteBitmap) bool {
	b := img.Bounds()
	if b.Dx() != canvas.W || b.Dy() != canvas.H {
		c.SetError(core.StatusReportingInconsistency)
		return false
	}
	switch im := img.(type) {
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
		// Palette, gray, 16-bit and mixed cases go through the generic
		// accessor; strip 16 to 8.
		for y := 0; y < canvas.H; y++ {
			row := canvas.Pixels[y*canvas.Stride:]
			for x := 0; x < canvas.W; x++ {
				r, g, bl, a := im.At(b.Min.X+x, b.Min.Y+y).RGBA()
				if a == 0 {
					row[x*4] = 0
					row[x*4+1] = 0
					row[x*4+2] = 0
					row[x*4+3] = 0
					continue
				}
				// Un-premultiply the 16-bit values At returns.
				row[x*4] = byte((bl * 0xFFFF / a) >> 8)
				row[x*4+1] = byte((g * 0xFFFF / a) >> 8)
				row[x*4+2] = byte((r * 0xFFFF / a) >> 8)
				row[x*4+3] = byte(a >> 8)
			}
		}
	}
	return true
}

// --- encoder ---

type pngEncoderState struct {
	io IO
}

func pngEncoderDefinition() *Definition {
	return &Definition{
		ID:                 EncodePNG,
		Direction:          Encoder,
		Name:               "encode png",
		PreferredMimeType:  "image/png",
		PreferredExtension: "png",
		Initialize: func(c *core.Context, inst *Instance) bool {
			st := &pngEncoderState{io: inst.IO}
			if !c.Track(st, 0, inst, nil) {
				c.AddToCallstack()
				return false
			}
			inst.State = st
			return true
		},
		WriteFrame: pngWriteFrame,
	}
}

type chunkWriter struct {
	w   io.Writer
	err error
}

func (cw *chunkWriter) writeRaw(p []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	cw.err = err
}

func (cw *chunkWriter) writeChunk(name string, payload []byte) {
	if cw.err != nil {
		return
	}
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:], name)
	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(payload)
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc.Sum32())
	cw.writeRaw(header[:])
	cw.writeRaw(payload)
	cw.writeRaw(footer[:])
}

const (
	pngColorTypeRGB  = 2
	pngColorTypeRGBA = 6
)

// pngWriteFrame encodes a BGRA32/BGR32/BGR24 bitmap. Alpha is written only
// for BGRA32 frames with meaningful alpha and no disable hint; the sRGB
// rendering intent and matching gAMA/cHRM accompany the image data.
func pngWriteFrame(c *core.Context, state any, frame *bitmap.ByteBitmap, hints *EncoderHints) bool {
	s, ok := state.(*pngEncoderState)
	if !ok || s == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}
	if frame == nil {
		c.SetError(core.StatusNullArgument)
		return false
	}

	disableAlpha := hints != nil && hints.DisablePNGAlpha
	level := zlib.BestCompression
	if hints != nil && hints.ZlibCompressionLevel >= -1 && hints.ZlibCompressionLevel <= 9 {
		level = hints.ZlibCompressionLevel
	}

	var colorType byte
	switch {
	case frame.Fmt == bitmap.BGR24:
		colorType = pngColorTypeRGB
	case frame.Fmt == bitmap.BGR32,
		frame.Fmt == bitmap.BGRA32 && (disableAlpha || !frame.AlphaMeaningful):
		colorType = pngColorTypeRGB
	case frame.Fmt == bitmap.BGRA32:
		colorType = pngColorTypeRGBA
	default:
		c.SetError(core.StatusUnsupportedFormat)
		return false
	}

	cw := &chunkWriter{w: s.io}
	cw.writeRaw(pngSignature)

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(frame.W))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(frame.H))
	ihdr[8] = 8 // bit depth
	ihdr[9] = colorType
	cw.writeChunk("IHDR", ihdr[:])

	// Rendering intent 0 is perceptual; gAMA/cHRM carry matching values
	// for readers that ignore sRGB.
	cw.writeChunk("sRGB", []byte{0})
	var gama [4]byte
	binary.BigEndian.PutUint32(gama[:], 45455)
	cw.writeChunk("gAMA", gama[:])
	var chrm [32]byte
	for i, v := range []uint32{31270, 32900, 64000, 33000, 30000, 60000, 15000, 6000} {
		binary.BigEndian.PutUint32(chrm[i*4:], v)
	}
	cw.writeChunk("cHRM", chrm[:])

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, level)
	if err != nil {
		c.SetErrorf(core.StatusEncodingFailed, "zlib level %d: %v", level, err)
		return false
	}
	srcBPP := frame.Fmt.BytesPerPixel()
	outBPP := 3
	if colorType == pngColorTypeRGBA {
		outBPP = 4
	}
	scanline := make([]byte, 1+frame.W*outBPP)
	for y := 0; y < frame.H; y++ {
		scanline[0] = 0 // filter: none
		src := frame.Pixels[y*frame.Stride:]
		for x := 0; x < frame.W; x++ {
			p := src[x*srcBPP:]
			o := scanline[1+x*outBPP:]
			o[0] = p[2] // R
			o[1] = p[1] // G
			o[2] = p[0] // B
			if outBPP == 4 {
				o[3] = p[3]
			}
		}
		if _, err := zw.Write(scanline); err != nil {
			c.SetErrorf(core.StatusEncodingFailed, "compressing scanlines: %v", err)
			return false
		}
	}
	if err := zw.Close(); err != nil {
		c.SetErrorf(core.StatusEncodingFailed, "finishing compression: %v", err)
		return false
	}
	cw.writeChunk("IDAT", idat.Bytes())
	cw.writeChunk("IEND", nil)

	if cw.err != nil {
		c.SetErrorf(core.StatusEncodingFailed, "writing PNG stream: %v", cw.err)
		return false
	}
	return true
}
