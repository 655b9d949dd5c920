package codec

import (
	"bytes"
	"errors"

	"github.com/deepteams/fastscale/internal/bitmap"
	"github.com/deepteams/fastscale/internal/core"
)

var (
	errNotWritable = errors.New("codec: stream is not writable")
	errNotReadable = errors.New("codec: stream is not readable")
)

// ID identifies a codec within a Set.
type ID int

const (
	DecodeJPEG ID = 1
	DecodePNG  ID = 2
	EncodePNG  ID = 3
	// EncodeJPEG is reserved; no encoder is registered for it yet.
	EncodeJPEG ID = 4
)

// Direction states whether a codec reads or writes.
type Direction int

const (
	Decoder Direction = 4
	Encoder Direction = 8
)

// ColorProfileSource tags where a decoder's colour information came from.
type ColorProfileSource int

const (
	ColorSourceNull ColorProfileSource = iota
	ColorSourceICC
	ColorSourceICCGray
	ColorSourceGammaChromaticities
	ColorSourceSRGB
)

// Chromaticities carries the four CIE xy points a cHRM chunk describes.
type Chromaticities struct {
	WhiteX, WhiteY float64
	RedX, RedY     float64
	GreenX, GreenY float64
	BlueX, BlueY   float64
}

// ColorInfo is the colour metadata a decoder exposes. Profile bytes are
// owned by the codec state unless copied out.
type ColorInfo struct {
	Source         ColorProfileSource
	ProfileBytes   []byte
	Gamma          float64
	Chromaticities Chromaticities
}

const defaultGamma = 0.45455

// DownscaleHints ask a decoder to shrink during decode when the source is
// large enough.
type DownscaleHints struct {
	DownscaleIfWiderThan int
	OrIfTallerThan       int
	DownscaledMinWidth   int
	DownscaledMinHeight  int

	ScaleLumaSpatially                       bool
	GammaCorrectForSRGBDuringSpatialLumaScaling bool

	// StrictEOF makes a JPEG mid-stream EOF fatal instead of synthesising
	// an end-of-image marker and attempting partial decode.
	StrictEOF bool
}

// EncoderHints configure the PNG encoder.
type EncoderHints struct {
	DisablePNGAlpha bool
	// ZlibCompressionLevel in -1..9; values outside select best compression.
	ZlibCompressionLevel int
}

// DecoderInfo is the report a decoder produces after reading the header.
type DecoderInfo struct {
	CurrentFrameIndex int
	FrameCount        int
	Width             int
	Height            int
	FrameDecodesInto  bitmap.PixelFormat
	ChannelCount      int
	ExifOrientation   int
	Color             ColorInfo
	PreferredMimeType string
	PreferredExtension string
}

// Instance binds a codec definition to an I/O object and its private state.
type Instance struct {
	ID            ID
	Direction     Direction
	State         any
	IO            IO
	PlaceholderID int
}

// Definition is one codec's operation table.
type Definition struct {
	ID                 ID
	Direction          Direction
	Name               string
	PreferredMimeType  string
	PreferredExtension string

	Initialize        func(c *core.Context, inst *Instance) bool
	GetInfo           func(c *core.Context, state any, info *DecoderInfo) bool
	GetFrameInfo      func(c *core.Context, state any, info *DecoderInfo) bool
	SetDownscaleHints func(c *core.Context, inst *Instance, hints *DownscaleHints) bool
	ReadFrame         func(c *core.Context, state any, canvas *bitmap.ByteBitmap, color *ColorInfo) bool
	WriteFrame        func(c *core.Context, state any, frame *bitmap.ByteBitmap, hints *EncoderHints) bool
}

// Set is a per-context codec registry. Callers may register additional
// definitions before use; there is no process-wide registry.
type Set struct {
	defs []*Definition
}

// NewDefaultSet returns a registry holding the built-in JPEG and PNG codecs.
func NewDefaultSet() *Set {
	s := &Set{}
	s.Register(jpegDecoderDefinition())
	s.Register(pngDecoderDefinition())
	s.Register(pngEncoderDefinition())
	return s
}

// Register adds a codec definition, replacing any existing one with the
// same id.
func (s *Set) Register(d *Definition) {
	for i, existing := range s.defs {
		if existing.ID == d.ID {
			s.defs[i] = d
			return
		}
	}
	s.defs = append(s.defs, d)
}

// Get looks a definition up by id.
func (s *Set) Get(id ID) *Definition {
	for _, d := range s.defs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// setFor fetches the per-context registry, installing the default set the
// first time.
func setFor(c *core.Context) *Set {
	if s, ok := c.CodecSet.(*Set); ok {
		return s
	}
	s := NewDefaultSet()
	c.CodecSet = s
	return s
}

// RegisterCodec adds a definition to the context's registry.
func RegisterCodec(c *core.Context, d *Definition) {
	setFor(c).Register(d)
}

var (
	jpegSignature = []byte{0xFF, 0xD8, 0xFF}
	pngSignature  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
)

// SniffDecoderID examines leading bytes and picks the matching decoder id.
func SniffDecoderID(header []byte) (ID, bool) {
	if bytes.HasPrefix(header, pngSignature) {
		return DecodePNG, true
	}
	if bytes.HasPrefix(header, jpegSignature) {
		return DecodeJPEG, true
	}
	return 0, false
}

// NewDecoder creates a codec instance bound to io, selecting the codec by
// stream signature when id is zero. The instance is tracked on the context
// and owns its private state.
func NewDecoder(c *core.Context, id ID, io IO) *Instance {
	data, ok := readAll(c, io)
	if !ok {
		c.AddToCallstack()
		return nil
	}
	if id == 0 {
		sniffed, found := SniffDecoderID(data)
		if !found {
			c.SetErrorf(core.StatusDecodingFailed, "unrecognized image signature")
			return nil
		}
		id = sniffed
	}
	def := setFor(c).Get(id)
	if def == nil || def.Direction != Decoder {
		c.SetErrorf(core.StatusItemDoesNotExist, "no decoder registered for codec id %d", int(id))
		return nil
	}
	inst := &Instance{ID: id, Direction: Decoder, IO: io}
	if !c.Track(inst, 0, nil, nil) {
		c.AddToCallstack()
		return nil
	}
	inst.State = &decodeBuffer{data: data}
	if !def.Initialize(c, inst) {
		c.AddToCallstack()
		return nil
	}
	return inst
}

// NewEncoder creates an encoder instance bound to io.
func NewEncoder(c *core.Context, id ID, io IO) *Instance {
	def := setFor(c).Get(id)
	if def == nil || def.Direction != Encoder {
		c.SetErrorf(core.StatusItemDoesNotExist, "no encoder registered for codec id %d", int(id))
		return nil
	}
	inst := &Instance{ID: id, Direction: Encoder, IO: io}
	if !c.Track(inst, 0, nil, nil) {
		c.AddToCallstack()
		return nil
	}
	if def.Initialize != nil && !def.Initialize(c, inst) {
		c.AddToCallstack()
		return nil
	}
	return inst
}

// decodeBuffer carries the fully drained input bytes between Initialize and
// the codec-specific state.
type decodeBuffer struct {
	data []byte
}

// GetInfo reports header information, implicitly performing BeginRead.
func GetInfo(c *core.Context, inst *Instance, info *DecoderInfo) bool {
	def := setFor(c).Get(inst.ID)
	if def == nil || def.GetInfo == nil {
		c.SetError(core.StatusItemDoesNotExist)
		return false
	}
	if !def.GetInfo(c, inst.State, info) {
		c.AddToCallstack()
		return false
	}
	info.PreferredMimeType = def.PreferredMimeType
	info.PreferredExtension = def.PreferredExtension
	return true
}

// SetDownscaleHints forwards hints to decoders that support them.
func SetDownscaleHints(c *core.Context, inst *Instance, hints *DownscaleHints) bool {
	def := setFor(c).Get(inst.ID)
	if def == nil {
		c.SetError(core.StatusItemDoesNotExist)
		return false
	}
	if def.SetDownscaleHints == nil {
		return true
	}
	return def.SetDownscaleHints(c, inst, hints)
}

// ReadFrame decodes the single frame into the caller-provided canvas, which
// must already match the (possibly downscaled) frame dimensions.
func ReadFrame(c *core.Context, inst *Instance, canvas *bitmap.ByteBitmap, color *ColorInfo) bool {
	def := setFor(c).Get(inst.ID)
	if def == nil || def.ReadFrame == nil {
		c.SetError(core.StatusItemDoesNotExist)
		return false
	}
	if !def.ReadFrame(c, inst.State, canvas, color) {
		c.AddToCallstack()
		return false
	}
	return true
}

// WriteFrame encodes frame through the instance's encoder.
func WriteFrame(c *core.Context, inst *Instance, frame *bitmap.ByteBitmap, hints *EncoderHints) bool {
	def := setFor(c).Get(inst.ID)
	if def == nil || def.WriteFrame == nil {
		c.SetError(core.StatusItemDoesNotExist)
		return false
	}
	if !def.WriteFrame(c, inst.State, frame, hints) {
		c.AddToCallstack()
		return false
	}
	return true
}
