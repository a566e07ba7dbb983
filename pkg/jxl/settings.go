package jxl

import (
	"fmt"
	"strings"
)

// Speed is the encoder effort tier. Faster tiers produce larger files.
type Speed int

const (
	Lightning Speed = iota + 1
	Thunder
	Falcon
	Cheetah
	Hare
	Wombat
	Squirrel
	Kitten
	Tortoise
)

// DefaultSpeed matches libjxl's default effort
const DefaultSpeed = Squirrel

var speedNames = []string{"", "lightning", "thunder", "falcon", "cheetah", "hare", "wombat", "squirrel", "kitten", "tortoise"}

func (s Speed) String() string {
	if s >= Lightning && s <= Tortoise {
		return speedNames[s]
	}
	return fmt.Sprintf("Speed(%d)", int(s))
}

// ParseSpeed accepts a tier name or its effort number
func ParseSpeed(s string) (Speed, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range speedNames {
		if i > 0 && (n == s || fmt.Sprint(i) == s) {
			return Speed(i), nil
		}
	}
	return 0, &ConfigError{Field: "speed", Value: s, Err: ErrConfiguration}
}

// ColorEncoding selects one of the predefined libjxl color encodings
type ColorEncoding int

const (
	SRGB ColorEncoding = iota
	LinearSRGB
	SRGBLuma
	LinearSRGBLuma
)

var colorEncodingNames = []string{"srgb", "linear-srgb", "srgb-luma", "linear-srgb-luma"}

func (c ColorEncoding) String() string {
	if c >= SRGB && c <= LinearSRGBLuma {
		return colorEncodingNames[c]
	}
	return fmt.Sprintf("ColorEncoding(%d)", int(c))
}

// ParseColorEncoding accepts the names produced by String
func ParseColorEncoding(s string) (ColorEncoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range colorEncodingNames {
		if n == s {
			return ColorEncoding(i), nil
		}
	}
	return 0, &ConfigError{Field: "color encoding", Value: s, Err: ErrConfiguration}
}

// IsGray reports whether the encoding is a luma only variant
func (c ColorEncoding) IsGray() bool {
	return c == SRGBLuma || c == LinearSRGBLuma
}

// IsLinear reports a linear transfer function
func (c ColorEncoding) IsLinear() bool {
	return c == LinearSRGB || c == LinearSRGBLuma
}

// forChannels switches between the gray and color variant of c
func (c ColorEncoding) forChannels(colorChannels int) ColorEncoding {
	gray := colorChannels < 3
	switch {
	case gray && !c.IsGray():
		return c + 2
	case !gray && c.IsGray():
		return c - 2
	}
	return c
}

// EncoderSettings are the per frame settings applied before each encode
type EncoderSettings struct {
	Lossless bool
	Speed    Speed
	// Distance is the butteraugli distance, 0 is mathematically lossless, 1 visually lossless
	Distance float32
	// Color overrides the encoding written to the header, nil selects sRGB for integer
	// samples and linear sRGB for float samples
	Color *ColorEncoding
	// UseContainer wraps the codestream in the ISOBMFF container
	UseContainer bool
	// DecodingSpeed trades density for decoder throughput, 0 to 4
	DecodingSpeed int
	// PremultipliedAlpha marks color samples of four channel input as already
	// multiplied by alpha
	PremultipliedAlpha bool
}

// DefaultEncoderSettings mirrors libjxl defaults
func DefaultEncoderSettings() EncoderSettings {
	return EncoderSettings{
		Speed:    DefaultSpeed,
		Distance: 1.0,
	}
}

// Validate applies the static range checks; libjxl has the final word on Build
func (s EncoderSettings) Validate() error {
	if s.Speed < Lightning || s.Speed > Tortoise {
		return &ConfigError{Field: "speed", Value: s.Speed, Err: ErrConfiguration}
	}
	if s.Distance < 0 || s.Distance > 25 {
		return &ConfigError{Field: "distance", Value: s.Distance, Err: ErrConfiguration}
	}
	if s.DecodingSpeed < 0 || s.DecodingSpeed > 4 {
		return &ConfigError{Field: "decoding speed", Value: s.DecodingSpeed, Err: ErrConfiguration}
	}
	if s.Color != nil && (*s.Color < SRGB || *s.Color > LinearSRGBLuma) {
		return &ConfigError{Field: "color encoding", Value: *s.Color, Err: ErrConfiguration}
	}
	return nil
}

// BasicInfo is the image header reported by the decoder
type BasicInfo struct {
	Width                 int
	Height                int
	BitsPerSample         int
	ExponentBitsPerSample int
	NumColorChannels      int
	NumExtraChannels      int
	AlphaBits             int
	AlphaPremultiplied    bool
	HaveAnimation         bool
	HavePreview           bool
	UsesOriginalProfile   bool
	Orientation           int
	IntensityTarget       float32
}

// ColorProfile is the color space of a decoded image. Encoding is set when the
// profile maps to one of the predefined encodings, ICC always carries the profile.
type ColorProfile struct {
	Encoding *ColorEncoding
	ICC      []byte
}
