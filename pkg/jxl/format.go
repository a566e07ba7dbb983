package jxl

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// DataType is the storage type of a single pixel component
type DataType int

const (
	Uint8 DataType = iota
	Uint16
	Float32
)

// Size returns the number of bytes of one component
func (t DataType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Float32:
		return "f32"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType accepts the names produced by String
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "u8", "uint8":
		return Uint8, nil
	case "u16", "uint16":
		return Uint16, nil
	case "f32", "float32":
		return Float32, nil
	}
	return 0, &ConfigError{Field: "data type", Value: s, Err: ErrConfiguration}
}

// Endianness of multi-byte components in pixel buffers
type Endianness int

const (
	NativeEndian Endianness = iota
	LittleEndian
	BigEndian
)

func (e Endianness) String() string {
	switch e {
	case NativeEndian:
		return "native"
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("Endianness(%d)", int(e))
	}
}

// ParseEndianness accepts the names produced by String
func ParseEndianness(s string) (Endianness, error) {
	switch s {
	case "native", "":
		return NativeEndian, nil
	case "little", "le":
		return LittleEndian, nil
	case "big", "be":
		return BigEndian, nil
	}
	return 0, &ConfigError{Field: "endianness", Value: s, Err: ErrConfiguration}
}

// ByteOrder resolves NativeEndian to the host order
func (e Endianness) ByteOrder() binary.ByteOrder {
	switch e {
	case LittleEndian:
		return binary.LittleEndian
	case BigEndian:
		return binary.BigEndian
	default:
		return binary.NativeEndian
	}
}

// PixelFormat describes the layout of an interleaved pixel buffer
type PixelFormat struct {
	// Channels is 1 (gray), 3 (RGB) or 4 (RGBA)
	Channels int
	Type     DataType
	// Endianness applies to Uint16 and Float32 components
	Endianness Endianness
	// Align is the row alignment in bytes, 0 for tightly packed rows
	Align int
}

// DefaultPixelFormat is 8-bit RGBA in native order with packed rows
func DefaultPixelFormat() PixelFormat {
	return PixelFormat{Channels: 4, Type: Uint8, Endianness: NativeEndian}
}

// Validate checks the channel count, data type and alignment
func (f PixelFormat) Validate() error {
	switch f.Channels {
	case 1, 3, 4:
	default:
		return &ConfigError{Field: "channels", Value: f.Channels, Err: ErrConfiguration}
	}
	if f.Type.Size() == 0 {
		return &ConfigError{Field: "data type", Value: f.Type, Err: ErrConfiguration}
	}
	switch f.Endianness {
	case NativeEndian, LittleEndian, BigEndian:
	default:
		return &ConfigError{Field: "endianness", Value: f.Endianness, Err: ErrConfiguration}
	}
	if f.Align != 0 {
		if f.Align < f.Type.Size() || bits.OnesCount(uint(f.Align)) != 1 {
			return &ConfigError{Field: "align", Value: f.Align, Err: ErrConfiguration}
		}
	}
	return nil
}

// HasAlpha reports whether the last channel is alpha
func (f PixelFormat) HasAlpha() bool {
	return f.Channels == 4
}

// ColorChannels is the channel count without alpha
func (f PixelFormat) ColorChannels() int {
	if f.HasAlpha() {
		return f.Channels - 1
	}
	return f.Channels
}

// PixelSize is the size in bytes of one pixel
func (f PixelFormat) PixelSize() int {
	return f.Channels * f.Type.Size()
}

// Stride returns the number of bytes per row, rounded up to Align
func (f PixelFormat) Stride(width int) int {
	row := width * f.PixelSize()
	if f.Align > 1 {
		row = (row + f.Align - 1) / f.Align * f.Align
	}
	return row
}

// BufferSize is the size of a width x height buffer; the last row is not padded
func (f PixelFormat) BufferSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return f.Stride(width)*(height-1) + width*f.PixelSize()
}

func (f PixelFormat) String() string {
	return fmt.Sprintf("%dx%s/%s/align=%d", f.Channels, f.Type, f.Endianness, f.Align)
}

// Image is a decoded frame. The caller owns Pix.
type Image struct {
	Pix    []byte
	Width  int
	Height int
	// Stride is the distance in bytes between rows of Pix
	Stride int
	Format PixelFormat
	Info   BasicInfo
	Color  ColorProfile
}

// Row returns the packed samples of row y without alignment padding
func (m *Image) Row(y int) []byte {
	off := y * m.Stride
	return m.Pix[off : off+m.Width*m.Format.PixelSize()]
}

// Packed returns the samples with any row padding removed
func (m *Image) Packed() []byte {
	row := m.Width * m.Format.PixelSize()
	if m.Stride == row {
		return m.Pix[:row*m.Height]
	}
	out := make([]byte, 0, row*m.Height)
	for y := 0; y < m.Height; y++ {
		out = append(out, m.Row(y)...)
	}
	return out
}

// Uint16s returns the samples of a Uint16 image in host order
func (m *Image) Uint16s() ([]uint16, error) {
	if m.Format.Type != Uint16 {
		return nil, fmt.Errorf("image holds %s samples: %w", m.Format.Type, ErrConfiguration)
	}
	bo := m.Format.Endianness.ByteOrder()
	packed := m.Packed()
	out := make([]uint16, len(packed)/2)
	for i := range out {
		out[i] = bo.Uint16(packed[i*2:])
	}
	return out, nil
}

// Float32s returns the samples of a Float32 image in host order
func (m *Image) Float32s() ([]float32, error) {
	if m.Format.Type != Float32 {
		return nil, fmt.Errorf("image holds %s samples: %w", m.Format.Type, ErrConfiguration)
	}
	bo := m.Format.Endianness.ByteOrder()
	packed := m.Packed()
	out := make([]float32, len(packed)/4)
	for i := range out {
		out[i] = math.Float32frombits(bo.Uint32(packed[i*4:]))
	}
	return out, nil
}

// PutUint16s serializes samples in the byte order of f
func (f PixelFormat) PutUint16s(samples []uint16) []byte {
	bo := f.Endianness.ByteOrder()
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		bo.PutUint16(out[i*2:], v)
	}
	return out
}

// PutFloat32s serializes samples in the byte order of f
func (f PixelFormat) PutFloat32s(samples []float32) []byte {
	bo := f.Endianness.ByteOrder()
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		bo.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
