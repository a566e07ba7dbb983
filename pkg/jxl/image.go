package jxl

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
)

const (
	codestreamMagic = "\xff\x0a"
	containerMagic  = "\x00\x00\x00\x0cJXL \x0d\x0a\x87\x0a"
)

func init() {
	image.RegisterFormat("jxl", codestreamMagic, Decode, DecodeConfig)
	image.RegisterFormat("jxl", containerMagic, Decode, DecodeConfig)
}

// imageFormat picks the output layout DecodeImage uses for info. Gray images
// without alpha stay single channel, everything else is decoded as RGBA.
// Deeper than 8 bits becomes big endian 16 bit to match image.Gray16 and image.NRGBA64.
func imageFormat(info BasicInfo) PixelFormat {
	f := PixelFormat{Channels: 4, Type: Uint8, Endianness: BigEndian}
	if info.NumColorChannels == 1 && info.AlphaBits == 0 {
		f.Channels = 1
	}
	if info.BitsPerSample > 8 {
		f.Type = Uint16
	}
	return f
}

func colorModel(f PixelFormat) color.Model {
	switch {
	case f.Channels == 1 && f.Type == Uint16:
		return color.Gray16Model
	case f.Channels == 1:
		return color.GrayModel
	case f.Type == Uint16:
		return color.NRGBA64Model
	default:
		return color.NRGBAModel
	}
}

// DecodeImage decodes data into a standard library image, choosing the pixel
// format from the image header instead of the decoder's configured format.
// Alpha is always unpremultiplied since NRGBA holds straight alpha.
func (d *Decoder) DecodeImage(data []byte) (image.Image, error) {
	if err := d.enter("DecodeImage"); err != nil {
		return nil, err
	}
	defer d.leave()
	defer func(prev bool) { d.unpremultiply = prev }(d.unpremultiply)
	d.unpremultiply = true

	info, err := d.info(data)
	if err != nil {
		return nil, err
	}
	img, err := d.decode(data, imageFormat(info))
	if err != nil {
		return nil, err
	}
	return toImage(img), nil
}

func toImage(img *Image) image.Image {
	r := image.Rect(0, 0, img.Width, img.Height)
	f := img.Format
	switch {
	case f.Channels == 1 && f.Type == Uint16:
		return &image.Gray16{Pix: img.Pix, Stride: img.Stride, Rect: r}
	case f.Channels == 1:
		return &image.Gray{Pix: img.Pix, Stride: img.Stride, Rect: r}
	case f.Type == Uint16:
		return &image.NRGBA64{Pix: img.Pix, Stride: img.Stride, Rect: r}
	default:
		return &image.NRGBA{Pix: img.Pix, Stride: img.Stride, Rect: r}
	}
}

// EncodeImage encodes m, choosing the pixel format from its concrete type.
// Types other than Gray, Gray16, NRGBA and NRGBA64 are converted to NRGBA first.
func (e *Encoder) EncodeImage(m image.Image) ([]byte, error) {
	pix, w, h, f := fromImage(m)
	if err := e.enter("EncodeImage"); err != nil {
		return nil, err
	}
	defer e.leave()
	return e.encode(pix, w, h, f)
}

func fromImage(m image.Image) (pix []byte, w, h int, f PixelFormat) {
	b := m.Bounds()
	w, h = b.Dx(), b.Dy()
	switch m := m.(type) {
	case *image.Gray:
		f = PixelFormat{Channels: 1, Type: Uint8}
		return packRows(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, w, h, 1), w, h, f
	case *image.Gray16:
		f = PixelFormat{Channels: 1, Type: Uint16, Endianness: BigEndian}
		return packRows(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, w, h, 2), w, h, f
	case *image.NRGBA:
		f = PixelFormat{Channels: 4, Type: Uint8}
		return packRows(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, w, h, 4), w, h, f
	case *image.NRGBA64:
		f = PixelFormat{Channels: 4, Type: Uint16, Endianness: BigEndian}
		return packRows(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, w, h, 8), w, h, f
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, m, b.Min, draw.Src)
	return dst.Pix, w, h, PixelFormat{Channels: 4, Type: Uint8}
}

// packRows drops the stride padding of sub images
func packRows(pix []byte, stride, w, h, pixelSize int) []byte {
	row := w * pixelSize
	if stride == row || h <= 1 {
		if h <= 0 {
			return nil
		}
		return pix[:row*h]
	}
	out := make([]byte, 0, row*h)
	for y := 0; y < h; y++ {
		out = append(out, pix[y*stride:y*stride+row]...)
	}
	return out
}

// Decode reads a JPEG XL image from r. It is registered with image.Decode.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read jxl: %w", err)
	}
	d, err := NewDecoderBuilder().Build()
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.DecodeImage(data)
}

// DecodeConfig reads only the header of a JPEG XL image from r
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("read jxl: %w", err)
	}
	d, err := NewDecoderBuilder().Build()
	if err != nil {
		return image.Config{}, err
	}
	defer d.Close()
	info, err := d.Info(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: colorModel(imageFormat(info)),
		Width:      info.Width,
		Height:     info.Height,
	}, nil
}

// Encode writes m to w as JPEG XL. A nil s uses DefaultEncoderSettings.
func Encode(w io.Writer, m image.Image, s *EncoderSettings) error {
	b := NewEncoderBuilder()
	if s != nil {
		b.Settings(*s)
	}
	e, err := b.Build()
	if err != nil {
		return err
	}
	defer e.Close()
	data, err := e.EncodeImage(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
