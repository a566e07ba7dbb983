package jxl

/*
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/google/uuid"
)

// Decoder owns a native JxlDecoder together with its memory and runner bridges.
//
// A Decoder is not safe for concurrent use; overlapping calls fail with ErrState.
// Separate decoders are independent. Close releases the native resources.
type Decoder struct {
	guard
	id  string
	log *slog.Logger

	format          PixelFormat
	keepOrientation bool
	unpremultiply   bool

	dec    *C.JxlDecoder
	mem    *memoryBridge
	runner *runnerWiring
}

// Build validates the options and creates the native decoder
func (b *DecoderBuilder) Build() (*Decoder, error) {
	if err := b.opts.validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		id:              uuid.NewString(),
		format:          b.opts.format,
		keepOrientation: b.keepOrientation,
		unpremultiply:   b.unpremultiply,
	}
	d.log = b.opts.logger().With("handle", d.id, "codec", "decoder")

	if b.opts.memory != nil {
		mem, err := newMemoryBridge(b.opts.memory, d.log)
		if err != nil {
			return nil, err
		}
		d.mem = mem
	}
	runner, err := newRunnerWiring(b.opts.resolvedRunner(), b.opts.native, d.log)
	if err != nil {
		d.mem.release()
		return nil, err
	}
	d.runner = runner

	d.dec = C.JxlDecoderCreate(d.mem.cManager())
	if d.dec == nil {
		failed := d.mem.takeFailure()
		d.teardown()
		if failed {
			return nil, fmt.Errorf("JxlDecoderCreate: %w", ErrAllocation)
		}
		return nil, &ConfigError{Field: "decoder", Value: "JxlDecoderCreate failed", Err: ErrConfiguration}
	}
	if err := d.configure(C.JXL_DEC_BASIC_INFO | C.JXL_DEC_COLOR_ENCODING | C.JXL_DEC_FULL_IMAGE); err != nil {
		d.teardown()
		return nil, &ConfigError{Field: "decoder", Value: err.Error(), Err: ErrConfiguration}
	}
	runtime.SetFinalizer(d, (*Decoder).Close)
	d.log.Debug("decoder created", "format", d.format.String())
	return d, nil
}

// PixelFormat is the output format of Decode
func (d *Decoder) PixelFormat() PixelFormat {
	return d.format
}

// configure resets the native decoder and applies every setting. JxlDecoderReset
// drops the runner so it is attached again each time.
func (d *Decoder) configure(events C.int) error {
	C.JxlDecoderReset(d.dec)
	if st := d.runner.attachDecoder(d.dec); st != C.JXL_DEC_SUCCESS {
		return decoderError("JxlDecoderSetParallelRunner", st, d.mem)
	}
	if st := C.JxlDecoderSetKeepOrientation(d.dec, cBool(d.keepOrientation)); st != C.JXL_DEC_SUCCESS {
		return decoderError("JxlDecoderSetKeepOrientation", st, d.mem)
	}
	if st := C.JxlDecoderSetUnpremultiplyAlpha(d.dec, cBool(d.unpremultiply)); st != C.JXL_DEC_SUCCESS {
		return decoderError("JxlDecoderSetUnpremultiplyAlpha", st, d.mem)
	}
	if st := C.JxlDecoderSubscribeEvents(d.dec, events); st != C.JXL_DEC_SUCCESS {
		return decoderError("JxlDecoderSubscribeEvents", st, d.mem)
	}
	return nil
}

// SetKeepOrientation changes the orientation handling of later Decode calls
func (d *Decoder) SetKeepOrientation(keep bool) error {
	if err := d.enter("SetKeepOrientation"); err != nil {
		return err
	}
	defer d.leave()
	d.keepOrientation = keep
	return nil
}

// SetUnpremultiplyAlpha changes the alpha handling of later Decode calls
func (d *Decoder) SetUnpremultiplyAlpha(on bool) error {
	if err := d.enter("SetUnpremultiplyAlpha"); err != nil {
		return err
	}
	defer d.leave()
	d.unpremultiply = on
	return nil
}

// SetPixelFormat changes the output format of later Decode calls
func (d *Decoder) SetPixelFormat(f PixelFormat) error {
	if err := d.enter("SetPixelFormat"); err != nil {
		return err
	}
	defer d.leave()
	if err := f.Validate(); err != nil {
		return err
	}
	d.format = f
	return nil
}

// Decode decodes the first frame of data into the decoder's pixel format
func (d *Decoder) Decode(data []byte) (*Image, error) {
	if err := d.enter("Decode"); err != nil {
		return nil, err
	}
	defer d.leave()
	return d.decode(data, d.format)
}

// Info reads only the image header
func (d *Decoder) Info(data []byte) (BasicInfo, error) {
	if err := d.enter("Info"); err != nil {
		return BasicInfo{}, err
	}
	defer d.leave()
	return d.info(data)
}

func (d *Decoder) info(data []byte) (BasicInfo, error) {
	d.mem.takeFailure()
	if err := d.configure(C.JXL_DEC_BASIC_INFO); err != nil {
		return BasicInfo{}, err
	}
	var pinner runtime.Pinner
	defer pinner.Unpin()
	if err := d.setInput(&pinner, data); err != nil {
		return BasicInfo{}, err
	}
	defer C.JxlDecoderReleaseInput(d.dec)

	switch st := C.JxlDecoderProcessInput(d.dec); st {
	case C.JXL_DEC_BASIC_INFO:
		return d.basicInfo()
	case C.JXL_DEC_SUCCESS:
		return BasicInfo{}, &CodecError{Op: "JxlDecoderProcessInput", Status: int(st), Reason: "stream ended before basic info"}
	default:
		return BasicInfo{}, decoderError("JxlDecoderProcessInput", st, d.mem)
	}
}

func (d *Decoder) setInput(pinner *runtime.Pinner, data []byte) error {
	if len(data) == 0 {
		return &CodecError{Op: "JxlDecoderSetInput", Status: C.JXL_DEC_NEED_MORE_INPUT, Reason: "empty input"}
	}
	// libjxl reads the input during later ProcessInput calls
	pinner.Pin(&data[0])
	st := C.JxlDecoderSetInput(d.dec, (*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)))
	if st != C.JXL_DEC_SUCCESS {
		return decoderError("JxlDecoderSetInput", st, d.mem)
	}
	C.JxlDecoderCloseInput(d.dec)
	return nil
}

func (d *Decoder) decode(data []byte, format PixelFormat) (*Image, error) {
	d.mem.takeFailure()
	if err := d.configure(C.JXL_DEC_BASIC_INFO | C.JXL_DEC_COLOR_ENCODING | C.JXL_DEC_FULL_IMAGE); err != nil {
		return nil, err
	}
	var pinner runtime.Pinner
	defer pinner.Unpin()
	if err := d.setInput(&pinner, data); err != nil {
		return nil, err
	}
	defer C.JxlDecoderReleaseInput(d.dec)

	img := &Image{Format: format}
	pf := cPixelFormat(format)
	for {
		st := C.JxlDecoderProcessInput(d.dec)
		switch st {
		case C.JXL_DEC_BASIC_INFO:
			info, err := d.basicInfo()
			if err != nil {
				return nil, err
			}
			// basic info is already oriented unless orientation is kept
			img.Info = info
			img.Width, img.Height = info.Width, info.Height
			img.Stride = format.Stride(img.Width)
		case C.JXL_DEC_COLOR_ENCODING:
			img.Color = d.colorProfile()
		case C.JXL_DEC_NEED_IMAGE_OUT_BUFFER:
			var size C.size_t
			if st := C.JxlDecoderImageOutBufferSize(d.dec, &pf, &size); st != C.JXL_DEC_SUCCESS {
				return nil, decoderError("JxlDecoderImageOutBufferSize", st, d.mem)
			}
			img.Pix = make([]byte, int(size))
			// written by ProcessInput after this call returns
			pinner.Pin(&img.Pix[0])
			st := C.JxlDecoderSetImageOutBuffer(d.dec, &pf, unsafe.Pointer(&img.Pix[0]), size)
			if st != C.JXL_DEC_SUCCESS {
				return nil, decoderError("JxlDecoderSetImageOutBuffer", st, d.mem)
			}
		case C.JXL_DEC_FULL_IMAGE, C.JXL_DEC_SUCCESS:
			if img.Pix == nil {
				return nil, &CodecError{Op: "JxlDecoderProcessInput", Status: int(st), Reason: "stream ended without a frame"}
			}
			d.log.Debug("decoded", "width", img.Width, "height", img.Height, "bytes", len(img.Pix))
			return img, nil
		default:
			return nil, decoderError("JxlDecoderProcessInput", st, d.mem)
		}
	}
}

func (d *Decoder) basicInfo() (BasicInfo, error) {
	var bi C.JxlBasicInfo
	if st := C.JxlDecoderGetBasicInfo(d.dec, &bi); st != C.JXL_DEC_SUCCESS {
		return BasicInfo{}, decoderError("JxlDecoderGetBasicInfo", st, d.mem)
	}
	return BasicInfo{
		Width:                 int(bi.xsize),
		Height:                int(bi.ysize),
		BitsPerSample:         int(bi.bits_per_sample),
		ExponentBitsPerSample: int(bi.exponent_bits_per_sample),
		NumColorChannels:      int(bi.num_color_channels),
		NumExtraChannels:      int(bi.num_extra_channels),
		AlphaBits:             int(bi.alpha_bits),
		AlphaPremultiplied:    bi.alpha_premultiplied == C.JXL_TRUE,
		HaveAnimation:         bi.have_animation == C.JXL_TRUE,
		HavePreview:           bi.have_preview == C.JXL_TRUE,
		UsesOriginalProfile:   bi.uses_original_profile == C.JXL_TRUE,
		Orientation:           int(bi.orientation),
		IntensityTarget:       float32(bi.intensity_target),
	}, nil
}

// colorProfile never fails the decode; a profile that cannot be read is left empty
func (d *Decoder) colorProfile() ColorProfile {
	var cp ColorProfile
	var ce C.JxlColorEncoding
	if C.JxlDecoderGetColorAsEncodedProfile(d.dec, C.JXL_COLOR_PROFILE_TARGET_DATA, &ce) == C.JXL_DEC_SUCCESS {
		cp.Encoding = predefinedEncoding(&ce)
	}
	var size C.size_t
	if C.JxlDecoderGetICCProfileSize(d.dec, C.JXL_COLOR_PROFILE_TARGET_DATA, &size) != C.JXL_DEC_SUCCESS || size == 0 {
		return cp
	}
	icc := make([]byte, int(size))
	if C.JxlDecoderGetColorAsICCProfile(d.dec, C.JXL_COLOR_PROFILE_TARGET_DATA, (*C.uint8_t)(unsafe.Pointer(&icc[0])), size) == C.JXL_DEC_SUCCESS {
		cp.ICC = icc
	} else {
		d.log.Debug("icc profile unavailable", "size", int(size))
	}
	return cp
}

func predefinedEncoding(ce *C.JxlColorEncoding) *ColorEncoding {
	if ce.white_point != C.JXL_WHITE_POINT_D65 {
		return nil
	}
	var enc ColorEncoding
	switch ce.color_space {
	case C.JXL_COLOR_SPACE_RGB:
		if ce.primaries != C.JXL_PRIMARIES_SRGB {
			return nil
		}
		enc = SRGB
	case C.JXL_COLOR_SPACE_GRAY:
		enc = SRGBLuma
	default:
		return nil
	}
	switch ce.transfer_function {
	case C.JXL_TRANSFER_FUNCTION_SRGB:
	case C.JXL_TRANSFER_FUNCTION_LINEAR:
		enc++
	default:
		return nil
	}
	return &enc
}

// Close destroys the native decoder, then the runner bridge, then the memory bridge
func (d *Decoder) Close() error {
	if d.closed.Load() {
		return nil
	}
	if err := d.enter("Close"); err != nil {
		return err
	}
	defer d.leave()
	d.closed.Store(true)
	runtime.SetFinalizer(d, nil)
	d.teardown()
	d.log.Debug("decoder closed")
	return nil
}

func (d *Decoder) teardown() {
	if d.dec != nil {
		C.JxlDecoderDestroy(d.dec)
		d.dec = nil
	}
	d.runner.release()
	d.runner = nil
	d.mem.release()
	d.mem = nil
}

func (d *Decoder) String() string {
	return fmt.Sprintf("jxl.Decoder(%s, %s)", d.id, d.format)
}
