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

const initialOutputSize = 64 << 10

// Encoder owns a native JxlEncoder together with its memory and runner bridges.
//
// Settings may be changed between calls; each setter is checked against libjxl
// immediately. An Encoder is not safe for concurrent use.
type Encoder struct {
	guard
	id  string
	log *slog.Logger

	format   PixelFormat
	settings EncoderSettings

	enc    *C.JxlEncoder
	fs     *C.JxlEncoderFrameSettings
	mem    *memoryBridge
	runner *runnerWiring
}

// Build validates the options, creates the native encoder and applies the settings
func (b *EncoderBuilder) Build() (*Encoder, error) {
	if err := b.opts.validate(); err != nil {
		return nil, err
	}
	settings := b.settings
	if b.quality != nil {
		d, err := distanceFromQuality(*b.quality)
		if err != nil {
			return nil, err
		}
		settings.Distance = d
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		id:       uuid.NewString(),
		format:   b.opts.format,
		settings: settings,
	}
	e.log = b.opts.logger().With("handle", e.id, "codec", "encoder")

	if b.opts.memory != nil {
		mem, err := newMemoryBridge(b.opts.memory, e.log)
		if err != nil {
			return nil, err
		}
		e.mem = mem
	}
	runner, err := newRunnerWiring(b.opts.resolvedRunner(), b.opts.native, e.log)
	if err != nil {
		e.mem.release()
		return nil, err
	}
	e.runner = runner

	e.enc = C.JxlEncoderCreate(e.mem.cManager())
	if e.enc == nil {
		failed := e.mem.takeFailure()
		e.teardown()
		if failed {
			return nil, fmt.Errorf("JxlEncoderCreate: %w", ErrAllocation)
		}
		return nil, &ConfigError{Field: "encoder", Value: "JxlEncoderCreate failed", Err: ErrConfiguration}
	}
	if err := e.configure(); err != nil {
		e.teardown()
		return nil, err
	}
	runtime.SetFinalizer(e, (*Encoder).Close)
	e.log.Debug("encoder created", "format", e.format.String(), "speed", e.settings.Speed.String(),
		"lossless", e.settings.Lossless, "distance", e.settings.Distance)
	return e, nil
}

func distanceFromQuality(q float32) (float32, error) {
	if q < 0 || q > 100 {
		return 0, &ConfigError{Field: "quality", Value: q, Err: ErrConfiguration}
	}
	return float32(C.JxlEncoderDistanceFromQuality(C.float(q))), nil
}

// configure resets the native encoder, attaches the runner and creates frame
// settings carrying e.settings. A rejected setting is a configuration error.
func (e *Encoder) configure() error {
	C.JxlEncoderReset(e.enc)
	e.fs = nil
	if st := e.runner.attachEncoder(e.enc); st != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "parallel runner", Value: encoderError("JxlEncoderSetParallelRunner", e.enc, e.mem), Err: ErrConfiguration}
	}
	if st := C.JxlEncoderUseContainer(e.enc, cBool(e.settings.UseContainer)); st != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "container", Value: e.settings.UseContainer, Err: ErrConfiguration}
	}
	e.fs = C.JxlEncoderFrameSettingsCreate(e.enc, nil)
	if e.fs == nil {
		if e.mem.takeFailure() {
			return fmt.Errorf("JxlEncoderFrameSettingsCreate: %w", ErrAllocation)
		}
		return &ConfigError{Field: "frame settings", Value: encoderError("JxlEncoderFrameSettingsCreate", e.enc, e.mem), Err: ErrConfiguration}
	}
	s := e.settings
	if err := e.applyLossless(s.Lossless); err != nil {
		return err
	}
	if err := e.applySpeed(s.Speed); err != nil {
		return err
	}
	if !s.Lossless {
		if err := e.applyDistance(s.Distance); err != nil {
			return err
		}
	}
	return e.applyDecodingSpeed(s.DecodingSpeed)
}

func (e *Encoder) applyLossless(on bool) error {
	if C.JxlEncoderSetFrameLossless(e.fs, cBool(on)) != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "lossless", Value: on, Err: ErrConfiguration}
	}
	return nil
}

func (e *Encoder) applySpeed(s Speed) error {
	if s < Lightning || s > Tortoise {
		return &ConfigError{Field: "speed", Value: s, Err: ErrConfiguration}
	}
	if C.JxlEncoderFrameSettingsSetOption(e.fs, C.JXL_ENC_FRAME_SETTING_EFFORT, C.int64_t(s)) != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "speed", Value: s, Err: ErrConfiguration}
	}
	return nil
}

func (e *Encoder) applyDistance(d float32) error {
	if C.JxlEncoderSetFrameDistance(e.fs, C.float(d)) != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "distance", Value: d, Err: ErrConfiguration}
	}
	return nil
}

func (e *Encoder) applyDecodingSpeed(tier int) error {
	if C.JxlEncoderFrameSettingsSetOption(e.fs, C.JXL_ENC_FRAME_SETTING_DECODING_SPEED, C.int64_t(tier)) != C.JXL_ENC_SUCCESS {
		return &ConfigError{Field: "decoding speed", Value: tier, Err: ErrConfiguration}
	}
	return nil
}

// Settings returns a copy of the current frame settings
func (e *Encoder) Settings() EncoderSettings {
	return e.settings
}

// PixelFormat is the input format of Encode
func (e *Encoder) PixelFormat() PixelFormat {
	return e.format
}

// set checks apply against a freshly reset encoder carrying the current
// settings and commits on success. The previous call leaves libjxl in a state
// that rejects container and lossless changes.
func (e *Encoder) set(op string, apply func() error, commit func()) error {
	if err := e.enter(op); err != nil {
		return err
	}
	defer e.leave()
	e.mem.takeFailure()
	if err := e.configure(); err != nil {
		return err
	}
	if err := apply(); err != nil {
		return err
	}
	commit()
	return nil
}

func (e *Encoder) SetLossless(on bool) error {
	return e.set("SetLossless",
		func() error { return e.applyLossless(on) },
		func() { e.settings.Lossless = on })
}

func (e *Encoder) SetSpeed(s Speed) error {
	return e.set("SetSpeed",
		func() error { return e.applySpeed(s) },
		func() { e.settings.Speed = s })
}

// SetDistance sets the butteraugli distance, 0 to 25
func (e *Encoder) SetDistance(d float32) error {
	return e.set("SetDistance",
		func() error {
			if d < 0 || d > 25 {
				return &ConfigError{Field: "distance", Value: d, Err: ErrConfiguration}
			}
			return e.applyDistance(d)
		},
		func() { e.settings.Distance = d })
}

// SetQuality maps a 0-100 quality onto a distance
func (e *Encoder) SetQuality(q float32) error {
	var d float32
	return e.set("SetQuality",
		func() error {
			var err error
			if d, err = distanceFromQuality(q); err != nil {
				return err
			}
			return e.applyDistance(d)
		},
		func() { e.settings.Distance = d })
}

func (e *Encoder) SetColorEncoding(c ColorEncoding) error {
	return e.set("SetColorEncoding",
		func() error {
			if c < SRGB || c > LinearSRGBLuma {
				return &ConfigError{Field: "color encoding", Value: c, Err: ErrConfiguration}
			}
			return nil
		},
		func() { e.settings.Color = &c })
}

func (e *Encoder) SetUseContainer(on bool) error {
	return e.set("SetUseContainer",
		func() error {
			if C.JxlEncoderUseContainer(e.enc, cBool(on)) != C.JXL_ENC_SUCCESS {
				return &ConfigError{Field: "container", Value: on, Err: ErrConfiguration}
			}
			return nil
		},
		func() { e.settings.UseContainer = on })
}

func (e *Encoder) SetDecodingSpeed(tier int) error {
	return e.set("SetDecodingSpeed",
		func() error {
			if tier < 0 || tier > 4 {
				return &ConfigError{Field: "decoding speed", Value: tier, Err: ErrConfiguration}
			}
			return e.applyDecodingSpeed(tier)
		},
		func() { e.settings.DecodingSpeed = tier })
}

// Encode compresses a width x height buffer laid out in the encoder's pixel format
func (e *Encoder) Encode(pix []byte, width, height int) ([]byte, error) {
	if err := e.enter("Encode"); err != nil {
		return nil, err
	}
	defer e.leave()
	return e.encode(pix, width, height, e.format)
}

func (e *Encoder) encode(pix []byte, width, height int, format PixelFormat) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, &CodecError{Op: "Encode", Status: C.JXL_ENC_ERR_BAD_INPUT, Reason: fmt.Sprintf("invalid dimensions %dx%d", width, height)}
	}
	if need := format.BufferSize(width, height); len(pix) < need {
		return nil, &CodecError{Op: "Encode", Status: C.JXL_ENC_ERR_BAD_INPUT, Reason: fmt.Sprintf("pixel buffer holds %d bytes, need %d", len(pix), need)}
	}
	e.mem.takeFailure()
	if err := e.configure(); err != nil {
		return nil, err
	}

	var info C.JxlBasicInfo
	C.JxlEncoderInitBasicInfo(&info)
	info.xsize = C.uint32_t(width)
	info.ysize = C.uint32_t(height)
	info.bits_per_sample = C.uint32_t(format.Type.Size() * 8)
	if format.Type == Float32 {
		info.exponent_bits_per_sample = 8
	}
	info.num_color_channels = C.uint32_t(format.ColorChannels())
	if format.HasAlpha() {
		info.num_extra_channels = 1
		info.alpha_bits = info.bits_per_sample
		info.alpha_exponent_bits = info.exponent_bits_per_sample
	}
	info.uses_original_profile = cBool(e.settings.Lossless)
	info.alpha_premultiplied = cBool(e.settings.PremultipliedAlpha && format.HasAlpha())
	if C.JxlEncoderSetBasicInfo(e.enc, &info) != C.JXL_ENC_SUCCESS {
		return nil, encoderError("JxlEncoderSetBasicInfo", e.enc, e.mem)
	}

	color := SRGB
	if format.Type == Float32 {
		color = LinearSRGB
	}
	if e.settings.Color != nil {
		color = *e.settings.Color
	}
	color = color.forChannels(format.ColorChannels())
	var ce C.JxlColorEncoding
	if color.IsLinear() {
		C.JxlColorEncodingSetToLinearSRGB(&ce, cBool(color.IsGray()))
	} else {
		C.JxlColorEncodingSetToSRGB(&ce, cBool(color.IsGray()))
	}
	if C.JxlEncoderSetColorEncoding(e.enc, &ce) != C.JXL_ENC_SUCCESS {
		return nil, encoderError("JxlEncoderSetColorEncoding", e.enc, e.mem)
	}

	pf := cPixelFormat(format)
	st := C.JxlEncoderAddImageFrame(e.fs, &pf, unsafe.Pointer(&pix[0]), C.size_t(len(pix)))
	if st != C.JXL_ENC_SUCCESS {
		return nil, encoderError("JxlEncoderAddImageFrame", e.enc, e.mem)
	}
	C.JxlEncoderCloseInput(e.enc)
	out, err := e.drain()
	if err != nil {
		return nil, err
	}
	e.log.Debug("encoded", "width", width, "height", height, "bytes", len(out))
	return out, nil
}

// EncodeJPEG losslessly recompresses a JPEG file. The original JPEG can be
// reconstructed bit for bit from the result.
func (e *Encoder) EncodeJPEG(jpeg []byte) ([]byte, error) {
	if err := e.enter("EncodeJPEG"); err != nil {
		return nil, err
	}
	defer e.leave()
	if len(jpeg) == 0 {
		return nil, &CodecError{Op: "EncodeJPEG", Status: C.JXL_ENC_ERR_BAD_INPUT, Reason: "empty input"}
	}
	e.mem.takeFailure()
	if err := e.configure(); err != nil {
		return nil, err
	}
	if C.JxlEncoderStoreJPEGMetadata(e.enc, C.JXL_TRUE) != C.JXL_ENC_SUCCESS {
		return nil, encoderError("JxlEncoderStoreJPEGMetadata", e.enc, e.mem)
	}
	st := C.JxlEncoderAddJPEGFrame(e.fs, (*C.uint8_t)(unsafe.Pointer(&jpeg[0])), C.size_t(len(jpeg)))
	if st != C.JXL_ENC_SUCCESS {
		return nil, encoderError("JxlEncoderAddJPEGFrame", e.enc, e.mem)
	}
	C.JxlEncoderCloseInput(e.enc)
	return e.drain()
}

// drain collects the codestream, growing the Go output buffer as libjxl asks
func (e *Encoder) drain() ([]byte, error) {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	out := make([]byte, initialOutputSize)
	pos := 0
	for {
		// next lives in Go memory and points into out, so out must be pinned
		pinner.Pin(&out[0])
		next := (*C.uint8_t)(unsafe.Pointer(&out[pos]))
		avail := C.size_t(len(out) - pos)
		st := C.JxlEncoderProcessOutput(e.enc, &next, &avail)
		pos = len(out) - int(avail)
		switch st {
		case C.JXL_ENC_SUCCESS:
			return out[:pos:pos], nil
		case C.JXL_ENC_NEED_MORE_OUTPUT:
			grown := make([]byte, len(out)*2)
			copy(grown, out[:pos])
			out = grown
		default:
			return nil, encoderError("JxlEncoderProcessOutput", e.enc, e.mem)
		}
	}
}

// Close destroys the native encoder, then the runner bridge, then the memory bridge
func (e *Encoder) Close() error {
	if e.closed.Load() {
		return nil
	}
	if err := e.enter("Close"); err != nil {
		return err
	}
	defer e.leave()
	e.closed.Store(true)
	runtime.SetFinalizer(e, nil)
	e.teardown()
	e.log.Debug("encoder closed")
	return nil
}

func (e *Encoder) teardown() {
	if e.enc != nil {
		// frame settings are owned by the encoder
		C.JxlEncoderDestroy(e.enc)
		e.enc = nil
		e.fs = nil
	}
	e.runner.release()
	e.runner = nil
	e.mem.release()
	e.mem = nil
}

func (e *Encoder) String() string {
	return fmt.Sprintf("jxl.Encoder(%s, %s)", e.id, e.format)
}
