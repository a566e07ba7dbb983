package jxl

import (
	"log/slog"
	"sync/atomic"

	"github.com/jpfielding/jxl.go/pkg/jxl/parallel"
)

// handleOptions are shared by decoder and encoder builders
type handleOptions struct {
	format  PixelFormat
	memory  MemoryManager
	runner  ParallelRunner
	native  NativeRunner
	threads int
	log     *slog.Logger
}

func defaultHandleOptions() handleOptions {
	return handleOptions{format: DefaultPixelFormat()}
}

func (o *handleOptions) validate() error {
	if err := o.format.Validate(); err != nil {
		return err
	}
	if o.runner != nil && o.native != nil {
		return &ConfigError{Field: "parallel runner", Value: "both go and native runners set", Err: ErrConfiguration}
	}
	if o.threads < 0 {
		return &ConfigError{Field: "threads", Value: o.threads, Err: ErrConfiguration}
	}
	return nil
}

// resolvedRunner returns the configured runner, or a goroutine pool when only a
// thread count was requested
func (o *handleOptions) resolvedRunner() ParallelRunner {
	if o.runner == nil && o.native == nil && o.threads > 0 {
		return parallel.NewPoolRunner(o.threads)
	}
	return o.runner
}

func (o *handleOptions) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

// DecoderBuilder configures a Decoder. The zero value is not usable, start from
// NewDecoderBuilder.
type DecoderBuilder struct {
	opts            handleOptions
	keepOrientation bool
	unpremultiply   bool
}

// NewDecoderBuilder starts from 8-bit RGBA output without a parallel runner
func NewDecoderBuilder() *DecoderBuilder {
	return &DecoderBuilder{opts: defaultHandleOptions()}
}

func (b *DecoderBuilder) Channels(n int) *DecoderBuilder {
	b.opts.format.Channels = n
	return b
}

func (b *DecoderBuilder) DataType(t DataType) *DecoderBuilder {
	b.opts.format.Type = t
	return b
}

func (b *DecoderBuilder) Endian(e Endianness) *DecoderBuilder {
	b.opts.format.Endianness = e
	return b
}

func (b *DecoderBuilder) Align(n int) *DecoderBuilder {
	b.opts.format.Align = n
	return b
}

// PixelFormat replaces every pixel format option at once
func (b *DecoderBuilder) PixelFormat(f PixelFormat) *DecoderBuilder {
	b.opts.format = f
	return b
}

// MemoryManager routes libjxl allocations for the decoder through mm
func (b *DecoderBuilder) MemoryManager(mm MemoryManager) *DecoderBuilder {
	b.opts.memory = mm
	return b
}

// ParallelRunner fans decoding work out through r
func (b *DecoderBuilder) ParallelRunner(r ParallelRunner) *DecoderBuilder {
	b.opts.runner = r
	return b
}

// NativeRunner hands a C runner such as parallel.ThreadsRunner to libjxl
func (b *DecoderBuilder) NativeRunner(r NativeRunner) *DecoderBuilder {
	b.opts.native = r
	return b
}

// Threads creates a goroutine pool runner of n workers when no runner is set
func (b *DecoderBuilder) Threads(n int) *DecoderBuilder {
	b.opts.threads = n
	return b
}

func (b *DecoderBuilder) Logger(l *slog.Logger) *DecoderBuilder {
	b.opts.log = l
	return b
}

// KeepOrientation returns pixels as stored instead of applying the EXIF style orientation
func (b *DecoderBuilder) KeepOrientation(keep bool) *DecoderBuilder {
	b.keepOrientation = keep
	return b
}

// UnpremultiplyAlpha converts premultiplied alpha images to straight alpha
func (b *DecoderBuilder) UnpremultiplyAlpha(on bool) *DecoderBuilder {
	b.unpremultiply = on
	return b
}

// EncoderBuilder configures an Encoder. Start from NewEncoderBuilder.
type EncoderBuilder struct {
	opts     handleOptions
	settings EncoderSettings
	quality  *float32
}

// NewEncoderBuilder starts from 8-bit RGBA input and libjxl's default settings
func NewEncoderBuilder() *EncoderBuilder {
	return &EncoderBuilder{opts: defaultHandleOptions(), settings: DefaultEncoderSettings()}
}

func (b *EncoderBuilder) Channels(n int) *EncoderBuilder {
	b.opts.format.Channels = n
	return b
}

func (b *EncoderBuilder) DataType(t DataType) *EncoderBuilder {
	b.opts.format.Type = t
	return b
}

func (b *EncoderBuilder) Endian(e Endianness) *EncoderBuilder {
	b.opts.format.Endianness = e
	return b
}

func (b *EncoderBuilder) Align(n int) *EncoderBuilder {
	b.opts.format.Align = n
	return b
}

func (b *EncoderBuilder) PixelFormat(f PixelFormat) *EncoderBuilder {
	b.opts.format = f
	return b
}

func (b *EncoderBuilder) MemoryManager(mm MemoryManager) *EncoderBuilder {
	b.opts.memory = mm
	return b
}

func (b *EncoderBuilder) ParallelRunner(r ParallelRunner) *EncoderBuilder {
	b.opts.runner = r
	return b
}

func (b *EncoderBuilder) NativeRunner(r NativeRunner) *EncoderBuilder {
	b.opts.native = r
	return b
}

func (b *EncoderBuilder) Threads(n int) *EncoderBuilder {
	b.opts.threads = n
	return b
}

func (b *EncoderBuilder) Logger(l *slog.Logger) *EncoderBuilder {
	b.opts.log = l
	return b
}

func (b *EncoderBuilder) Lossless(on bool) *EncoderBuilder {
	b.settings.Lossless = on
	return b
}

func (b *EncoderBuilder) Speed(s Speed) *EncoderBuilder {
	b.settings.Speed = s
	return b
}

// Distance sets the butteraugli distance and overrides Quality
func (b *EncoderBuilder) Distance(d float32) *EncoderBuilder {
	b.settings.Distance = d
	b.quality = nil
	return b
}

// Quality maps a 0-100 quality to a distance using libjxl's mapping
func (b *EncoderBuilder) Quality(q float32) *EncoderBuilder {
	b.quality = &q
	return b
}

func (b *EncoderBuilder) ColorEncoding(c ColorEncoding) *EncoderBuilder {
	b.settings.Color = &c
	return b
}

func (b *EncoderBuilder) UseContainer(on bool) *EncoderBuilder {
	b.settings.UseContainer = on
	return b
}

func (b *EncoderBuilder) DecodingSpeed(tier int) *EncoderBuilder {
	b.settings.DecodingSpeed = tier
	return b
}

func (b *EncoderBuilder) PremultipliedAlpha(on bool) *EncoderBuilder {
	b.settings.PremultipliedAlpha = on
	return b
}

// Settings replaces all frame settings at once
func (b *EncoderBuilder) Settings(s EncoderSettings) *EncoderBuilder {
	b.settings = s
	b.quality = nil
	return b
}

// guard serializes calls on a handle and rejects use after Close
type guard struct {
	busy   atomic.Bool
	closed atomic.Bool
}

func (g *guard) enter(op string) error {
	if g.closed.Load() {
		return stateError(op, "handle is closed")
	}
	if !g.busy.CompareAndSwap(false, true) {
		return stateError(op, "another call is in progress")
	}
	// a Close may have finished between the check and the swap
	if g.closed.Load() {
		g.leave()
		return stateError(op, "handle is closed")
	}
	return nil
}

func (g *guard) leave() {
	g.busy.Store(false)
}
