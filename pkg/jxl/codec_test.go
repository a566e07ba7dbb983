package jxl_test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/jpfielding/jxl.go/pkg/jxl"
	"github.com/jpfielding/jxl.go/pkg/jxl/memory"
	"github.com/jpfielding/jxl.go/pkg/jxl/parallel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient fills a packed buffer of f with a deterministic pattern
func gradient(f jxl.PixelFormat, w, h int) []byte {
	n := w * h * f.Channels
	switch f.Type {
	case jxl.Uint16:
		s := make([]uint16, n)
		for i := range s {
			s[i] = uint16((i * 977) % 65536)
		}
		return f.PutUint16s(s)
	case jxl.Float32:
		s := make([]float32, n)
		for i := range s {
			s[i] = float32(i%251) / 250
		}
		return f.PutFloat32s(s)
	default:
		s := make([]byte, n)
		for i := range s {
			s[i] = byte(i * 7)
		}
		return s
	}
}

func TestLosslessRoundTripRGB(t *testing.T) {
	pix := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	}
	enc, err := jxl.NewEncoderBuilder().Channels(3).Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(pix, 2, 2)
	require.NoError(t, err)
	t.Logf("encoded 2x2 rgb to %d bytes", len(data))
	assert.True(t, jxl.IsJXL(data))

	dec, err := jxl.NewDecoderBuilder().Channels(3).Build()
	require.NoError(t, err)
	defer dec.Close()
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, pix, img.Packed())
	assert.Equal(t, 8, img.Info.BitsPerSample)
	assert.Equal(t, 3, img.Info.NumColorChannels)
	require.NotNil(t, img.Color.Encoding)
	assert.Equal(t, jxl.SRGB, *img.Color.Encoding)
}

func TestLosslessRoundTripAllFormats(t *testing.T) {
	const w, h = 13, 7
	for _, channels := range []int{1, 3, 4} {
		for _, dt := range []jxl.DataType{jxl.Uint8, jxl.Uint16, jxl.Float32} {
			f := jxl.PixelFormat{Channels: channels, Type: dt, Endianness: jxl.LittleEndian}
			t.Run(f.String(), func(t *testing.T) {
				pix := gradient(f, w, h)
				enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).Speed(jxl.Thunder).Build()
				require.NoError(t, err)
				defer enc.Close()
				data, err := enc.Encode(pix, w, h)
				require.NoError(t, err)

				dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
				require.NoError(t, err)
				defer dec.Close()
				img, err := dec.Decode(data)
				require.NoError(t, err)
				require.Equal(t, w, img.Width)
				require.Equal(t, h, img.Height)
				assert.Equal(t, channels == 4, img.Info.AlphaBits > 0)

				switch dt {
				case jxl.Float32:
					want, _ := (&jxl.Image{Pix: pix, Width: w, Height: h, Stride: f.Stride(w), Format: f}).Float32s()
					got, err := img.Float32s()
					require.NoError(t, err)
					require.Len(t, got, len(want))
					for i := range want {
						assert.InDelta(t, want[i], got[i], 1e-6)
					}
				default:
					assert.Equal(t, pix, img.Packed())
				}
			})
		}
	}
}

func TestAlignedOutput(t *testing.T) {
	const w, h = 5, 3
	enc, err := jxl.NewEncoderBuilder().Channels(3).Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	pix := gradient(jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}, w, h)
	data, err := enc.Encode(pix, w, h)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().Channels(3).Align(16).Build()
	require.NoError(t, err)
	defer dec.Close()
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Stride)
	assert.Equal(t, pix, img.Packed())
}

func TestAlignedInput(t *testing.T) {
	const w, h = 5, 3
	packed := gradient(jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}, w, h)
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8, Align: 8}
	require.Equal(t, 16, f.Stride(w))
	padded := make([]byte, f.BufferSize(w, h))
	for i := range padded {
		padded[i] = 0xaa
	}
	for y := 0; y < h; y++ {
		copy(padded[y*f.Stride(w):], packed[y*w*3:(y+1)*w*3])
	}

	enc, err := jxl.NewEncoderBuilder().Channels(3).Align(8).Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	_, err = enc.Encode(padded[:len(padded)-1], w, h)
	require.ErrorIs(t, err, jxl.ErrCodec)
	data, err := enc.Encode(padded, w, h)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().Channels(3).Build()
	require.NoError(t, err)
	defer dec.Close()
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, packed, img.Packed())
}

func TestLossyRoundTrip(t *testing.T) {
	const w, h = 64, 48
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}
	enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Quality(90).Build()
	require.NoError(t, err)
	defer enc.Close()
	assert.Greater(t, enc.Settings().Distance, float32(0))

	data, err := enc.Encode(gradient(f, w, h), w, h)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
	require.NoError(t, err)
	defer dec.Close()
	info, err := dec.Info(data)
	require.NoError(t, err)
	assert.Equal(t, w, info.Width)
	assert.Equal(t, h, info.Height)
	assert.False(t, info.UsesOriginalProfile)
}

func TestEncoderIsReusable(t *testing.T) {
	enc, err := jxl.NewEncoderBuilder().Channels(1).Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	dec, err := jxl.NewDecoderBuilder().Channels(1).Build()
	require.NoError(t, err)
	defer dec.Close()

	for i, size := range []int{4, 40, 9} {
		pix := gradient(jxl.PixelFormat{Channels: 1, Type: jxl.Uint8}, size, size)
		if i == 1 {
			require.NoError(t, enc.SetSpeed(jxl.Lightning))
		}
		data, err := enc.Encode(pix, size, size)
		require.NoError(t, err)
		img, err := dec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, pix, img.Packed(), "iteration %d", i)
	}
}

func TestContainer(t *testing.T) {
	enc, err := jxl.NewEncoderBuilder().UseContainer(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(gradient(jxl.DefaultPixelFormat(), 8, 8), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, jxl.SignatureContainer, jxl.CheckSignature(data))

	require.NoError(t, enc.SetUseContainer(false))
	data, err = enc.Encode(gradient(jxl.DefaultPixelFormat(), 8, 8), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, jxl.SignatureCodestream, jxl.CheckSignature(data))
	assert.Equal(t, jxl.SignatureNotEnoughBytes, jxl.CheckSignature(nil))
	assert.Equal(t, jxl.SignatureInvalid, jxl.CheckSignature([]byte("GIF89a")))
}

func TestSettersAfterEncode(t *testing.T) {
	const w, h = 32, 24
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}
	pix := gradient(f, w, h)
	enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Quality(80).Build()
	require.NoError(t, err)
	defer enc.Close()
	dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
	require.NoError(t, err)
	defer dec.Close()

	data, err := enc.Encode(pix, w, h)
	require.NoError(t, err)
	info, err := dec.Info(data)
	require.NoError(t, err)
	require.False(t, info.UsesOriginalProfile)

	require.NoError(t, enc.SetLossless(true))
	require.NoError(t, enc.SetUseContainer(true))
	data, err = enc.Encode(pix, w, h)
	require.NoError(t, err)
	assert.Equal(t, jxl.SignatureContainer, jxl.CheckSignature(data))
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, pix, img.Packed())

	require.NoError(t, enc.SetLossless(false))
	require.NoError(t, enc.SetQuality(60))
	require.NoError(t, enc.SetUseContainer(false))
	data, err = enc.Encode(pix, w, h)
	require.NoError(t, err)
	assert.Equal(t, jxl.SignatureCodestream, jxl.CheckSignature(data))
	assert.False(t, enc.Settings().Lossless)

	require.ErrorIs(t, enc.SetDistance(30), jxl.ErrConfiguration)
	assert.NotEqual(t, float32(30), enc.Settings().Distance)
}

func TestIndependentHandlesConcurrently(t *testing.T) {
	const workers, rounds = 4, 3
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			size := 16 + 8*i
			f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}
			pix := gradient(f, size, size)
			enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).Speed(jxl.Thunder).Threads(2).Build()
			if !assert.NoError(t, err) {
				return
			}
			defer enc.Close()
			dec, err := jxl.NewDecoderBuilder().PixelFormat(f).ParallelRunner(parallel.NewPoolRunner(2)).Build()
			if !assert.NoError(t, err) {
				return
			}
			defer dec.Close()
			for r := 0; r < rounds; r++ {
				data, err := enc.Encode(pix, size, size)
				if !assert.NoError(t, err, "worker %d", i) {
					return
				}
				img, err := dec.Decode(data)
				if !assert.NoError(t, err, "worker %d", i) {
					return
				}
				assert.Equal(t, pix, img.Packed(), "worker %d round %d", i, r)
			}
		}(i)
	}
	wg.Wait()
}

func TestCloseDuringCalls(t *testing.T) {
	enc, err := jxl.NewEncoderBuilder().Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(gradient(jxl.DefaultPixelFormat(), 16, 16), 16, 16)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().Build()
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := dec.Info(data); err != nil {
					assert.ErrorIs(t, err, jxl.ErrState)
				}
			}
		}()
	}
	for dec.Close() != nil {
	}
	wg.Wait()
	_, err = dec.Info(data)
	require.ErrorIs(t, err, jxl.ErrState)
}

func TestDecodeImageUnpremultiplies(t *testing.T) {
	const w, h = 4, 4
	f := jxl.PixelFormat{Channels: 4, Type: jxl.Uint8}
	pix := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		pix = append(pix, 100, 50, 0, 128)
	}
	enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).PremultipliedAlpha(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(pix, w, h)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
	require.NoError(t, err)
	defer dec.Close()
	info, err := dec.Info(data)
	require.NoError(t, err)
	require.True(t, info.AlphaPremultiplied)

	m, err := dec.DecodeImage(data)
	require.NoError(t, err)
	c := color.NRGBAModel.Convert(m.At(1, 1)).(color.NRGBA)
	assert.InDelta(t, 199, int(c.R), 1)
	assert.InDelta(t, 100, int(c.G), 1)
	assert.Equal(t, uint8(128), c.A)

	// the decoder's own setting is untouched
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, pix, img.Packed())
}

func TestDecodeCorruptInput(t *testing.T) {
	enc, err := jxl.NewEncoderBuilder().Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(gradient(jxl.DefaultPixelFormat(), 32, 32), 32, 32)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().Build()
	require.NoError(t, err)
	defer dec.Close()

	inputs := map[string][]byte{
		"empty":     nil,
		"truncated": data[:len(data)/2],
		"garbage":   []byte("this is not a jpeg xl file at all"),
		"header":    {0xff, 0x0a},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := dec.Decode(in)
			require.ErrorIs(t, err, jxl.ErrCodec)
			var ce *jxl.CodecError
			require.ErrorAs(t, err, &ce)
			t.Logf("%s: %v", name, err)
		})
	}

	// a failed decode leaves the decoder usable
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
}

func TestEncodeBadInput(t *testing.T) {
	enc, err := jxl.NewEncoderBuilder().Build()
	require.NoError(t, err)
	defer enc.Close()

	_, err = enc.Encode(make([]byte, 10), 2, 2)
	require.ErrorIs(t, err, jxl.ErrCodec)
	_, err = enc.Encode(make([]byte, 16), 0, 2)
	require.ErrorIs(t, err, jxl.ErrCodec)
	_, err = enc.EncodeJPEG(nil)
	require.ErrorIs(t, err, jxl.ErrCodec)
	_, err = enc.EncodeJPEG([]byte("not a jpeg"))
	require.ErrorIs(t, err, jxl.ErrCodec)
}

func TestConfigurationErrors(t *testing.T) {
	_, err := jxl.NewDecoderBuilder().Channels(2).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewDecoderBuilder().Align(3).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewDecoderBuilder().DataType(jxl.DataType(9)).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewEncoderBuilder().Speed(0).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewEncoderBuilder().Distance(26).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewEncoderBuilder().Quality(101).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)
	_, err = jxl.NewEncoderBuilder().Threads(-1).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)

	tr, err := parallel.NewThreadsRunner(1)
	require.NoError(t, err)
	defer tr.Close()
	_, err = jxl.NewDecoderBuilder().ParallelRunner(parallel.NewPoolRunner(1)).NativeRunner(tr).Build()
	require.ErrorIs(t, err, jxl.ErrConfiguration)

	enc, err := jxl.NewEncoderBuilder().Build()
	require.NoError(t, err)
	defer enc.Close()
	require.ErrorIs(t, enc.SetDistance(-1), jxl.ErrConfiguration)
	require.ErrorIs(t, enc.SetQuality(-5), jxl.ErrConfiguration)
	require.ErrorIs(t, enc.SetSpeed(10), jxl.ErrConfiguration)
	require.ErrorIs(t, enc.SetDecodingSpeed(5), jxl.ErrConfiguration)
	require.ErrorIs(t, enc.SetColorEncoding(jxl.ColorEncoding(7)), jxl.ErrConfiguration)
	var cfg *jxl.ConfigError
	require.ErrorAs(t, enc.SetDistance(99), &cfg)
	assert.Equal(t, "distance", cfg.Field)

	// rejected settings leave the previous value in place
	assert.Equal(t, jxl.DefaultSpeed, enc.Settings().Speed)
	require.NoError(t, enc.SetDistance(2.5))
	assert.Equal(t, float32(2.5), enc.Settings().Distance)
}

func TestAllValidFormatsBuild(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		for _, dt := range []jxl.DataType{jxl.Uint8, jxl.Uint16, jxl.Float32} {
			for _, end := range []jxl.Endianness{jxl.NativeEndian, jxl.LittleEndian, jxl.BigEndian} {
				for _, align := range []int{0, 4, 64} {
					f := jxl.PixelFormat{Channels: channels, Type: dt, Endianness: end, Align: align}
					dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
					require.NoError(t, err, f.String())
					require.NoError(t, dec.Close())
					enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Build()
					require.NoError(t, err, f.String())
					require.NoError(t, enc.Close())
				}
			}
		}
	}
}

func TestUseAfterClose(t *testing.T) {
	dec, err := jxl.NewDecoderBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())
	_, err = dec.Decode([]byte{0xff, 0x0a})
	require.ErrorIs(t, err, jxl.ErrState)
	_, err = dec.Info([]byte{0xff, 0x0a})
	require.ErrorIs(t, err, jxl.ErrState)
	require.ErrorIs(t, dec.SetKeepOrientation(true), jxl.ErrState)
	require.ErrorIs(t, dec.SetPixelFormat(jxl.PixelFormat{Channels: 2}), jxl.ErrState)

	enc, err := jxl.NewEncoderBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	_, err = enc.Encode(make([]byte, 4), 1, 1)
	require.ErrorIs(t, err, jxl.ErrState)
	require.ErrorIs(t, enc.SetLossless(true), jxl.ErrState)
	require.ErrorIs(t, enc.SetQuality(500), jxl.ErrState)
	_, err = enc.EncodeImage(image.NewGray(image.Rect(0, 0, 1, 1)))
	require.ErrorIs(t, err, jxl.ErrState)
}

func TestTrackedMemoryIsReturned(t *testing.T) {
	tr := memory.NewTracker(nil)
	enc, err := jxl.NewEncoderBuilder().MemoryManager(tr).Lossless(true).Build()
	require.NoError(t, err)
	data, err := enc.Encode(gradient(jxl.DefaultPixelFormat(), 48, 48), 48, 48)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	dec, err := jxl.NewDecoderBuilder().MemoryManager(tr).Build()
	require.NoError(t, err)
	_, err = dec.Decode(data)
	require.NoError(t, err)
	require.NoError(t, dec.Close())

	st := tr.Stats()
	t.Logf("memory: %+v", st)
	assert.Greater(t, st.Allocs, int64(0))
	assert.Equal(t, st.Allocs, st.Frees)
	assert.Zero(t, st.Foreign)
	assert.Zero(t, tr.Outstanding())
}

// switchManager starts failing every allocation once tripped
type switchManager struct {
	*memory.Tracker
	fail atomic.Bool
}

func (s *switchManager) Alloc(size uintptr) unsafe.Pointer {
	if s.fail.Load() {
		return nil
	}
	return s.Tracker.Alloc(size)
}

func TestAllocationFailure(t *testing.T) {
	const w, h = 128, 128
	pix := gradient(jxl.DefaultPixelFormat(), w, h)

	sm := &switchManager{Tracker: memory.NewTracker(nil)}
	enc, err := jxl.NewEncoderBuilder().MemoryManager(sm).Build()
	require.NoError(t, err)
	sm.fail.Store(true)
	_, err = enc.Encode(pix, w, h)
	require.ErrorIs(t, err, jxl.ErrAllocation)
	t.Logf("encode: %v", err)
	sm.fail.Store(false)
	require.NoError(t, enc.Close())

	ok, err := jxl.NewEncoderBuilder().Build()
	require.NoError(t, err)
	defer ok.Close()
	data, err := ok.Encode(pix, w, h)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().MemoryManager(sm).Build()
	require.NoError(t, err)
	sm.fail.Store(true)
	_, err = dec.Decode(data)
	require.ErrorIs(t, err, jxl.ErrAllocation)
	sm.fail.Store(false)
	require.NoError(t, dec.Close())
	assert.Zero(t, sm.Outstanding())

	_, err = jxl.NewDecoderBuilder().MemoryManager(memory.NewLimit(nil, 0)).Build()
	require.ErrorIs(t, err, jxl.ErrAllocation)
}

func TestParallelRunners(t *testing.T) {
	const w, h = 600, 400
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}
	pix := gradient(f, w, h)

	reg := prometheus.NewRegistry()
	pool := parallel.NewMetrics(reg).Instrument(parallel.NewPoolRunner(4))
	threads, err := parallel.NewThreadsRunner(2)
	require.NoError(t, err)

	runners := map[string]func(*jxl.EncoderBuilder, *jxl.DecoderBuilder){
		"pool": func(e *jxl.EncoderBuilder, d *jxl.DecoderBuilder) {
			e.ParallelRunner(pool)
			d.ParallelRunner(pool)
		},
		"threads": func(e *jxl.EncoderBuilder, d *jxl.DecoderBuilder) {
			e.NativeRunner(threads)
			d.NativeRunner(threads)
		},
		"count": func(e *jxl.EncoderBuilder, d *jxl.DecoderBuilder) {
			e.Threads(3)
			d.Threads(3)
		},
	}
	for name, wire := range runners {
		t.Run(name, func(t *testing.T) {
			eb := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).Speed(jxl.Lightning)
			db := jxl.NewDecoderBuilder().PixelFormat(f)
			wire(eb, db)
			enc, err := eb.Build()
			require.NoError(t, err)
			defer enc.Close()
			dec, err := db.Build()
			require.NoError(t, err)
			defer dec.Close()

			data, err := enc.Encode(pix, w, h)
			require.NoError(t, err)
			img, err := dec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, pix, img.Packed())

			if name == "threads" {
				require.ErrorIs(t, threads.Close(), parallel.ErrInUse)
			}
		})
	}
	require.NoError(t, threads.Close())

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		t.Logf("%s: %v", mf.GetName(), mf.GetMetric())
	}
}

func TestEncodeJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 40; x++ {
			src.Set(x, y, color.RGBA{uint8(x * 6), uint8(y * 10), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 85}))

	enc, err := jxl.NewEncoderBuilder().Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.EncodeJPEG(buf.Bytes())
	require.NoError(t, err)
	t.Logf("jpeg %d bytes, jxl %d bytes", buf.Len(), len(data))
	assert.True(t, jxl.IsJXL(data))

	dec, err := jxl.NewDecoderBuilder().Channels(3).Build()
	require.NoError(t, err)
	defer dec.Close()
	img, err := dec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 24, img.Height)
}

func TestImageRoundTrip(t *testing.T) {
	const w, h = 17, 9
	gray16 := image.NewGray16(image.Rect(0, 0, w, h))
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	nrgba64 := image.NewNRGBA64(image.Rect(0, 0, w, h))
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(x*3000 + y*700)
			gray.SetGray(x, y, color.Gray{Y: uint8(v >> 8)})
			gray16.SetGray16(x, y, color.Gray16{Y: v})
			nrgba.SetNRGBA(x, y, color.NRGBA{uint8(x * 10), uint8(y * 20), 7, uint8(255 - x)})
			nrgba64.SetNRGBA64(x, y, color.NRGBA64{v, 65535 - v, v / 2, 65535})
		}
	}
	s := jxl.DefaultEncoderSettings()
	s.Lossless = true
	for _, src := range []image.Image{gray, gray16, nrgba, nrgba64} {
		t.Run(fmt.Sprintf("%T", src), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, jxl.Encode(&buf, src, &s))

			cfg, name, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, "jxl", name)
			assert.Equal(t, w, cfg.Width)
			assert.Equal(t, src.ColorModel(), cfg.ColorModel)

			got, name, err := image.Decode(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, "jxl", name)
			assert.IsType(t, src, got)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					require.Equal(t, src.At(x, y), got.At(x, y), "pixel %d,%d", x, y)
				}
			}
		})
	}
}

func TestEncodeSubImage(t *testing.T) {
	full := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for i := range full.Pix {
		full.Pix[i] = byte(i)
	}
	sub := full.SubImage(image.Rect(5, 3, 12, 9)).(*image.NRGBA)

	enc, err := jxl.NewEncoderBuilder().Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.EncodeImage(sub)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().Build()
	require.NoError(t, err)
	defer dec.Close()
	got, err := dec.DecodeImage(data)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 7, 6), got.Bounds())
	for y := 0; y < 6; y++ {
		for x := 0; x < 7; x++ {
			require.Equal(t, sub.At(x+5, y+3), got.At(x, y))
		}
	}
}

func TestVersion(t *testing.T) {
	major, minor, _ := jxl.Version()
	t.Logf("libjxl %s", jxl.VersionString())
	assert.True(t, major > 0 || minor >= 9)
}

func TestFloatIsLinearByDefault(t *testing.T) {
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Float32}
	enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).Build()
	require.NoError(t, err)
	defer enc.Close()
	data, err := enc.Encode(f.PutFloat32s([]float32{0.5, 0.25, float32(math.Pi / 4)}), 1, 1)
	require.NoError(t, err)

	dec, err := jxl.NewDecoderBuilder().PixelFormat(f).Build()
	require.NoError(t, err)
	defer dec.Close()
	img, err := dec.Decode(data)
	require.NoError(t, err)
	require.NotNil(t, img.Color.Encoding)
	assert.Equal(t, jxl.LinearSRGB, *img.Color.Encoding)
	assert.Equal(t, 32, img.Info.BitsPerSample)
}

type brokenRunner struct{ runs atomic.Int32 }

func (b *brokenRunner) Threads() (int, error) {
	b.runs.Add(1)
	return 0, fmt.Errorf("no workers")
}

func (b *brokenRunner) Run(uint32, uint32, func(uint32, int)) {}

func TestFailingRunner(t *testing.T) {
	const w, h = 600, 400
	f := jxl.PixelFormat{Channels: 3, Type: jxl.Uint8}
	br := &brokenRunner{}
	enc, err := jxl.NewEncoderBuilder().PixelFormat(f).Lossless(true).ParallelRunner(br).Build()
	require.NoError(t, err)
	defer enc.Close()
	_, err = enc.Encode(gradient(f, w, h), w, h)
	require.ErrorIs(t, err, jxl.ErrCodec)
	assert.Greater(t, br.runs.Load(), int32(0))
	t.Logf("failing runner: %v", err)
}
