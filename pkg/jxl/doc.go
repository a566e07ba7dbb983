// Package jxl binds libjxl, the JPEG XL reference codec, through cgo.
//
// Decoders and encoders are built from DecoderBuilder and EncoderBuilder. Each
// handle owns its native state and may route libjxl's allocations through a
// MemoryManager and its parallel work through a ParallelRunner or NativeRunner.
// The memory and parallel subpackages provide ready made implementations.
//
//	dec, err := jxl.NewDecoderBuilder().Channels(3).Threads(4).Build()
//	if err != nil {
//		return err
//	}
//	defer dec.Close()
//	img, err := dec.Decode(data)
//
// Errors wrap one of ErrConfiguration, ErrAllocation, ErrCodec or ErrState.
// Importing the package registers "jxl" with image.Decode.
package jxl
