package jxl

/*
#cgo pkg-config: libjxl
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"fmt"
	"log/slog"
	"runtime/cgo"
	"unsafe"
)

// Version returns the linked libjxl version as major, minor, patch
func Version() (major, minor, patch int) {
	v := int(C.JxlDecoderVersion())
	return v / 1000000, v / 1000 % 1000, v % 1000
}

// VersionString formats Version
func VersionString() string {
	major, minor, patch := Version()
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// Signature is the result of a signature check on the leading bytes of a file
type Signature int

const (
	SignatureNotEnoughBytes Signature = C.JXL_SIG_NOT_ENOUGH_BYTES
	SignatureInvalid        Signature = C.JXL_SIG_INVALID
	SignatureCodestream     Signature = C.JXL_SIG_CODESTREAM
	SignatureContainer      Signature = C.JXL_SIG_CONTAINER
)

func (s Signature) String() string {
	switch s {
	case SignatureNotEnoughBytes:
		return "not enough bytes"
	case SignatureInvalid:
		return "invalid"
	case SignatureCodestream:
		return "codestream"
	case SignatureContainer:
		return "container"
	default:
		return fmt.Sprintf("Signature(%d)", int(s))
	}
}

// CheckSignature reports whether data starts like a JPEG XL file
func CheckSignature(data []byte) Signature {
	if len(data) == 0 {
		return SignatureNotEnoughBytes
	}
	return Signature(C.JxlSignatureCheck((*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data))))
}

// IsJXL is CheckSignature reporting a codestream or container
func IsJXL(data []byte) bool {
	sig := CheckSignature(data)
	return sig == SignatureCodestream || sig == SignatureContainer
}

func decoderReason(status C.JxlDecoderStatus) string {
	switch status {
	case C.JXL_DEC_SUCCESS:
		return "success"
	case C.JXL_DEC_ERROR:
		return "malformed or unsupported stream"
	case C.JXL_DEC_NEED_MORE_INPUT:
		return "truncated input"
	case C.JXL_DEC_NEED_PREVIEW_OUT_BUFFER:
		return "preview buffer required"
	case C.JXL_DEC_NEED_IMAGE_OUT_BUFFER:
		return "image buffer required"
	case C.JXL_DEC_JPEG_NEED_MORE_OUTPUT:
		return "jpeg buffer too small"
	case C.JXL_DEC_BOX_NEED_MORE_OUTPUT:
		return "box buffer too small"
	default:
		return fmt.Sprintf("unexpected status 0x%x", int(status))
	}
}

// decoderError converts a failed decoder status, folding in allocation failures
// observed by the memory bridge
func decoderError(op string, status C.JxlDecoderStatus, mem *memoryBridge) error {
	err := &CodecError{Op: op, Status: int(status), Reason: decoderReason(status)}
	if mem.takeFailure() {
		err.Err = ErrAllocation
	}
	return err
}

func encoderReason(code C.JxlEncoderError) string {
	switch code {
	case C.JXL_ENC_ERR_OK:
		return "unspecified failure"
	case C.JXL_ENC_ERR_GENERIC:
		return "internal error"
	case C.JXL_ENC_ERR_OOM:
		return "out of memory"
	case C.JXL_ENC_ERR_JBRD:
		return "jpeg bitstream reconstruction data cannot be represented"
	case C.JXL_ENC_ERR_BAD_INPUT:
		return "invalid input"
	case C.JXL_ENC_ERR_NOT_SUPPORTED:
		return "unsupported request"
	case C.JXL_ENC_ERR_API_USAGE:
		return "invalid api usage"
	default:
		return fmt.Sprintf("unexpected error 0x%x", int(code))
	}
}

func encoderError(op string, enc *C.JxlEncoder, mem *memoryBridge) error {
	var code C.JxlEncoderError = C.JXL_ENC_ERR_OK
	if enc != nil {
		code = C.JxlEncoderGetError(enc)
	}
	err := &CodecError{Op: op, Status: int(code), Reason: encoderReason(code)}
	if mem.takeFailure() || code == C.JXL_ENC_ERR_OOM {
		err.Err = ErrAllocation
	}
	return err
}

// newMemoryBridge registers mm and builds the native struct handed to *Create
func newMemoryBridge(mm MemoryManager, log *slog.Logger) (*memoryBridge, error) {
	b := &memoryBridge{mm: mm, log: log}
	b.handle = cgo.NewHandle(b)
	native := C.jxlgo_memory_manager_new(C.uintptr_t(b.handle))
	if native == nil {
		b.handle.Delete()
		return nil, fmt.Errorf("memory manager bridge: %w", ErrAllocation)
	}
	b.native = unsafe.Pointer(native)
	return b, nil
}

func (b *memoryBridge) cManager() *C.JxlMemoryManager {
	if b == nil {
		return nil
	}
	return (*C.JxlMemoryManager)(b.native)
}

// release must run after the native handle that used the bridge is destroyed
func (b *memoryBridge) release() {
	if b == nil || b.native == nil {
		return
	}
	if n := b.outstanding(); n != 0 {
		b.log.Warn("memory manager released with outstanding allocations", "outstanding", n)
	}
	C.jxlgo_memory_manager_free((*C.JxlMemoryManager)(b.native))
	b.native = nil
	b.handle.Delete()
}

func newRunnerBridge(r ParallelRunner, log *slog.Logger) *runnerBridge {
	b := &runnerBridge{runner: r, log: log}
	b.handle = cgo.NewHandle(b)
	return b
}

// release must run after the native handle that used the bridge is destroyed
func (b *runnerBridge) release() {
	if b == nil || b.handle == 0 {
		return
	}
	b.handle.Delete()
	b.handle = 0
}

// runnerWiring is the runner configuration of one native handle
type runnerWiring struct {
	bridge *runnerBridge
	native NativeRunner
	fn     unsafe.Pointer
	opaque unsafe.Pointer
}

func newRunnerWiring(r ParallelRunner, nr NativeRunner, log *slog.Logger) (*runnerWiring, error) {
	w := &runnerWiring{}
	switch {
	case nr != nil:
		fn, opaque, err := nr.Acquire()
		if err != nil {
			return nil, fmt.Errorf("native runner: %w", err)
		}
		if fn == nil {
			nr.Release()
			return nil, &ConfigError{Field: "native runner", Value: "nil function", Err: ErrConfiguration}
		}
		w.native, w.fn, w.opaque = nr, fn, opaque
	case r != nil:
		w.bridge = newRunnerBridge(r, log)
	}
	return w, nil
}

func (w *runnerWiring) attachDecoder(dec *C.JxlDecoder) C.JxlDecoderStatus {
	switch {
	case w.native != nil:
		return C.jxlgo_decoder_set_native_runner(dec, w.fn, w.opaque)
	case w.bridge != nil:
		return C.jxlgo_decoder_set_go_runner(dec, C.uintptr_t(w.bridge.handle))
	}
	return C.JXL_DEC_SUCCESS
}

func (w *runnerWiring) attachEncoder(enc *C.JxlEncoder) C.JxlEncoderStatus {
	switch {
	case w.native != nil:
		return C.jxlgo_encoder_set_native_runner(enc, w.fn, w.opaque)
	case w.bridge != nil:
		return C.jxlgo_encoder_set_go_runner(enc, C.uintptr_t(w.bridge.handle))
	}
	return C.JXL_ENC_SUCCESS
}

func (w *runnerWiring) release() {
	if w == nil {
		return
	}
	if w.native != nil {
		w.native.Release()
		w.native = nil
	}
	w.bridge.release()
	w.bridge = nil
}

func cBool(b bool) C.JXL_BOOL {
	if b {
		return C.JXL_TRUE
	}
	return C.JXL_FALSE
}

func cPixelFormat(f PixelFormat) C.JxlPixelFormat {
	var pf C.JxlPixelFormat
	pf.num_channels = C.uint32_t(f.Channels)
	switch f.Type {
	case Uint8:
		pf.data_type = C.JXL_TYPE_UINT8
	case Uint16:
		pf.data_type = C.JXL_TYPE_UINT16
	case Float32:
		pf.data_type = C.JXL_TYPE_FLOAT
	}
	switch f.Endianness {
	case LittleEndian:
		pf.endianness = C.JXL_LITTLE_ENDIAN
	case BigEndian:
		pf.endianness = C.JXL_BIG_ENDIAN
	default:
		pf.endianness = C.JXL_NATIVE_ENDIAN
	}
	pf.align = C.size_t(f.Align)
	return pf
}
