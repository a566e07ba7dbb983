package jxl

// Exported entry points referenced by bridge.c. This file may only hold
// declarations in its preamble.

/*
#include "bridge.h"
*/
import "C"

import "unsafe"

//export jxlgoAlloc
func jxlgoAlloc(opaque unsafe.Pointer, size C.size_t) unsafe.Pointer {
	b, ok := memoryBridgeFrom(opaque)
	if !ok {
		return nil
	}
	return b.alloc(uintptr(size))
}

//export jxlgoFree
func jxlgoFree(opaque unsafe.Pointer, address unsafe.Pointer) {
	if address == nil {
		return
	}
	if b, ok := memoryBridgeFrom(opaque); ok {
		b.free(address)
	}
}

//export jxlgoRun
func jxlgoRun(runnerOpaque unsafe.Pointer, jpegxlOpaque unsafe.Pointer, initFn C.JxlParallelRunInit,
	fn C.JxlParallelRunFunction, start C.uint32_t, end C.uint32_t) C.JxlParallelRetCode {
	b, ok := runnerBridgeFrom(runnerOpaque)
	if !ok {
		return C.JxlParallelRetCode(runnerError)
	}
	code := b.run(uint32(start), uint32(end),
		func(threads int) int {
			return int(C.jxlgo_call_init(initFn, jpegxlOpaque, C.size_t(threads)))
		},
		func(value uint32, threadID int) {
			C.jxlgo_call_job(fn, jpegxlOpaque, C.uint32_t(value), C.size_t(threadID))
		})
	return C.JxlParallelRetCode(code)
}
