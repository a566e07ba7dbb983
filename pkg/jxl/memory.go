package jxl

import (
	"log/slog"
	"runtime/cgo"
	"sync/atomic"
	"unsafe"
)

// MemoryManager supplies the allocations libjxl makes for a handle.
//
// Alloc must return memory that is not managed by the Go runtime (C heap, mmap, ...)
// or nil when the request cannot be satisfied. Free receives only pointers returned
// by Alloc on the same manager. Both may be called from runner worker threads.
type MemoryManager interface {
	Alloc(size uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
}

// memoryBridge adapts a MemoryManager to the JxlMemoryManager callback pair.
// The native struct lives on the C heap and references the bridge through a
// cgo.Handle, so neither moves while libjxl holds them.
type memoryBridge struct {
	mm  MemoryManager
	log *slog.Logger

	handle cgo.Handle
	native unsafe.Pointer // *C.JxlMemoryManager

	allocs atomic.Int64
	frees  atomic.Int64
	failed atomic.Bool
}

func (b *memoryBridge) alloc(size uintptr) (ptr unsafe.Pointer) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("memory manager panicked in alloc", "size", size, "panic", r)
			b.failed.Store(true)
			ptr = nil
		}
	}()
	ptr = b.mm.Alloc(size)
	if ptr == nil {
		b.failed.Store(true)
		return nil
	}
	b.allocs.Add(1)
	return ptr
}

func (b *memoryBridge) free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("memory manager panicked in free", "panic", r)
		}
	}()
	b.frees.Add(1)
	b.mm.Free(ptr)
}

// outstanding is the number of allocations not yet returned
func (b *memoryBridge) outstanding() int64 {
	return b.allocs.Load() - b.frees.Load()
}

// takeFailure reports and clears an allocation failure seen since the last call
func (b *memoryBridge) takeFailure() bool {
	if b == nil {
		return false
	}
	return b.failed.Swap(false)
}

func memoryBridgeFrom(opaque unsafe.Pointer) (b *memoryBridge, ok bool) {
	defer func() {
		if recover() != nil {
			b, ok = nil, false
		}
	}()
	b, ok = cgo.Handle(uintptr(opaque)).Value().(*memoryBridge)
	return b, ok
}
