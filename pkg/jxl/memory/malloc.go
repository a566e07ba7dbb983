package memory

/*
#include <stdlib.h>
*/
import "C"

import "unsafe"

// Malloc hands allocations to the C heap. It is what libjxl uses when no
// manager is configured, and the default backing of Tracker.
type Malloc struct{}

func (Malloc) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	return C.malloc(C.size_t(size))
}

func (Malloc) Free(ptr unsafe.Pointer) {
	C.free(ptr)
}
