package jxl

import (
	"fmt"
	"log/slog"
	"runtime/cgo"
	"sync/atomic"
	"unsafe"
)

// ParallelRunner fans libjxl work out over a pool of workers.
type ParallelRunner interface {
	// Threads returns the number of workers the next Run will use. libjxl sizes its
	// per thread state from it.
	Threads() (int, error)
	// Run calls job once for every value in [start, end) with a threadID below the
	// Threads result and returns after every call has completed. Calls sharing a
	// threadID must not overlap.
	Run(start, end uint32, job func(value uint32, threadID int))
}

// NativeRunner is a runner implemented in C, handed to libjxl as is.
type NativeRunner interface {
	// Acquire returns the JxlParallelRunner function and its opaque pointer. Each
	// successful Acquire is paired with one Release once libjxl no longer uses them.
	Acquire() (fn, opaque unsafe.Pointer, err error)
	Release()
}

// Native runner return codes
const (
	runnerOK    = 0
	runnerError = -1 // JXL_PARALLEL_RET_RUNNER_ERROR
)

type runnerState int32

const (
	runnerUninitialized runnerState = iota
	runnerInitialized
	runnerRunning
)

func (s runnerState) String() string {
	switch s {
	case runnerUninitialized:
		return "uninitialized"
	case runnerInitialized:
		return "initialized"
	case runnerRunning:
		return "running"
	default:
		return fmt.Sprintf("runnerState(%d)", int32(s))
	}
}

// runnerBridge adapts a ParallelRunner to the JxlParallelRunner callback
type runnerBridge struct {
	runner ParallelRunner
	log    *slog.Logger

	handle cgo.Handle
	state  atomic.Int32
	runs   atomic.Int64
}

func (b *runnerBridge) current() runnerState {
	return runnerState(b.state.Load())
}

// run drives one native parallel section: size the pool, let libjxl init its
// per thread state, then run every job and join.
func (b *runnerBridge) run(start, end uint32, initFn func(threads int) int, job func(value uint32, threadID int)) (code int) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("parallel runner panicked", "panic", r)
			code = runnerError
		}
		if b.current() == runnerRunning {
			b.state.Store(int32(runnerInitialized))
		}
	}()
	if start > end {
		return runnerError
	}
	if start == end {
		return runnerOK
	}
	threads, err := b.runner.Threads()
	if err != nil || threads < 1 {
		b.log.Warn("parallel runner unavailable", "threads", threads, "error", err)
		return runnerError
	}
	if ret := initFn(threads); ret != runnerOK {
		return ret
	}
	b.state.Store(int32(runnerRunning))
	b.runs.Add(1)

	// each value is claimed once; a repeat is never handed to libjxl
	claimed := make([]atomic.Bool, end-start)
	var done atomic.Uint32
	var bad atomic.Bool
	b.runner.Run(start, end, func(value uint32, threadID int) {
		if value < start || value >= end || threadID < 0 || threadID >= threads {
			bad.Store(true)
			return
		}
		if !claimed[value-start].CompareAndSwap(false, true) {
			bad.Store(true)
			return
		}
		job(value, threadID)
		done.Add(1)
	})
	if bad.Load() || done.Load() != end-start {
		b.log.Warn("parallel runner did not cover the range",
			"start", start, "end", end, "completed", done.Load(), "bad_call", bad.Load())
		return runnerError
	}
	return runnerOK
}

func runnerBridgeFrom(opaque unsafe.Pointer) (b *runnerBridge, ok bool) {
	defer func() {
		if recover() != nil {
			b, ok = nil, false
		}
	}()
	b, ok = cgo.Handle(uintptr(opaque)).Value().(*runnerBridge)
	return b, ok
}
