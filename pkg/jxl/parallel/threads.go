package parallel

/*
#cgo pkg-config: libjxl_threads
#include <jxl/thread_parallel_runner.h>

static void* jxlgo_thread_runner_fn(void) { return (void*)JxlThreadParallelRunner; }
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	// ErrClosed is returned by Acquire after Close
	ErrClosed = errors.New("parallel: runner closed")
	// ErrInUse is returned by Close while handles still hold the runner
	ErrInUse = errors.New("parallel: runner in use")
)

// ThreadsRunner owns a libjxl thread pool that can be shared by any number of
// decoders and encoders. Each handle acquires it on Build and releases it on Close.
type ThreadsRunner struct {
	mu      sync.Mutex
	runner  unsafe.Pointer
	workers int
	refs    int
	closed  bool
}

// DefaultWorkers is libjxl's suggestion for the worker count
func DefaultWorkers() int {
	return int(C.JxlThreadParallelRunnerDefaultNumWorkerThreads())
}

// NewThreadsRunner starts a pool of workers threads, workers <= 0 uses DefaultWorkers
func NewThreadsRunner(workers int) (*ThreadsRunner, error) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	r := C.JxlThreadParallelRunnerCreate(nil, C.size_t(workers))
	if r == nil {
		return nil, fmt.Errorf("parallel: JxlThreadParallelRunnerCreate(%d) failed", workers)
	}
	return &ThreadsRunner{runner: r, workers: workers}, nil
}

func (t *ThreadsRunner) Workers() int {
	return t.workers
}

// Acquire returns the runner function and its opaque pointer for libjxl
func (t *ThreadsRunner) Acquire() (fn, opaque unsafe.Pointer, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, nil, ErrClosed
	}
	t.refs++
	return C.jxlgo_thread_runner_fn(), t.runner, nil
}

func (t *ThreadsRunner) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs > 0 {
		t.refs--
	}
}

// Close destroys the pool. It fails while any handle still holds the runner.
func (t *ThreadsRunner) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if t.refs > 0 {
		return fmt.Errorf("%d handles attached: %w", t.refs, ErrInUse)
	}
	t.closed = true
	C.JxlThreadParallelRunnerDestroy(t.runner)
	t.runner = nil
	return nil
}
