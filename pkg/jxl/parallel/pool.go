// Package parallel provides parallel runners for jxl decoders and encoders.
//
// PoolRunner and Instrumented satisfy jxl.ParallelRunner and run libjxl's jobs on
// goroutines. ThreadsRunner satisfies jxl.NativeRunner and hands libjxl its own
// thread pool.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Runner is the contract libjxl's parallel work is dispatched through
type Runner interface {
	Threads() (int, error)
	Run(start, end uint32, job func(value uint32, threadID int))
}

// PoolRunner fans each run out over at most Workers goroutines. Goroutines are
// started per run and joined before Run returns.
type PoolRunner struct {
	workers int
}

// NewPoolRunner returns a runner of n workers, n <= 0 uses runtime.NumCPU
func NewPoolRunner(n int) *PoolRunner {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &PoolRunner{workers: n}
}

func (p *PoolRunner) Threads() (int, error) {
	return p.workers, nil
}

func (p *PoolRunner) Run(start, end uint32, job func(value uint32, threadID int)) {
	if end <= start {
		return
	}
	count := end - start
	workers := min(uint32(p.workers), count)
	if workers <= 1 {
		for v := start; v < end; v++ {
			job(v, 0)
		}
		return
	}

	var next atomic.Uint32
	var wg sync.WaitGroup
	for id := 0; id < int(workers); id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				i := next.Add(1) - 1
				if i >= count {
					return
				}
				job(start+i, id)
			}
		}(id)
	}
	wg.Wait()
}
