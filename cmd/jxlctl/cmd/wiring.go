package cmd

import (
	"github.com/jpfielding/jxl.go/pkg/config"
	"github.com/jpfielding/jxl.go/pkg/jxl"
	"github.com/jpfielding/jxl.go/pkg/jxl/memory"
	"github.com/jpfielding/jxl.go/pkg/jxl/parallel"
	"github.com/prometheus/client_golang/prometheus"
)

// wiring is the memory manager and runner shared by every handle of one invocation
type wiring struct {
	cfg     *config.Config
	memory  jxl.MemoryManager
	tracker *memory.Tracker
	pool    jxl.ParallelRunner
	threads *parallel.ThreadsRunner
}

func newWiring(cfg *config.Config, reg prometheus.Registerer) (*wiring, error) {
	w := &wiring{cfg: cfg}
	mm := memory.NewMetrics(reg)
	if cfg.Memory.LimitBytes > 0 {
		l := memory.NewLimit(nil, cfg.Memory.LimitBytes)
		l.WithMetrics(mm)
		w.memory, w.tracker = l, l.Tracker
	} else {
		w.tracker = memory.NewTracker(nil).WithMetrics(mm)
		w.memory = w.tracker
	}
	switch cfg.Runner.Kind {
	case "pool":
		w.pool = parallel.NewMetrics(reg).Instrument(parallel.NewPoolRunner(cfg.Runner.Workers))
	case "threads":
		tr, err := parallel.NewThreadsRunner(cfg.Runner.Workers)
		if err != nil {
			return nil, err
		}
		w.threads = tr
	}
	return w, nil
}

func (w *wiring) attach(mm func(jxl.MemoryManager), pr func(jxl.ParallelRunner), nr func(jxl.NativeRunner)) {
	mm(w.memory)
	switch {
	case w.pool != nil:
		pr(w.pool)
	case w.threads != nil:
		nr(w.threads)
	}
}

func (w *wiring) encoder() (*jxl.EncoderBuilder, error) {
	s, err := w.cfg.EncoderSettings()
	if err != nil {
		return nil, err
	}
	b := jxl.NewEncoderBuilder().Settings(s)
	if w.cfg.Encode.Quality != nil {
		b.Quality(*w.cfg.Encode.Quality)
	}
	w.attach(
		func(m jxl.MemoryManager) { b.MemoryManager(m) },
		func(r jxl.ParallelRunner) { b.ParallelRunner(r) },
		func(r jxl.NativeRunner) { b.NativeRunner(r) })
	return b, nil
}

func (w *wiring) decoder() (*jxl.DecoderBuilder, error) {
	f, err := w.cfg.PixelFormat()
	if err != nil {
		return nil, err
	}
	b := jxl.NewDecoderBuilder().
		PixelFormat(f).
		KeepOrientation(w.cfg.Decode.KeepOrientation).
		UnpremultiplyAlpha(w.cfg.Decode.Unpremultiply)
	w.attach(
		func(m jxl.MemoryManager) { b.MemoryManager(m) },
		func(r jxl.ParallelRunner) { b.ParallelRunner(r) },
		func(r jxl.NativeRunner) { b.NativeRunner(r) })
	return b, nil
}

// Close releases the native runner, every handle must be closed first
func (w *wiring) Close() error {
	if w.threads == nil {
		return nil
	}
	return w.threads.Close()
}
