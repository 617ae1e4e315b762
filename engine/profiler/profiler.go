package profiler

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/charmbracelet/log"
)

// Timing aggregates the durations recorded under one name.
type Timing struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average recorded duration, or 0 when nothing was recorded.
func (t Timing) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

func (t *Timing) add(d time.Duration) {
	t.Count++
	t.Total += d
	t.Max = max(t.Max, d)
}

// ProfilerOption configures a Profiler at construction time.
type ProfilerOption func(*Profiler)

// WithInterval sets how often Tick reports. Values below 1ns are ignored.
//
// Parameters:
//   - d: the report interval
//
// Returns:
//   - ProfilerOption: a function that applies the interval
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithLogger sets the logger reports are written to.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ProfilerOption: a function that applies the logger
func WithLogger(l *log.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = l
	}
}

// Profiler tracks tick rate, skinning evaluation timings and memory statistics.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	mu     *sync.Mutex
	logger *log.Logger

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// window holds timings since the last report; totals holds timings since creation.
	window map[string]*Timing
	totals map[string]*Timing

	now func() time.Time
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		updateInterval: time.Second,
		window:         make(map[string]*Timing),
		totals:         make(map[string]*Timing),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Component(nil, "profiler")
	}
	p.lastTime = p.now()
	return p
}

// Record adds one duration under name, typically the backend that produced it.
//
// Parameters:
//   - name: the timing name
//   - d: the measured duration
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range []map[string]*Timing{p.window, p.totals} {
		t, ok := m[name]
		if !ok {
			t = &Timing{}
			m[name] = t
		}
		t.add(d)
	}
}

// Summary returns a copy of every timing recorded since the profiler was created.
//
// Returns:
//   - map[string]Timing: the cumulative timings by name
func (p *Profiler) Summary() map[string]Timing {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Timing, len(p.totals))
	for name, t := range p.totals {
		out[name] = *t
	}
	return out
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: tick rate, heap usage, allocation rate, GC count/pause times, total memory,
// and the count, mean and max of every timing recorded during the interval.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	tps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Info("frame stats",
		"tps", tps,
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
	)

	names := make([]string, 0, len(p.window))
	for name := range p.window {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t := p.window[name]
		p.logger.Info("evaluation stats", "name", name, "count", t.Count, "mean", t.Mean(), "max", t.Max)
	}
	clear(p.window)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
