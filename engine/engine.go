package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/charmbracelet/log"
)

// engine implements the Engine interface.
// Coordinates the tick loop and the quit signal.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool
	logger           *log.Logger

	engineTickRate time.Duration
	tickCallback   func(frame int, deltaTime float32)

	frame      int
	frameLimit int // 0 = run until Quit
	failures   int

	scenes map[int]scene.Scene
}

// Engine is the main entry point for the engine.
// It runs a headless fixed-rate tick loop that evaluates every active scene once per tick.
type Engine interface {
	// Profiler returns the profiler scenes report evaluation timings to.
	//
	// Returns:
	//   - *profiler.Profiler: the engine profiler
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called after the scenes of each tick are evaluated.
	//
	// Parameters:
	//   - callback: receives the frame number and the delta time in seconds
	SetTickCallback(callback func(frame int, deltaTime float32))

	// AddScene registers a scene at the given key.
	// Scenes are evaluated in ascending key order every tick.
	//
	// Parameters:
	//   - key: the evaluation order key (lower evaluates first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given key.
	//
	// Parameters:
	//   - key: the key of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the key of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes by key.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Frame returns the number of ticks run so far.
	//
	// Returns:
	//   - int: the frame counter
	Frame() int

	// Failures returns the number of scene ticks that returned an error.
	//
	// Returns:
	//   - int: the failure counter
	Failures() int

	// Run starts the tick loop and blocks until Quit is called, the frame limit is reached or
	// ctx is done.
	//
	// Parameters:
	//   - ctx: cancels the loop when done
	//
	// Returns:
	//   - error: ctx.Err() if the loop stopped because ctx was done, nil otherwise
	Run(ctx context.Context) error

	// Quit signals the tick loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:               &sync.Mutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		scenes:           make(map[int]scene.Scene),
		running:          false,
		wg:               sync.WaitGroup{},
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Component(nil, "engine")
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	return e
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
		e.signalQuit()
	case <-e.quitChannel:
	}
	e.wg.Wait()

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.logger.Info("engine stopped", "frames", e.Frame(), "failures", e.Failures())
	return err
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handle launches the engine goroutine, tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(1)
	go e.handleEngine()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Evaluates the scenes and fires the tick callback at the configured tick rate, and listens for
// dynamic rate changes via tickRateChannel. Exits when the quit channel is closed.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleEngine() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	e.mu.Lock()
	rate := e.engineTickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			// select picks randomly when both are ready; quit wins.
			select {
			case <-e.quitChannel:
				return
			default:
			}
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if done := e.tick(dt); done {
				e.signalQuit()
				return
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

// tick runs one frame and reports whether the frame limit has been reached.
func (e *engine) tick(dt float32) bool {
	e.mu.Lock()
	e.frame++
	frame := e.frame
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	scenes := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		scenes = append(scenes, e.scenes[k])
	}
	callback := e.tickCallback
	profiling := e.profilingEnabled
	limit := e.frameLimit
	e.mu.Unlock()

	for _, s := range scenes {
		if !s.Active() {
			continue
		}
		// Failed objects are logged by the scene; the loop keeps running.
		if err := s.Tick(frame); err != nil {
			e.mu.Lock()
			e.failures++
			e.mu.Unlock()
		}
	}

	if callback != nil {
		callback(frame, dt)
	}
	if profiling {
		e.profiler.Tick()
	}
	return limit > 0 && frame >= limit
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(frame int, deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func (e *engine) Frame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *engine) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

// tickInterval converts a tick rate to a ticker period, defaulting to 60Hz.
func tickInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}
