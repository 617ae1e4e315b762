package scene

import (
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/charmbracelet/log"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is evaluated by Tick.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithBackend sets the backend every object of the scene is skinned with.
//
// Parameters:
//   - backend: the skinning backend
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBackend(backend skinner.SkinnerBackendType) SceneBuilderOption {
	return func(s *scene) {
		s.backend = backend
	}
}

// WithBatchSize sets the vertex batch size passed to parallel skinners.
//
// Parameters:
//   - size: vertices per batch
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBatchSize(size int) SceneBuilderOption {
	return func(s *scene) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithComputeWorkers sets the number of workers of the pool the scene creates for parallel
// skinning. Defaults to runtime.NumCPU()-1. Ignored when WithWorkerPool is used.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.poolWorkers = n
	}
}

// WithPoolQueue sets the task queue size and idle timeout passed to the pool the scene creates.
//
// Parameters:
//   - size: the task queue capacity
//   - idle: the pool idle timeout
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithPoolQueue(size int, idle time.Duration) SceneBuilderOption {
	return func(s *scene) {
		if size > 0 {
			s.poolQueue = size
		}
		if idle > 0 {
			s.poolIdleTime = idle
		}
	}
}

// WithWorkerPool shares an existing pool with every parallel skinner of the scene.
// The scene never drops a supplied pool.
//
// Parameters:
//   - pool: the worker pool
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWorkerPool(pool worker.DynamicWorkerPool) SceneBuilderOption {
	return func(s *scene) {
		s.pool = pool
	}
}

// WithDevice sets the device used by GPU skinners.
//
// Parameters:
//   - d: the compute device
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDevice(d gpu.Device) SceneBuilderOption {
	return func(s *scene) {
		s.device = d
	}
}

// WithKernelLibrary shares a precompiled kernel library between the GPU skinners of the scene.
//
// Parameters:
//   - lib: the kernel library
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithKernelLibrary(lib shader.KernelLibrary) SceneBuilderOption {
	return func(s *scene) {
		s.library = lib
	}
}

// WithProfiler sets the profiler Tick records evaluation timings to.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) SceneBuilderOption {
	return func(s *scene) {
		s.profiler = p
	}
}

// WithLogger sets the logger of the scene and of the skinners it creates.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(l *log.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.logger = l
	}
}
