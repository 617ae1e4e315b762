package skinner

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/mesh"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/charmbracelet/log"
)

// DefaultBatchSize is the number of vertices per parallel task when WithBatchSize is not given.
const DefaultBatchSize = 64

// SkinnerBuilderOption is a functional option applied to a skinner during construction via NewSkinner.
type SkinnerBuilderOption func(*skinner)

// WithBatchSize sets the number of vertices evaluated by one parallel task. Values below 1 are ignored.
//
// Parameters:
//   - size: vertices per batch
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the batch size option to a skinner
func WithBatchSize(size int) SkinnerBuilderOption {
	return func(s *skinner) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithWorkers sets the worker count of the pool the parallel backend creates for itself.
// Ignored when WithWorkerPool is given.
//
// Parameters:
//   - workers: the maximum number of workers
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the worker count option to a skinner
func WithWorkers(workers int) SkinnerBuilderOption {
	return func(s *skinner) {
		s.workers = workers
	}
}

// WithWorkerPool makes the parallel backend submit its batches to an existing pool.
// The pool is not stopped when the skinner is released.
//
// Parameters:
//   - pool: the shared worker pool
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the pool option to a skinner
func WithWorkerPool(pool worker.DynamicWorkerPool) SkinnerBuilderOption {
	return func(s *skinner) {
		s.pool = pool
	}
}

// WithDevice sets the compute device used by the GPU backend.
//
// Parameters:
//   - d: the device
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the device option to a skinner
func WithDevice(d gpu.Device) SkinnerBuilderOption {
	return func(s *skinner) {
		s.device = d
	}
}

// WithKernelLibrary supplies precompiled kernel variants to the GPU backend. Without it the
// backend specializes only the variant its mesh needs.
//
// Parameters:
//   - lib: the kernel library
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the library option to a skinner
func WithKernelLibrary(lib shader.KernelLibrary) SkinnerBuilderOption {
	return func(s *skinner) {
		s.library = lib
	}
}

// WithMeshBuffers binds externally owned device streams to the GPU backend.
// The skinner never releases them. Without it the skinner uploads and owns its own.
//
// Parameters:
//   - buffers: the mesh device streams
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the mesh buffers option to a skinner
func WithMeshBuffers(buffers *MeshBuffers) SkinnerBuilderOption {
	return func(s *skinner) {
		s.meshBuffers = buffers
	}
}

// WithDrawHook registers a callback invoked by the CPU backends after each frame's output is updated.
//
// Parameters:
//   - hook: the draw callback
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the draw hook option to a skinner
func WithDrawHook(hook mesh.DrawHook) SkinnerBuilderOption {
	return func(s *skinner) {
		s.drawHook = hook
	}
}

// WithLogger sets the logger used for lifecycle messages.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SkinnerBuilderOption: a function that applies the logger option to a skinner
func WithLogger(l *log.Logger) SkinnerBuilderOption {
	return func(s *skinner) {
		s.logger = l
	}
}
