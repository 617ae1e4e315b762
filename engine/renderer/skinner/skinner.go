package skinner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/mesh"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/charmbracelet/log"
)

var (
	// ErrNotDeformable is returned when a mesh has neither bone weights nor blend shapes.
	// It signals that there is nothing to evaluate, not a failure.
	ErrNotDeformable = errors.New("skinner: mesh has no bone weights and no blend shapes")

	// ErrMissingDevice is returned when a GPU skinner is created without a device.
	ErrMissingDevice = errors.New("skinner: gpu backend requires a device")

	// ErrBufferStride is returned when a device buffer does not match the stride the mesh requires.
	ErrBufferStride = errors.New("skinner: buffer size does not match mesh stride")

	// ErrFrameMismatch is returned when a frame's lengths disagree with the mesh.
	ErrFrameMismatch = errors.New("skinner: frame does not match mesh")

	// ErrReleased is returned when a released Skinner is evaluated.
	ErrReleased = errors.New("skinner: skinner has been released")

	// ErrUnknownBackend is returned for an unrecognized backend type or name.
	ErrUnknownBackend = errors.New("skinner: unknown backend")
)

// skinner is the implementation of the Skinner interface.
type skinner struct {
	mu *sync.Mutex

	backendType SkinnerBackendType
	backend     skinnerBackend
	state       State

	mesh   model.SkinnedMesh
	output mesh.DeformedMesh
	logger *log.Logger

	// Pre-creation config collected from builder options
	batchSize   int
	workers     int
	pool        worker.DynamicWorkerPool
	device      gpu.Device
	library     shader.KernelLibrary
	meshBuffers *MeshBuffers
	drawHook    mesh.DrawHook

	// ownedMeshBuffers is set when the skinner uploaded the mesh streams itself.
	ownedMeshBuffers *MeshBuffers
}

// Skinner deforms one mesh every frame with the selected backend.
//
// The CPU backends write into a mesh.DeformedMesh returned by Output and then invoke the draw hook.
// The GPU backend mutates the bound position buffer in place and has no host-side output.
type Skinner interface {
	// BackendType returns the backend the skinner was created with.
	//
	// Returns:
	//   - SkinnerBackendType: the backend type
	BackendType() SkinnerBackendType

	// State returns the current lifecycle state.
	//
	// Returns:
	//   - State: the state
	State() State

	// Mesh returns the mesh being deformed.
	//
	// Returns:
	//   - model.SkinnedMesh: the source mesh
	Mesh() model.SkinnedMesh

	// Evaluate deforms the mesh for one frame.
	//
	// Parameters:
	//   - frame: the bone transforms and blend shape weights of this frame
	//
	// Returns:
	//   - error: ErrFrameMismatch, ErrReleased, or a wrapped device error
	Evaluate(frame Frame) error

	// Output returns the deformed mesh written by the CPU backends, or nil for the GPU backend.
	//
	// Returns:
	//   - mesh.DeformedMesh: the output mesh or nil
	Output() mesh.DeformedMesh

	// MeshBuffers returns the device streams the GPU backend deforms, or nil for the CPU backends.
	//
	// Returns:
	//   - *MeshBuffers: the device streams or nil
	MeshBuffers() *MeshBuffers

	// BatchSize returns the number of vertices per parallel task.
	//
	// Returns:
	//   - int: the batch size
	BatchSize() int

	// SetBatchSize changes the number of vertices per parallel task from the next frame on.
	// Values below 1 are ignored. Only the parallel backend uses the batch size.
	//
	// Parameters:
	//   - size: the new batch size
	SetBatchSize(size int)

	// Release frees everything the skinner owns. Buffers supplied with WithMeshBuffers and
	// pools supplied with WithWorkerPool are left untouched. Subsequent calls are no-ops.
	Release()
}

var _ Skinner = &skinner{}

// NewSkinner creates a Skinner for m using the given backend.
//
// Parameters:
//   - backendType: the evaluation strategy
//   - m: the mesh to deform
//   - options: functional options to configure the skinner
//
// Returns:
//   - Skinner: the initialized skinner
//   - error: ErrNotDeformable, ErrMissingDevice, ErrBufferStride, shader.ErrVariantNotFound,
//     ErrUnknownBackend or a wrapped device error
func NewSkinner(backendType SkinnerBackendType, m model.SkinnedMesh, options ...SkinnerBuilderOption) (Skinner, error) {
	if m == nil {
		return nil, errors.New("skinner: NewSkinner requires a non-nil mesh")
	}
	s := &skinner{
		mu:          &sync.Mutex{},
		backendType: backendType,
		state:       StateUninitialized,
		mesh:        m,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Component(nil, "skinner")
	}
	s.logger = s.logger.With("mesh", m.Name(), "backend", backendType)

	if !m.Deformable() {
		return nil, ErrNotDeformable
	}

	var err error
	switch backendType {
	case BackendTypeSequential:
		s.output = mesh.NewDeformedMesh(m)
		s.backend = newSequentialSkinnerBackend(m, s.output, s.drawHook)
	case BackendTypeParallel:
		s.output = mesh.NewDeformedMesh(m)
		s.backend = newParallelSkinnerBackend(m, s.output, s.drawHook, s.pool, s.workers, s.batchSize)
	case BackendTypeGPU:
		s.backend, err = s.initGPU()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownBackend, backendType)
	}
	if err != nil {
		s.logger.Error("skinner initialization failed", "err", err)
		return nil, err
	}

	s.state = StateInitialized
	s.logger.Debug("skinner initialized", "vertices", m.VertexCount(), "bones", m.BoneCount(), "shapes", m.BlendShapeCount())
	return s, nil
}

// initGPU resolves the device buffers and kernel for the GPU backend.
func (s *skinner) initGPU() (skinnerBackend, error) {
	if s.device == nil {
		return nil, ErrMissingDevice
	}
	variant, err := shader.SelectVariant(s.mesh.BoneWeightCount(), s.mesh.HasBlendShapes())
	if err != nil {
		return nil, err
	}
	lib := s.library
	if lib == nil {
		if lib, err = shader.NewKernelLibrary(shader.WithVariants(variant)); err != nil {
			return nil, err
		}
	}
	desc, err := lib.Kernel(variant)
	if err != nil {
		return nil, err
	}

	buffers := s.meshBuffers
	if buffers == nil {
		if buffers, err = NewMeshBuffers(s.device, s.mesh); err != nil {
			return nil, fmt.Errorf("upload mesh streams: %w", err)
		}
		s.ownedMeshBuffers = buffers
		s.meshBuffers = buffers
	}

	backend, err := newGPUSkinnerBackend(s.device, s.mesh, desc, buffers)
	if err != nil {
		if s.ownedMeshBuffers != nil {
			s.ownedMeshBuffers.Release()
			s.ownedMeshBuffers = nil
		}
		return nil, err
	}
	return backend, nil
}

func (s *skinner) BackendType() SkinnerBackendType {
	return s.backendType
}

func (s *skinner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *skinner) Mesh() model.SkinnedMesh {
	return s.mesh
}

func (s *skinner) Evaluate(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed {
		return ErrReleased
	}
	if err := frame.validate(s.mesh); err != nil {
		return err
	}
	if err := s.backend.evaluate(frame); err != nil {
		return fmt.Errorf("evaluate %s: %w", s.mesh.Name(), err)
	}
	if s.state == StateInitialized {
		s.state = StateReady
		s.logger.Debug("skinner ready")
	}
	return nil
}

func (s *skinner) Output() mesh.DeformedMesh {
	return s.output
}

func (s *skinner) MeshBuffers() *MeshBuffers {
	if s.backendType != BackendTypeGPU {
		return nil
	}
	return s.meshBuffers
}

func (s *skinner) BatchSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchSize
}

func (s *skinner) SetBatchSize(size int) {
	if size < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSize = size
	if pb, ok := s.backend.(*parallelSkinnerBackend); ok {
		pb.setBatchSize(size)
	}
}

func (s *skinner) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed {
		return
	}
	s.backend.release()
	if s.ownedMeshBuffers != nil {
		s.ownedMeshBuffers.Release()
		s.ownedMeshBuffers = nil
	}
	s.state = StateDisposed
	s.logger.Debug("skinner released")
}
