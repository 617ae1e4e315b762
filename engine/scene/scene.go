package scene

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrNilFrameSource is returned when an object is added without a frame source.
var ErrNilFrameSource = errors.New("scene: frame source must not be nil")

// FrameSource produces the skinning input of an object for a frame number.
type FrameSource func(frame int) skinner.Frame

// object is one scheduled skinner and the source of its per-frame input.
type object struct {
	id     uuid.UUID
	skin   skinner.Skinner
	source FrameSource
}

// Scene is a registry of skinned objects that are evaluated together once per tick.
// Every object added through Add gets a Skinner built with the scene's backend, device, kernel
// library and worker pool. Objects whose mesh has nothing to deform are skipped, and objects
// whose skinner fails to initialize are never scheduled.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Active returns whether Tick evaluates this scene.
	Active() bool

	// SetActive sets whether Tick evaluates this scene.
	SetActive(active bool)

	// Backend returns the backend new objects are created with.
	Backend() skinner.SkinnerBackendType

	// SetBatchSize changes the parallel batch size of every scheduled object and of objects
	// added later. Values below 1 are ignored.
	//
	// Parameters:
	//   - size: the number of vertices per parallel task
	SetBatchSize(size int)

	// Add creates a Skinner for m and schedules it with source.
	// A mesh without bone weights or blend shapes is logged and skipped: Add returns uuid.Nil
	// and a nil error.
	//
	// Parameters:
	//   - m: the mesh to deform
	//   - source: the per-frame input of the object
	//   - options: skinner options applied after the scene defaults (draw hook, mesh buffers, ...)
	//
	// Returns:
	//   - uuid.UUID: the assigned object ID, or uuid.Nil if the mesh was skipped
	//   - error: ErrNilFrameSource or the skinner initialization error
	Add(m model.SkinnedMesh, source FrameSource, options ...skinner.SkinnerBuilderOption) (uuid.UUID, error)

	// AddSkinner schedules an already initialized Skinner. The scene takes ownership and releases
	// it on Remove, Clear or Release.
	//
	// Parameters:
	//   - sk: the skinner
	//   - source: the per-frame input of the object
	//
	// Returns:
	//   - uuid.UUID: the assigned object ID
	//   - error: ErrNilFrameSource
	AddSkinner(sk skinner.Skinner, source FrameSource) (uuid.UUID, error)

	// Get returns the Skinner of an object, or nil if id is not scheduled.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - skinner.Skinner: the skinner or nil
	Get(id uuid.UUID) skinner.Skinner

	// IDs returns the scheduled object IDs in evaluation order.
	//
	// Returns:
	//   - []uuid.UUID: the object IDs
	IDs() []uuid.UUID

	// Count returns the number of scheduled objects.
	//
	// Returns:
	//   - int: the object count
	Count() int

	// Remove unschedules an object and releases its Skinner. Unknown IDs are ignored.
	//
	// Parameters:
	//   - id: the object ID
	Remove(id uuid.UUID)

	// Clear removes and releases every object.
	Clear()

	// Tick evaluates every scheduled object for frame in insertion order and records each
	// evaluation time with the profiler under the backend name. A failing object does not stop
	// the others; all failures are returned joined.
	//
	// Parameters:
	//   - frame: the frame number passed to every frame source
	//
	// Returns:
	//   - error: the joined evaluation errors, or nil
	Tick(frame int) error

	// Release clears the scene and shuts down the worker pool if the scene created it.
	Release()
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name   string
	active bool

	objects []*object
	index   map[uuid.UUID]*object

	backend   skinner.SkinnerBackendType
	batchSize int
	device    gpu.Device
	library   shader.KernelLibrary
	profiler  *profiler.Profiler
	logger    *log.Logger

	// pool is shared by every parallel skinner of the scene. Workers persist across frames.
	pool         worker.DynamicWorkerPool
	ownsPool     bool
	poolWorkers  int
	poolQueue    int
	poolIdleTime time.Duration
}

var _ Scene = &scene{}

// NewScene creates a new Scene with the provided options.
// The backend defaults to Sequential. When the backend is Parallel and no pool was supplied, a
// pool with runtime.NumCPU()-1 workers is created and shared by every object.
//
// Parameters:
//   - name: the scene identifier
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:           &sync.RWMutex{},
		name:         name,
		active:       true,
		index:        make(map[uuid.UUID]*object),
		backend:      skinner.BackendTypeSequential,
		batchSize:    skinner.DefaultBatchSize,
		poolWorkers:  max(runtime.NumCPU()-1, 1),
		poolQueue:    256,
		poolIdleTime: 1 * time.Second,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Component(nil, "scene")
	}
	s.logger = s.logger.With("scene", name)

	if s.pool == nil && s.backend == skinner.BackendTypeParallel {
		s.pool = worker.NewDynamicWorkerPool(s.poolWorkers, s.poolQueue, s.poolIdleTime)
		s.ownsPool = true
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Backend() skinner.SkinnerBackendType {
	return s.backend
}

func (s *scene) SetBatchSize(size int) {
	if size < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSize = size
	for _, o := range s.objects {
		o.skin.SetBatchSize(size)
	}
}

func (s *scene) Add(m model.SkinnedMesh, source FrameSource, options ...skinner.SkinnerBuilderOption) (uuid.UUID, error) {
	if source == nil {
		return uuid.Nil, ErrNilFrameSource
	}

	s.mu.RLock()
	batchSize := s.batchSize
	s.mu.RUnlock()

	opts := []skinner.SkinnerBuilderOption{
		skinner.WithLogger(s.logger),
		skinner.WithBatchSize(batchSize),
	}
	if s.pool != nil {
		opts = append(opts, skinner.WithWorkerPool(s.pool))
	}
	if s.device != nil {
		opts = append(opts, skinner.WithDevice(s.device))
	}
	if s.library != nil {
		opts = append(opts, skinner.WithKernelLibrary(s.library))
	}
	opts = append(opts, options...)

	sk, err := skinner.NewSkinner(s.backend, m, opts...)
	if errors.Is(err, skinner.ErrNotDeformable) {
		s.logger.Info("mesh has nothing to deform, skipping", "mesh", m.Name())
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("scene %s: add %s: %w", s.name, m.Name(), err)
	}
	return s.AddSkinner(sk, source)
}

func (s *scene) AddSkinner(sk skinner.Skinner, source FrameSource) (uuid.UUID, error) {
	if source == nil {
		return uuid.Nil, ErrNilFrameSource
	}
	o := &object{id: uuid.New(), skin: sk, source: source}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, o)
	s.index[o.id] = o
	s.logger.Debug("object scheduled", "id", o.id, "mesh", sk.Mesh().Name(), "backend", sk.BackendType())
	return o.id, nil
}

func (s *scene) Get(id uuid.UUID) skinner.Skinner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.index[id]; ok {
		return o.skin
	}
	return nil
}

func (s *scene) IDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, len(s.objects))
	for i, o := range s.objects {
		ids[i] = o.id
	}
	return ids
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Remove(id uuid.UUID) {
	s.mu.Lock()
	o, ok := s.index[id]
	if ok {
		delete(s.index, id)
		s.objects = slices.DeleteFunc(s.objects, func(x *object) bool { return x == o })
	}
	s.mu.Unlock()

	if ok {
		o.skin.Release()
	}
}

func (s *scene) Clear() {
	s.mu.Lock()
	objects := s.objects
	s.objects = nil
	s.index = make(map[uuid.UUID]*object)
	s.mu.Unlock()

	for _, o := range objects {
		o.skin.Release()
	}
}

func (s *scene) Tick(frame int) error {
	s.mu.RLock()
	if !s.active {
		s.mu.RUnlock()
		return nil
	}
	objects := slices.Clone(s.objects)
	s.mu.RUnlock()

	var errs []error
	for _, o := range objects {
		start := time.Now()
		if err := o.skin.Evaluate(o.source(frame)); err != nil {
			s.logger.Error("evaluation failed", "id", o.id, "frame", frame, "err", err)
			errs = append(errs, fmt.Errorf("object %s: %w", o.id, err))
			continue
		}
		if s.profiler != nil {
			s.profiler.Record(o.skin.BackendType().String(), time.Since(start))
		}
	}
	return errors.Join(errs...)
}

func (s *scene) Release() {
	s.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsPool {
		skinner.ShutdownPool(s.pool)
		s.pool = nil
		s.ownsPool = false
	}
}
