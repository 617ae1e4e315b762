package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/charmbracelet/log"
)

// ErrUnsupportedFormat is returned for a file extension no backend handles.
var ErrUnsupportedFormat = errors.New("loader: unsupported model format")

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	logger *log.Logger

	meshCache map[string][]model.SkinnedMesh

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching deformable meshes.
// It abstracts the file format (glTF, GLB, etc.) behind a generic backend and
// manages a cache of previously loaded meshes.
type Loader interface {
	// Load imports a model file and caches the result.
	// If the file is already cached (by path), the cached meshes are returned.
	// Every triangle primitive becomes one SkinnedMesh.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - []model.SkinnedMesh: the loaded and cached meshes
	//   - error: ErrUnsupportedFormat or a wrapped decode/validation error
	Load(path string) ([]model.SkinnedMesh, error)

	// LoadReader imports a model from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded meshes
	//   - r: the reader providing glTF JSON or GLB data
	//
	// Returns:
	//   - []model.SkinnedMesh: the loaded meshes
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) ([]model.SkinnedMesh, error)

	// Get retrieves cached meshes by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - []model.SkinnedMesh: the cached meshes or nil
	Get(name string) []model.SkinnedMesh

	// Models returns a copy of the full cache.
	//
	// Returns:
	//   - map[string][]model.SkinnedMesh: all cached meshes keyed by name
	Models() map[string][]model.SkinnedMesh
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:        sync.RWMutex{},
		meshCache: make(map[string][]model.SkinnedMesh),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	if l.logger == nil {
		l.logger = logger.Component(nil, "loader")
	}
	return l
}

func (l *loader) Load(path string) ([]model.SkinnedMesh, error) {
	if cached := l.Get(path); cached != nil {
		return cached, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	meshes, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	l.store(path, meshes)
	return meshes, nil
}

func (l *loader) LoadReader(name string, r io.Reader) ([]model.SkinnedMesh, error) {
	if cached := l.Get(name); cached != nil {
		return cached, nil
	}
	if l.backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrUnsupportedFormat)
	}

	meshes, err := l.backend.LoadReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	l.store(name, meshes)
	return meshes, nil
}

func (l *loader) store(key string, meshes []model.SkinnedMesh) {
	l.mu.Lock()
	l.meshCache[key] = meshes
	l.mu.Unlock()

	for _, m := range meshes {
		l.logger.Debug("mesh loaded", "source", key, "mesh", m.Name(),
			"vertices", m.VertexCount(), "bones", m.BoneCount(), "shapes", m.BlendShapeCount())
	}
	l.logger.Info("model loaded", "source", key, "meshes", len(meshes))
}

func (l *loader) Get(name string) []model.SkinnedMesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Models() map[string][]model.SkinnedMesh {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string][]model.SkinnedMesh, len(l.meshCache))
	for k, v := range l.meshCache {
		result[k] = v
	}
	return result
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		if l.backend != nil {
			return l.backend, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}
