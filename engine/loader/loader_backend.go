package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// loaderBackend defines the generic interface for loading meshes from files or streams.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load imports every mesh primitive of the given file.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - []model.SkinnedMesh: the imported meshes
	//   - error: error if loading fails
	Load(path string) ([]model.SkinnedMesh, error)

	// LoadReader imports every mesh primitive from a reader stream.
	// Buffers referenced by relative URIs are not resolved.
	//
	// Parameters:
	//   - r: the reader providing model data
	//
	// Returns:
	//   - []model.SkinnedMesh: the imported meshes
	//   - error: error if loading fails
	LoadReader(r io.Reader) ([]model.SkinnedMesh, error)
}
