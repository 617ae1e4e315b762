package loader

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/charmbracelet/log"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger is an option builder that sets the logger used by the Loader.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(l *log.Logger) LoaderBuilderOption {
	return func(ld *loader) {
		ld.logger = l
	}
}

// WithMeshes is an option builder that pre-populates the cache with meshes.
//
// Parameters:
//   - key: the cache key for the meshes
//   - meshes: the meshes to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the meshes option to a loader
func WithMeshes(key string, meshes ...model.SkinnedMesh) LoaderBuilderOption {
	return func(l *loader) {
		l.meshCache[key] = meshes
	}
}
