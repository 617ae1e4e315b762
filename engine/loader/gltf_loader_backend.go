package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/qmuntal/gltf"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct{}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// Decoding is done by github.com/qmuntal/gltf; extraction by gltfMeshExtractor.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() gltfLoaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string) ([]model.SkinnedMesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(doc).ExtractAllMeshes()
}

func (b *gltfLoaderBackendImpl) LoadReader(r io.Reader) ([]model.SkinnedMesh, error) {
	var doc gltf.Document
	if err := gltf.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return newGLTFMeshExtractor(&doc).ExtractAllMeshes()
}
