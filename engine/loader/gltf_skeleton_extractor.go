package loader

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// gltfSkeletonExtractorImpl is the implementation of the gltfSkeletonExtractor interface.
type gltfSkeletonExtractorImpl struct {
	doc *gltf.Document
}

// gltfSkeletonExtractor reads skin data from a decoded glTF document.
type gltfSkeletonExtractor interface {
	// FindSkinForMesh finds which skin a node applies to a mesh.
	// Returns -1 if no node instantiates the mesh with a skin.
	//
	// Parameters:
	//   - meshIndex: the mesh index to find a skin for
	//
	// Returns:
	//   - int: the skin index, or -1 if none
	FindSkinForMesh(meshIndex int) int

	// BindPoses returns one bind pose per joint of a skin. Joints beyond the inverse bind matrix
	// accessor, or all joints when the skin has none, get the identity.
	//
	// Parameters:
	//   - skinIndex: the index of the skin
	//
	// Returns:
	//   - []mgl32.Mat4: the inverse bind matrices in joint order
	//   - error: error if the skin index or accessor is invalid
	BindPoses(skinIndex int) ([]mgl32.Mat4, error)

	// JointNames returns the node name of every joint of a skin.
	//
	// Parameters:
	//   - skinIndex: the index of the skin
	//
	// Returns:
	//   - []string: the joint names, "bone_<i>" for unnamed nodes
	JointNames(skinIndex int) []string
}

var _ gltfSkeletonExtractor = &gltfSkeletonExtractorImpl{}

// newGLTFSkeletonExtractor creates a new skeleton extractor for a decoded document.
//
// Parameters:
//   - doc: the decoded document
//
// Returns:
//   - gltfSkeletonExtractor: the skeleton extractor
func newGLTFSkeletonExtractor(doc *gltf.Document) gltfSkeletonExtractor {
	return &gltfSkeletonExtractorImpl{doc: doc}
}

func (e *gltfSkeletonExtractorImpl) FindSkinForMesh(meshIndex int) int {
	for _, node := range e.doc.Nodes {
		if node.Mesh != nil && *node.Mesh == meshIndex && node.Skin != nil {
			return *node.Skin
		}
	}
	return -1
}

func (e *gltfSkeletonExtractorImpl) BindPoses(skinIndex int) ([]mgl32.Mat4, error) {
	if skinIndex < 0 || skinIndex >= len(e.doc.Skins) {
		return nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}
	skin := e.doc.Skins[skinIndex]

	poses := make([]mgl32.Mat4, len(skin.Joints))
	for i := range poses {
		poses[i] = mgl32.Ident4()
	}
	if skin.InverseBindMatrices == nil {
		return poses, nil
	}

	idx := *skin.InverseBindMatrices
	if idx < 0 || idx >= len(e.doc.Accessors) {
		return nil, fmt.Errorf("inverse bind matrix accessor %d out of range", idx)
	}
	data, err := modeler.ReadAccessor(e.doc, e.doc.Accessors[idx], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read inverse bind matrices: %w", err)
	}
	matrices, ok := data.([][4][4]float32)
	if !ok {
		return nil, fmt.Errorf("inverse bind matrices: unexpected accessor data %T", data)
	}
	for i := range min(len(matrices), len(poses)) {
		poses[i] = gltfMatrix(matrices[i])
	}
	return poses, nil
}

func (e *gltfSkeletonExtractorImpl) JointNames(skinIndex int) []string {
	if skinIndex < 0 || skinIndex >= len(e.doc.Skins) {
		return nil
	}
	joints := e.doc.Skins[skinIndex].Joints
	names := make([]string, len(joints))
	for i, j := range joints {
		if j >= 0 && j < len(e.doc.Nodes) && e.doc.Nodes[j].Name != "" {
			names[i] = e.doc.Nodes[j].Name
			continue
		}
		names[i] = fmt.Sprintf("bone_%d", i)
	}
	return names
}

// gltfMatrix converts a column-major glTF MAT4 to mgl32, which is column-major as well.
func gltfMatrix(cols [4][4]float32) mgl32.Mat4 {
	var m mgl32.Mat4
	for c := range 4 {
		for r := range 4 {
			m[c*4+r] = cols[c][r]
		}
	}
	return m
}
