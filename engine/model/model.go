package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrEmptyMesh is returned when a mesh has no rest positions.
	ErrEmptyMesh = errors.New("model: mesh has no vertices")

	// ErrVertexCountMismatch is returned when a per-vertex stream length differs from the rest pose length.
	ErrVertexCountMismatch = errors.New("model: per-vertex stream length does not match vertex count")

	// ErrBoneWeightCount is returned when the bone weight count is outside [0, MaxBoneInfluences].
	ErrBoneWeightCount = errors.New("model: bone weight count out of range")

	// ErrBoneIndexOutOfRange is returned when a bone weight references a bone that has no bind pose.
	ErrBoneIndexOutOfRange = errors.New("model: bone index out of range")

	// ErrMissingBindPoses is returned when a skinned mesh has no bind poses.
	ErrMissingBindPoses = errors.New("model: skinned mesh has no bind poses")
)

// skinnedMesh is the implementation of the SkinnedMesh interface.
type skinnedMesh struct {
	name string

	restPositions []mgl32.Vec3
	normals       []mgl32.Vec3
	tangents      []mgl32.Vec4
	texCoords     []mgl32.Vec2
	indices       []uint32

	boneWeightCount int
	boneWeights     []BoneWeight
	bindPoses       []mgl32.Mat4

	blendShapes []BlendShape

	// flattened holds blend shape deltas in vertex-major order.
	flattened []mgl32.Vec3
}

// SkinnedMesh is the immutable mesh asset consumed by every skinning backend.
// It carries the rest pose, the per-vertex bone bindings, the bind poses and the blend shapes,
// and all of its invariants are checked once by NewSkinnedMesh.
//
// Slices returned by the accessors are shared with the mesh and must be treated as read-only.
type SkinnedMesh interface {
	// Name returns the debug name of the mesh.
	//
	// Returns:
	//   - string: the mesh name
	Name() string

	// VertexCount returns the number of vertices in the rest pose.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// BoneCount returns the number of bind poses, which is also the number of bone transforms a frame must supply.
	//
	// Returns:
	//   - int: the bone count
	BoneCount() int

	// BoneWeightCount returns how many influence slots of each BoneWeight are meaningful (0 to 4).
	//
	// Returns:
	//   - int: the number of meaningful influence slots
	BoneWeightCount() int

	// BlendShapeCount returns the number of blend shapes.
	//
	// Returns:
	//   - int: the blend shape count
	BlendShapeCount() int

	// Skinned reports whether bone skinning applies to this mesh.
	//
	// Returns:
	//   - bool: true when BoneWeightCount is greater than zero
	Skinned() bool

	// HasBlendShapes reports whether the mesh has at least one blend shape.
	//
	// Returns:
	//   - bool: true when BlendShapeCount is greater than zero
	HasBlendShapes() bool

	// Deformable reports whether any deformation applies to this mesh.
	// A mesh that is neither skinned nor has blend shapes needs no per-frame evaluation.
	//
	// Returns:
	//   - bool: true when the mesh is skinned or has blend shapes
	Deformable() bool

	// RestPositions returns the rest pose vertex positions.
	//
	// Returns:
	//   - []mgl32.Vec3: the rest pose positions
	RestPositions() []mgl32.Vec3

	// BoneWeights returns the per-vertex bone bindings, or nil when the mesh is not skinned.
	//
	// Returns:
	//   - []BoneWeight: one binding per vertex
	BoneWeights() []BoneWeight

	// BindPoses returns the per-bone bind pose matrices.
	//
	// Returns:
	//   - []mgl32.Mat4: one bind pose per bone
	BindPoses() []mgl32.Mat4

	// BlendShapes returns the blend shapes of the mesh.
	//
	// Returns:
	//   - []BlendShape: the blend shapes in declaration order
	BlendShapes() []BlendShape

	// BlendShapeDeltas returns the delta positions of a single blend shape.
	//
	// Parameters:
	//   - shape: the blend shape index
	//
	// Returns:
	//   - []mgl32.Vec3: one delta per vertex
	BlendShapeDeltas(shape int) []mgl32.Vec3

	// FlattenedBlendShapeDeltas returns every blend shape delta in a single vertex-major slice
	// indexed by vertex*BlendShapeCount()+shape. The slice is built once at construction.
	//
	// Returns:
	//   - []mgl32.Vec3: the flattened deltas, length VertexCount()*BlendShapeCount()
	FlattenedBlendShapeDeltas() []mgl32.Vec3

	// Indices returns the triangle list indices, or nil when the mesh carries no topology.
	//
	// Returns:
	//   - []uint32: the triangle indices
	Indices() []uint32

	// Normals returns the rest pose normals, or nil when none were supplied.
	//
	// Returns:
	//   - []mgl32.Vec3: the rest pose normals
	Normals() []mgl32.Vec3

	// Tangents returns the rest pose tangents (xyz + handedness), or nil when none were supplied.
	//
	// Returns:
	//   - []mgl32.Vec4: the rest pose tangents
	Tangents() []mgl32.Vec4

	// TexCoords returns the first UV channel, or nil when none was supplied.
	//
	// Returns:
	//   - []mgl32.Vec2: the texture coordinates
	TexCoords() []mgl32.Vec2
}

var _ SkinnedMesh = &skinnedMesh{}

// NewSkinnedMesh builds a SkinnedMesh from the provided options and validates it.
// Every structural problem is reported here so that backends never need per-frame checks.
//
// Parameters:
//   - options: functional options supplying the mesh streams
//
// Returns:
//   - SkinnedMesh: the validated mesh
//   - error: ErrEmptyMesh, ErrVertexCountMismatch, ErrBoneWeightCount, ErrMissingBindPoses or ErrBoneIndexOutOfRange
func NewSkinnedMesh(options ...SkinnedMeshBuilderOption) (SkinnedMesh, error) {
	m := &skinnedMesh{}
	for _, opt := range options {
		opt(m)
	}
	if err := m.validate(); err != nil {
		if m.name != "" {
			return nil, fmt.Errorf("mesh %q: %w", m.name, err)
		}
		return nil, err
	}
	if m.boneWeightCount == 0 {
		m.boneWeights = nil
	}
	m.flattened = flattenBlendShapes(m.blendShapes, len(m.restPositions))
	return m, nil
}

func (m *skinnedMesh) validate() error {
	vc := len(m.restPositions)
	if vc == 0 {
		return ErrEmptyMesh
	}
	if m.boneWeightCount < 0 || m.boneWeightCount > MaxBoneInfluences {
		return fmt.Errorf("%w: %d", ErrBoneWeightCount, m.boneWeightCount)
	}

	streams := []struct {
		name string
		n    int
	}{
		{"normals", len(m.normals)},
		{"tangents", len(m.tangents)},
		{"texcoords", len(m.texCoords)},
	}
	for _, s := range streams {
		if s.n != 0 && s.n != vc {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrVertexCountMismatch, s.name, s.n, vc)
		}
	}
	for i, idx := range m.indices {
		if int(idx) >= vc {
			return fmt.Errorf("%w: index %d references vertex %d", ErrVertexCountMismatch, i, idx)
		}
	}
	for _, bs := range m.blendShapes {
		if len(bs.DeltaPositions) != vc {
			return fmt.Errorf("%w: blend shape %q has %d deltas, want %d", ErrVertexCountMismatch, bs.Name, len(bs.DeltaPositions), vc)
		}
	}

	if m.boneWeightCount == 0 {
		return nil
	}
	if len(m.boneWeights) != vc {
		return fmt.Errorf("%w: %d bone weights, want %d", ErrVertexCountMismatch, len(m.boneWeights), vc)
	}
	if len(m.bindPoses) == 0 {
		return ErrMissingBindPoses
	}
	boneCount := uint32(len(m.bindPoses))
	for v, bw := range m.boneWeights {
		for s := range m.boneWeightCount {
			if bw.Indices[s] >= boneCount {
				return fmt.Errorf("%w: vertex %d slot %d references bone %d of %d", ErrBoneIndexOutOfRange, v, s, bw.Indices[s], boneCount)
			}
		}
	}
	return nil
}

func (m *skinnedMesh) Name() string {
	return m.name
}

func (m *skinnedMesh) VertexCount() int {
	return len(m.restPositions)
}

func (m *skinnedMesh) BoneCount() int {
	return len(m.bindPoses)
}

func (m *skinnedMesh) BoneWeightCount() int {
	return m.boneWeightCount
}

func (m *skinnedMesh) BlendShapeCount() int {
	return len(m.blendShapes)
}

func (m *skinnedMesh) Skinned() bool {
	return m.boneWeightCount > 0
}

func (m *skinnedMesh) HasBlendShapes() bool {
	return len(m.blendShapes) > 0
}

func (m *skinnedMesh) Deformable() bool {
	return m.Skinned() || m.HasBlendShapes()
}

func (m *skinnedMesh) RestPositions() []mgl32.Vec3 {
	return m.restPositions
}

func (m *skinnedMesh) BoneWeights() []BoneWeight {
	return m.boneWeights
}

func (m *skinnedMesh) BindPoses() []mgl32.Mat4 {
	return m.bindPoses
}

func (m *skinnedMesh) BlendShapes() []BlendShape {
	return m.blendShapes
}

func (m *skinnedMesh) BlendShapeDeltas(shape int) []mgl32.Vec3 {
	return m.blendShapes[shape].DeltaPositions
}

func (m *skinnedMesh) FlattenedBlendShapeDeltas() []mgl32.Vec3 {
	return m.flattened
}

// flattenBlendShapes interleaves per-shape delta arrays into one vertex-major slice.
func flattenBlendShapes(shapes []BlendShape, vertexCount int) []mgl32.Vec3 {
	if len(shapes) == 0 {
		return nil
	}
	bsCount := len(shapes)
	flat := make([]mgl32.Vec3, vertexCount*bsCount)
	for s, bs := range shapes {
		for v, d := range bs.DeltaPositions {
			flat[v*bsCount+s] = d
		}
	}
	return flat
}

func (m *skinnedMesh) Indices() []uint32 {
	return m.indices
}

func (m *skinnedMesh) Normals() []mgl32.Vec3 {
	return m.normals
}

func (m *skinnedMesh) Tangents() []mgl32.Vec4 {
	return m.tangents
}

func (m *skinnedMesh) TexCoords() []mgl32.Vec2 {
	return m.texCoords
}
