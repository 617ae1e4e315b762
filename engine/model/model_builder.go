package model

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// SkinnedMeshBuilderOption is a functional option for configuring a SkinnedMesh via NewSkinnedMesh.
// Options copy the slices they receive so the caller may reuse its buffers afterwards.
type SkinnedMeshBuilderOption func(*skinnedMesh)

// WithName is an option builder that sets the debug name of the mesh.
//
// Parameters:
//   - name: the mesh identifier
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the name option to a mesh
func WithName(name string) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.name = name
	}
}

// WithRestPositions is an option builder that sets the rest pose positions, which also fixes the vertex count.
//
// Parameters:
//   - positions: one position per vertex
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the rest positions to a mesh
func WithRestPositions(positions []mgl32.Vec3) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.restPositions = slices.Clone(positions)
	}
}

// WithBoneWeights is an option builder that sets the per-vertex bone bindings and how many slots are meaningful.
//
// Parameters:
//   - count: number of meaningful influence slots per vertex (0 to 4)
//   - weights: one binding per vertex
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the bone weights to a mesh
func WithBoneWeights(count int, weights []BoneWeight) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.boneWeightCount = count
		m.boneWeights = slices.Clone(weights)
	}
}

// WithBindPoses is an option builder that sets the per-bone bind pose matrices.
//
// Parameters:
//   - poses: one world-to-bone matrix per bone, in skeleton order
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the bind poses to a mesh
func WithBindPoses(poses []mgl32.Mat4) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.bindPoses = slices.Clone(poses)
	}
}

// WithBlendShapes is an option builder that appends blend shapes to the mesh.
//
// Parameters:
//   - shapes: the blend shapes to append
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the blend shapes to a mesh
func WithBlendShapes(shapes ...BlendShape) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		for _, bs := range shapes {
			bs.DeltaPositions = slices.Clone(bs.DeltaPositions)
			m.blendShapes = append(m.blendShapes, bs)
		}
	}
}

// WithIndices is an option builder that sets the triangle list used to rebuild normals and tangents.
//
// Parameters:
//   - indices: triangle list indices
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the indices to a mesh
func WithIndices(indices []uint32) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.indices = slices.Clone(indices)
	}
}

// WithNormals is an option builder that sets the rest pose normals.
//
// Parameters:
//   - normals: one normal per vertex
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the normals to a mesh
func WithNormals(normals []mgl32.Vec3) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.normals = slices.Clone(normals)
	}
}

// WithTangents is an option builder that sets the rest pose tangents.
//
// Parameters:
//   - tangents: one tangent per vertex, w holding the bitangent sign
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the tangents to a mesh
func WithTangents(tangents []mgl32.Vec4) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.tangents = slices.Clone(tangents)
	}
}

// WithTexCoords is an option builder that sets the first UV channel.
//
// Parameters:
//   - uvs: one texture coordinate per vertex
//
// Returns:
//   - SkinnedMeshBuilderOption: a function that applies the texture coordinates to a mesh
func WithTexCoords(uvs []mgl32.Vec2) SkinnedMeshBuilderOption {
	return func(m *skinnedMesh) {
		m.texCoords = slices.Clone(uvs)
	}
}
