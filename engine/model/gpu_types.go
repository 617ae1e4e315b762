package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Byte strides of the per-vertex device streams shared by the mesh pipeline and the GPU skinning kernel.
const (
	// PositionStride is the stride of the position stream: 3 x f32, tightly packed.
	PositionStride = common.Vec3Size

	// ShadingStride is the stride of the shading stream: normal (3 x f32) followed by tangent (4 x f32).
	ShadingStride = 7 * 4

	// BlendShapeDeltaStride is the stride of one (vertex, shape) delta: 3 x f32.
	BlendShapeDeltaStride = common.Vec3Size

	// MatrixStride is the stride of one column-major 4x4 matrix.
	MatrixStride = common.Mat4Size
)

// BoneWeightStride returns the per-vertex stride of the bone weight stream for the given influence count.
// Each vertex stores count u32 bone indices followed by count f32 weights.
//
// Parameters:
//   - count: the number of influence slots (0 to 4)
//
// Returns:
//   - int: the stride in bytes
func BoneWeightStride(count int) int {
	return count * 8
}

// GPUShadingVertex is the device representation of one entry of the shading stream.
// Size: 28 bytes, tightly packed (the stream is read as a flat array<f32>).
type GPUShadingVertex struct {
	Normal  [3]float32 // offset  0: vertex normal (12 bytes)
	Tangent [4]float32 // offset 12: tangent xyz + handedness w (16 bytes)
}

// Size returns the size of the GPUShadingVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUShadingVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUShadingVertex into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 28-byte buffer ready for GPU upload.
func (g *GPUShadingVertex) Marshal() []byte {
	buf := make([]byte, ShadingStride)
	common.PutFloat32s(buf[0:12], g.Normal[:])
	common.PutFloat32s(buf[12:28], g.Tangent[:])
	return buf
}

// GPUBoneWeight is the device representation of one vertex of the bone weight stream for a given influence count.
type GPUBoneWeight struct {
	BoneWeight
	Count int // meaningful slots, 0 to 4
}

// Size returns the packed size of the GPUBoneWeight in bytes.
//
// Returns:
//   - int: the size in bytes.
func (g *GPUBoneWeight) Size() int {
	return BoneWeightStride(g.Count)
}

// MarshalTo writes Count indices then Count weight bit patterns into dst.
//
// Parameters:
//   - dst: destination buffer of at least Size() bytes
func (g *GPUBoneWeight) MarshalTo(dst []byte) {
	for i := range g.Count {
		binary.LittleEndian.PutUint32(dst[i*4:], g.Indices[i])
		binary.LittleEndian.PutUint32(dst[(g.Count+i)*4:], math.Float32bits(g.Weights[i]))
	}
}

// MarshalPositions encodes the rest pose of the mesh as the position stream.
//
// Parameters:
//   - m: the mesh to encode
//
// Returns:
//   - []byte: VertexCount()*PositionStride bytes
func MarshalPositions(m SkinnedMesh) []byte {
	return common.Vec3sToBytes(nil, m.RestPositions())
}

// MarshalShading encodes the rest pose normals and tangents as the shading stream.
// Missing normals default to +Z and missing tangents to +X with positive handedness.
//
// Parameters:
//   - m: the mesh to encode
//
// Returns:
//   - []byte: VertexCount()*ShadingStride bytes
func MarshalShading(m SkinnedMesh) []byte {
	normals, tangents := m.Normals(), m.Tangents()
	buf := make([]byte, m.VertexCount()*ShadingStride)
	for v := range m.VertexCount() {
		s := GPUShadingVertex{Normal: [3]float32{0, 0, 1}, Tangent: [4]float32{1, 0, 0, 1}}
		if normals != nil {
			s.Normal = normals[v]
		}
		if tangents != nil {
			s.Tangent = tangents[v]
		}
		copy(buf[v*ShadingStride:], s.Marshal())
	}
	return buf
}

// MarshalBoneWeights encodes the bone weight stream using the mesh's influence count.
// Returns nil for meshes that are not skinned.
//
// Parameters:
//   - m: the mesh to encode
//
// Returns:
//   - []byte: VertexCount()*BoneWeightStride(BoneWeightCount()) bytes, or nil
func MarshalBoneWeights(m SkinnedMesh) []byte {
	count := m.BoneWeightCount()
	if count == 0 {
		return nil
	}
	stride := BoneWeightStride(count)
	buf := make([]byte, m.VertexCount()*stride)
	for v, bw := range m.BoneWeights() {
		g := GPUBoneWeight{BoneWeight: bw, Count: count}
		g.MarshalTo(buf[v*stride:])
	}
	return buf
}

// MarshalBlendShapeDeltas encodes the vertex-major flattened blend shape deltas.
// Returns nil for meshes without blend shapes.
//
// Parameters:
//   - m: the mesh to encode
//
// Returns:
//   - []byte: VertexCount()*BlendShapeCount()*BlendShapeDeltaStride bytes, or nil
func MarshalBlendShapeDeltas(m SkinnedMesh) []byte {
	if !m.HasBlendShapes() {
		return nil
	}
	return common.Vec3sToBytes(nil, m.FlattenedBlendShapeDeltas())
}

// MarshalMatrices encodes matrices as a column-major array<mat4x4<f32>> into dst, reusing its capacity.
//
// Parameters:
//   - dst: reusable destination buffer, may be nil
//   - ms: the matrices to encode
//
// Returns:
//   - []byte: len(ms)*MatrixStride bytes
func MarshalMatrices(dst []byte, ms []mgl32.Mat4) []byte {
	return common.Mat4sToBytes(dst, ms)
}
