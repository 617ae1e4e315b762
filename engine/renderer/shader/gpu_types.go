package shader

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// Bindings of the skinning kernel in group 0.
const (
	BindingParams            uint32 = 0
	BindingRestPositions     uint32 = 1
	BindingPositions         uint32 = 2
	BindingShading           uint32 = 3
	BindingBoneWeights       uint32 = 4
	BindingBindPoses         uint32 = 5
	BindingCurrentPoses      uint32 = 6
	BindingBlendShapeDeltas  uint32 = 7
	BindingBlendShapeWeights uint32 = 8
)

// WorkgroupSize is the number of vertices one workgroup of the skinning kernel deforms.
const WorkgroupSize uint32 = 16

// EntryPoint is the compute entry point of the skinning kernel.
const EntryPoint = "skin_main"

// GPUSkinParamsSource is the canonical WGSL definition of the SkinParams uniform struct.
// Matches GPUSkinParams layout exactly (16 bytes).
//
//go:embed assets/skin_params.wgsl
var GPUSkinParamsSource string

// SkinningKernelSource is the annotated WGSL source of the skinning kernel.
//
//go:embed assets/skinning.wgsl
var SkinningKernelSource string

// GPUSkinParams is the per-mesh uniform block of the skinning kernel.
// Size: 16 bytes (uniform buffers require 16-byte alignment).
type GPUSkinParams struct {
	VertexCount     uint32 // offset  0
	BlendShapeCount uint32 // offset  4
	BoneCount       uint32 // offset  8
	_               uint32 // offset 12: padding
}

// Size returns the size of the GPUSkinParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUSkinParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSkinParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUSkinParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.BlendShapeCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.BoneCount)
	return buf
}
