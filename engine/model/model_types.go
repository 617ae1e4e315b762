package model

import (
	"github.com/go-gl/mathgl/mgl32"
)

// MaxBoneInfluences is the maximum number of (bone, weight) pairs a vertex can carry.
const MaxBoneInfluences = 4

// BoneWeight binds a vertex to up to MaxBoneInfluences bones.
// Only the first SkinnedMesh.BoneWeightCount() slots are meaningful; the rest must be zero.
// Weights are used as given and are not renormalized.
type BoneWeight struct {
	Indices [MaxBoneInfluences]uint32  // bone indices into the bind pose / bone transform arrays
	Weights [MaxBoneInfluences]float32 // blend weight of each influence
}

// SingleBone returns a BoneWeight with a full weight on one bone.
//
// Parameters:
//   - bone: the bone index
//
// Returns:
//   - BoneWeight: the binding with slot 0 set to (bone, 1.0)
func SingleBone(bone uint32) BoneWeight {
	return BoneWeight{Indices: [MaxBoneInfluences]uint32{bone}, Weights: [MaxBoneInfluences]float32{1}}
}

// BlendShape is a named morph target holding one delta position per vertex.
// DeltaNormals and DeltaTangents are optional and are carried for asset consumers only.
type BlendShape struct {
	Name           string
	DeltaPositions []mgl32.Vec3
	DeltaNormals   []mgl32.Vec3
	DeltaTangents  []mgl32.Vec3
}
