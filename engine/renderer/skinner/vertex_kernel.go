package skinner

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// vertexKernel holds the read-only inputs of the per-vertex skinning step for one frame.
// Both CPU backends deform vertices through deformRange, so their results are bit-identical.
type vertexKernel struct {
	rest            []mgl32.Vec3
	boneWeights     []model.BoneWeight
	boneWeightCount int

	shapeCount int
	// deltas is vertex-major: deltas[v*shapeCount+s].
	deltas []mgl32.Vec3

	// weights and poses are refreshed every frame by the owning backend.
	weights []float32
	poses   []mgl32.Mat4
}

func newVertexKernel(m model.SkinnedMesh) vertexKernel {
	return vertexKernel{
		rest:            m.RestPositions(),
		boneWeights:     m.BoneWeights(),
		boneWeightCount: m.BoneWeightCount(),
		shapeCount:      m.BlendShapeCount(),
		deltas:          m.FlattenedBlendShapeDeltas(),
		weights:         make([]float32, m.BlendShapeCount()),
		poses:           make([]mgl32.Mat4, m.BoneCount()),
	}
}

// prepare runs the per-frame pose update and weight normalization.
func (k *vertexKernel) prepare(m model.SkinnedMesh, frame Frame) {
	if k.boneWeightCount > 0 {
		computeCurrentPoses(k.poses, frame.BoneTransforms, m.BindPoses())
	}
	if k.shapeCount > 0 {
		normalizeWeights(k.weights, frame.BlendShapeWeights)
	}
}

// deformVertex returns the deformed position of vertex v.
func (k *vertexKernel) deformVertex(v int) mgl32.Vec3 {
	blended := k.rest[v]
	if k.shapeCount > 0 {
		first := v * k.shapeCount
		for s, w := range k.weights {
			if w == 0 {
				continue
			}
			blended = blended.Add(k.deltas[first+s].Mul(w))
		}
	}
	if k.boneWeightCount == 0 {
		return blended
	}

	h := blended.Vec4(1)
	bw := k.boneWeights[v]
	var out mgl32.Vec3
	for i := range k.boneWeightCount {
		out = out.Add(k.poses[bw.Indices[i]].Mul4x1(h).Vec3().Mul(bw.Weights[i]))
	}
	return out
}

// deformRange writes deformed positions for vertices [lo, hi) into out.
func (k *vertexKernel) deformRange(out []mgl32.Vec3, lo, hi int) {
	for v := lo; v < hi; v++ {
		out[v] = k.deformVertex(v)
	}
}
