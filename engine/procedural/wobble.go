package procedural

import (
	"math"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/go-gl/mathgl/mgl32"
)

// Wobble returns a frame source for any mesh: every bone rocks around its own bind-space origin
// by up to amplitude radians, and blend shape weights sweep through [0, 100] out of phase with
// each other.
//
// Parameters:
//   - m: the mesh to animate
//   - amplitude: the peak bone rotation in radians
//
// Returns:
//   - func(frame int) skinner.Frame: the frame source
func Wobble(m model.SkinnedMesh, amplitude float32) func(frame int) skinner.Frame {
	bind := m.BindPoses()
	inverse := make([]mgl32.Mat4, len(bind))
	for b, p := range bind {
		inverse[b] = p.Inv()
	}
	shapes := m.BlendShapeCount()

	return func(frame int) skinner.Frame {
		var f skinner.Frame
		if m.Skinned() {
			f.BoneTransforms = make([]mgl32.Mat4, len(inverse))
			for b := range inverse {
				phase := float64(frame)*0.05 + float64(b)*0.7
				angle := amplitude * float32(math.Sin(phase))
				// Posed as inverse(bind) * R, so the current pose is inverse(bind) * R * bind.
				f.BoneTransforms[b] = inverse[b].Mul4(mgl32.HomogRotate3DZ(angle))
			}
		}
		if shapes > 0 {
			f.BlendShapeWeights = make([]float32, shapes)
			for s := range f.BlendShapeWeights {
				f.BlendShapeWeights[s] = 50 + 50*float32(math.Sin(float64(frame)*0.1+float64(s)))
			}
		}
		return f
	}
}
