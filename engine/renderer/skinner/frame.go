package skinner

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// BlendShapeWeightScale converts authored blend shape weights in [0, 100] to blend factors.
const BlendShapeWeightScale float32 = 0.01

// Frame carries the per-frame inputs supplied by the animation system.
type Frame struct {
	// BoneTransforms maps each bone's local space to world space, ordered like the mesh bind poses.
	// Ignored for meshes that are not skinned.
	BoneTransforms []mgl32.Mat4

	// BlendShapeWeights holds one authored weight in [0, 100] per blend shape.
	// Ignored for meshes without blend shapes.
	BlendShapeWeights []float32
}

// validate checks that the frame lengths agree with the mesh.
func (f Frame) validate(m model.SkinnedMesh) error {
	if m.Skinned() && len(f.BoneTransforms) != m.BoneCount() {
		return fmt.Errorf("%w: %d bone transforms for %d bones", ErrFrameMismatch, len(f.BoneTransforms), m.BoneCount())
	}
	if m.HasBlendShapes() && len(f.BlendShapeWeights) != m.BlendShapeCount() {
		return fmt.Errorf("%w: %d blend shape weights for %d shapes", ErrFrameMismatch, len(f.BlendShapeWeights), m.BlendShapeCount())
	}
	return nil
}

// computeCurrentPoses writes BoneTransform[b] * BindPose[b] into dst for every bone.
func computeCurrentPoses(dst, transforms, bindPoses []mgl32.Mat4) {
	for b := range dst {
		dst[b] = transforms[b].Mul4(bindPoses[b])
	}
}

// normalizeWeights writes the authored weights scaled by BlendShapeWeightScale into dst.
func normalizeWeights(dst, weights []float32) {
	for s := range dst {
		dst[s] = weights[s] * BlendShapeWeightScale
	}
}
