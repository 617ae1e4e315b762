package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// SoftSkinningKernel returns a Go implementation of skin_main specialized for v, for use
// with gpu.SoftDevice. It reads and writes the same bindings with the same layouts as the
// WGSL kernel, including the vertex_count bounds check.
//
// Parameters:
//   - v: the variant
//
// Returns:
//   - gpu.SoftKernelFunc: the kernel body
func SoftSkinningKernel(v Variant) gpu.SoftKernelFunc {
	n := uint32(v.BoneWeightCount)
	return func(id uint32, b gpu.SoftBindings) {
		vertexCount := b.U32(BindingParams, 0)
		if id >= vertexCount {
			return
		}
		base := id * 3
		blended := mgl32.Vec3{
			b.F32(BindingRestPositions, base),
			b.F32(BindingRestPositions, base+1),
			b.F32(BindingRestPositions, base+2),
		}

		if v.BlendShapes {
			shapes := b.U32(BindingParams, 1)
			first := id * shapes
			for s := range shapes {
				w := b.F32(BindingBlendShapeWeights, s)
				if w == 0 {
					continue
				}
				d := (first + s) * 3
				delta := mgl32.Vec3{
					b.F32(BindingBlendShapeDeltas, d),
					b.F32(BindingBlendShapeDeltas, d+1),
					b.F32(BindingBlendShapeDeltas, d+2),
				}
				blended = blended.Add(delta.Mul(w))
			}
		}

		skinned := blended
		if n > 0 {
			skinned = mgl32.Vec3{}
			h := blended.Vec4(1)
			wb := id * n * 2
			for i := range n {
				bone := b.U32(BindingBoneWeights, wb+i)
				weight := b.F32(BindingBoneWeights, wb+n+i)
				pose := readMat4(b, BindingCurrentPoses, bone).Mul4(readMat4(b, BindingBindPoses, bone))
				skinned = skinned.Add(pose.Mul4x1(h).Vec3().Mul(weight))
			}
		}

		b.SetF32(BindingPositions, base, skinned[0])
		b.SetF32(BindingPositions, base+1, skinned[1])
		b.SetF32(BindingPositions, base+2, skinned[2])
	}
}

func readMat4(b gpu.SoftBindings, binding, index uint32) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range uint32(16) {
		m[i] = b.F32(binding, index*16+i)
	}
	return m
}

// SoftKernelResolver resolves skinning kernel descriptors produced by a KernelLibrary to their
// Go implementations. It is meant to be passed to gpu.NewSoftDevice.
//
// Parameters:
//   - desc: the kernel descriptor
//
// Returns:
//   - gpu.SoftKernelFunc: the kernel body
//   - error: gpu.ErrKernelNotFound if desc.Key names no skinning variant
func SoftKernelResolver(desc gpu.KernelDescriptor) (gpu.SoftKernelFunc, error) {
	for _, v := range AllVariants() {
		if v.Key() == desc.Key {
			return SoftSkinningKernel(v), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", gpu.ErrKernelNotFound, desc.Key)
}
