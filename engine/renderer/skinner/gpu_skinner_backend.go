package skinner

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
)

// gpuSkinnerBackend owns the device resources of one skinned mesh and re-dispatches the skinning
// kernel every frame. Mesh streams are bound as external buffers; the rest pose copy, params,
// poses and weights are owned and released with the buffer set.
type gpuSkinnerBackend struct {
	mu *sync.Mutex

	device gpu.Device
	kernel gpu.Kernel
	set    gpu.BufferSet

	vertexCount uint32
	skinned     bool
	blendShapes bool

	// per-frame upload scratch
	poseBytes   []byte
	weights     []float32
	weightBytes []byte
}

var _ skinnerBackend = &gpuSkinnerBackend{}

func newGPUSkinnerBackend(d gpu.Device, m model.SkinnedMesh, desc gpu.KernelDescriptor, buffers *MeshBuffers) (*gpuSkinnerBackend, error) {
	if err := buffers.checkStrides(m); err != nil {
		return nil, err
	}

	b := &gpuSkinnerBackend{
		mu:          &sync.Mutex{},
		device:      d,
		set:         gpu.NewBufferSet(desc.Key),
		vertexCount: uint32(m.VertexCount()),
		skinned:     m.Skinned(),
		blendShapes: m.HasBlendShapes(),
	}

	kernel, err := d.CreateKernel(desc)
	if err != nil {
		return nil, fmt.Errorf("create kernel %s: %w", desc.Key, err)
	}
	b.kernel = kernel

	if err := b.bind(m, buffers); err != nil {
		b.release()
		return nil, err
	}
	return b, nil
}

// bind allocates the owned buffers, registers every buffer in the set and builds the bind group.
func (b *gpuSkinnerBackend) bind(m model.SkinnedMesh, buffers *MeshBuffers) error {
	b.set.Set(shader.BindingPositions, buffers.Position, gpu.OwnershipExternal)
	b.set.Set(shader.BindingShading, buffers.Shading, gpu.OwnershipExternal)

	params := shader.GPUSkinParams{
		VertexCount:     b.vertexCount,
		BlendShapeCount: uint32(m.BlendShapeCount()),
		BoneCount:       uint32(m.BoneCount()),
	}
	paramsBuf, err := gpu.CreateBufferWithData(b.device, gpu.BufferDescriptor{
		Label: "skin params",
		Usage: gpu.BufferUsageUniform,
	}, params.Marshal())
	if err != nil {
		return fmt.Errorf("allocate params: %w", err)
	}
	b.set.Set(shader.BindingParams, paramsBuf, gpu.OwnershipOwned)

	// The rest pose is copied from the live position stream before it is ever deformed.
	restSize := buffers.Position.Size()
	rest, err := b.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "rest positions",
		Size:  restSize,
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("allocate rest positions: %w", err)
	}
	b.set.Set(shader.BindingRestPositions, rest, gpu.OwnershipOwned)
	if err := b.device.CopyBuffer(buffers.Position, rest, restSize); err != nil {
		return fmt.Errorf("copy rest positions: %w", err)
	}

	if b.skinned {
		b.set.Set(shader.BindingBoneWeights, buffers.BoneWeights, gpu.OwnershipExternal)

		bindPoses, err := gpu.CreateBufferWithData(b.device, gpu.BufferDescriptor{
			Label: "bind poses",
			Usage: gpu.BufferUsageStorage,
		}, model.MarshalMatrices(nil, m.BindPoses()))
		if err != nil {
			return fmt.Errorf("allocate bind poses: %w", err)
		}
		b.set.Set(shader.BindingBindPoses, bindPoses, gpu.OwnershipOwned)

		size := uint64(m.BoneCount() * model.MatrixStride)
		current, err := b.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "current poses",
			Size:  size,
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("allocate current poses: %w", err)
		}
		b.set.Set(shader.BindingCurrentPoses, current, gpu.OwnershipOwned)
		b.poseBytes = make([]byte, size)
	}

	if b.blendShapes {
		b.set.Set(shader.BindingBlendShapeDeltas, buffers.BlendShapeDeltas, gpu.OwnershipExternal)

		b.weights = make([]float32, m.BlendShapeCount())
		b.weightBytes = make([]byte, 4*len(b.weights))
		weights, err := b.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "blend shape weights",
			Size:  uint64(len(b.weightBytes)),
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("allocate blend shape weights: %w", err)
		}
		b.set.Set(shader.BindingBlendShapeWeights, weights, gpu.OwnershipOwned)
	}

	bg, err := b.device.CreateBindGroup(b.kernel, b.set.Entries())
	if err != nil {
		return fmt.Errorf("bind %s: %w", b.set.Label(), err)
	}
	b.set.SetBindGroup(bg)
	return nil
}

func (b *gpuSkinnerBackend) evaluate(frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.skinned {
		b.poseBytes = model.MarshalMatrices(b.poseBytes, frame.BoneTransforms)
		b.set.Stage(shader.BindingCurrentPoses, 0, b.poseBytes)
	}
	if b.blendShapes {
		normalizeWeights(b.weights, frame.BlendShapeWeights)
		common.PutFloat32s(b.weightBytes, b.weights)
		b.set.Stage(shader.BindingBlendShapeWeights, 0, b.weightBytes)
	}
	if err := b.set.Flush(b.device); err != nil {
		return err
	}

	groups := common.CeilDiv(b.vertexCount, b.kernel.WorkgroupSize())
	if err := b.device.Dispatch(b.kernel, b.set.BindGroup(), [3]uint32{groups, 1, 1}); err != nil {
		return fmt.Errorf("dispatch %s: %w", b.kernel.Key(), err)
	}
	return nil
}

func (b *gpuSkinnerBackend) release() {
	b.set.Release()
	if b.kernel != nil {
		b.kernel.Release()
		b.kernel = nil
	}
}
