package skinner

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// MeshBuffers are the device streams a mesh pipeline owns and the GPU backend deforms in place.
// BoneWeights is nil for meshes that are not skinned and BlendShapeDeltas is nil for meshes
// without blend shapes.
type MeshBuffers struct {
	Position         gpu.Buffer
	Shading          gpu.Buffer
	BoneWeights      gpu.Buffer
	BlendShapeDeltas gpu.Buffer
}

// NewMeshBuffers uploads the streams of m the way a mesh pipeline would. The caller owns the
// returned buffers and releases them with Release once every skinner using them is released.
//
// Parameters:
//   - d: the device to allocate on
//   - m: the mesh to upload
//
// Returns:
//   - *MeshBuffers: the uploaded streams
//   - error: a wrapped device error; buffers created before the failure are released
func NewMeshBuffers(d gpu.Device, m model.SkinnedMesh) (*MeshBuffers, error) {
	if d == nil {
		return nil, ErrMissingDevice
	}
	b := &MeshBuffers{}
	var err error

	if b.Position, err = gpu.CreateBufferWithData(d, gpu.BufferDescriptor{
		Label: m.Name() + " positions",
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageVertex | gpu.BufferUsageCopySrc,
	}, model.MarshalPositions(m)); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	if b.Shading, err = gpu.CreateBufferWithData(d, gpu.BufferDescriptor{
		Label: m.Name() + " shading",
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageVertex,
	}, model.MarshalShading(m)); err != nil {
		b.Release()
		return nil, fmt.Errorf("shading: %w", err)
	}
	if m.Skinned() {
		if b.BoneWeights, err = gpu.CreateBufferWithData(d, gpu.BufferDescriptor{
			Label: m.Name() + " bone weights",
			Usage: gpu.BufferUsageStorage,
		}, model.MarshalBoneWeights(m)); err != nil {
			b.Release()
			return nil, fmt.Errorf("bone weights: %w", err)
		}
	}
	if m.HasBlendShapes() {
		if b.BlendShapeDeltas, err = gpu.CreateBufferWithData(d, gpu.BufferDescriptor{
			Label: m.Name() + " blend shape deltas",
			Usage: gpu.BufferUsageStorage,
		}, model.MarshalBlendShapeDeltas(m)); err != nil {
			b.Release()
			return nil, fmt.Errorf("blend shape deltas: %w", err)
		}
	}
	return b, nil
}

// Release releases every non-nil stream and clears the fields, so repeated calls are no-ops.
func (b *MeshBuffers) Release() {
	for _, buf := range []*gpu.Buffer{&b.Position, &b.Shading, &b.BoneWeights, &b.BlendShapeDeltas} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
}

// checkStrides verifies that every stream the mesh needs is present and sized for its stride.
func (b *MeshBuffers) checkStrides(m model.SkinnedMesh) error {
	vc := uint64(m.VertexCount())
	streams := []struct {
		name   string
		buf    gpu.Buffer
		want   uint64
		needed bool
	}{
		{"positions", b.Position, vc * model.PositionStride, true},
		{"shading", b.Shading, vc * model.ShadingStride, true},
		{"bone weights", b.BoneWeights, vc * uint64(model.BoneWeightStride(m.BoneWeightCount())), m.Skinned()},
		{"blend shape deltas", b.BlendShapeDeltas, vc * uint64(m.BlendShapeCount()) * model.BlendShapeDeltaStride, m.HasBlendShapes()},
	}
	for _, s := range streams {
		if !s.needed {
			continue
		}
		if s.buf == nil {
			return fmt.Errorf("%w: %s buffer missing", ErrBufferStride, s.name)
		}
		if s.buf.Size() != s.want {
			return fmt.Errorf("%w: %s buffer is %d bytes, want %d", ErrBufferStride, s.name, s.buf.Size(), s.want)
		}
	}
	return nil
}
