package skinner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
)

// failingDevice wraps a SoftDevice and fails every CreateBuffer call after the first allow calls.
type failingDevice struct {
	*gpu.SoftDevice
	allow int
}

var errOutOfMemory = errors.New("out of device memory")

func (d *failingDevice) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if d.allow <= 0 {
		return nil, fmt.Errorf("%s: %w", desc.Label, errOutOfMemory)
	}
	d.allow--
	return d.SoftDevice.CreateBuffer(desc)
}

func TestGPUReleaseKeepsExternalBuffers(t *testing.T) {
	m := randomMesh(t, 1, meshConfig{vertices: 20, bones: 3, boneWeightCount: 2, shapes: 2})
	dev := newSoftDevice()
	buffers, err := NewMeshBuffers(dev, m)
	if err != nil {
		t.Fatalf("NewMeshBuffers() error = %v", err)
	}
	external := dev.LiveBuffers()
	if external != 4 {
		t.Fatalf("LiveBuffers() = %d after NewMeshBuffers, want 4", external)
	}

	s, err := NewSkinner(BackendTypeGPU, m, WithLogger(logger.Discard()), WithDevice(dev), WithMeshBuffers(buffers))
	if err != nil {
		t.Fatalf("NewSkinner() error = %v", err)
	}
	// params, rest positions, bind poses, current poses and blend shape weights.
	if got := dev.LiveBuffers(); got != external+5 {
		t.Errorf("LiveBuffers() = %d after init, want %d", got, external+5)
	}
	evaluate(t, s, randomFrame(1, m))

	s.Release()
	s.Release()
	if got := dev.LiveBuffers(); got != external {
		t.Errorf("LiveBuffers() = %d after Release, want %d", got, external)
	}
	if got := dev.DoubleReleases(); got != 0 {
		t.Errorf("DoubleReleases() = %d, want 0", got)
	}
	if _, err := dev.ReadBuffer(buffers.Position); err != nil {
		t.Errorf("ReadBuffer(position) after Release error = %v, want nil", err)
	}

	buffers.Release()
	buffers.Release()
	if got := dev.LiveBuffers(); got != 0 {
		t.Errorf("LiveBuffers() = %d after releasing mesh buffers, want 0", got)
	}
}

func TestGPUReleasesSelfUploadedBuffers(t *testing.T) {
	m := randomMesh(t, 2, meshConfig{vertices: 9, shapes: 1})
	dev := newSoftDevice()
	s := newTestSkinner(t, BackendTypeGPU, m, dev)
	if s.MeshBuffers() == nil {
		t.Fatal("MeshBuffers() = nil for the GPU backend")
	}
	if s.Output() != nil {
		t.Error("Output() != nil for the GPU backend")
	}
	s.Release()
	if got := dev.LiveBuffers(); got != 0 {
		t.Errorf("LiveBuffers() = %d after Release, want 0", got)
	}
}

func TestGPUStrideMismatch(t *testing.T) {
	m := randomMesh(t, 3, meshConfig{vertices: 10, bones: 2, boneWeightCount: 3, shapes: 1})
	tests := []struct {
		name   string
		mutate func(t *testing.T, dev *gpu.SoftDevice, b *MeshBuffers)
	}{
		{"short positions", func(t *testing.T, dev *gpu.SoftDevice, b *MeshBuffers) {
			b.Position = newBuffer(t, dev, 9*12, gpu.BufferUsageStorage|gpu.BufferUsageCopySrc)
		}},
		{"shading stride", func(t *testing.T, dev *gpu.SoftDevice, b *MeshBuffers) {
			b.Shading = newBuffer(t, dev, 10*24, gpu.BufferUsageStorage)
		}},
		{"bone weights for two slots", func(t *testing.T, dev *gpu.SoftDevice, b *MeshBuffers) {
			b.BoneWeights = newBuffer(t, dev, 10*16, gpu.BufferUsageStorage)
		}},
		{"missing deltas", func(t *testing.T, dev *gpu.SoftDevice, b *MeshBuffers) {
			b.BlendShapeDeltas = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newSoftDevice()
			buffers, err := NewMeshBuffers(dev, m)
			if err != nil {
				t.Fatalf("NewMeshBuffers() error = %v", err)
			}
			tt.mutate(t, dev, buffers)
			before := dev.LiveBuffers()

			_, err = NewSkinner(BackendTypeGPU, m, WithLogger(logger.Discard()), WithDevice(dev), WithMeshBuffers(buffers))
			if !errors.Is(err, ErrBufferStride) {
				t.Fatalf("NewSkinner() error = %v, want ErrBufferStride", err)
			}
			if got := dev.LiveBuffers(); got != before {
				t.Errorf("LiveBuffers() = %d after failed init, want %d", got, before)
			}
		})
	}
}

func newBuffer(t *testing.T, dev *gpu.SoftDevice, size uint64, usage gpu.BufferUsage) gpu.Buffer {
	t.Helper()
	buf, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "test", Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return buf
}

func TestGPUMissingVariant(t *testing.T) {
	m := randomMesh(t, 4, meshConfig{vertices: 5, bones: 2, boneWeightCount: 2})
	lib, err := shader.NewKernelLibrary(shader.WithVariants(shader.Variant{BoneWeightCount: 4, BlendShapes: true}))
	if err != nil {
		t.Fatalf("NewKernelLibrary() error = %v", err)
	}
	dev := newSoftDevice()
	_, err = NewSkinner(BackendTypeGPU, m, WithLogger(logger.Discard()), WithDevice(dev), WithKernelLibrary(lib))
	if !errors.Is(err, shader.ErrVariantNotFound) {
		t.Fatalf("NewSkinner() error = %v, want ErrVariantNotFound", err)
	}
	if got := dev.LiveBuffers(); got != 0 {
		t.Errorf("LiveBuffers() = %d after failed init, want 0", got)
	}
}

func TestGPUSharedKernelLibrary(t *testing.T) {
	lib, err := shader.NewKernelLibrary()
	if err != nil {
		t.Fatalf("NewKernelLibrary() error = %v", err)
	}
	dev := newSoftDevice()
	for i, cfg := range conformanceConfigs {
		m := randomMesh(t, uint64(i+1), cfg)
		s := newTestSkinner(t, BackendTypeGPU, m, dev, WithKernelLibrary(lib))
		evaluate(t, s, randomFrame(uint64(i), m))
	}
}

func TestGPUMissingDevice(t *testing.T) {
	m := randomMesh(t, 5, meshConfig{vertices: 5, shapes: 1})
	if _, err := NewSkinner(BackendTypeGPU, m, WithLogger(logger.Discard())); !errors.Is(err, ErrMissingDevice) {
		t.Errorf("NewSkinner() error = %v, want ErrMissingDevice", err)
	}
	if _, err := NewMeshBuffers(nil, m); !errors.Is(err, ErrMissingDevice) {
		t.Errorf("NewMeshBuffers() error = %v, want ErrMissingDevice", err)
	}
}

func TestGPUAllocationFailureReleasesOwned(t *testing.T) {
	m := randomMesh(t, 6, meshConfig{vertices: 8, bones: 2, boneWeightCount: 4, shapes: 2})
	// NewMeshBuffers allocates 4 buffers; the backend then allocates params, rest, bind, current and weights.
	for allow := 4; allow < 9; allow++ {
		t.Run(fmt.Sprintf("allow_%d", allow), func(t *testing.T) {
			dev := &failingDevice{SoftDevice: newSoftDevice(), allow: allow}
			_, err := NewSkinner(BackendTypeGPU, m, WithLogger(logger.Discard()), WithDevice(dev))
			if !errors.Is(err, errOutOfMemory) {
				t.Fatalf("NewSkinner() error = %v, want errOutOfMemory", err)
			}
			if got := dev.LiveBuffers(); got != 0 {
				t.Errorf("LiveBuffers() = %d after failed init, want 0", got)
			}
			if got := dev.DoubleReleases(); got != 0 {
				t.Errorf("DoubleReleases() = %d, want 0", got)
			}
		})
	}
}

func TestGPUMeshBufferUploadFailure(t *testing.T) {
	m := randomMesh(t, 7, meshConfig{vertices: 8, bones: 2, boneWeightCount: 1, shapes: 1})
	for allow := range 4 {
		dev := &failingDevice{SoftDevice: newSoftDevice(), allow: allow}
		if _, err := NewMeshBuffers(dev, m); !errors.Is(err, errOutOfMemory) {
			t.Errorf("NewMeshBuffers(allow %d) error = %v, want errOutOfMemory", allow, err)
		}
		if got := dev.LiveBuffers(); got != 0 {
			t.Errorf("LiveBuffers() = %d after failed upload, want 0", got)
		}
	}
}

func TestGPUDispatchGroupCount(t *testing.T) {
	tests := []struct {
		vertices int
		want     uint32
	}{
		{1, 1},
		{16, 1},
		{17, 2},
		{32, 2},
		{33, 3},
	}
	for _, tt := range tests {
		m := randomMesh(t, 8, meshConfig{vertices: tt.vertices, shapes: 1})
		dev := newSoftDevice()
		s := newTestSkinner(t, BackendTypeGPU, m, dev)
		evaluate(t, s, Frame{BlendShapeWeights: []float32{30}})
		if got := dev.LastGroups()[0]; got != tt.want {
			t.Errorf("%d vertices: groups = %d, want %d", tt.vertices, got, tt.want)
		}
	}
}
