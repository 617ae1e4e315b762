package skinner

import (
	"math/rand/v2"
	"runtime"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

type meshConfig struct {
	vertices        int
	bones           int
	boneWeightCount int
	shapes          int
}

func randomVec3(r *rand.Rand, scale float32) mgl32.Vec3 {
	return mgl32.Vec3{
		(r.Float32()*2 - 1) * scale,
		(r.Float32()*2 - 1) * scale,
		(r.Float32()*2 - 1) * scale,
	}
}

func randomTransform(r *rand.Rand) mgl32.Mat4 {
	axis := randomVec3(r, 1)
	if axis.Len() < 1e-3 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	t := randomVec3(r, 2)
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(mgl32.HomogRotate3D(r.Float32()*6.28, axis.Normalize())).
		Mul4(mgl32.Scale3D(0.5+r.Float32(), 0.5+r.Float32(), 0.5+r.Float32()))
}

func randomMesh(t *testing.T, seed uint64, cfg meshConfig) model.SkinnedMesh {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	rest := make([]mgl32.Vec3, cfg.vertices)
	for i := range rest {
		rest[i] = randomVec3(r, 1)
	}
	options := []model.SkinnedMeshBuilderOption{
		model.WithName("random"),
		model.WithRestPositions(rest),
	}

	if cfg.boneWeightCount > 0 {
		weights := make([]model.BoneWeight, cfg.vertices)
		for v := range weights {
			for s := range cfg.boneWeightCount {
				weights[v].Indices[s] = uint32(r.IntN(cfg.bones))
				weights[v].Weights[s] = r.Float32()
			}
		}
		bind := make([]mgl32.Mat4, cfg.bones)
		for b := range bind {
			bind[b] = randomTransform(r).Inv()
		}
		options = append(options, model.WithBoneWeights(cfg.boneWeightCount, weights), model.WithBindPoses(bind))
	}

	shapes := make([]model.BlendShape, cfg.shapes)
	for s := range shapes {
		shapes[s].Name = "shape"
		shapes[s].DeltaPositions = make([]mgl32.Vec3, cfg.vertices)
		for v := range shapes[s].DeltaPositions {
			shapes[s].DeltaPositions[v] = randomVec3(r, 0.3)
		}
	}
	if len(shapes) > 0 {
		options = append(options, model.WithBlendShapes(shapes...))
	}

	m, err := model.NewSkinnedMesh(options...)
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}
	return m
}

func randomFrame(seed uint64, m model.SkinnedMesh) Frame {
	r := rand.New(rand.NewPCG(seed, 7))
	var f Frame
	if m.Skinned() {
		f.BoneTransforms = make([]mgl32.Mat4, m.BoneCount())
		for b := range f.BoneTransforms {
			f.BoneTransforms[b] = randomTransform(r)
		}
	}
	if m.HasBlendShapes() {
		f.BlendShapeWeights = make([]float32, m.BlendShapeCount())
		for s := range f.BlendShapeWeights {
			// Every third shape stays at zero to exercise the skip path.
			if s%3 != 0 {
				f.BlendShapeWeights[s] = r.Float32() * 100
			}
		}
	}
	return f
}

func newSoftDevice() *gpu.SoftDevice {
	return gpu.NewSoftDevice(shader.SoftKernelResolver)
}

// newTestSkinner creates a skinner with a discarded logger; GPU skinners get dev when it is non-nil.
func newTestSkinner(t *testing.T, backendType SkinnerBackendType, m model.SkinnedMesh, dev *gpu.SoftDevice, options ...SkinnerBuilderOption) Skinner {
	t.Helper()
	options = append([]SkinnerBuilderOption{WithLogger(logger.Discard()), WithBatchSize(7), WithWorkers(3)}, options...)
	if backendType == BackendTypeGPU && dev != nil {
		options = append(options, WithDevice(dev))
	}
	s, err := NewSkinner(backendType, m, options...)
	if err != nil {
		t.Fatalf("NewSkinner(%s) error = %v", backendType, err)
	}
	t.Cleanup(s.Release)
	return s
}

// positionsOf returns the deformed positions of a skinner. GPU output is read back from the soft device.
func positionsOf(t *testing.T, s Skinner, dev *gpu.SoftDevice) []mgl32.Vec3 {
	t.Helper()
	if s.BackendType() != BackendTypeGPU {
		return s.Output().Positions()
	}
	data, err := dev.ReadBuffer(s.MeshBuffers().Position)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	return common.BytesToVec3s(data)
}

func evaluate(t *testing.T, s Skinner, f Frame) {
	t.Helper()
	if err := s.Evaluate(f); err != nil {
		t.Fatalf("Evaluate(%s) error = %v", s.BackendType(), err)
	}
}

var allBackends = []SkinnerBackendType{BackendTypeSequential, BackendTypeParallel, BackendTypeGPU}

// approxEqual compares with a tolerance relative to the magnitude of want, floored at 1.
func approxEqual(got, want mgl32.Vec3, tolerance float32) bool {
	scale := max(want.Len(), 1)
	return got.Sub(want).Len() <= tolerance*scale
}

// waitForGoroutines polls until at most limit goroutines are running or the deadline passes.
func waitForGoroutines(t *testing.T, limit int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > limit {
		if time.Now().After(deadline) {
			t.Fatalf("runtime.NumGoroutine() = %d, want <= %d", runtime.NumGoroutine(), limit)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
