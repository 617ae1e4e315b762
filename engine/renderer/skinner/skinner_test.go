package skinner

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/logger"
	"github.com/Carmen-Shannon/oxy-skin/engine/mesh"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		name    string
		want    SkinnerBackendType
		wantErr bool
	}{
		{"sequential", BackendTypeSequential, false},
		{"Parallel", BackendTypeParallel, false},
		{" gpu ", BackendTypeGPU, false},
		{"vulkan", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBackendType(tt.name)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownBackend) {
				t.Errorf("ParseBackendType(%q) error = %v, want ErrUnknownBackend", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseBackendType(%q) = %v, %v, want %v", tt.name, got, err, tt.want)
		}
	}
	if got := SkinnerBackendType(9).String(); got != "SkinnerBackendType(9)" {
		t.Errorf("String() = %q, want SkinnerBackendType(9)", got)
	}
}

func TestNewSkinnerNotDeformable(t *testing.T) {
	m, err := model.NewSkinnedMesh(model.WithRestPositions([]mgl32.Vec3{{0, 0, 0}}))
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}
	for _, bt := range allBackends {
		if _, err := NewSkinner(bt, m, WithLogger(logger.Discard()), WithDevice(newSoftDevice())); !errors.Is(err, ErrNotDeformable) {
			t.Errorf("NewSkinner(%s) error = %v, want ErrNotDeformable", bt, err)
		}
	}
}

func TestNewSkinnerUnknownBackend(t *testing.T) {
	m := randomMesh(t, 1, meshConfig{vertices: 4, shapes: 1})
	if _, err := NewSkinner(SkinnerBackendType(42), m, WithLogger(logger.Discard())); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("NewSkinner() error = %v, want ErrUnknownBackend", err)
	}
}

func TestEvaluateFrameMismatch(t *testing.T) {
	m := randomMesh(t, 2, meshConfig{vertices: 8, bones: 3, boneWeightCount: 2, shapes: 2})
	good := randomFrame(2, m)
	tests := []struct {
		name  string
		frame Frame
	}{
		{"missing bones", Frame{BoneTransforms: good.BoneTransforms[:2], BlendShapeWeights: good.BlendShapeWeights}},
		{"extra weights", Frame{BoneTransforms: good.BoneTransforms, BlendShapeWeights: []float32{1, 2, 3}}},
		{"empty", Frame{}},
	}
	for _, bt := range allBackends {
		s := newTestSkinner(t, bt, m, newSoftDevice())
		for _, tt := range tests {
			if err := s.Evaluate(tt.frame); !errors.Is(err, ErrFrameMismatch) {
				t.Errorf("%s Evaluate(%s) error = %v, want ErrFrameMismatch", bt, tt.name, err)
			}
		}
		if got := s.State(); got != StateInitialized {
			t.Errorf("%s State() = %v after rejected frames, want %v", bt, got, StateInitialized)
		}
	}
}

func TestSkinnerLifecycle(t *testing.T) {
	m := randomMesh(t, 3, meshConfig{vertices: 10, bones: 2, boneWeightCount: 1})
	f := randomFrame(3, m)
	for _, bt := range allBackends {
		t.Run(bt.String(), func(t *testing.T) {
			s := newTestSkinner(t, bt, m, newSoftDevice())
			if got := s.State(); got != StateInitialized {
				t.Fatalf("State() = %v, want %v", got, StateInitialized)
			}
			evaluate(t, s, f)
			if got := s.State(); got != StateReady {
				t.Fatalf("State() = %v, want %v", got, StateReady)
			}
			s.Release()
			s.Release()
			if got := s.State(); got != StateDisposed {
				t.Fatalf("State() = %v, want %v", got, StateDisposed)
			}
			if err := s.Evaluate(f); !errors.Is(err, ErrReleased) {
				t.Errorf("Evaluate() after Release error = %v, want ErrReleased", err)
			}
		})
	}
}

func TestDrawHookReceivesOutput(t *testing.T) {
	m := randomMesh(t, 4, meshConfig{vertices: 12, shapes: 1})
	for _, bt := range []SkinnerBackendType{BackendTypeSequential, BackendTypeParallel} {
		t.Run(bt.String(), func(t *testing.T) {
			var calls int
			var seen mesh.DeformedMesh
			s := newTestSkinner(t, bt, m, nil, WithDrawHook(func(dm mesh.DeformedMesh) {
				calls++
				seen = dm
			}))
			evaluate(t, s, Frame{BlendShapeWeights: []float32{100}})
			evaluate(t, s, Frame{BlendShapeWeights: []float32{50}})
			if calls != 2 {
				t.Errorf("draw hook called %d times, want 2", calls)
			}
			if seen != s.Output() {
				t.Error("draw hook did not receive Output()")
			}
			if got := s.Output().Version(); got != 2 {
				t.Errorf("Output().Version() = %d, want 2", got)
			}
			if s.MeshBuffers() != nil {
				t.Error("MeshBuffers() != nil for a CPU backend")
			}
		})
	}
}

func TestParallelBatchSizes(t *testing.T) {
	m := randomMesh(t, 6, meshConfig{vertices: 100, bones: 4, boneWeightCount: 3, shapes: 2})
	f := randomFrame(6, m)
	seq := newTestSkinner(t, BackendTypeSequential, m, nil)
	evaluate(t, seq, f)
	want := seq.Output().Positions()

	for _, size := range []int{1, 3, 64, 100, 1000} {
		s := newTestSkinner(t, BackendTypeParallel, m, nil, WithBatchSize(size))
		evaluate(t, s, f)
		got := s.Output().Positions()
		for v := range want {
			if got[v] != want[v] {
				t.Fatalf("batch size %d vertex %d = %v, want %v", size, v, got[v], want[v])
			}
		}
	}
}

func TestComputeCurrentPoses(t *testing.T) {
	transforms := []mgl32.Mat4{mgl32.Translate3D(1, 0, 0), mgl32.Scale3D(2, 2, 2)}
	bind := []mgl32.Mat4{mgl32.Translate3D(0, 1, 0), mgl32.Translate3D(0, 0, -1)}
	dst := make([]mgl32.Mat4, 2)
	computeCurrentPoses(dst, transforms, bind)

	p := mgl32.Vec4{0, 0, 0, 1}
	if got, want := dst[0].Mul4x1(p).Vec3(), (mgl32.Vec3{1, 1, 0}); got != want {
		t.Errorf("pose[0] * origin = %v, want %v", got, want)
	}
	if got, want := dst[1].Mul4x1(p).Vec3(), (mgl32.Vec3{0, 0, -2}); got != want {
		t.Errorf("pose[1] * origin = %v, want %v", got, want)
	}
}

func TestNormalizeWeights(t *testing.T) {
	dst := make([]float32, 3)
	normalizeWeights(dst, []float32{0, 100, 50})
	want := []float32{0, 1, 0.5}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("normalizeWeights()[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateReady:         "ready",
		StateDisposed:      "disposed",
		State(99):          "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestReleaseStopsOwnedPool(t *testing.T) {
	m := randomMesh(t, 8, meshConfig{vertices: 40, bones: 3, boneWeightCount: 2})
	f := randomFrame(8, m)
	before := runtime.NumGoroutine()

	for range 10 {
		s := newTestSkinner(t, BackendTypeParallel, m, nil, WithWorkers(4))
		evaluate(t, s, f)
		s.Release()
	}
	waitForGoroutines(t, before)
}

func TestReleaseKeepsSuppliedPool(t *testing.T) {
	m := randomMesh(t, 9, meshConfig{vertices: 40, bones: 3, boneWeightCount: 2})
	f := randomFrame(9, m)
	pool := worker.NewDynamicWorkerPool(2, 16, time.Second)
	defer ShutdownPool(pool)

	first := newTestSkinner(t, BackendTypeParallel, m, nil, WithWorkerPool(pool))
	evaluate(t, first, f)
	first.Release()

	second := newTestSkinner(t, BackendTypeParallel, m, nil, WithWorkerPool(pool))
	evaluate(t, second, f)
}

func TestShutdownPoolEndsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	pool := worker.NewDynamicWorkerPool(6, 4, time.Second)
	if runtime.NumGoroutine() < before+6 {
		t.Fatalf("runtime.NumGoroutine() = %d, want >= %d", runtime.NumGoroutine(), before+6)
	}
	ShutdownPool(pool)
	waitForGoroutines(t, before)
}

func TestSetBatchSize(t *testing.T) {
	m := randomMesh(t, 10, meshConfig{vertices: 50, bones: 3, boneWeightCount: 2, shapes: 1})
	f := randomFrame(10, m)
	seq := newTestSkinner(t, BackendTypeSequential, m, nil)
	evaluate(t, seq, f)
	want := seq.Output().Positions()

	s := newTestSkinner(t, BackendTypeParallel, m, nil)
	tests := []struct {
		set  int
		want int
	}{
		{set: 5, want: 5},
		{set: 0, want: 5},
		{set: 64, want: 64},
	}
	for _, tt := range tests {
		s.SetBatchSize(tt.set)
		if got := s.BatchSize(); got != tt.want {
			t.Errorf("SetBatchSize(%d): BatchSize() = %d, want %d", tt.set, got, tt.want)
		}
		evaluate(t, s, f)
		got := s.Output().Positions()
		for v := range want {
			if got[v] != want[v] {
				t.Fatalf("batch size %d vertex %d = %v, want %v", tt.want, v, got[v], want[v])
			}
		}
	}
}
