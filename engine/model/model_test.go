package model

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func triangle() []mgl32.Vec3 {
	return []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
}

func TestNewSkinnedMeshValidation(t *testing.T) {
	tests := []struct {
		name    string
		options []SkinnedMeshBuilderOption
		want    error
	}{
		{
			name: "empty",
			want: ErrEmptyMesh,
		},
		{
			name: "bone weight count too large",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(5, make([]BoneWeight, 3)),
				WithBindPoses([]mgl32.Mat4{mgl32.Ident4()}),
			},
			want: ErrBoneWeightCount,
		},
		{
			name: "bone weight length",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(1, make([]BoneWeight, 2)),
				WithBindPoses([]mgl32.Mat4{mgl32.Ident4()}),
			},
			want: ErrVertexCountMismatch,
		},
		{
			name: "missing bind poses",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(1, make([]BoneWeight, 3)),
			},
			want: ErrMissingBindPoses,
		},
		{
			name: "bone index out of range",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(1, []BoneWeight{SingleBone(0), SingleBone(1), SingleBone(0)}),
				WithBindPoses([]mgl32.Mat4{mgl32.Ident4()}),
			},
			want: ErrBoneIndexOutOfRange,
		},
		{
			name: "blend shape length",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBlendShapes(BlendShape{Name: "smile", DeltaPositions: make([]mgl32.Vec3, 2)}),
			},
			want: ErrVertexCountMismatch,
		},
		{
			name: "index past end",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithIndices([]uint32{0, 1, 3}),
			},
			want: ErrVertexCountMismatch,
		},
		{
			name: "normals length",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithNormals(make([]mgl32.Vec3, 1)),
			},
			want: ErrVertexCountMismatch,
		},
		{
			name: "unused slots are not checked",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(1, []BoneWeight{
					{Indices: [4]uint32{0, 9}, Weights: [4]float32{1}},
					SingleBone(0),
					SingleBone(0),
				}),
				WithBindPoses([]mgl32.Mat4{mgl32.Ident4()}),
			},
		},
		{
			name:    "rest pose only",
			options: []SkinnedMeshBuilderOption{WithRestPositions(triangle())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSkinnedMesh(tt.options...)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("NewSkinnedMesh() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("NewSkinnedMesh() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSkinnedMeshCapabilities(t *testing.T) {
	deltas := []mgl32.Vec3{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}}
	tests := []struct {
		name          string
		options       []SkinnedMeshBuilderOption
		skinned       bool
		blendShapes   bool
		deformable    bool
		boneWeightCnt int
	}{
		{
			name:    "static",
			options: []SkinnedMeshBuilderOption{WithRestPositions(triangle())},
		},
		{
			name: "skinned",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBoneWeights(2, make([]BoneWeight, 3)),
				WithBindPoses([]mgl32.Mat4{mgl32.Ident4()}),
			},
			skinned: true, deformable: true, boneWeightCnt: 2,
		},
		{
			name: "blend shapes only",
			options: []SkinnedMeshBuilderOption{
				WithRestPositions(triangle()),
				WithBlendShapes(BlendShape{Name: "a", DeltaPositions: deltas}),
			},
			blendShapes: true, deformable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewSkinnedMesh(tt.options...)
			if err != nil {
				t.Fatalf("NewSkinnedMesh() error = %v", err)
			}
			if m.Skinned() != tt.skinned {
				t.Errorf("Skinned() = %v, want %v", m.Skinned(), tt.skinned)
			}
			if m.HasBlendShapes() != tt.blendShapes {
				t.Errorf("HasBlendShapes() = %v, want %v", m.HasBlendShapes(), tt.blendShapes)
			}
			if m.Deformable() != tt.deformable {
				t.Errorf("Deformable() = %v, want %v", m.Deformable(), tt.deformable)
			}
			if m.BoneWeightCount() != tt.boneWeightCnt {
				t.Errorf("BoneWeightCount() = %d, want %d", m.BoneWeightCount(), tt.boneWeightCnt)
			}
		})
	}
}

func TestFlattenedBlendShapeDeltasLayout(t *testing.T) {
	a := []mgl32.Vec3{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	b := []mgl32.Vec3{{0, 1, 0}, {0, 2, 0}, {0, 3, 0}}
	m, err := NewSkinnedMesh(
		WithRestPositions(triangle()),
		WithBlendShapes(BlendShape{Name: "a", DeltaPositions: a}, BlendShape{Name: "b", DeltaPositions: b}),
	)
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}

	flat := m.FlattenedBlendShapeDeltas()
	if len(flat) != 6 {
		t.Fatalf("len(FlattenedBlendShapeDeltas()) = %d, want 6", len(flat))
	}
	for v := range 3 {
		if flat[v*2] != a[v] {
			t.Errorf("flat[%d] = %v, want %v", v*2, flat[v*2], a[v])
		}
		if flat[v*2+1] != b[v] {
			t.Errorf("flat[%d] = %v, want %v", v*2+1, flat[v*2+1], b[v])
		}
	}
}

func TestOptionsCopyInput(t *testing.T) {
	pos := triangle()
	m, err := NewSkinnedMesh(WithRestPositions(pos))
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}
	pos[0] = mgl32.Vec3{9, 9, 9}
	if got := m.RestPositions()[0]; got != (mgl32.Vec3{}) {
		t.Errorf("RestPositions()[0] = %v after caller mutation, want origin", got)
	}
}

func TestMarshalBoneWeightsLayout(t *testing.T) {
	m, err := NewSkinnedMesh(
		WithRestPositions(triangle()[:2]),
		WithBoneWeights(2, []BoneWeight{
			{Indices: [4]uint32{1, 0}, Weights: [4]float32{0.25, 0.75}},
			{Indices: [4]uint32{0, 1}, Weights: [4]float32{1, 0}},
		}),
		WithBindPoses([]mgl32.Mat4{mgl32.Ident4(), mgl32.Ident4()}),
	)
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}

	buf := MarshalBoneWeights(m)
	if len(buf) != 2*BoneWeightStride(2) {
		t.Fatalf("len(MarshalBoneWeights()) = %d, want %d", len(buf), 2*BoneWeightStride(2))
	}
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(buf[i*4:]) }
	if u32(0) != 1 || u32(1) != 0 {
		t.Errorf("vertex 0 indices = (%d, %d), want (1, 0)", u32(0), u32(1))
	}
	if w := math.Float32frombits(u32(2)); w != 0.25 {
		t.Errorf("vertex 0 weight 0 = %v, want 0.25", w)
	}
	if w := math.Float32frombits(u32(3)); w != 0.75 {
		t.Errorf("vertex 0 weight 1 = %v, want 0.75", w)
	}
	if u32(4) != 0 || u32(5) != 1 {
		t.Errorf("vertex 1 indices = (%d, %d), want (0, 1)", u32(4), u32(5))
	}
}

func TestMarshalShadingDefaults(t *testing.T) {
	m, err := NewSkinnedMesh(WithRestPositions(triangle()))
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}
	buf := MarshalShading(m)
	if len(buf) != 3*ShadingStride {
		t.Fatalf("len(MarshalShading()) = %d, want %d", len(buf), 3*ShadingStride)
	}
	nz := math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))
	tw := math.Float32frombits(binary.LittleEndian.Uint32(buf[24:]))
	if nz != 1 || tw != 1 {
		t.Errorf("default normal.z = %v, tangent.w = %v, want 1, 1", nz, tw)
	}
	g := GPUShadingVertex{}
	if g.Size() != ShadingStride {
		t.Errorf("GPUShadingVertex.Size() = %d, want %d", g.Size(), ShadingStride)
	}
}

func TestMarshalStaticMeshStreams(t *testing.T) {
	m, err := NewSkinnedMesh(WithRestPositions(triangle()))
	if err != nil {
		t.Fatalf("NewSkinnedMesh() error = %v", err)
	}
	if b := MarshalBoneWeights(m); b != nil {
		t.Errorf("MarshalBoneWeights() = %d bytes, want nil", len(b))
	}
	if b := MarshalBlendShapeDeltas(m); b != nil {
		t.Errorf("MarshalBlendShapeDeltas() = %d bytes, want nil", len(b))
	}
	if b := MarshalPositions(m); len(b) != 3*PositionStride {
		t.Errorf("len(MarshalPositions()) = %d, want %d", len(b), 3*PositionStride)
	}
}
