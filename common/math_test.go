package common

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		n, d, want uint32
	}{
		{0, 16, 0},
		{1, 16, 1},
		{16, 16, 1},
		{17, 16, 2},
		{32, 16, 2},
		{33, 16, 3},
	}
	for _, tt := range tests {
		if got := CeilDiv(tt.n, tt.d); got != tt.want {
			t.Errorf("CeilDiv(%d, %d) = %d, want %d", tt.n, tt.d, got, tt.want)
		}
	}
}

func TestMat4sToBytesColumnMajor(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3)
	buf := Mat4sToBytes(nil, []mgl32.Mat4{m})
	if len(buf) != Mat4Size {
		t.Fatalf("len(Mat4sToBytes()) = %d, want %d", len(buf), Mat4Size)
	}
	// translation lives in the fourth column, elements 12..14
	for i, want := range []float32{1, 2, 3} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[(12+i)*4:]))
		if got != want {
			t.Errorf("element %d = %v, want %v", 12+i, got, want)
		}
	}
}

func TestVec3sToBytesReusesCapacity(t *testing.T) {
	dst := make([]byte, 0, 64)
	out := Vec3sToBytes(dst, []mgl32.Vec3{{1, 2, 3}})
	if len(out) != Vec3Size {
		t.Fatalf("len(Vec3sToBytes()) = %d, want %d", len(out), Vec3Size)
	}
	if &out[0] != &dst[:1][0] {
		t.Error("Vec3sToBytes() reallocated despite sufficient capacity")
	}
	back := BytesToVec3s(out)
	if back[0] != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("BytesToVec3s() = %v, want [1 2 3]", back[0])
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 7, 9); got != 7 {
		t.Errorf("Coalesce(0, 0, 7, 9) = %d, want 7", got)
	}
	if got := Coalesce("", ""); got != "" {
		t.Errorf("Coalesce(\"\", \"\") = %q, want empty", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(150, 0, 100); got != 100 {
		t.Errorf("Clamp(150, 0, 100) = %d, want 100", got)
	}
	if got := Clamp[float32](-1, 0, 1); got != 0 {
		t.Errorf("Clamp(-1, 0, 1) = %v, want 0", got)
	}
}
