package common

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3Size is the packed byte size of a three component float32 vector.
const Vec3Size = 3 * 4

// Mat4Size is the packed byte size of a column-major 4x4 float32 matrix.
const Mat4Size = 16 * 4

// CeilDiv returns the number of groups of size d needed to cover n items.
// Returns 0 when n is 0. d must be greater than zero.
//
// Parameters:
//   - n: the number of items
//   - d: the group size
//
// Returns:
//   - uint32: ceil(n / d)
func CeilDiv(n, d uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}

// PutFloat32s writes the values into dst in little-endian order and returns the number of bytes written.
// dst must be at least 4*len(values) bytes long.
//
// Parameters:
//   - dst: destination byte slice
//   - values: float32 values to encode
//
// Returns:
//   - int: the number of bytes written
func PutFloat32s(dst []byte, values []float32) int {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return len(values) * 4
}

// Float32sToBytes encodes the values into a newly allocated little-endian byte slice.
//
// Parameters:
//   - values: float32 values to encode
//
// Returns:
//   - []byte: the encoded bytes
func Float32sToBytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	PutFloat32s(out, values)
	return out
}

// Vec3sToBytes packs the vectors tightly (12 bytes each, no padding) into dst, growing it when needed.
// The returned slice aliases dst when dst has enough capacity.
//
// Parameters:
//   - dst: reusable destination buffer, may be nil
//   - vs: vectors to encode
//
// Returns:
//   - []byte: the encoded bytes
func Vec3sToBytes(dst []byte, vs []mgl32.Vec3) []byte {
	dst = grow(dst, len(vs)*Vec3Size)
	for i, v := range vs {
		PutFloat32s(dst[i*Vec3Size:], v[:])
	}
	return dst
}

// Mat4sToBytes packs column-major matrices into dst, growing it when needed.
// The returned slice aliases dst when dst has enough capacity.
//
// Parameters:
//   - dst: reusable destination buffer, may be nil
//   - ms: matrices to encode
//
// Returns:
//   - []byte: the encoded bytes
func Mat4sToBytes(dst []byte, ms []mgl32.Mat4) []byte {
	dst = grow(dst, len(ms)*Mat4Size)
	for i, m := range ms {
		PutFloat32s(dst[i*Mat4Size:], m[:])
	}
	return dst
}

// BytesToVec3s decodes tightly packed little-endian vectors from src.
// Trailing bytes that do not form a whole vector are ignored.
//
// Parameters:
//   - src: the encoded bytes
//
// Returns:
//   - []mgl32.Vec3: the decoded vectors
func BytesToVec3s(src []byte) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(src)/Vec3Size)
	for i := range out {
		base := i * Vec3Size
		for c := range 3 {
			out[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(src[base+c*4:]))
		}
	}
	return out
}

func grow(dst []byte, n int) []byte {
	if cap(dst) < n {
		return make([]byte, n)
	}
	return dst[:n]
}
