// deformed_mesh.go implements the CPU output stage of skinning. A DeformedMesh holds the live
// position stream written by the CPU backends each frame along with the geometry derived from
// it: an axis-aligned bounding box, area-weighted vertex normals and per-vertex tangents.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrPositionCount is returned when a position stream does not match the mesh vertex count.
var ErrPositionCount = errors.New("mesh: position count does not match vertex count")

// DrawHook is invoked after a frame's positions and derived geometry have been updated.
type DrawHook func(m DeformedMesh)

// deformedMesh is the implementation of the DeformedMesh interface.
type deformedMesh struct {
	mu *sync.Mutex

	name      string
	indices   []uint32
	texCoords []mgl32.Vec2

	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	tangents  []mgl32.Vec4
	min, max  mgl32.Vec3
	version   uint64

	// scratch accumulators for tangent generation, sized once.
	tan1, tan2 []mgl32.Vec3
}

// DeformedMesh is the per-frame output of a CPU skinning backend.
type DeformedMesh interface {
	// Name returns the name of the source mesh.
	//
	// Returns:
	//   - string: the mesh name
	Name() string

	// VertexCount returns the number of vertices.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// Version returns how many times SetPositions has succeeded.
	//
	// Returns:
	//   - uint64: the update counter
	Version() uint64

	// Positions returns a copy of the current positions.
	//
	// Returns:
	//   - []mgl32.Vec3: the deformed positions
	Positions() []mgl32.Vec3

	// Normals returns a copy of the current normals.
	//
	// Returns:
	//   - []mgl32.Vec3: the vertex normals
	Normals() []mgl32.Vec3

	// Tangents returns a copy of the current tangents. W holds the bitangent sign.
	//
	// Returns:
	//   - []mgl32.Vec4: the vertex tangents
	Tangents() []mgl32.Vec4

	// Bounds returns the axis-aligned bounding box computed by the last RecalculateBounds.
	//
	// Returns:
	//   - mgl32.Vec3: the minimum corner
	//   - mgl32.Vec3: the maximum corner
	Bounds() (mgl32.Vec3, mgl32.Vec3)

	// SetPositions copies positions into the live stream.
	//
	// Parameters:
	//   - positions: one position per vertex
	//
	// Returns:
	//   - error: ErrPositionCount if the length differs from the vertex count
	SetPositions(positions []mgl32.Vec3) error

	// RecalculateBounds recomputes the bounding box from the live positions.
	RecalculateBounds()

	// RecalculateNormals recomputes area-weighted vertex normals from the triangle indices.
	// It is a no-op for meshes without triangles.
	RecalculateNormals()

	// RecalculateTangents recomputes tangents from positions, normals and texture coordinates.
	// It is a no-op for meshes without triangles or texture coordinates.
	RecalculateTangents()

	// Refresh recomputes bounds, normals and tangents in that order.
	Refresh()
}

var _ DeformedMesh = &deformedMesh{}

// NewDeformedMesh creates a DeformedMesh initialized with the rest pose of src.
// Normals and tangents start from the source streams when present.
//
// Parameters:
//   - src: the mesh being deformed
//
// Returns:
//   - DeformedMesh: the output mesh
func NewDeformedMesh(src model.SkinnedMesh) DeformedMesh {
	vc := src.VertexCount()
	m := &deformedMesh{
		mu:        &sync.Mutex{},
		name:      src.Name(),
		indices:   src.Indices(),
		texCoords: src.TexCoords(),
		positions: append([]mgl32.Vec3(nil), src.RestPositions()...),
		normals:   make([]mgl32.Vec3, vc),
		tangents:  make([]mgl32.Vec4, vc),
	}
	copy(m.normals, src.Normals())
	copy(m.tangents, src.Tangents())
	m.recalculateBounds()
	return m
}

func (m *deformedMesh) Name() string {
	return m.name
}

func (m *deformedMesh) VertexCount() int {
	return len(m.positions)
}

func (m *deformedMesh) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *deformedMesh) Positions() []mgl32.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mgl32.Vec3(nil), m.positions...)
}

func (m *deformedMesh) Normals() []mgl32.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mgl32.Vec3(nil), m.normals...)
}

func (m *deformedMesh) Tangents() []mgl32.Vec4 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mgl32.Vec4(nil), m.tangents...)
}

func (m *deformedMesh) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.min, m.max
}

func (m *deformedMesh) SetPositions(positions []mgl32.Vec3) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(positions) != len(m.positions) {
		return fmt.Errorf("%w: got %d, want %d", ErrPositionCount, len(positions), len(m.positions))
	}
	copy(m.positions, positions)
	m.version++
	return nil
}

func (m *deformedMesh) RecalculateBounds() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalculateBounds()
}

func (m *deformedMesh) recalculateBounds() {
	if len(m.positions) == 0 {
		m.min, m.max = mgl32.Vec3{}, mgl32.Vec3{}
		return
	}
	lo, hi := m.positions[0], m.positions[0]
	for _, p := range m.positions[1:] {
		for c := range 3 {
			lo[c] = min(lo[c], p[c])
			hi[c] = max(hi[c], p[c])
		}
	}
	m.min, m.max = lo, hi
}

func (m *deformedMesh) hasTriangles() bool {
	return len(m.indices) >= 3
}

func (m *deformedMesh) RecalculateNormals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalculateNormals()
}

func (m *deformedMesh) recalculateNormals() {
	if !m.hasTriangles() {
		return
	}
	clear(m.normals)
	for t := 0; t+2 < len(m.indices); t += 3 {
		a, b, c := m.indices[t], m.indices[t+1], m.indices[t+2]
		// The cross product length is twice the triangle area, which gives the area weighting.
		n := m.positions[b].Sub(m.positions[a]).Cross(m.positions[c].Sub(m.positions[a]))
		m.normals[a] = m.normals[a].Add(n)
		m.normals[b] = m.normals[b].Add(n)
		m.normals[c] = m.normals[c].Add(n)
	}
	for i, n := range m.normals {
		if l := n.Len(); l > 0 {
			m.normals[i] = n.Mul(1 / l)
		}
	}
}

func (m *deformedMesh) RecalculateTangents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalculateTangents()
}

func (m *deformedMesh) recalculateTangents() {
	if !m.hasTriangles() || len(m.texCoords) != len(m.positions) {
		return
	}
	if m.tan1 == nil {
		m.tan1 = make([]mgl32.Vec3, len(m.positions))
		m.tan2 = make([]mgl32.Vec3, len(m.positions))
	}
	clear(m.tan1)
	clear(m.tan2)

	for t := 0; t+2 < len(m.indices); t += 3 {
		i0, i1, i2 := m.indices[t], m.indices[t+1], m.indices[t+2]
		e1 := m.positions[i1].Sub(m.positions[i0])
		e2 := m.positions[i2].Sub(m.positions[i0])
		duv1 := m.texCoords[i1].Sub(m.texCoords[i0])
		duv2 := m.texCoords[i2].Sub(m.texCoords[i0])

		det := duv1.X()*duv2.Y() - duv2.X()*duv1.Y()
		if math.Abs(float64(det)) < 1e-12 {
			continue
		}
		r := 1 / det
		sdir := e1.Mul(duv2.Y()).Sub(e2.Mul(duv1.Y())).Mul(r)
		tdir := e2.Mul(duv1.X()).Sub(e1.Mul(duv2.X())).Mul(r)
		for _, i := range [3]uint32{i0, i1, i2} {
			m.tan1[i] = m.tan1[i].Add(sdir)
			m.tan2[i] = m.tan2[i].Add(tdir)
		}
	}

	for i := range m.positions {
		n, t := m.normals[i], m.tan1[i]
		// Gram-Schmidt orthogonalize against the normal.
		ortho := t.Sub(n.Mul(n.Dot(t)))
		l := ortho.Len()
		if l == 0 {
			continue
		}
		ortho = ortho.Mul(1 / l)
		w := float32(1)
		if n.Cross(t).Dot(m.tan2[i]) < 0 {
			w = -1
		}
		m.tangents[i] = ortho.Vec4(w)
	}
}

func (m *deformedMesh) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalculateBounds()
	m.recalculateNormals()
	m.recalculateTangents()
}
