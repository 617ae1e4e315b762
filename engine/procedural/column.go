// Package procedural generates deformable test content: a skinned, twisting column with an
// optional bulge blend shape, and a generic animation for meshes loaded from files.
package procedural

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/skinner"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidColumn is returned for column dimensions that cannot produce a mesh.
var ErrInvalidColumn = errors.New("procedural: invalid column dimensions")

// ColumnBuilderOption is a functional option for configuring a Column.
type ColumnBuilderOption func(*Column)

// WithRings sets the number of height subdivisions. The column has rings+1 vertex rows.
//
// Parameters:
//   - n: the ring count
//
// Returns:
//   - ColumnBuilderOption: option function to apply
func WithRings(n int) ColumnBuilderOption {
	return func(c *Column) {
		c.rings = n
	}
}

// WithSegments sets the number of vertices around each ring.
//
// Parameters:
//   - n: the segment count
//
// Returns:
//   - ColumnBuilderOption: option function to apply
func WithSegments(n int) ColumnBuilderOption {
	return func(c *Column) {
		c.segments = n
	}
}

// WithBones sets the number of bones stacked along the column.
// One bone gives a rigid column; 0 gives a column deformed only by its blend shape.
//
// Parameters:
//   - n: the bone count
//
// Returns:
//   - ColumnBuilderOption: option function to apply
func WithBones(n int) ColumnBuilderOption {
	return func(c *Column) {
		c.bones = n
	}
}

// WithSize sets the column height and radius.
//
// Parameters:
//   - height: the column height
//   - radius: the column radius
//
// Returns:
//   - ColumnBuilderOption: option function to apply
func WithSize(height, radius float32) ColumnBuilderOption {
	return func(c *Column) {
		c.height = height
		c.radius = radius
	}
}

// WithBulge adds a "bulge" blend shape that pushes the middle of the column outwards.
//
// Parameters:
//   - enabled: whether to add the blend shape
//
// Returns:
//   - ColumnBuilderOption: option function to apply
func WithBulge(enabled bool) ColumnBuilderOption {
	return func(c *Column) {
		c.bulge = enabled
	}
}

// Column is a cylinder skinned to a chain of bones along +Y.
type Column struct {
	Mesh model.SkinnedMesh

	rings, segments, bones int
	height, radius         float32
	bulge                  bool
}

// NewColumn builds a column mesh. Defaults: 32 rings, 16 segments, 4 bones, height 4, radius 0.5,
// with the bulge shape.
// Each vertex is weighted between the two bones nearest to its height, so the mesh uses two
// influences per vertex (one for a single-bone column).
//
// Parameters:
//   - options: functional options to configure the column
//
// Returns:
//   - *Column: the column
//   - error: ErrInvalidColumn or a mesh validation error
func NewColumn(options ...ColumnBuilderOption) (*Column, error) {
	c := &Column{rings: 32, segments: 16, bones: 4, height: 4, radius: 0.5, bulge: true}
	for _, opt := range options {
		opt(c)
	}
	if c.rings < 1 || c.segments < 3 || c.bones < 0 || c.height <= 0 || c.radius <= 0 {
		return nil, fmt.Errorf("%w: rings %d, segments %d, bones %d", ErrInvalidColumn, c.rings, c.segments, c.bones)
	}

	vc := (c.rings + 1) * c.segments
	positions := make([]mgl32.Vec3, vc)
	uvs := make([]mgl32.Vec2, vc)
	bulge := make([]mgl32.Vec3, vc)
	for r := 0; r <= c.rings; r++ {
		v := float32(r) / float32(c.rings)
		for s := range c.segments {
			u := float32(s) / float32(c.segments)
			angle := float64(u) * 2 * math.Pi
			dir := mgl32.Vec3{float32(math.Cos(angle)), 0, float32(math.Sin(angle))}
			i := r*c.segments + s
			positions[i] = dir.Mul(c.radius).Add(mgl32.Vec3{0, v * c.height, 0})
			uvs[i] = mgl32.Vec2{u, v}
			bulge[i] = dir.Mul(0.5 * c.radius * float32(math.Sin(float64(v)*math.Pi)))
		}
	}

	indices := make([]uint32, 0, c.rings*c.segments*6)
	for r := range c.rings {
		for s := range c.segments {
			a := uint32(r*c.segments + s)
			b := uint32(r*c.segments + (s+1)%c.segments)
			d := a + uint32(c.segments)
			e := b + uint32(c.segments)
			indices = append(indices, a, d, b, b, d, e)
		}
	}

	meshOptions := []model.SkinnedMeshBuilderOption{
		model.WithName(fmt.Sprintf("column_%dx%d", c.rings, c.segments)),
		model.WithRestPositions(positions),
		model.WithTexCoords(uvs),
		model.WithIndices(indices),
	}
	if c.bones > 0 {
		meshOptions = append(meshOptions, c.skin(positions)...)
	}
	if c.bulge {
		meshOptions = append(meshOptions, model.WithBlendShapes(model.BlendShape{Name: "bulge", DeltaPositions: bulge}))
	}

	m, err := model.NewSkinnedMesh(meshOptions...)
	if err != nil {
		return nil, err
	}
	c.Mesh = m
	return c, nil
}

// boneHeight returns the rest height of bone b.
func (c *Column) boneHeight(b int) float32 {
	if c.bones < 2 {
		return 0
	}
	return c.height * float32(b) / float32(c.bones-1)
}

// skin weights every vertex between the two bones nearest to its height.
func (c *Column) skin(positions []mgl32.Vec3) []model.SkinnedMeshBuilderOption {
	bind := make([]mgl32.Mat4, c.bones)
	for b := range bind {
		bind[b] = mgl32.Translate3D(0, -c.boneHeight(b), 0)
	}

	weights := make([]model.BoneWeight, len(positions))
	if c.bones == 1 {
		for v := range weights {
			weights[v] = model.SingleBone(0)
		}
		return []model.SkinnedMeshBuilderOption{model.WithBoneWeights(1, weights), model.WithBindPoses(bind)}
	}

	for v, p := range positions {
		t := p.Y() / c.height * float32(c.bones-1)
		b0 := common.Clamp(int(t), 0, c.bones-2)
		w1 := common.Clamp(t-float32(b0), 0, 1)
		weights[v] = model.BoneWeight{
			Indices: [model.MaxBoneInfluences]uint32{uint32(b0), uint32(b0 + 1)},
			Weights: [model.MaxBoneInfluences]float32{1 - w1, w1},
		}
	}
	return []model.SkinnedMeshBuilderOption{model.WithBoneWeights(2, weights), model.WithBindPoses(bind)}
}

// Frame returns the pose of the column at a frame number: the bone chain twists back and forth
// around +Y by up to a quarter turn at the top, and the bulge weight oscillates in [0, 100].
// It has the signature of a scene frame source.
//
// Parameters:
//   - frame: the frame number
//
// Returns:
//   - skinner.Frame: the bone transforms and blend shape weights
func (c *Column) Frame(frame int) skinner.Frame {
	var f skinner.Frame
	if c.bones > 0 {
		twist := float32(math.Sin(float64(frame)*0.05) * math.Pi / 2)
		f.BoneTransforms = make([]mgl32.Mat4, c.bones)
		for b := range f.BoneTransforms {
			share := float32(0)
			if c.bones > 1 {
				share = float32(b) / float32(c.bones-1)
			}
			f.BoneTransforms[b] = mgl32.Translate3D(0, c.boneHeight(b), 0).Mul4(mgl32.HomogRotate3DY(twist * share))
		}
	}
	if c.bulge {
		f.BlendShapeWeights = []float32{50 + 50*float32(math.Sin(float64(frame)*0.1))}
	}
	return f
}
