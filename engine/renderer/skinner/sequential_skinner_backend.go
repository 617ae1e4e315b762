package skinner

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/mesh"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// sequentialSkinnerBackend deforms every vertex on the calling goroutine.
type sequentialSkinnerBackend struct {
	mu *sync.Mutex

	mesh   model.SkinnedMesh
	kernel vertexKernel
	out    []mgl32.Vec3

	target mesh.DeformedMesh
	hook   mesh.DrawHook
}

var _ skinnerBackend = &sequentialSkinnerBackend{}

func newSequentialSkinnerBackend(m model.SkinnedMesh, target mesh.DeformedMesh, hook mesh.DrawHook) *sequentialSkinnerBackend {
	return &sequentialSkinnerBackend{
		mu:     &sync.Mutex{},
		mesh:   m,
		kernel: newVertexKernel(m),
		out:    make([]mgl32.Vec3, m.VertexCount()),
		target: target,
		hook:   hook,
	}
}

func (b *sequentialSkinnerBackend) evaluate(frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.kernel.prepare(b.mesh, frame)
	b.kernel.deformRange(b.out, 0, len(b.out))
	return present(b.target, b.out, b.hook)
}

// release is a no-op; the backend owns no pool or device resources.
func (b *sequentialSkinnerBackend) release() {}

// present hands a finished frame to the output mesh, recomputes derived geometry and calls the draw hook.
func present(target mesh.DeformedMesh, positions []mgl32.Vec3, hook mesh.DrawHook) error {
	if err := target.SetPositions(positions); err != nil {
		return err
	}
	target.Refresh()
	if hook != nil {
		hook(target)
	}
	return nil
}
