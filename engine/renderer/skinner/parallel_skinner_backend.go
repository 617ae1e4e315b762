package skinner

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/engine/mesh"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// parallelQueueSize is the task queue capacity of a pool created by the backend.
	parallelQueueSize = 256

	// parallelIdleTimeout is the idle timeout passed to a backend-created pool.
	parallelIdleTimeout = 1 * time.Second
)

// parallelSkinnerBackend splits the vertex range into batches and evaluates them on a worker pool.
// Poses and weights are prepared once per frame on the calling goroutine; batches only read
// shared inputs and write disjoint ranges of out.
type parallelSkinnerBackend struct {
	mu *sync.Mutex

	mesh      model.SkinnedMesh
	kernel    vertexKernel
	out       []mgl32.Vec3
	batchSize int

	pool     worker.DynamicWorkerPool
	ownsPool bool
	taskID   int

	target mesh.DeformedMesh
	hook   mesh.DrawHook
}

var _ skinnerBackend = &parallelSkinnerBackend{}

func newParallelSkinnerBackend(m model.SkinnedMesh, target mesh.DeformedMesh, hook mesh.DrawHook, pool worker.DynamicWorkerPool, workers, batchSize int) *parallelSkinnerBackend {
	b := &parallelSkinnerBackend{
		mu:        &sync.Mutex{},
		mesh:      m,
		kernel:    newVertexKernel(m),
		out:       make([]mgl32.Vec3, m.VertexCount()),
		batchSize: max(batchSize, 1),
		pool:      pool,
		target:    target,
		hook:      hook,
	}
	if b.pool == nil {
		if workers <= 0 {
			workers = max(runtime.NumCPU()-1, 1)
		}
		b.pool = worker.NewDynamicWorkerPool(workers, parallelQueueSize, parallelIdleTimeout)
		b.ownsPool = true
	}
	return b
}

func (b *parallelSkinnerBackend) evaluate(frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.kernel.prepare(b.mesh, frame)

	// The pool's Wait tracks worker exits, not task completion, so each frame joins on a WaitGroup.
	var wg sync.WaitGroup
	vc := len(b.out)
	for lo := 0; lo < vc; lo += b.batchSize {
		hi := min(lo+b.batchSize, vc)
		wg.Add(1)
		b.taskID++
		b.pool.SubmitTask(worker.Task{
			ID: b.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				b.kernel.deformRange(b.out, lo, hi)
				return nil, nil
			},
		})
	}
	wg.Wait()

	return present(b.target, b.out, b.hook)
}

func (b *parallelSkinnerBackend) setBatchSize(size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchSize = size
}

// release shuts down a backend-created pool. A pool supplied by the caller keeps running.
func (b *parallelSkinnerBackend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ownsPool {
		ShutdownPool(b.pool)
		b.pool = nil
		b.ownsPool = false
	}
}

// ShutdownPool ends every worker goroutine of pool and then stops it.
// Workers of a stopped pool keep running until they read their own id from the shared stop
// channel, so each worker is handed one task that exits its goroutine instead. The pool must be
// idle, must not have been stopped before and must not be used afterwards.
//
// Parameters:
//   - pool: the pool to shut down
func ShutdownPool(pool worker.DynamicWorkerPool) {
	if pool == nil {
		return
	}
	n := pool.GetMaxWorkers()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				wg.Done()
				runtime.Goexit()
				return nil, nil
			},
		})
	}
	wg.Wait()
	pool.Stop()
}
