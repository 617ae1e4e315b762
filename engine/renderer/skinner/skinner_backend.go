package skinner

import (
	"fmt"
	"strings"
)

// SkinnerBackendType identifies the evaluation strategy used by a Skinner.
type SkinnerBackendType int

const (
	// BackendTypeSequential evaluates every vertex on the calling goroutine.
	BackendTypeSequential SkinnerBackendType = iota

	// BackendTypeParallel splits vertices into batches evaluated on a worker pool.
	BackendTypeParallel

	// BackendTypeGPU dispatches the skinning compute kernel on a gpu.Device.
	BackendTypeGPU
)

var backendTypeNames = map[SkinnerBackendType]string{
	BackendTypeSequential: "sequential",
	BackendTypeParallel:   "parallel",
	BackendTypeGPU:        "gpu",
}

func (t SkinnerBackendType) String() string {
	if name, ok := backendTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SkinnerBackendType(%d)", int(t))
}

// ParseBackendType maps a backend name ("sequential", "parallel" or "gpu") to its type.
//
// Parameters:
//   - name: the backend name, case insensitive
//
// Returns:
//   - SkinnerBackendType: the backend type
//   - error: ErrUnknownBackend if the name is not recognized
func ParseBackendType(name string) (SkinnerBackendType, error) {
	for t, n := range backendTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// skinnerBackend is implemented by each evaluation strategy.
type skinnerBackend interface {
	// evaluate deforms the mesh for one validated frame.
	evaluate(frame Frame) error

	// release frees everything the backend owns. It is called at most once.
	release()
}
