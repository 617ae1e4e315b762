// device.go defines the compute device abstraction used by the GPU skinning backend.
// A Device allocates buffers, compiles compute kernels, binds buffers to kernels and
// dispatches them. Two implementations exist: a WebGPU device backed by cogentcore/webgpu
// and a software device that runs Go kernels over host memory.
package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrForeignBuffer is returned when a buffer created by one device is handed to another.
	ErrForeignBuffer = errors.New("gpu: buffer does not belong to this device")

	// ErrBufferReleased is returned when a released buffer is used.
	ErrBufferReleased = errors.New("gpu: buffer has been released")

	// ErrOutOfBounds is returned when a write or kernel invocation touches memory past the end of a buffer.
	ErrOutOfBounds = errors.New("gpu: out of bounds buffer access")

	// ErrBindingMismatch is returned when bind group entries do not satisfy a kernel's binding layout.
	ErrBindingMismatch = errors.New("gpu: bind group does not match kernel layout")

	// ErrInvalidUsage is returned when a buffer is used in a way its usage flags do not allow.
	ErrInvalidUsage = errors.New("gpu: buffer usage does not allow operation")

	// ErrKernelNotFound is returned when a device cannot resolve a kernel descriptor to executable code.
	ErrKernelNotFound = errors.New("gpu: kernel not found")
)

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageVertex
)

// Has reports whether every bit of other is set in u.
func (u BufferUsage) Has(other BufferUsage) bool {
	return u&other == other
}

// BindingType identifies how a kernel accesses a bound buffer.
type BindingType int

const (
	// BindingTypeUniform is a read-only uniform buffer.
	BindingTypeUniform BindingType = iota

	// BindingTypeReadOnlyStorage is a storage buffer the kernel only reads.
	BindingTypeReadOnlyStorage

	// BindingTypeStorage is a storage buffer the kernel reads and writes.
	BindingTypeStorage
)

// BindingLayout describes one binding slot of a kernel's bind group 0.
type BindingLayout struct {
	Binding uint32
	Type    BindingType
}

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// KernelDescriptor describes a compute kernel to compile.
type KernelDescriptor struct {
	// Key uniquely identifies the kernel specialization (for example a shader variant name).
	Key string

	// Label is a debug label.
	Label string

	// Source is the WGSL source of the kernel.
	Source string

	// EntryPoint is the name of the compute entry point in Source.
	EntryPoint string

	// WorkgroupSize is the x dimension of the kernel's @workgroup_size.
	WorkgroupSize uint32

	// Bindings is the layout of bind group 0.
	Bindings []BindingLayout
}

// Buffer is a device allocation.
type Buffer interface {
	// Label returns the debug label of the buffer.
	Label() string

	// Size returns the size of the buffer in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Release frees the device allocation. Only the buffer's owner may call it.
	Release()
}

// Kernel is a compiled compute pipeline.
type Kernel interface {
	// Key returns the specialization key the kernel was created with.
	Key() string

	// WorkgroupSize returns the x dimension of the kernel's workgroup.
	WorkgroupSize() uint32

	// Bindings returns the binding layout of bind group 0.
	Bindings() []BindingLayout

	// Release frees the compiled pipeline.
	Release()
}

// BindGroup is a set of buffers bound to a kernel's binding layout.
type BindGroup interface {
	// Release frees the bind group. Buffers referenced by it are not released.
	Release()
}

// BindGroupEntry binds one buffer to one binding slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
}

// Device is a compute device capable of running the skinning kernel.
type Device interface {
	// Name returns a human readable description of the device.
	//
	// Returns:
	//   - string: the device description
	Name() string

	// CreateBuffer allocates a zero-initialized buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error if allocation fails
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// WriteBuffer enqueues a host-to-device write.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the byte offset into buf
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the write does not fit or the buffer is not usable
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CopyBuffer enqueues a device-to-device copy of size bytes from the start of src to the start of dst.
	//
	// Parameters:
	//   - src: the source buffer
	//   - dst: the destination buffer
	//   - size: the number of bytes to copy
	//
	// Returns:
	//   - error: an error if either buffer is too small or not usable
	CopyBuffer(src, dst Buffer, size uint64) error

	// CreateKernel compiles a compute kernel.
	//
	// Parameters:
	//   - desc: the kernel descriptor
	//
	// Returns:
	//   - Kernel: the compiled kernel
	//   - error: an error if compilation fails
	CreateKernel(desc KernelDescriptor) (Kernel, error)

	// CreateBindGroup binds buffers to a kernel's binding layout.
	//
	// Parameters:
	//   - k: the kernel whose layout the entries satisfy
	//   - entries: one entry per binding in the layout
	//
	// Returns:
	//   - BindGroup: the bind group
	//   - error: ErrBindingMismatch when entries do not match the layout
	CreateBindGroup(k Kernel, entries []BindGroupEntry) (BindGroup, error)

	// Dispatch enqueues a compute dispatch of groups workgroups.
	//
	// Parameters:
	//   - k: the kernel to run
	//   - bg: the bind group created for k
	//   - groups: the workgroup counts in x, y and z
	//
	// Returns:
	//   - error: an error if the dispatch could not be enqueued or, for synchronous devices, failed
	Dispatch(k Kernel, bg BindGroup, groups [3]uint32) error

	// Release frees the device.
	Release()
}

// CreateBufferWithData allocates a buffer sized to data and uploads data into it.
// The buffer is released again if the upload fails.
//
// Parameters:
//   - d: the device
//   - desc: the buffer descriptor; Size is raised to len(data) when smaller
//   - data: the initial contents
//
// Returns:
//   - Buffer: the initialized buffer
//   - error: an error if allocation or upload fails
func CreateBufferWithData(d Device, desc BufferDescriptor, data []byte) (Buffer, error) {
	desc.Size = max(desc.Size, uint64(len(data)))
	desc.Usage |= BufferUsageCopyDst
	buf, err := d.CreateBuffer(desc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return buf, nil
	}
	if err := d.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// checkEntries verifies that entries cover exactly the bindings of layout and that each buffer's usage fits its binding type.
func checkEntries(layout []BindingLayout, entries []BindGroupEntry) error {
	if len(layout) != len(entries) {
		return fmt.Errorf("%w: %d entries for %d bindings", ErrBindingMismatch, len(entries), len(layout))
	}
	byBinding := make(map[uint32]Buffer, len(entries))
	for _, e := range entries {
		if e.Buffer == nil {
			return fmt.Errorf("%w: binding %d has no buffer", ErrBindingMismatch, e.Binding)
		}
		byBinding[e.Binding] = e.Buffer
	}
	for _, l := range layout {
		buf, ok := byBinding[l.Binding]
		if !ok {
			return fmt.Errorf("%w: binding %d missing", ErrBindingMismatch, l.Binding)
		}
		want := BufferUsageStorage
		if l.Type == BindingTypeUniform {
			want = BufferUsageUniform
		}
		if !buf.Usage().Has(want) {
			return fmt.Errorf("%w: buffer %q at binding %d lacks usage %d", ErrBindingMismatch, buf.Label(), l.Binding, want)
		}
	}
	return nil
}
