package gpu

import (
	"errors"
	"testing"
)

// doubler reads binding 0 and writes twice the value into binding 1 without a bounds check.
func doubler(id uint32, b SoftBindings) {
	b.SetF32(1, id, 2*b.F32(0, id))
}

// guardedDoubler is doubler with the bounds check a real kernel needs.
func guardedDoubler(id uint32, b SoftBindings) {
	if id >= b.Words(0) {
		return
	}
	doubler(id, b)
}

func resolverFor(fn SoftKernelFunc) SoftKernelResolver {
	return func(desc KernelDescriptor) (SoftKernelFunc, error) {
		return fn, nil
	}
}

func setupDoubler(t *testing.T, fn SoftKernelFunc, words int) (*SoftDevice, Kernel, BindGroup, Buffer) {
	t.Helper()
	d := NewSoftDevice(resolverFor(fn))
	k, err := d.CreateKernel(KernelDescriptor{
		Key:           "doubler",
		EntryPoint:    "main",
		WorkgroupSize: 16,
		Bindings: []BindingLayout{
			{Binding: 0, Type: BindingTypeReadOnlyStorage},
			{Binding: 1, Type: BindingTypeStorage},
		},
	})
	if err != nil {
		t.Fatalf("CreateKernel() error = %v", err)
	}
	in := make([]float32, words)
	for i := range in {
		in[i] = float32(i)
	}
	src, err := CreateBufferWithData(d, BufferDescriptor{Label: "in", Usage: BufferUsageStorage}, float32Bytes(in))
	if err != nil {
		t.Fatalf("CreateBufferWithData() error = %v", err)
	}
	dst, err := d.CreateBuffer(BufferDescriptor{Label: "out", Size: uint64(words * 4), Usage: BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	bg, err := d.CreateBindGroup(k, []BindGroupEntry{{Binding: 0, Buffer: src}, {Binding: 1, Buffer: dst}})
	if err != nil {
		t.Fatalf("CreateBindGroup() error = %v", err)
	}
	return d, k, bg, dst
}

func float32Bytes(vs []float32) []byte {
	out := make([]byte, len(vs)*4)
	b := SoftBindings{buffers: map[uint32]*softBuffer{0: {data: out}}, types: map[uint32]BindingType{0: BindingTypeStorage}}
	for i, v := range vs {
		b.SetF32(0, uint32(i), v)
	}
	return out
}

func TestSoftDeviceDispatchOutOfBounds(t *testing.T) {
	d, k, bg, _ := setupDoubler(t, doubler, 17)
	err := d.Dispatch(k, bg, [3]uint32{2, 1, 1})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Dispatch() error = %v, want %v", err, ErrOutOfBounds)
	}
}

func TestSoftDeviceDispatchGuarded(t *testing.T) {
	d, k, bg, dst := setupDoubler(t, guardedDoubler, 17)
	if err := d.Dispatch(k, bg, [3]uint32{2, 1, 1}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := d.Invocations(); got != 32 {
		t.Errorf("Invocations() = %d, want 32", got)
	}
	data, err := d.ReadBuffer(dst)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	got := SoftBindings{buffers: map[uint32]*softBuffer{0: {data: data}}}
	for i := range uint32(17) {
		if v := got.F32(0, i); v != float32(2*i) {
			t.Errorf("out[%d] = %v, want %v", i, v, float32(2*i))
		}
	}
}

func TestSoftDeviceRejectsWriteToReadOnlyBinding(t *testing.T) {
	writer := func(id uint32, b SoftBindings) { b.SetF32(0, id, 1) }
	d, k, bg, _ := setupDoubler(t, writer, 16)
	err := d.Dispatch(k, bg, [3]uint32{1, 1, 1})
	if !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Dispatch() error = %v, want %v", err, ErrInvalidUsage)
	}
}

func TestSoftDeviceBindGroupValidation(t *testing.T) {
	d := NewSoftDevice(resolverFor(doubler))
	k, err := d.CreateKernel(KernelDescriptor{
		Key:           "params",
		WorkgroupSize: 1,
		Bindings:      []BindingLayout{{Binding: 0, Type: BindingTypeUniform}},
	})
	if err != nil {
		t.Fatalf("CreateKernel() error = %v", err)
	}
	storage, _ := d.CreateBuffer(BufferDescriptor{Label: "s", Size: 16, Usage: BufferUsageStorage})

	if _, err := d.CreateBindGroup(k, nil); !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("CreateBindGroup(nil) error = %v, want %v", err, ErrBindingMismatch)
	}
	if _, err := d.CreateBindGroup(k, []BindGroupEntry{{Binding: 0, Buffer: storage}}); !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("CreateBindGroup(storage as uniform) error = %v, want %v", err, ErrBindingMismatch)
	}
}

func TestSoftDeviceCopyAndWriteRules(t *testing.T) {
	d := NewSoftDevice(nil)
	src, _ := d.CreateBuffer(BufferDescriptor{Label: "src", Size: 8, Usage: BufferUsageStorage | BufferUsageCopySrc | BufferUsageCopyDst})
	dst, _ := d.CreateBuffer(BufferDescriptor{Label: "dst", Size: 8, Usage: BufferUsageStorage | BufferUsageCopyDst})
	noCopy, _ := d.CreateBuffer(BufferDescriptor{Label: "nocopy", Size: 8, Usage: BufferUsageStorage})

	if err := d.WriteBuffer(src, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	if err := d.WriteBuffer(src, 4, make([]byte, 8)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("WriteBuffer(past end) error = %v, want %v", err, ErrOutOfBounds)
	}
	if err := d.WriteBuffer(noCopy, 0, []byte{1}); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("WriteBuffer(no copy dst) error = %v, want %v", err, ErrInvalidUsage)
	}
	if err := d.CopyBuffer(dst, src, 8); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("CopyBuffer(no copy src) error = %v, want %v", err, ErrInvalidUsage)
	}
	if err := d.CopyBuffer(src, dst, 8); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	data, _ := d.ReadBuffer(dst)
	if data[7] != 8 {
		t.Errorf("dst[7] = %d, want 8", data[7])
	}

	other := NewSoftDevice(nil)
	if err := other.WriteBuffer(src, 0, []byte{1}); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("WriteBuffer(foreign) error = %v, want %v", err, ErrForeignBuffer)
	}

	src.Release()
	if err := d.WriteBuffer(src, 0, []byte{1}); !errors.Is(err, ErrBufferReleased) {
		t.Errorf("WriteBuffer(released) error = %v, want %v", err, ErrBufferReleased)
	}
	src.Release()
	if got := d.DoubleReleases(); got != 1 {
		t.Errorf("DoubleReleases() = %d, want 1", got)
	}
}
