// soft_device.go implements Device in host memory. Kernels are Go functions resolved from the
// kernel descriptor and run one invocation at a time with the same workgroup and dispatch
// arithmetic as real hardware. Every buffer access is bounds checked, so an invocation that
// strays past the end of a buffer fails the dispatch with ErrOutOfBounds instead of silently
// corrupting memory. Dispatch is synchronous: results are visible as soon as it returns.
package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// SoftKernelFunc is the body of a kernel for one global invocation index along x.
type SoftKernelFunc func(globalID uint32, b SoftBindings)

// SoftKernelResolver maps a kernel descriptor to its Go implementation.
type SoftKernelResolver func(desc KernelDescriptor) (SoftKernelFunc, error)

type outOfBounds struct {
	binding uint32
	word    uint32
	words   uint32
}

type illegalWrite struct {
	binding uint32
}

// SoftBindings gives a kernel word-addressed access to its bound buffers.
// Accessors panic on misuse; SoftDevice.Dispatch converts those panics into errors.
type SoftBindings struct {
	buffers map[uint32]*softBuffer
	types   map[uint32]BindingType
}

func (b SoftBindings) word(binding, index uint32) []byte {
	buf := b.buffers[binding]
	words := uint32(len(buf.data) / 4)
	if index >= words {
		panic(outOfBounds{binding: binding, word: index, words: words})
	}
	return buf.data[index*4 : index*4+4]
}

// Words returns the length of the buffer at binding in 4-byte words, like arrayLength in WGSL.
func (b SoftBindings) Words(binding uint32) uint32 {
	return uint32(len(b.buffers[binding].data) / 4)
}

// U32 reads word index of the buffer at binding.
func (b SoftBindings) U32(binding, index uint32) uint32 {
	return binary.LittleEndian.Uint32(b.word(binding, index))
}

// F32 reads word index of the buffer at binding as a float.
func (b SoftBindings) F32(binding, index uint32) float32 {
	return math.Float32frombits(b.U32(binding, index))
}

// SetF32 writes v to word index of the read-write storage buffer at binding.
func (b SoftBindings) SetF32(binding, index uint32, v float32) {
	if b.types[binding] != BindingTypeStorage {
		panic(illegalWrite{binding: binding})
	}
	binary.LittleEndian.PutUint32(b.word(binding, index), math.Float32bits(v))
}

type softBuffer struct {
	dev      *SoftDevice
	label    string
	usage    BufferUsage
	data     []byte
	released bool
}

func (b *softBuffer) Label() string { return b.label }
func (b *softBuffer) Size() uint64 { return uint64(len(b.data)) }
func (b *softBuffer) Usage() BufferUsage { return b.usage }

func (b *softBuffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()

	if b.released {
		b.dev.doubleReleases++
		return
	}
	b.released = true
	b.dev.live--
	b.data = nil
}

type softKernel struct {
	desc KernelDescriptor
	fn   SoftKernelFunc
}

func (k *softKernel) Key() string { return k.desc.Key }
func (k *softKernel) WorkgroupSize() uint32 { return k.desc.WorkgroupSize }
func (k *softKernel) Bindings() []BindingLayout { return k.desc.Bindings }
func (k *softKernel) Release() {}

type softBindGroup struct {
	kernel   *softKernel
	bindings SoftBindings
}

func (g *softBindGroup) Release() {}

// SoftDevice is a host-memory Device. It also exposes counters used to verify
// buffer lifetimes and dispatch sizes.
type SoftDevice struct {
	mu       *sync.Mutex
	resolver SoftKernelResolver

	live           int
	doubleReleases int
	dispatches     int
	lastGroups     [3]uint32
	invocations    uint64
}

var _ Device = &SoftDevice{}

// NewSoftDevice creates a software device that resolves kernels with resolver.
//
// Parameters:
//   - resolver: maps kernel descriptors to Go kernel bodies
//
// Returns:
//   - *SoftDevice: the new device
func NewSoftDevice(resolver SoftKernelResolver) *SoftDevice {
	return &SoftDevice{
		mu:       &sync.Mutex{},
		resolver: resolver,
	}
}

func (d *SoftDevice) Name() string {
	return "software"
}

func (d *SoftDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.live++
	return &softBuffer{dev: d, label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}, nil
}

func (d *SoftDevice) own(buf Buffer) (*softBuffer, error) {
	sb, ok := buf.(*softBuffer)
	if !ok || sb.dev != d {
		return nil, ErrForeignBuffer
	}
	if sb.released {
		return nil, fmt.Errorf("%w: %q", ErrBufferReleased, sb.label)
	}
	return sb, nil
}

func (d *SoftDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sb, err := d.own(buf)
	if err != nil {
		return err
	}
	if !sb.usage.Has(BufferUsageCopyDst) {
		return fmt.Errorf("%w: write to %q", ErrInvalidUsage, sb.label)
	}
	if offset+uint64(len(data)) > uint64(len(sb.data)) {
		return fmt.Errorf("%w: write of %d bytes at %d into %q (%d bytes)", ErrOutOfBounds, len(data), offset, sb.label, len(sb.data))
	}
	copy(sb.data[offset:], data)
	return nil
}

func (d *SoftDevice) CopyBuffer(src, dst Buffer, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.own(src)
	if err != nil {
		return err
	}
	t, err := d.own(dst)
	if err != nil {
		return err
	}
	if !s.usage.Has(BufferUsageCopySrc) || !t.usage.Has(BufferUsageCopyDst) {
		return fmt.Errorf("%w: copy %q to %q", ErrInvalidUsage, s.label, t.label)
	}
	if size > uint64(len(s.data)) || size > uint64(len(t.data)) {
		return fmt.Errorf("%w: copy of %d bytes from %q to %q", ErrOutOfBounds, size, s.label, t.label)
	}
	copy(t.data[:size], s.data[:size])
	return nil
}

func (d *SoftDevice) CreateKernel(desc KernelDescriptor) (Kernel, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("%w: %s", ErrKernelNotFound, desc.Key)
	}
	fn, err := d.resolver(desc)
	if err != nil {
		return nil, err
	}
	if desc.WorkgroupSize == 0 {
		return nil, fmt.Errorf("kernel %s: workgroup size must be positive", desc.Key)
	}
	return &softKernel{desc: desc, fn: fn}, nil
}

func (d *SoftDevice) CreateBindGroup(k Kernel, entries []BindGroupEntry) (BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sk, ok := k.(*softKernel)
	if !ok {
		return nil, fmt.Errorf("%w: foreign kernel", ErrBindingMismatch)
	}
	if err := checkEntries(sk.desc.Bindings, entries); err != nil {
		return nil, err
	}
	bindings := SoftBindings{
		buffers: make(map[uint32]*softBuffer, len(entries)),
		types:   make(map[uint32]BindingType, len(entries)),
	}
	for _, l := range sk.desc.Bindings {
		bindings.types[l.Binding] = l.Type
	}
	for _, e := range entries {
		sb, err := d.own(e.Buffer)
		if err != nil {
			return nil, err
		}
		bindings.buffers[e.Binding] = sb
	}
	return &softBindGroup{kernel: sk, bindings: bindings}, nil
}

func (d *SoftDevice) Dispatch(k Kernel, bg BindGroup, groups [3]uint32) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sk, ok := k.(*softKernel)
	if !ok {
		return fmt.Errorf("%w: foreign kernel", ErrBindingMismatch)
	}
	group, ok := bg.(*softBindGroup)
	if !ok || group.kernel != sk {
		return fmt.Errorf("%w: bind group was created for another kernel", ErrBindingMismatch)
	}
	for binding, sb := range group.bindings.buffers {
		if sb.released {
			return fmt.Errorf("%w: binding %d (%q)", ErrBufferReleased, binding, sb.label)
		}
	}

	d.dispatches++
	d.lastGroups = groups

	defer func() {
		switch r := recover().(type) {
		case nil:
		case outOfBounds:
			err = fmt.Errorf("%w: kernel %s read word %d of binding %d (%d words)", ErrOutOfBounds, sk.desc.Key, r.word, r.binding, r.words)
		case illegalWrite:
			err = fmt.Errorf("%w: kernel %s wrote read-only binding %d", ErrInvalidUsage, sk.desc.Key, r.binding)
		default:
			panic(r)
		}
	}()

	wg := sk.desc.WorkgroupSize
	for range groups[2] {
		for range groups[1] {
			for gx := range groups[0] {
				for lx := range wg {
					d.invocations++
					sk.fn(gx*wg+lx, group.bindings)
				}
			}
		}
	}
	return nil
}

func (d *SoftDevice) Release() {}

// ReadBuffer returns a copy of the buffer contents. Only the software device supports readback.
//
// Parameters:
//   - buf: a buffer created by this device
//
// Returns:
//   - []byte: a copy of the contents
//   - error: an error if buf is foreign or released
func (d *SoftDevice) ReadBuffer(buf Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sb, err := d.own(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(sb.data))
	copy(out, sb.data)
	return out, nil
}

// LiveBuffers returns the number of buffers created and not yet released.
func (d *SoftDevice) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// DoubleReleases returns how many times an already released buffer was released again.
func (d *SoftDevice) DoubleReleases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleReleases
}

// Dispatches returns the number of dispatches executed.
func (d *SoftDevice) Dispatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

// LastGroups returns the workgroup counts of the most recent dispatch.
func (d *SoftDevice) LastGroups() [3]uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastGroups
}

// Invocations returns the total number of kernel invocations executed.
func (d *SoftDevice) Invocations() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.invocations
}
