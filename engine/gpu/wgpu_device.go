package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDeviceOption is a functional option for configuring a WebGPU device.
type WGPUDeviceOption func(*wgpuDevice)

// WithForceFallbackAdapter requests the software fallback adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithForceFallbackAdapter(force bool) WGPUDeviceOption {
	return func(w *wgpuDevice) {
		w.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the debug label of the device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - WGPUDeviceOption: option function to apply
func WithDeviceLabel(label string) WGPUDeviceOption {
	return func(w *wgpuDevice) {
		w.label = label
	}
}

// wgpuDevice implements Device on top of cogentcore/webgpu without a surface.
type wgpuDevice struct {
	mu *sync.Mutex

	label                string
	forceFallbackAdapter bool

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

type wgpuBuffer struct {
	dev    *wgpuDevice
	buffer *wgpu.Buffer
	label  string
	size   uint64
	usage  BufferUsage
}

func (b *wgpuBuffer) Label() string {
	return b.label
}

func (b *wgpuBuffer) Size() uint64 {
	return b.size
}

func (b *wgpuBuffer) Usage() BufferUsage {
	return b.usage
}

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuKernel struct {
	desc     KernelDescriptor
	module   *wgpu.ShaderModule
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.PipelineLayout
	compute  *wgpu.ComputePipeline
}

func (k *wgpuKernel) Key() string {
	return k.desc.Key
}

func (k *wgpuKernel) WorkgroupSize() uint32 {
	return k.desc.WorkgroupSize
}

func (k *wgpuKernel) Bindings() []BindingLayout {
	return k.desc.Bindings
}

func (k *wgpuKernel) Release() {
	if k.compute != nil {
		k.compute.Release()
		k.compute = nil
	}
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.layout != nil {
		k.layout.Release()
		k.layout = nil
	}
	if k.module != nil {
		k.module.Release()
		k.module = nil
	}
}

type wgpuBindGroup struct {
	kernel *wgpuKernel
	group  *wgpu.BindGroup
}

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice creates a headless WebGPU compute device.
//
// Parameters:
//   - options: functional options for adapter selection and labelling
//
// Returns:
//   - Device: the device
//   - error: an error if no adapter or device could be acquired
func NewWGPUDevice(options ...WGPUDeviceOption) (Device, error) {
	w := &wgpuDevice{
		mu:    &sync.Mutex{},
		label: "Skinning Device",
	}
	for _, opt := range options {
		opt(w)
	}

	w.instance = wgpu.CreateInstance(nil)
	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: w.forceFallbackAdapter,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: w.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		w.adapter.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	return w, nil
}

// WrapWGPUBuffer exposes a buffer allocated elsewhere (for example by a renderer) to a WebGPU Device.
// The wrapper's Release is a no-op so it can be bound as an external buffer safely.
//
// Parameters:
//   - d: a device created by NewWGPUDevice
//   - buf: the WebGPU buffer
//   - label: debug label
//   - size: size of buf in bytes
//   - usage: the usage flags buf was created with
//
// Returns:
//   - Buffer: the wrapped buffer
//   - error: ErrForeignBuffer if d is not a WebGPU device
func WrapWGPUBuffer(d Device, buf *wgpu.Buffer, label string, size uint64, usage BufferUsage) (Buffer, error) {
	w, ok := d.(*wgpuDevice)
	if !ok {
		return nil, ErrForeignBuffer
	}
	return &externalWGPUBuffer{wgpuBuffer{dev: w, buffer: buf, label: label, size: size, usage: usage}}, nil
}

type externalWGPUBuffer struct {
	wgpuBuffer
}

func (b *externalWGPUBuffer) Release() {}

func (w *wgpuDevice) Name() string {
	return "webgpu: " + w.label
}

func toWGPUUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(BufferUsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(BufferUsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(BufferUsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(BufferUsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	if u.Has(BufferUsageVertex) {
		out |= wgpu.BufferUsageVertex
	}
	return out
}

func (w *wgpuDevice) unwrap(buf Buffer) (*wgpuBuffer, error) {
	switch b := buf.(type) {
	case *wgpuBuffer:
		if b.dev == w && b.buffer != nil {
			return b, nil
		}
	case *externalWGPUBuffer:
		if b.dev == w && b.buffer != nil {
			return &b.wgpuBuffer, nil
		}
	}
	return nil, ErrForeignBuffer
}

func (w *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// WebGPU requires buffer sizes to be a multiple of 4.
	size := (desc.Size + 3) &^ 3
	buf, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             size,
		Usage:            toWGPUUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{dev: w, buffer: buf, label: desc.Label, size: desc.Size, usage: desc.Usage}, nil
}

func (w *wgpuDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := w.unwrap(buf)
	if err != nil {
		return err
	}
	if !b.usage.Has(BufferUsageCopyDst) {
		return fmt.Errorf("%w: write to %q", ErrInvalidUsage, b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d into %q", ErrOutOfBounds, len(data), offset, b.label)
	}
	w.queue.WriteBuffer(b.buffer, offset, data)
	return nil
}

func (w *wgpuDevice) CopyBuffer(src, dst Buffer, size uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.unwrap(src)
	if err != nil {
		return err
	}
	t, err := w.unwrap(dst)
	if err != nil {
		return err
	}
	if size > s.size || size > t.size {
		return fmt.Errorf("%w: copy of %d bytes from %q to %q", ErrOutOfBounds, size, s.label, t.label)
	}

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(s.buffer, 0, t.buffer, 0, size)

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()
	w.queue.Submit(commandBuffer)
	return nil
}

func (w *wgpuDevice) CreateKernel(desc KernelDescriptor) (Kernel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	k := &wgpuKernel{desc: desc}
	module, err := w.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", desc.Key, err)
	}
	k.module = module

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: wgpu.ShaderStageCompute,
		}
		switch b.Type {
		case BindingTypeUniform:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case BindingTypeReadOnlyStorage:
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		default:
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		}
		entries = append(entries, entry)
	}
	layout, err := w.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label + " Bind Group Layout",
		Entries: entries,
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("kernel %s: bind group layout: %w", desc.Key, err)
	}
	k.layout = layout

	pipelineLayout, err := w.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("kernel %s: pipeline layout: %w", desc.Key, err)
	}
	k.pipeline = pipelineLayout

	compute, err := w.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("kernel %s: compute pipeline: %w", desc.Key, err)
	}
	k.compute = compute
	return k, nil
}

func (w *wgpuDevice) CreateBindGroup(k Kernel, entries []BindGroupEntry) (BindGroup, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wk, ok := k.(*wgpuKernel)
	if !ok {
		return nil, fmt.Errorf("%w: foreign kernel", ErrBindingMismatch)
	}
	if err := checkEntries(wk.desc.Bindings, entries); err != nil {
		return nil, err
	}

	wgpuEntries := make([]wgpu.BindGroupEntry, 0, len(entries))
	for _, e := range entries {
		b, err := w.unwrap(e.Buffer)
		if err != nil {
			return nil, err
		}
		wgpuEntries = append(wgpuEntries, wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  b.buffer,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	group, err := w.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   wk.desc.Label + " Bind Group",
		Layout:  wk.layout,
		Entries: wgpuEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("kernel %s: bind group: %w", wk.desc.Key, err)
	}
	return &wgpuBindGroup{kernel: wk, group: group}, nil
}

func (w *wgpuDevice) Dispatch(k Kernel, bg BindGroup, groups [3]uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	wk, ok := k.(*wgpuKernel)
	if !ok {
		return fmt.Errorf("%w: foreign kernel", ErrBindingMismatch)
	}
	group, ok := bg.(*wgpuBindGroup)
	if !ok || group.kernel != wk {
		return fmt.Errorf("%w: bind group was created for another kernel", ErrBindingMismatch)
	}

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(wk.compute)
	pass.SetBindGroup(0, group.group, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()
	w.queue.Submit(commandBuffer)
	return nil
}

func (w *wgpuDevice) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
}
