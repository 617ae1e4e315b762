package shader

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
	"github.com/gogpu/naga"
)

// KernelLibraryBuilderOption configures a KernelLibrary at construction time.
type KernelLibraryBuilderOption func(*kernelLibrary)

// WithVariants restricts the library to the given variants. Requests for any other variant
// fail with ErrVariantNotFound.
//
// Parameters:
//   - variants: the variants to specialize
//
// Returns:
//   - KernelLibraryBuilderOption: a function that applies the variant list
func WithVariants(variants ...Variant) KernelLibraryBuilderOption {
	return func(l *kernelLibrary) {
		l.variants = append([]Variant(nil), variants...)
	}
}

// WithSource replaces the annotated kernel source.
//
// Parameters:
//   - source: annotated WGSL source with a skin_main entry point
//
// Returns:
//   - KernelLibraryBuilderOption: a function that applies the source
func WithSource(source string) KernelLibraryBuilderOption {
	return func(l *kernelLibrary) {
		l.source = source
	}
}

// WithValidation compiles every specialized variant to SPIR-V with naga when the library is built,
// so malformed WGSL fails construction instead of the first dispatch.
//
// Parameters:
//   - validate: whether to compile variants up front
//
// Returns:
//   - KernelLibraryBuilderOption: a function that applies the setting
func WithValidation(validate bool) KernelLibraryBuilderOption {
	return func(l *kernelLibrary) {
		l.validate = validate
	}
}

type kernelLibrary struct {
	source   string
	validate bool
	variants []Variant

	mu      *sync.Mutex
	kernels map[Variant]gpu.KernelDescriptor
	spirv   map[Variant]int
}

// KernelLibrary holds the specialized skinning kernels, one per variant.
type KernelLibrary interface {
	// Kernel returns the kernel descriptor for v.
	//
	// Parameters:
	//   - v: the variant
	//
	// Returns:
	//   - gpu.KernelDescriptor: the specialized kernel
	//   - error: ErrVariantNotFound if the library holds no kernel for v
	Kernel(v Variant) (gpu.KernelDescriptor, error)

	// Variants returns the variants held by the library.
	//
	// Returns:
	//   - []Variant: the variants in construction order
	Variants() []Variant

	// SPIRVSize returns the size of the validated SPIR-V module of v, or 0 when validation was disabled.
	//
	// Parameters:
	//   - v: the variant
	//
	// Returns:
	//   - int: the SPIR-V size in bytes
	SPIRVSize(v Variant) int
}

var _ KernelLibrary = &kernelLibrary{}

// NewKernelLibrary specializes the skinning kernel for every requested variant.
//
// Parameters:
//   - options: variadic list of KernelLibraryBuilderOption functions
//
// Returns:
//   - KernelLibrary: the library
//   - error: an error if pre-processing or validation of any variant fails
func NewKernelLibrary(options ...KernelLibraryBuilderOption) (KernelLibrary, error) {
	l := &kernelLibrary{
		source:   SkinningKernelSource,
		variants: AllVariants(),
		mu:       &sync.Mutex{},
		kernels:  make(map[Variant]gpu.KernelDescriptor),
		spirv:    make(map[Variant]int),
	}
	for _, opt := range options {
		opt(l)
	}

	pp := NewPreProcessor()
	for _, v := range l.variants {
		if _, err := SelectVariant(v.BoneWeightCount, v.BlendShapes); err != nil {
			return nil, err
		}
		src, err := pp.Process(l.source, v)
		if err != nil {
			return nil, fmt.Errorf("specialize %s: %w", v, err)
		}
		layout, err := pp.BindingLayout()
		if err != nil {
			return nil, fmt.Errorf("specialize %s: %w", v, err)
		}
		if l.validate {
			spirv, err := naga.Compile(src)
			if err != nil {
				return nil, fmt.Errorf("compile %s: %w", v, err)
			}
			l.spirv[v] = len(spirv)
		}
		l.kernels[v] = gpu.KernelDescriptor{
			Key:           v.Key(),
			Label:         v.Key(),
			Source:        src,
			EntryPoint:    EntryPoint,
			WorkgroupSize: WorkgroupSize,
			Bindings:      layout,
		}
	}
	return l, nil
}

func (l *kernelLibrary) Kernel(v Variant) (gpu.KernelDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	desc, ok := l.kernels[v]
	if !ok {
		return gpu.KernelDescriptor{}, fmt.Errorf("%w: bone weight count %d, blend shapes %t", ErrVariantNotFound, v.BoneWeightCount, v.BlendShapes)
	}
	return desc, nil
}

func (l *kernelLibrary) Variants() []Variant {
	return append([]Variant(nil), l.variants...)
}

func (l *kernelLibrary) SPIRVSize(v Variant) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spirv[v]
}
