// pre_processor.go implements the WGSL pre-processor that specializes the skinning kernel
// for one Variant. It scans shader source for @oxy: annotations, keeps or drops if/endif
// blocks according to the variant keywords, replaces include/define/group annotations
// with generated WGSL, and collects the binding declarations that survive so the kernel
// binding layout always matches the specialized source.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps type keys to embedded WGSL struct sources and WGSL type names.
//   - addressSpaceRegistry: maps address space keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/engine/gpu"
)

// registryEntry pairs an optional WGSL struct source with the WGSL type name used in
// generated @group/@binding declarations.
type registryEntry struct {
	// Source is the WGSL struct definition injected by @oxy:include, empty for built-in types.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates the group annotations kept during a Process call.
	declarations []Annotation
}

// PreProcessor specializes annotated WGSL source for a kernel variant.
type PreProcessor interface {
	// Process specializes source for v. Lines inside if blocks whose condition does not hold
	// for v are dropped, including any annotations they contain.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the annotated WGSL source
	//   - v: the variant to specialize for
	//
	// Returns:
	//   - string: the specialized WGSL source
	//   - error: an error if an annotation is malformed or if/endif blocks are unbalanced
	Process(source string, v Variant) (string, error)

	// Declarations returns the group annotations kept by the most recent Process call, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations
	Declarations() []Annotation

	// BindingLayout converts the most recent declarations into a kernel binding layout.
	//
	// Returns:
	//   - []gpu.BindingLayout: one entry per declared binding of group 0
	//   - error: an error if a declaration targets a group other than 0
	BindingLayout() ([]gpu.BindingLayout, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the skinning struct and address space registries.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			annotationArgSkinParams: {Source: GPUSkinParamsSource, Type: "SkinParams"},
			annotationArgF32Array:   {Type: "array<f32>"},
			annotationArgU32Array:   {Type: "array<u32>"},
			annotationArgMat4Array:  {Type: "array<mat4x4<f32>>"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string, v Variant) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	// active[i] records whether the i-th enclosing if block is kept; a line is emitted only when all are.
	var active []bool
	emitting := func() bool {
		for _, a := range active {
			if !a {
				return false
			}
		}
		return true
	}

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			if emitting() {
				out = append(out, line)
			}
			continue
		}

		switch a.Type {
		case annotationTypeIf:
			active = append(active, v.has(Keyword(a.Args[0])) != a.Negate)
			continue
		case annotationTypeEndIf:
			if len(active) == 0 {
				return "", fmt.Errorf("line %d: @oxy endif without matching if", i+1)
			}
			active = active[:len(active)-1]
			continue
		}
		if !emitting() {
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok || entry.Source == "" {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			out = append(out, entry.Source)
		case annotationTypeDefine:
			switch a.Args[0] {
			case annotationArgBoneWeightCount:
				out = append(out, fmt.Sprintf("const BONE_WEIGHT_COUNT: u32 = %du;", v.BoneWeightCount))
			default:
				return "", fmt.Errorf("line %d: unknown @oxy:define argument %q", i+1, a.Args[0])
			}
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			entry := p.structRegistry[a.Args[2]]
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], entry.Type))
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	if len(active) != 0 {
		return "", fmt.Errorf("%d unterminated @oxy if block(s)", len(active))
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

func (p *preProcessor) BindingLayout() ([]gpu.BindingLayout, error) {
	layout := make([]gpu.BindingLayout, 0, len(p.declarations))
	seen := make(map[int]bool, len(p.declarations))
	for _, d := range p.declarations {
		if *d.Group != 0 {
			return nil, fmt.Errorf("line %d: kernels use bind group 0 only, got group %d", d.Line, *d.Group)
		}
		if seen[*d.Binding] {
			return nil, fmt.Errorf("line %d: binding %d declared twice", d.Line, *d.Binding)
		}
		seen[*d.Binding] = true

		var t gpu.BindingType
		switch d.Args[0] {
		case annotationArgStorageTypeUniform:
			t = gpu.BindingTypeUniform
		case annotationArgStorageTypeRead:
			t = gpu.BindingTypeReadOnlyStorage
		default:
			t = gpu.BindingTypeStorage
		}
		layout = append(layout, gpu.BindingLayout{Binding: uint32(*d.Binding), Type: t})
	}
	return layout, nil
}
