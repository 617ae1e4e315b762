// annotations.go defines the annotation types, argument constants, and parser for the
// skinning kernel pre-processor. Annotations are single-line WGSL comments prefixed with
// @oxy: that inject struct sources, declare bindings, emit variant constants and gate
// blocks of source on variant keywords. The parsed results are stored as Annotation values
// and consumed by the PreProcessor, which also derives the kernel binding layout from them.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition.
	//
	// Syntax: //@oxy:include <struct_type>
	annotationTypeInclude AnnotationType = "include"

	// annotationTypeDefine emits a module-scope constant whose value depends on the active variant.
	//
	// Syntax: //@oxy:define <constant>
	annotationTypeDefine AnnotationType = "define"

	// AnnotationTypeBindingGroup generates a @group/@binding declaration and records it in the
	// declarations list, from which the kernel's binding layout is built.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// annotationTypeIf opens a block that is kept only when the keyword condition holds.
	// A leading "!" negates the keyword. Blocks may nest.
	//
	// Syntax: //@oxy:if [!]<KEYWORD>
	annotationTypeIf AnnotationType = "if"

	// annotationTypeEndIf closes the innermost if block.
	//
	// Syntax: //@oxy:endif
	annotationTypeEndIf AnnotationType = "endif"
)

// Annotation represents a single parsed annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = struct type key
	//   - define:  [0] = constant key
	//   - group:   [0] = address space, [1] = var name, [2] = type key
	//   - if:      [0] = keyword
	Args []AnnotationArg

	// Negate is set for if annotations written as //@oxy:if !KEYWORD.
	Negate bool

	// Line is the 1-based line number in the source. Used for error reporting.
	Line int

	// Group is the @group index for group annotations. Nil otherwise.
	Group *int

	// Binding is the @binding index for group annotations. Nil otherwise.
	Binding *int
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// ── Struct and type arguments ──────────────────────────────────────────────────

const (
	// annotationArgSkinParams identifies the SkinParams uniform struct.
	// Source: engine/renderer/shader/assets/skin_params.wgsl
	annotationArgSkinParams AnnotationArg = "skin_params"

	// annotationArgF32Array is a runtime-sized array<f32>.
	annotationArgF32Array AnnotationArg = "f32_array"

	// annotationArgU32Array is a runtime-sized array<u32>.
	annotationArgU32Array AnnotationArg = "u32_array"

	// annotationArgMat4Array is a runtime-sized array<mat4x4<f32>>.
	annotationArgMat4Array AnnotationArg = "mat4_array"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	annotationArgStorageTypeUniform   AnnotationArg = "uniform"
	annotationArgStorageTypeRead      AnnotationArg = "storage_read"
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Define arguments ───────────────────────────────────────────────────────────

const (
	// annotationArgBoneWeightCount emits `const BONE_WEIGHT_COUNT: u32 = <n>u;` for the active variant.
	annotationArgBoneWeightCount AnnotationArg = "bone_weight_count"
)

var validStructTypes = []AnnotationArg{
	annotationArgSkinParams,
}

var validBindingTypes = []AnnotationArg{
	annotationArgSkinParams,
	annotationArgF32Array,
	annotationArgU32Array,
	annotationArgMat4Array,
}

var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

var validDefines = []AnnotationArg{
	annotationArgBoneWeightCount,
}

// parseAnnotation attempts to parse a single line of WGSL source as an annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{Type: annotationTypeInclude, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	case string(annotationTypeDefine):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy define annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validDefines, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown constant %q in @oxy define annotation", lineNum, args[1])
		}
		return &Annotation{Type: annotationTypeDefine, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, var name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation: %v", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation: %v", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		if !slices.Contains(validBindingTypes, AnnotationArg(args[5])) {
			return nil, fmt.Errorf("line %d: unknown type %q in @oxy group annotation", lineNum, args[5])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case string(annotationTypeIf):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy if annotation requires exactly one keyword", lineNum)
		}
		keyword, negate := strings.CutPrefix(args[1], "!")
		if !slices.Contains(allKeywords, Keyword(keyword)) {
			return nil, fmt.Errorf("line %d: unknown keyword %q in @oxy if annotation", lineNum, keyword)
		}
		return &Annotation{Type: annotationTypeIf, Args: []AnnotationArg{AnnotationArg(keyword)}, Negate: negate, Line: lineNum}, nil
	case string(annotationTypeEndIf):
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @oxy endif annotation takes no arguments", lineNum)
		}
		return &Annotation{Type: annotationTypeEndIf, Line: lineNum}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
