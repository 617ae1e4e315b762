package shader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVariantNotFound is returned when no compiled kernel exists for a requested variant.
var ErrVariantNotFound = errors.New("shader: no compiled kernel for variant")

// Keyword is a feature flag that specializes the skinning kernel.
type Keyword string

const (
	KeywordBoneWeightCount0 Keyword = "BONE_WEIGHT_COUNT_0"
	KeywordBoneWeightCount1 Keyword = "BONE_WEIGHT_COUNT_1"
	KeywordBoneWeightCount2 Keyword = "BONE_WEIGHT_COUNT_2"
	KeywordBoneWeightCount3 Keyword = "BONE_WEIGHT_COUNT_3"
	KeywordBoneWeightCount4 Keyword = "BONE_WEIGHT_COUNT_4"
	KeywordEnableBlendShape Keyword = "ENABLE_BLEND_SHAPE"
)

var boneWeightKeywords = [...]Keyword{
	KeywordBoneWeightCount0,
	KeywordBoneWeightCount1,
	KeywordBoneWeightCount2,
	KeywordBoneWeightCount3,
	KeywordBoneWeightCount4,
}

var allKeywords = append(boneWeightKeywords[:], KeywordEnableBlendShape)

// Variant is one specialization of the skinning kernel: exactly one bone weight count
// keyword plus the optional blend shape keyword. There are ten variants in total.
type Variant struct {
	BoneWeightCount int
	BlendShapes     bool
}

// SelectVariant returns the variant for a mesh with the given capabilities.
//
// Parameters:
//   - boneWeightCount: the number of meaningful influence slots per vertex (0 to 4)
//   - blendShapes: whether the mesh has blend shapes
//
// Returns:
//   - Variant: the matching variant
//   - error: ErrVariantNotFound when boneWeightCount is outside [0, 4]
func SelectVariant(boneWeightCount int, blendShapes bool) (Variant, error) {
	if boneWeightCount < 0 || boneWeightCount >= len(boneWeightKeywords) {
		return Variant{}, fmt.Errorf("%w: bone weight count %d", ErrVariantNotFound, boneWeightCount)
	}
	return Variant{BoneWeightCount: boneWeightCount, BlendShapes: blendShapes}, nil
}

// AllVariants returns every kernel variant in a stable order.
//
// Returns:
//   - []Variant: the ten variants
func AllVariants() []Variant {
	out := make([]Variant, 0, 2*len(boneWeightKeywords))
	for _, bs := range []bool{false, true} {
		for n := range boneWeightKeywords {
			out = append(out, Variant{BoneWeightCount: n, BlendShapes: bs})
		}
	}
	return out
}

// Keywords returns the keywords enabled by this variant.
//
// Returns:
//   - []Keyword: the bone weight count keyword, followed by ENABLE_BLEND_SHAPE when set
func (v Variant) Keywords() []Keyword {
	kw := []Keyword{boneWeightKeywords[v.BoneWeightCount]}
	if v.BlendShapes {
		kw = append(kw, KeywordEnableBlendShape)
	}
	return kw
}

// Key returns a unique, human readable identifier such as "skinning[BONE_WEIGHT_COUNT_2,ENABLE_BLEND_SHAPE]".
//
// Returns:
//   - string: the variant key
func (v Variant) Key() string {
	names := make([]string, 0, 2)
	for _, k := range v.Keywords() {
		names = append(names, string(k))
	}
	return "skinning[" + strings.Join(names, ",") + "]"
}

func (v Variant) String() string {
	return v.Key()
}

func (v Variant) has(k Keyword) bool {
	for _, kw := range v.Keywords() {
		if kw == k {
			return true
		}
	}
	return false
}
