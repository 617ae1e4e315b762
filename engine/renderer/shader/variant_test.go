package shader

import (
	"errors"
	"testing"
)

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		shapes  bool
		wantKey string
		wantErr bool
	}{
		{"static", 0, false, "skinning[BONE_WEIGHT_COUNT_0]", false},
		{"blend only", 0, true, "skinning[BONE_WEIGHT_COUNT_0,ENABLE_BLEND_SHAPE]", false},
		{"two bones", 2, false, "skinning[BONE_WEIGHT_COUNT_2]", false},
		{"four bones and shapes", 4, true, "skinning[BONE_WEIGHT_COUNT_4,ENABLE_BLEND_SHAPE]", false},
		{"too many bones", 5, false, "", true},
		{"negative", -1, true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := SelectVariant(tt.count, tt.shapes)
			if tt.wantErr {
				if !errors.Is(err, ErrVariantNotFound) {
					t.Fatalf("SelectVariant() error = %v, want ErrVariantNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectVariant() error = %v", err)
			}
			if got := v.Key(); got != tt.wantKey {
				t.Errorf("Key() = %q, want %q", got, tt.wantKey)
			}
		})
	}
}

func TestAllVariantsUnique(t *testing.T) {
	variants := AllVariants()
	if len(variants) != 10 {
		t.Fatalf("len(AllVariants()) = %d, want 10", len(variants))
	}
	seen := make(map[string]bool)
	for _, v := range variants {
		if seen[v.Key()] {
			t.Errorf("duplicate variant key %q", v.Key())
		}
		seen[v.Key()] = true
	}
}

func TestVariantHas(t *testing.T) {
	v := Variant{BoneWeightCount: 3, BlendShapes: true}
	if !v.has(KeywordBoneWeightCount3) {
		t.Error("has(BONE_WEIGHT_COUNT_3) = false, want true")
	}
	if v.has(KeywordBoneWeightCount0) {
		t.Error("has(BONE_WEIGHT_COUNT_0) = true, want false")
	}
	if !v.has(KeywordEnableBlendShape) {
		t.Error("has(ENABLE_BLEND_SHAPE) = false, want true")
	}
}
