package shader

import (
	"errors"
	"testing"
)

func TestKernelLibraryAllVariants(t *testing.T) {
	lib, err := NewKernelLibrary()
	if err != nil {
		t.Fatalf("NewKernelLibrary() error = %v", err)
	}
	if got := len(lib.Variants()); got != 10 {
		t.Fatalf("len(Variants()) = %d, want 10", got)
	}
	for _, v := range lib.Variants() {
		desc, err := lib.Kernel(v)
		if err != nil {
			t.Fatalf("Kernel(%s) error = %v", v, err)
		}
		if desc.Key != v.Key() {
			t.Errorf("Kernel(%s).Key = %q, want %q", v, desc.Key, v.Key())
		}
		if desc.EntryPoint != EntryPoint {
			t.Errorf("Kernel(%s).EntryPoint = %q, want %q", v, desc.EntryPoint, EntryPoint)
		}
		if desc.WorkgroupSize != WorkgroupSize {
			t.Errorf("Kernel(%s).WorkgroupSize = %d, want %d", v, desc.WorkgroupSize, WorkgroupSize)
		}
		want := 4
		if v.BoneWeightCount > 0 {
			want += 3
		}
		if v.BlendShapes {
			want += 2
		}
		if got := len(desc.Bindings); got != want {
			t.Errorf("Kernel(%s) has %d bindings, want %d", v, got, want)
		}
		if got := lib.SPIRVSize(v); got != 0 {
			t.Errorf("SPIRVSize(%s) = %d without validation, want 0", v, got)
		}
	}
}

func TestKernelLibraryMissingVariant(t *testing.T) {
	lib, err := NewKernelLibrary(WithVariants(Variant{BoneWeightCount: 1}))
	if err != nil {
		t.Fatalf("NewKernelLibrary() error = %v", err)
	}
	if _, err := lib.Kernel(Variant{BoneWeightCount: 1}); err != nil {
		t.Errorf("Kernel(present) error = %v", err)
	}
	if _, err := lib.Kernel(Variant{BoneWeightCount: 2}); !errors.Is(err, ErrVariantNotFound) {
		t.Errorf("Kernel(absent) error = %v, want ErrVariantNotFound", err)
	}
}

func TestKernelLibraryRejectsInvalidVariant(t *testing.T) {
	if _, err := NewKernelLibrary(WithVariants(Variant{BoneWeightCount: 7})); !errors.Is(err, ErrVariantNotFound) {
		t.Errorf("NewKernelLibrary() error = %v, want ErrVariantNotFound", err)
	}
}

func TestKernelLibraryBadSource(t *testing.T) {
	if _, err := NewKernelLibrary(WithSource("//@oxy:if ENABLE_BLEND_SHAPE\n")); err == nil {
		t.Error("NewKernelLibrary() error = nil, want error for unterminated block")
	}
}

func TestKernelLibraryValidationCompilesEveryVariant(t *testing.T) {
	lib, err := NewKernelLibrary(WithValidation(true))
	if err != nil {
		t.Fatalf("NewKernelLibrary(WithValidation(true)) error = %v", err)
	}
	for _, v := range AllVariants() {
		t.Run(v.Key(), func(t *testing.T) {
			if got := lib.SPIRVSize(v); got <= 0 {
				t.Errorf("SPIRVSize(%s) = %d, want > 0", v, got)
			}
		})
	}
}
