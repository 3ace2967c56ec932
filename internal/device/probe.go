package device

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// HostInfo describes the CPU pots runs on.
type HostInfo struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	AVX512        bool
}

// Host probes the local CPU.
func Host() HostInfo {
	return HostInfo{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
	}
}

func (h HostInfo) String() string {
	simd := "none"
	switch {
	case h.AVX512:
		simd = "avx512"
	case h.AVX2:
		simd = "avx2"
	}
	brand := h.Brand
	if brand == "" {
		brand = "unknown cpu"
	}
	return fmt.Sprintf("%s (%d cores, %d threads, simd %s)", brand, h.PhysicalCores, h.LogicalCores, simd)
}

// probe reports whether an accelerator is present. It returns a description
// or the reason it is unusable.
type probe func(index int) (string, error)

func probeCPU(int) (string, error) { return Host().String(), nil }
