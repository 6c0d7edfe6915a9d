package workerpool

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sizes holds pool limits per workload class.
type Sizes struct {
	Cores    int
	CPU      int
	IO       int
	FFmpeg   int
	Hardware int
}

// DetectSizes reads the logical core count from the host, falling back to the
// Go runtime when gopsutil cannot.
func DetectSizes() Sizes {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}
	return SizesFor(cores)
}

// SizesFor derives pool limits from a core count.
func SizesFor(cores int) Sizes {
	if cores <= 0 {
		cores = 4
	}
	return Sizes{
		Cores:    cores,
		CPU:      max(2, cores-2),
		IO:       max(4, min(16, cores)),
		FFmpeg:   max(2, min(12, cores/2)),
		Hardware: max(2, min(8, cores/2)),
	}
}

// Override replaces a computed size with a configured one when positive.
func Override(computed, configured int) int {
	if configured > 0 {
		return configured
	}
	return computed
}

const gib = 1 << 30

// TotalMemory returns host RAM in bytes, or 0 when unknown.
func TotalMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return vm.Total
}

// AvailableMemory returns currently available RAM in bytes, or 0 when unknown.
func AvailableMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0
	}
	return vm.Available
}

// DetectorBatchSize picks an inference batch size from available memory.
func DetectorBatchSize(available uint64) int {
	switch {
	case available >= 64*gib:
		return 48
	case available >= 32*gib:
		return 32
	case available >= 16*gib:
		return 16
	default:
		return 8
	}
}
