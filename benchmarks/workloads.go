package benchmarks

import "github.com/sarchlab/ghbsim/trace"

// GetWorkloads returns the standard set of replay workloads. Each one
// targets a different access pattern the prefetcher should (or should not)
// learn.
func GetWorkloads() []Workload {
	return []Workload{
		sequentialStride(),
		reverseStride(),
		interleavedStrides(),
		matrixMultiply(),
		pointerChase(),
	}
}

// GetCoreWorkloads returns a minimal set for quick validation: one regular
// stream, one multi-PC kernel, and one irregular walk.
func GetCoreWorkloads() []Workload {
	return []Workload{
		sequentialStride(),
		matrixMultiply(),
		pointerChase(),
	}
}

// 1. Sequential stride - one PC walking forward block by block
func sequentialStride() Workload {
	return Workload{
		Name:        "stride",
		Description: "4096 reads advancing one 64B block at a time from a single PC",
		Accesses:    trace.Stride(0x100000, 64, 4096, 0x400),
	}
}

// 2. Reverse stride - negative deltas must chain downward
func reverseStride() Workload {
	return Workload{
		Name:        "reverse_stride",
		Description: "4096 reads walking backward 128B at a time from a single PC",
		Accesses:    trace.Stride(0x400000, -128, 4096, 0x404),
	}
}

// 3. Interleaved strides - per-PC correlation separates the streams
func interleavedStrides() Workload {
	return Workload{
		Name:        "interleaved",
		Description: "three PCs with 64B, 128B and 192B strides interleaved round-robin",
		Accesses: trace.Interleave(
			trace.Stride(0x1000000, 64, 2048, 0x408),
			trace.Stride(0x2000000, 128, 2048, 0x40C),
			trace.Stride(0x3000000, 192, 2048, 0x410),
		),
	}
}

// 4. Matrix multiply - row walk on A, column walk on B
func matrixMultiply() Workload {
	return Workload{
		Name:        "matmul",
		Description: "32x32 i-j-k matrix multiply of 4-byte elements",
		Accesses:    trace.MatrixMultiply(32, 4, 0x4000000, 0x5000000, 0x6000000),
	}
}

// 5. Pointer chase - no stable delta, prefetches should mostly miss
func pointerChase() Workload {
	return Workload{
		Name:        "pointer_chase",
		Description: "4096 64B nodes visited in shuffled order",
		Accesses:    trace.PointerChase(42, 4096, 64, 0x8000000, 0x414),
	}
}
