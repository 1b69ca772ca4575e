package trace

import "math/rand"

// PCs used by MatrixMultiply for its four memory instructions.
const (
	MatMulLoadA  uint64 = 0x1000
	MatMulLoadB  uint64 = 0x1004
	MatMulLoadC  uint64 = 0x1008
	MatMulStoreC uint64 = 0x100C
)

// Stride returns count reads starting at base and advancing by stride, all
// issued by pc.
func Stride(base uint64, stride int64, count int, pc uint64) []Access {
	accesses := make([]Access, 0, count)
	addr := base
	for i := 0; i < count; i++ {
		accesses = append(accesses, Access{Addr: addr, PC: pc, HasPC: true})
		addr = uint64(int64(addr) + stride)
	}
	return accesses
}

// MatrixMultiply returns the accesses of a naive i-j-k product C += A*B of
// n x n row-major matrices with elements of elem bytes. A is read along rows,
// B along columns, and each C element is read and written once per (i, j).
func MatrixMultiply(n int, elem, a, b, c uint64) []Access {
	size := uint64(n)
	accesses := make([]Access, 0, 2*n*n*n+2*n*n)
	for i := uint64(0); i < size; i++ {
		for j := uint64(0); j < size; j++ {
			cAddr := c + (i*size+j)*elem
			accesses = append(accesses, Access{Addr: cAddr, PC: MatMulLoadC, HasPC: true})
			for k := uint64(0); k < size; k++ {
				accesses = append(accesses,
					Access{Addr: a + (i*size+k)*elem, PC: MatMulLoadA, HasPC: true},
					Access{Addr: b + (k*size+j)*elem, PC: MatMulLoadB, HasPC: true},
				)
			}
			accesses = append(accesses, Access{Addr: cAddr, PC: MatMulStoreC, HasPC: true, IsWrite: true})
		}
	}
	return accesses
}

// Interleave merges streams round-robin, one access from each in turn, until
// every stream is exhausted.
func Interleave(streams ...[]Access) []Access {
	total := 0
	longest := 0
	for _, s := range streams {
		total += len(s)
		longest = max(longest, len(s))
	}

	out := make([]Access, 0, total)
	for i := 0; i < longest; i++ {
		for _, s := range streams {
			if i < len(s) {
				out = append(out, s[i])
			}
		}
	}
	return out
}

// PointerChase visits nodes nodes of nodeSize bytes starting at base in a
// pseudo-random order fixed by seed, like walking a shuffled linked list.
func PointerChase(seed int64, nodes int, nodeSize, base, pc uint64) []Access {
	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(nodes)

	accesses := make([]Access, 0, nodes)
	for _, node := range order {
		accesses = append(accesses, Access{Addr: base + uint64(node)*nodeSize, PC: pc, HasPC: true})
	}
	return accesses
}
