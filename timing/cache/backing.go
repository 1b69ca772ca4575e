package cache

import "encoding/binary"

const memoryPageSize = 4096

// SparseMemory is a page-granular BackingStore. Pages are allocated on first
// write; unwritten memory reads as zero.
type SparseMemory struct {
	pages map[uint64][]byte
}

// NewSparseMemory creates an empty SparseMemory.
func NewSparseMemory() *SparseMemory {
	return &SparseMemory{pages: make(map[uint64][]byte)}
}

// Read fetches data from the backing memory.
func (m *SparseMemory) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		a := addr + uint64(i)
		if page, ok := m.pages[a/memoryPageSize]; ok {
			data[i] = page[a%memoryPageSize]
		}
	}
	return data
}

// Write stores data to the backing memory.
func (m *SparseMemory) Write(addr uint64, data []byte) {
	for i, b := range data {
		a := addr + uint64(i)
		page, ok := m.pages[a/memoryPageSize]
		if !ok {
			page = make([]byte, memoryPageSize)
			m.pages[a/memoryPageSize] = page
		}
		page[a%memoryPageSize] = b
	}
}

// Read64 reads a little-endian 64-bit value.
func (m *SparseMemory) Read64(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(m.Read(addr, 8))
}

// Write64 writes a little-endian 64-bit value.
func (m *SparseMemory) Write64(addr uint64, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	m.Write(addr, buf[:])
}

// Pages returns the number of allocated pages.
func (m *SparseMemory) Pages() int {
	return len(m.pages)
}
