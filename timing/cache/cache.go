// Package cache provides a set-associative cache built on Akita cache
// components that trains a prefetcher and installs its candidates.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/ghbsim/prefetch"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in cycles
	HitLatency uint64
	// MissLatency in cycles (includes memory access time)
	MissLatency uint64
	// PrefetchOnAccess trains the prefetcher on every demand access. When
	// false only misses and first hits on prefetched blocks train it.
	PrefetchOnAccess bool
}

// DefaultL1DConfig returns a 64KB 8-way L1 data cache with 64B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          64 * 1024,
		Associativity: 8,
		BlockSize:     64,
		HitLatency:    4,
		MissLatency:   12,
	}
}

// DefaultL2Config returns a 1MB 16-way unified L2 with 64B lines.
func DefaultL2Config() Config {
	return Config{
		Size:          1024 * 1024,
		Associativity: 16,
		BlockSize:     64,
		HitLatency:    12,
		MissLatency:   150,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// PrefetchHit is set when the hit block was brought in by a prefetch
	// and had not been used yet.
	PrefetchHit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for load operations).
	Data uint64
	// Evicted is true if a valid block was evicted.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
	// Prefetches is the number of blocks installed by the prefetcher as a
	// result of this access.
	Prefetches int
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64

	// PrefetchesIssued counts blocks installed by the prefetcher.
	PrefetchesIssued uint64
	// PrefetchesDropped counts candidates that were already cached.
	PrefetchesDropped uint64
	// UsefulPrefetches counts prefetched blocks later hit by a demand access.
	UsefulPrefetches uint64
	// UnusedEvictions counts prefetched blocks evicted before any use.
	UnusedEvictions uint64
}

// HitRate returns the demand hit rate as a percentage.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// PrefetchAccuracy returns the share of issued prefetches that were used, as
// a percentage.
func (s Statistics) PrefetchAccuracy() float64 {
	if s.PrefetchesIssued == 0 {
		return 0
	}
	return float64(s.UsefulPrefetches) / float64(s.PrefetchesIssued) * 100
}

// PrefetchCoverage returns the share of would-be misses removed by
// prefetching, as a percentage.
func (s Statistics) PrefetchCoverage() float64 {
	total := s.UsefulPrefetches + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.UsefulPrefetches) / float64(total) * 100
}

// BackingStore interface for the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store.
	Read(addr uint64, size int) []byte
	// Write stores data to the backing store.
	Write(addr uint64, data []byte)
}

// Prefetcher suggests blocks to bring in after an access.
type Prefetcher interface {
	Calculate(access prefetch.Access) []prefetch.AddrPriority
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefetcher attaches a prefetcher to the cache.
func WithPrefetcher(p Prefetcher) Option {
	return func(c *Cache) {
		c.prefetcher = p
	}
}

// Cache represents a cache level using Akita cache components.
type Cache struct {
	// Configuration
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	// Statistics
	stats Statistics

	// Backing store interface (for fetching on miss and writeback)
	backing BackingStore

	prefetcher Prefetcher

	// Block addresses installed by the prefetcher and not yet used.
	prefetched map[uint64]bool
}

// New creates a new cache with the given configuration.
func New(config Config, backing BackingStore, opts ...Option) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	// Initialize data storage
	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	c := &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore:  dataStore,
		backing:    backing,
		prefetched: make(map[uint64]bool),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// BlockAddress aligns addr down to its cache block.
func (c *Cache) BlockAddress(addr uint64) uint64 {
	return (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)
}

// Contains reports whether the block holding addr is cached.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.BlockAddress(addr))
	return block != nil && block.IsValid
}

// blockIndex computes the index into dataStore for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// request describes one demand access.
type request struct {
	addr    uint64
	size    int
	pc      uint64
	hasPC   bool
	isWrite bool
	data    uint64
}

// Read performs a cache read operation.
// Returns the access result including hit/miss and latency.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	return c.access(request{addr: addr, size: size})
}

// ReadAt performs a cache read issued by the instruction at pc.
func (c *Cache) ReadAt(pc, addr uint64, size int) AccessResult {
	return c.access(request{addr: addr, size: size, pc: pc, hasPC: true})
}

// Write performs a cache write operation.
// Uses write-allocate policy: on miss, fetch the block first, then write.
func (c *Cache) Write(addr uint64, size int, data uint64) AccessResult {
	return c.access(request{addr: addr, size: size, isWrite: true, data: data})
}

// WriteAt performs a cache write issued by the instruction at pc.
func (c *Cache) WriteAt(pc, addr uint64, size int, data uint64) AccessResult {
	return c.access(request{addr: addr, size: size, pc: pc, hasPC: true, isWrite: true, data: data})
}

func (c *Cache) access(req request) AccessResult {
	if req.isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	// Compute block-aligned address for lookup
	blockAddr := c.BlockAddress(req.addr)

	// Look up in directory using block-aligned address
	block := c.directory.Lookup(0, blockAddr) // PID=0 for now

	var result AccessResult
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block) // Update LRU

		if c.prefetched[blockAddr] {
			delete(c.prefetched, blockAddr)
			c.stats.UsefulPrefetches++
			result.PrefetchHit = true
		}

		offset := req.addr % uint64(c.config.BlockSize)
		blockData := c.dataStore[c.blockIndex(block)]
		if req.isWrite {
			storeData(blockData, offset, req.size, req.data)
			block.IsDirty = true
		} else {
			result.Data = extractData(blockData, offset, req.size)
		}

		result.Hit = true
		result.Latency = c.config.HitLatency
	} else {
		c.stats.Misses++
		result = c.handleMiss(req)
	}

	if c.prefetcher != nil && (c.config.PrefetchOnAccess || !result.Hit || result.PrefetchHit) {
		result.Prefetches = c.issuePrefetches(req)
	}

	return result
}

// handleMiss handles a cache miss by fetching from backing store.
func (c *Cache) handleMiss(req request) AccessResult {
	result := AccessResult{
		Hit:     false,
		Latency: c.config.MissLatency,
	}

	blockAddr := c.BlockAddress(req.addr)

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		// This shouldn't happen with proper directory setup
		return result
	}

	if victim.IsValid {
		result.Evicted = true
		result.EvictedAddr = victim.Tag // Tag stores block-aligned address
	}

	victimData := c.fill(victim, blockAddr)

	offset := req.addr % uint64(c.config.BlockSize)
	if req.isWrite {
		storeData(victimData, offset, req.size, req.data)
		victim.IsDirty = true
	} else {
		result.Data = extractData(victimData, offset, req.size)
	}

	return result
}

// fill evicts whatever victim holds and loads blockAddr into it.
func (c *Cache) fill(victim *akitacache.Block, blockAddr uint64) []byte {
	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		if c.prefetched[victim.Tag] {
			delete(c.prefetched, victim.Tag)
			c.stats.UnusedEvictions++
		}

		// Writeback if dirty
		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, victimData)
		}
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(blockAddr, c.config.BlockSize))
	} else {
		clear(victimData)
	}

	// Store block-aligned address as tag
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim) // Update LRU

	return victimData
}

// issuePrefetches trains the prefetcher with the access and installs the
// blocks it returns.
func (c *Cache) issuePrefetches(req request) int {
	candidates := c.prefetcher.Calculate(prefetch.Access{
		Addr:  req.addr,
		PC:    req.pc,
		HasPC: req.hasPC,
	})

	installed := 0
	for _, candidate := range candidates {
		if c.Prefetch(candidate.Addr) {
			installed++
		}
	}
	return installed
}

// Prefetch installs the block holding addr without counting a demand access.
// It returns false when the block is already cached.
func (c *Cache) Prefetch(addr uint64) bool {
	blockAddr := c.BlockAddress(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.PrefetchesDropped++
		return false
	}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return false
	}

	c.fill(victim, blockAddr)
	c.prefetched[blockAddr] = true
	c.stats.PrefetchesIssued++
	return true
}

// Invalidate marks a cache line as invalid.
func (c *Cache) Invalidate(addr uint64) {
	blockAddr := c.BlockAddress(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
		delete(c.prefetched, blockAddr)
	}
}

// Flush writes back all dirty blocks and invalidates them.
func (c *Cache) Flush() {
	sets := c.directory.GetSets()
	for _, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				// Tag stores block-aligned address directly
				blockData := c.dataStore[c.blockIndex(block)]
				c.backing.Write(block.Tag, blockData)
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	clear(c.prefetched)
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
	clear(c.prefetched)
}

// extractData extracts a value of the given size from a byte slice.
func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}

	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData stores a value of the given size into a byte slice.
func storeData(data []byte, offset uint64, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}

	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
