package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ghbsim/prefetch"
	"github.com/sarchlab/ghbsim/timing/cache"
)

// fixedPrefetcher returns the same candidates on every call.
type fixedPrefetcher struct {
	candidates []uint64
	calls      []prefetch.Access
}

func (f *fixedPrefetcher) Calculate(access prefetch.Access) []prefetch.AddrPriority {
	f.calls = append(f.calls, access)
	out := make([]prefetch.AddrPriority, 0, len(f.candidates))
	for _, addr := range f.candidates {
		out = append(out, prefetch.AddrPriority{Addr: addr})
	}
	return out
}

var _ = Describe("Cache", func() {
	var (
		c      *cache.Cache
		memory *cache.SparseMemory
		config cache.Config
	)

	BeforeEach(func() {
		memory = cache.NewSparseMemory()
		// Small cache for testing: 4KB, 4-way, 64B lines
		config = cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}
		c = cache.New(config, memory)
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			memory.Write64(0x1000, 0xDEADBEEF)

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))
			Expect(result.Data).To(Equal(uint64(0xDEADBEEF)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			memory.Write64(0x1000, 0xCAFEBABE)

			c.Read(0x1000, 8)

			result := c.Read(0x1000, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(result.Data).To(Equal(uint64(0xCAFEBABE)))
			Expect(c.Stats().HitRate()).To(BeNumerically("~", 50.0))
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			result := c.Write(0x1000, 8, 0x12345678)
			Expect(result.Hit).To(BeFalse())

			readResult := c.Read(0x1000, 8)
			Expect(readResult.Hit).To(BeTrue())
			Expect(readResult.Data).To(Equal(uint64(0x12345678)))
		})
	})

	Describe("Eviction", func() {
		It("should writeback dirty evicted blocks", func() {
			// 16 sets: 0x0000, 0x0400, 0x0800, 0x0C00 and 0x1000 share set 0.
			c.Write(0x0000, 8, 0x11111111)
			c.Write(0x0400, 8, 0x22222222)
			c.Write(0x0800, 8, 0x33333333)
			c.Write(0x0C00, 8, 0x44444444)

			c.Read(0x0400, 8)
			c.Read(0x0800, 8)
			c.Read(0x0C00, 8)

			result := c.Write(0x1000, 8, 0x55555555)
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x0000)))
			Expect(memory.Read64(0x0000)).To(Equal(uint64(0x11111111)))

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(uint64(1)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Flush", func() {
		It("should write back all dirty blocks", func() {
			c.Write(0x0000, 8, 0x11111111)
			c.Write(0x1000, 8, 0x22222222)
			Expect(memory.Read64(0x0000)).To(Equal(uint64(0)))

			c.Flush()

			Expect(memory.Read64(0x0000)).To(Equal(uint64(0x11111111)))
			Expect(memory.Read64(0x1000)).To(Equal(uint64(0x22222222)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
			Expect(c.Contains(0x0000)).To(BeFalse())
		})
	})

	Describe("Prefetching", func() {
		var pf *fixedPrefetcher

		BeforeEach(func() {
			pf = &fixedPrefetcher{candidates: []uint64{0x1040, 0x1080}}
			c = cache.New(config, memory, cache.WithPrefetcher(pf))
		})

		It("should train on misses and install candidates", func() {
			result := c.ReadAt(0x400, 0x1000, 8)
			Expect(result.Prefetches).To(Equal(2))
			Expect(pf.calls).To(Equal([]prefetch.Access{{Addr: 0x1000, PC: 0x400, HasPC: true}}))

			Expect(c.Contains(0x1040)).To(BeTrue())
			Expect(c.Contains(0x10BF)).To(BeTrue())
			Expect(c.Stats().PrefetchesIssued).To(Equal(uint64(2)))
			Expect(c.Stats().Reads).To(Equal(uint64(1)))
		})

		It("should count the first hit on a prefetched block as useful", func() {
			c.Read(0x1000, 8)

			result := c.Read(0x1040, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.PrefetchHit).To(BeTrue())

			result = c.Read(0x1040, 8)
			Expect(result.PrefetchHit).To(BeFalse())

			stats := c.Stats()
			Expect(stats.UsefulPrefetches).To(Equal(uint64(1)))
			Expect(stats.PrefetchAccuracy()).To(BeNumerically("~", 50.0))
		})

		It("should train on prefetch hits but not on plain hits", func() {
			c.Read(0x1000, 8)
			c.Read(0x1000, 8)
			Expect(pf.calls).To(HaveLen(1))

			c.Read(0x1040, 8)
			Expect(pf.calls).To(HaveLen(2))
			Expect(c.Stats().PrefetchesDropped).To(Equal(uint64(2)))
		})

		It("should train on every access when configured", func() {
			config.PrefetchOnAccess = true
			c = cache.New(config, memory, cache.WithPrefetcher(pf))

			c.Read(0x1000, 8)
			c.Read(0x1000, 8)
			Expect(pf.calls).To(HaveLen(2))
		})

		It("should write demand data into prefetched blocks", func() {
			memory.Write64(0x1080, 0xABCD)
			c.Read(0x1000, 8)
			Expect(c.Read(0x1080, 8).Data).To(Equal(uint64(0xABCD)))

			c.Write(0x1040, 8, 0x77)
			c.Flush()
			Expect(memory.Read64(0x1040)).To(Equal(uint64(0x77)))
		})

		It("should forget invalidated prefetched blocks", func() {
			c.Read(0x1000, 8)
			c.Invalidate(0x1040)
			Expect(c.Contains(0x1040)).To(BeFalse())

			result := c.Read(0x1040, 8)
			Expect(result.Hit).To(BeFalse())
			Expect(result.PrefetchHit).To(BeFalse())
			Expect(c.Stats().UsefulPrefetches).To(BeZero())

			result = c.Read(0x1080, 8)
			Expect(result.PrefetchHit).To(BeTrue())
			Expect(c.Stats().UsefulPrefetches).To(Equal(uint64(1)))
			Expect(c.Stats().UnusedEvictions).To(BeZero())
		})

		It("should count prefetched blocks evicted before use", func() {
			plain := cache.New(config, memory)
			Expect(plain.Prefetch(0x0400)).To(BeTrue())
			Expect(plain.Prefetch(0x0400)).To(BeFalse())

			plain.Read(0x0000, 8)
			plain.Read(0x0800, 8)
			plain.Read(0x0C00, 8)
			plain.Read(0x1000, 8)

			stats := plain.Stats()
			Expect(stats.UnusedEvictions).To(Equal(uint64(1)))
			Expect(stats.PrefetchesDropped).To(Equal(uint64(1)))
			Expect(plain.Contains(0x0400)).To(BeFalse())
		})
	})

	Describe("With a GHB prefetcher", func() {
		It("should remove most misses of a sequential stream", func() {
			ghb := prefetch.New(prefetch.DefaultConfig())
			l1 := cache.New(cache.DefaultL1DConfig(), memory, cache.WithPrefetcher(ghb))

			for addr := uint64(0); addr < 4*4096; addr += 64 {
				l1.ReadAt(0x400, addr, 8)
			}

			stats := l1.Stats()
			Expect(stats.Misses).To(BeNumerically("<=", 8))
			Expect(stats.PrefetchCoverage()).To(BeNumerically(">", 90))
		})
	})

	Describe("Default configurations", func() {
		It("should create L1D config", func() {
			config := cache.DefaultL1DConfig()
			Expect(config.Size).To(Equal(64 * 1024))
			Expect(config.Associativity).To(Equal(8))
			Expect(config.BlockSize).To(Equal(64))
		})

		It("should create L2 config", func() {
			config := cache.DefaultL2Config()
			Expect(config.Size).To(Equal(1024 * 1024))
			Expect(config.Associativity).To(Equal(16))
		})
	})

	Describe("SparseMemory", func() {
		It("should read zeros from untouched pages", func() {
			Expect(memory.Read(0x9000, 4)).To(Equal([]byte{0, 0, 0, 0}))
			Expect(memory.Pages()).To(Equal(0))
		})

		It("should handle writes spanning pages", func() {
			memory.Write64(0x0FFC, 0x0102030405060708)
			Expect(memory.Read64(0x0FFC)).To(Equal(uint64(0x0102030405060708)))
			Expect(memory.Pages()).To(Equal(2))
		})
	})
})
