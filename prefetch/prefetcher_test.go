package prefetch_test

import (
	"bytes"

	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ghbsim/prefetch"
)

var _ = Describe("Prefetcher", func() {
	var p *prefetch.Prefetcher

	BeforeEach(func() {
		p = prefetch.New(prefetch.DefaultConfig())
	})

	access := func(addr uint64) prefetch.Access {
		return prefetch.Access{Addr: addr, PC: 0x400, HasPC: true}
	}

	It("should emit nothing for the first access", func() {
		Expect(p.Calculate(access(0x1000))).To(BeEmpty())
		Expect(p.Stats().NoPattern).To(Equal(uint64(1)))
	})

	It("should fall back to the last stride before the table is trained", func() {
		p.Calculate(access(0))
		out := p.Calculate(access(64))

		Expect(addrs(out)).To(Equal([]uint64{128, 192, 256, 320, 384, 448, 512}))
		Expect(p.Stats().Fallbacks).To(Equal(uint64(1)))
	})

	It("should predict a periodic stride once a triple is learned", func() {
		var out []prefetch.AddrPriority
		for _, addr := range []uint64{0, 64, 128, 192} {
			out = p.Calculate(access(addr))
		}

		Expect(out).To(HaveLen(14))
		for i, c := range out {
			Expect(c.Addr).To(Equal(uint64(256 + 64*i)))
		}
		Expect(p.Stats().PatternMatches).To(Equal(uint64(1)))
		Expect(p.PatternCount()).To(Equal(1))
	})

	It("should keep every candidate in the trigger's page", func() {
		var out []prefetch.AddrPriority
		for addr := uint64(3584); addr < 4096; addr += 64 {
			out = p.Calculate(access(addr))
			for _, c := range out {
				Expect(c.Addr / 4096).To(Equal(addr / 4096))
			}
		}
		Expect(out).To(BeEmpty())
	})

	It("should block-align trigger addresses", func() {
		p.Calculate(access(0x1003))
		out := p.Calculate(access(0x1047))
		Expect(out).NotTo(BeEmpty())
		Expect(out[0].Addr).To(Equal(uint64(0x1080)))
	})

	It("should correlate by page when PCs differ", func() {
		p.Calculate(prefetch.Access{Addr: 0x2000, PC: 0x400, HasPC: true})
		out := p.Calculate(prefetch.Access{Addr: 0x2100, PC: 0x500, HasPC: true})
		Expect(out).NotTo(BeEmpty())
		Expect(out[0].Addr).To(Equal(uint64(0x2200)))
	})

	It("should separate interleaved streams by PC", func() {
		config := prefetch.DefaultConfig()
		p = prefetch.New(config)

		var out []prefetch.AddrPriority
		for i := uint64(0); i < 6; i++ {
			p.Calculate(prefetch.Access{Addr: 0x10000 + i*128, PC: 0x400, HasPC: true})
			out = p.Calculate(prefetch.Access{Addr: 0x10000 + 0x800 + i*64, PC: 0x500, HasPC: true})
		}

		Expect(out).NotTo(BeEmpty())
		Expect(out[0].Addr).To(Equal(uint64(0x10000 + 0x800 + 6*64)))
	})

	It("should clear all predictions on reset", func() {
		for _, addr := range []uint64{0, 64, 128, 192, 256} {
			p.Calculate(access(addr))
		}
		p.Reset()

		Expect(p.Calculate(access(320))).To(BeEmpty())
		Expect(p.PatternCount()).To(Equal(0))
		Expect(p.Stats().Accesses).To(Equal(uint64(1)))
	})

	It("should clamp a degenerate configuration", func() {
		p = prefetch.New(prefetch.Config{ConfidenceThreshold: 500})
		config := p.Config()
		Expect(config.HistorySize).To(Equal(1))
		Expect(config.PatternLength).To(Equal(1))
		Expect(config.Degree).To(Equal(1))
		Expect(config.ConfidenceThreshold).To(Equal(100))
		Expect(config.PageBytes).To(Equal(uint64(1)))
		Expect(config.BlockSize).To(Equal(uint64(1)))

		Expect(p.Calculate(access(0x10))).To(BeEmpty())
		Expect(p.Calculate(access(0x20))).To(BeEmpty())
	})

	It("should count emitted candidates", func() {
		for _, addr := range []uint64{0, 64, 128, 192} {
			p.Calculate(access(addr))
		}
		stats := p.Stats()
		Expect(stats.Accesses).To(Equal(uint64(4)))
		Expect(stats.Candidates).To(Equal(uint64(7 + 8 + 14)))
		Expect(stats.MatchRate()).To(BeNumerically("~", 25.0))
	})

	It("should log decisions at verbosity one", func() {
		var buf bytes.Buffer
		logger := funcr.New(func(prefix, args string) {
			buf.WriteString(args)
			buf.WriteString("\n")
		}, funcr.Options{Verbosity: 1})

		p = prefetch.New(prefetch.DefaultConfig(), prefetch.WithLogger(logger))
		p.Calculate(access(0))
		p.Calculate(access(64))

		Expect(buf.String()).To(ContainSubstring(`"msg"="prefetch"`))
		Expect(buf.String()).To(ContainSubstring(`"matched"=false`))
	})
})
