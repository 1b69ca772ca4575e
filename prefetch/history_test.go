package prefetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ghbsim/prefetch"
)

var _ = Describe("HistoryBuffer", func() {
	var h *prefetch.HistoryBuffer

	BeforeEach(func() {
		h = prefetch.NewHistoryBuffer(8, true, 4096)
	})

	pcAccess := func(pc, addr uint64) prefetch.Access {
		return prefetch.Access{Addr: addr, PC: pc, HasPC: true}
	}

	Describe("Insert", func() {
		It("should fill slots in circular order", func() {
			small := prefetch.NewHistoryBuffer(3, false, 4096)
			Expect(small.Insert(prefetch.Access{Addr: 0})).To(Equal(0))
			Expect(small.Insert(prefetch.Access{Addr: 64})).To(Equal(1))
			Expect(small.Insert(prefetch.Access{Addr: 128})).To(Equal(2))
			Expect(small.Len()).To(Equal(3))
			Expect(small.Insert(prefetch.Access{Addr: 192})).To(Equal(0))
			Expect(small.Len()).To(Equal(3))
			Expect(small.Cap()).To(Equal(3))
		})

		It("should assign strictly increasing sequence numbers", func() {
			small := prefetch.NewHistoryBuffer(2, false, 4096)
			var last uint64
			for i := 0; i < 5; i++ {
				slot := small.Insert(prefetch.Access{Addr: uint64(i) * 64})
				Expect(small.Sequence(slot)).To(BeNumerically(">", last))
				last = small.Sequence(slot)
			}
		})

		It("should return NoSlot for a buffer without capacity", func() {
			var empty prefetch.HistoryBuffer
			Expect(empty.Insert(prefetch.Access{Addr: 64})).To(Equal(prefetch.NoSlot))
			Expect(empty.BuildPattern(0, prefetch.KeyPage, 4)).To(BeEmpty())
		})

		It("should raise a zero capacity to one", func() {
			Expect(prefetch.NewHistoryBuffer(0, false, 4096).Cap()).To(Equal(1))
		})

		It("should index the most recent slot per PC and page", func() {
			h.Insert(pcAccess(0x400, 0x1000))
			h.Insert(pcAccess(0x500, 0x2000))
			slot := h.Insert(pcAccess(0x400, 0x1040))

			pcSlot, ok := h.Slot(prefetch.KeyPC, 0x400)
			Expect(ok).To(BeTrue())
			Expect(pcSlot).To(Equal(slot))

			pageSlot, ok := h.Slot(prefetch.KeyPage, h.Page(0x1040))
			Expect(ok).To(BeTrue())
			Expect(pageSlot).To(Equal(slot))
		})

		It("should not index PCs when PC tracking is disabled", func() {
			noPC := prefetch.NewHistoryBuffer(8, false, 4096)
			noPC.Insert(pcAccess(0x400, 0x1000))
			_, ok := noPC.Slot(prefetch.KeyPC, 0x400)
			Expect(ok).To(BeFalse())
		})

		It("should drop index entries of overwritten slots", func() {
			small := prefetch.NewHistoryBuffer(2, true, 4096)
			small.Insert(pcAccess(0x400, 0x1000))
			small.Insert(pcAccess(0x500, 0x2000))
			small.Insert(pcAccess(0x600, 0x3000))

			_, ok := small.Slot(prefetch.KeyPC, 0x400)
			Expect(ok).To(BeFalse())
			_, ok = small.Slot(prefetch.KeyPage, small.Page(0x1000))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("BuildPattern", func() {
		It("should return deltas along the PC chain, most recent first", func() {
			h.Insert(pcAccess(0x400, 0x1000))
			h.Insert(pcAccess(0x500, 0x9000))
			h.Insert(pcAccess(0x400, 0x1040))
			slot := h.Insert(pcAccess(0x400, 0x10C0))

			Expect(h.BuildPattern(slot, prefetch.KeyPC, 8)).To(Equal([]int64{0x80, 0x40}))
		})

		It("should never return more than maxLen deltas", func() {
			var slot int
			for i := 0; i < 8; i++ {
				slot = h.Insert(pcAccess(0x400, uint64(i)*64))
			}
			Expect(h.BuildPattern(slot, prefetch.KeyPC, 3)).To(HaveLen(3))
			Expect(h.BuildPattern(slot, prefetch.KeyPC, 0)).To(BeEmpty())
		})

		It("should produce negative deltas for descending streams", func() {
			h.Insert(pcAccess(0x400, 0x1100))
			slot := h.Insert(pcAccess(0x400, 0x1000))
			Expect(h.BuildPattern(slot, prefetch.KeyPC, 4)).To(Equal([]int64{-0x100}))
		})

		It("should follow the page chain independently of the PC", func() {
			h.Insert(pcAccess(0x400, 0x1000))
			h.Insert(pcAccess(0x500, 0x1100))
			slot := h.Insert(pcAccess(0x600, 0x1180))

			Expect(h.BuildPattern(slot, prefetch.KeyPC, 4)).To(BeEmpty())
			Expect(h.BuildPattern(slot, prefetch.KeyPage, 4)).To(Equal([]int64{0x80, 0x100}))
		})

		It("should stop at links to overwritten slots", func() {
			small := prefetch.NewHistoryBuffer(4, false, 4096)
			var slot int
			for i := 0; i < 6; i++ {
				slot = small.Insert(prefetch.Access{Addr: uint64(i) * 64})
			}
			Expect(small.BuildPattern(slot, prefetch.KeyPage, 16)).To(Equal([]int64{64, 64, 64}))
		})

		It("should reject out-of-range slots", func() {
			Expect(h.BuildPattern(-1, prefetch.KeyPage, 4)).To(BeEmpty())
			Expect(h.BuildPattern(8, prefetch.KeyPage, 4)).To(BeEmpty())
		})
	})

	Describe("Reset", func() {
		It("should empty the buffer and restart sequences", func() {
			h.Insert(pcAccess(0x400, 0x1000))
			h.Insert(pcAccess(0x400, 0x1040))
			h.Reset()

			Expect(h.Len()).To(Equal(0))
			_, ok := h.Slot(prefetch.KeyPC, 0x400)
			Expect(ok).To(BeFalse())

			slot := h.Insert(pcAccess(0x400, 0x1080))
			Expect(slot).To(Equal(0))
			Expect(h.Sequence(slot)).To(Equal(uint64(1)))
			Expect(h.BuildPattern(slot, prefetch.KeyPC, 4)).To(BeEmpty())
		})
	})

	Describe("Reverse", func() {
		It("should return chronological order", func() {
			Expect(prefetch.Reverse([]int64{3, 2, 1})).To(Equal([]int64{1, 2, 3}))
			Expect(prefetch.Reverse(nil)).To(BeEmpty())
		})
	})
})
