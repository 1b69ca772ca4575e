// Package prefetch implements a Global History Buffer (GHB) delta-correlation
// prefetcher.
//
// Each access is appended to a circular history buffer. Entries are linked to
// the previous access with the same instruction pointer and to the previous
// access on the same page. Walking those links yields a delta sequence that
// trains a table keyed on consecutive delta pairs, and the table in turn
// predicts the deltas the next accesses are likely to follow.
package prefetch

// NoSlot is returned by Insert when the buffer has no capacity.
const NoSlot = -1

// CorrelationKey selects which back-link chain of the history buffer to
// follow.
type CorrelationKey int

// Correlation keys.
const (
	// KeyPC links accesses issued by the same instruction.
	KeyPC CorrelationKey = iota
	// KeyPage links accesses that fall in the same page.
	KeyPage

	numCorrelationKeys
)

// String returns the key name.
func (k CorrelationKey) String() string {
	switch k {
	case KeyPC:
		return "pc"
	case KeyPage:
		return "page"
	default:
		return "unknown"
	}
}

// Access is a single memory access event observed by the prefetcher.
type Access struct {
	// Addr is the accessed byte address.
	Addr uint64
	// PC is the instruction pointer of the access, valid when HasPC is set.
	PC    uint64
	HasPC bool
}

// link is a back-reference to the previous history entry sharing a key. The
// reference holds only while the slot at prev still carries sequence number
// prevSeq.
type link struct {
	prev     int
	prevSeq  uint64
	keyValue uint64
	valid    bool
}

type record struct {
	addr  uint64
	seq   uint64
	links [numCorrelationKeys]link
}

// HistoryBuffer is a fixed-capacity circular log of recent accesses with
// per-key correlation links.
type HistoryBuffer struct {
	records []record
	index   [numCorrelationKeys]map[uint64]int

	head    int
	filled  bool
	nextSeq uint64

	usePC     bool
	pageBytes uint64
}

// NewHistoryBuffer creates a history buffer holding size entries. Sizes below
// one are raised to one.
func NewHistoryBuffer(size int, usePC bool, pageBytes uint64) *HistoryBuffer {
	h := &HistoryBuffer{
		records:   make([]record, max(1, size)),
		usePC:     usePC,
		pageBytes: max(1, pageBytes),
		nextSeq:   1,
	}
	for i := range h.index {
		h.index[i] = make(map[uint64]int)
	}
	return h
}

// Cap returns the buffer capacity.
func (h *HistoryBuffer) Cap() int {
	return len(h.records)
}

// Len returns the number of occupied slots.
func (h *HistoryBuffer) Len() int {
	if h.filled {
		return len(h.records)
	}
	return h.head
}

// Page returns the page number containing addr.
func (h *HistoryBuffer) Page(addr uint64) uint64 {
	return addr / h.pageBytes
}

// Sequence returns the sequence number stored in slot, or 0 if the slot is
// out of range or has never been written.
func (h *HistoryBuffer) Sequence(slot int) uint64 {
	if slot < 0 || slot >= len(h.records) {
		return 0
	}
	return h.records[slot].seq
}

// Slot returns the most recent slot indexed under value for the given key.
func (h *HistoryBuffer) Slot(key CorrelationKey, value uint64) (int, bool) {
	if h.index[key] == nil {
		return NoSlot, false
	}
	slot, ok := h.index[key][value]
	return slot, ok
}

// Reset empties the buffer and the correlation index and restarts the
// sequence counter.
func (h *HistoryBuffer) Reset() {
	clear(h.records)
	for i := range h.index {
		clear(h.index[i])
	}
	h.head = 0
	h.filled = false
	h.nextSeq = 1
}

// Insert appends the access and returns its slot. It returns NoSlot only for
// a buffer without capacity.
func (h *HistoryBuffer) Insert(access Access) int {
	if len(h.records) == 0 {
		return NoSlot
	}

	if h.filled {
		h.evict(h.head)
	}

	slot := h.head
	entry := &h.records[slot]
	entry.addr = access.Addr
	entry.seq = h.nextSeq
	h.nextSeq++

	if h.usePC && access.HasPC {
		h.correlate(slot, KeyPC, access.PC)
	} else {
		entry.links[KeyPC] = link{}
	}
	h.correlate(slot, KeyPage, h.Page(access.Addr))

	h.head = (h.head + 1) % len(h.records)
	if h.head == 0 {
		h.filled = true
	}

	return slot
}

// evict drops every index entry that still targets slot.
func (h *HistoryBuffer) evict(slot int) {
	victim := &h.records[slot]
	for key := range victim.links {
		l := &victim.links[key]
		if !l.valid {
			continue
		}
		if target, ok := h.index[key][l.keyValue]; ok && target == slot {
			delete(h.index[key], l.keyValue)
		}
		l.valid = false
	}
}

func (h *HistoryBuffer) correlate(slot int, key CorrelationKey, value uint64) {
	l := link{prev: NoSlot, keyValue: value, valid: true}
	if prev, ok := h.index[key][value]; ok {
		l.prev = prev
		l.prevSeq = h.records[prev].seq
	}
	h.records[slot].links[key] = l
	h.index[key][value] = slot
}

// BuildPattern walks back from slot along the key's links and returns at most
// maxLen deltas, most recent first. The walk stops at the first link whose
// target has been overwritten since the link was made.
func (h *HistoryBuffer) BuildPattern(slot int, key CorrelationKey, maxLen int) []int64 {
	if slot < 0 || slot >= len(h.records) || maxLen < 1 {
		return nil
	}

	var deltas []int64
	current := slot
	for len(deltas) < maxLen {
		entry := &h.records[current]
		l := entry.links[key]
		if !l.valid || l.prev < 0 {
			break
		}
		prev := &h.records[l.prev]
		if prev.seq != l.prevSeq {
			break
		}

		deltas = append(deltas, int64(entry.addr)-int64(prev.addr))
		current = l.prev
	}

	return deltas
}

// Reverse returns a copy of deltas in the opposite order. BuildPattern
// results are most-recent-first; the pattern table and predictor consume
// chronological order.
func Reverse(deltas []int64) []int64 {
	out := make([]int64, len(deltas))
	for i, d := range deltas {
		out[len(deltas)-1-i] = d
	}
	return out
}
