package prefetch

import "math/bits"

// DeltaPair is an ordered pair of consecutive deltas, the pattern table key.
type DeltaPair struct {
	D0 int64
	D1 int64
}

// PatternEntry counts the deltas observed right after a DeltaPair.
type PatternEntry struct {
	Counts map[int64]uint64
	Total  uint64
}

// Confidence returns the percentage of observations that were followed by
// delta.
func (e *PatternEntry) Confidence(delta int64) int {
	if e == nil || e.Total == 0 {
		return 0
	}
	return percent(e.Counts[delta], e.Total)
}

// percent returns 100 * count / total, truncated, without overflowing for
// large counts. count must not exceed total.
func percent(count, total uint64) int {
	if count >= total {
		return 100
	}
	hi, lo := bits.Mul64(count, 100)
	q, _ := bits.Div64(hi, lo, total)
	return int(q)
}

// PatternTable maps delta pairs to the distribution of the delta that
// followed them. The table is never evicted; it grows with the number of
// distinct pairs seen.
type PatternTable struct {
	entries map[DeltaPair]*PatternEntry
}

// NewPatternTable creates an empty pattern table.
func NewPatternTable() *PatternTable {
	return &PatternTable{entries: make(map[DeltaPair]*PatternEntry)}
}

// Len returns the number of distinct delta pairs in the table.
func (t *PatternTable) Len() int {
	return len(t.entries)
}

// Lookup returns the entry for key.
func (t *PatternTable) Lookup(key DeltaPair) (*PatternEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Reset removes every entry.
func (t *PatternTable) Reset() {
	clear(t.entries)
}

// Update trains the table on a chronological delta sequence. Every triple
// (d[i], d[i+1], d[i+2]) records d[i+2] as an outcome of (d[i], d[i+1]).
// The sequence is scanned again from offsets 1 to 3, and once more with a
// stride of two when it holds at least five deltas, so that periodic
// patterns are learned regardless of where the window starts.
func (t *PatternTable) Update(chronological []int64) {
	n := len(chronological)
	if n < 3 {
		return
	}

	t.scan(chronological, 0, 1)

	for offset := 1; offset < n-2 && offset < 4; offset++ {
		t.scan(chronological, offset, 1)
	}

	if n >= 5 {
		t.scan(chronological, 0, 2)
	}
}

func (t *PatternTable) scan(deltas []int64, start, step int) {
	for i := start; i+2 < len(deltas); i += step {
		t.record(DeltaPair{D0: deltas[i], D1: deltas[i+1]}, deltas[i+2])
	}
}

func (t *PatternTable) record(key DeltaPair, outcome int64) {
	entry, ok := t.entries[key]
	if !ok {
		entry = &PatternEntry{Counts: make(map[int64]uint64)}
		t.entries[key] = entry
	}
	entry.Counts[outcome]++
	entry.Total++
}
