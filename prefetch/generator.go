package prefetch

// Degree boosts applied on top of the base degree.
const (
	multiDeltaBoost     = 8
	regularStrideBoost  = 10
	irregularMatchBoost = 4
	steadyFallbackBoost = 4
	fallbackBoost       = 3

	// regularityWindow is how many deltas before the last one are compared
	// to decide whether a single-delta pattern is a regular stride.
	regularityWindow = 6
)

// AddrPriority is a prefetch candidate. Priority is reserved and always 0.
type AddrPriority struct {
	Addr     uint64
	Priority int32
}

// Generator turns predicted deltas into prefetch addresses.
type Generator struct {
	degree    int
	pageBytes uint64
}

// NewGenerator creates a generator with the given base degree and page size.
func NewGenerator(degree int, pageBytes uint64) *Generator {
	return &Generator{
		degree:    max(1, degree),
		pageBytes: max(1, pageBytes),
	}
}

// SamePage reports whether a and b are in the same page.
func (g *Generator) SamePage(a, b uint64) bool {
	return a/g.pageBytes == b/g.pageBytes
}

// TargetDegree returns the number of prefetches allowed for this event.
func (g *Generator) TargetDegree(predicted []int64, matched bool, chronological []int64) int {
	n := len(chronological)

	if matched {
		switch {
		case len(predicted) >= 2:
			return g.degree + multiDeltaBoost
		case len(predicted) == 1 && n >= 3:
			if isRegular(chronological) {
				return g.degree + regularStrideBoost
			}
			return g.degree + irregularMatchBoost
		default:
			return g.degree
		}
	}

	if n == 0 || chronological[n-1] == 0 {
		return g.degree
	}
	if n >= 2 && chronological[n-2] == chronological[n-1] {
		return g.degree + steadyFallbackBoost
	}
	// A single nonzero delta already earns the boost; no second delta is
	// required.
	return g.degree + fallbackBoost
}

// isRegular reports whether the last delta repeats over up to
// regularityWindow preceding deltas.
func isRegular(chronological []int64) bool {
	n := len(chronological)
	last := chronological[n-1]
	for k := 1; k <= regularityWindow && k < n; k++ {
		if chronological[n-1-k] != last {
			return false
		}
	}
	return true
}

// emitter accumulates candidates for one event up to the target degree.
type emitter struct {
	g       *Generator
	trigger uint64
	target  int
	out     []AddrPriority
}

func (e *emitter) full() bool {
	return len(e.out) >= e.target
}

func (e *emitter) emit(addr uint64) {
	e.out = append(e.out, AddrPriority{Addr: addr})
}

// chain applies delta repeatedly from start, emitting at most limit
// addresses. It stops at the first address outside the trigger's page.
func (e *emitter) chain(start uint64, delta int64, limit int) {
	addr := start
	for count := 0; !e.full() && count < limit; count++ {
		addr = advance(addr, delta)
		if !e.g.SamePage(e.trigger, addr) {
			return
		}
		e.emit(addr)
	}
}

func advance(addr uint64, delta int64) uint64 {
	return uint64(int64(addr) + delta)
}

// Generate emits prefetch candidates for an access at trigger.
//
// The predicted deltas are first applied one after another from the trigger.
// The primary delta is then chained from where that walk ended. When the
// prediction matched, the secondary and tertiary deltas are chained too, and
// a lone prediction is complemented by the second-to-last observed delta.
// Every emitted address lies in the trigger's page.
func (g *Generator) Generate(trigger uint64, predicted []int64, matched bool, chronological []int64) []AddrPriority {
	if len(predicted) == 0 {
		return nil
	}

	e := &emitter{
		g:       g,
		trigger: trigger,
		target:  g.TargetDegree(predicted, matched, chronological),
	}

	cursor := trigger
	for _, delta := range predicted {
		if e.full() {
			break
		}
		if delta == 0 {
			continue
		}
		cursor = advance(cursor, delta)
		if !g.SamePage(trigger, cursor) {
			continue
		}
		e.emit(cursor)
	}

	primary := predicted[0]
	if primary != 0 && !e.full() {
		g.chainPrimary(e, cursor, primary, matched)
	}

	if !matched {
		return e.out
	}

	if len(predicted) > 1 && !e.full() {
		secondary := predicted[1]
		if secondary != 0 && secondary != primary {
			e.chain(cursor, secondary, e.target)
		}
	}

	if len(predicted) > 2 && !e.full() {
		tertiary := predicted[2]
		if tertiary != 0 && tertiary != primary && tertiary != predicted[1] {
			e.chain(cursor, tertiary, g.degree/2)
		}
	}

	n := len(chronological)
	if len(predicted) == 1 && n >= 4 && primary != 0 && !e.full() {
		alternate := chronological[n-2]
		if alternate != 0 && alternate != primary {
			e.chain(cursor, alternate, g.degree/2)
		}
	}

	return e.out
}

// chainPrimary chains the rank-0 delta. Unmatched predictions stop once the
// event has produced twice the base degree.
func (g *Generator) chainPrimary(e *emitter, start uint64, delta int64, matched bool) {
	maxChain := 2 * g.degree
	if matched {
		maxChain = 5 * e.target
	}

	addr := start
	for !e.full() {
		addr = advance(addr, delta)
		if !g.SamePage(e.trigger, addr) {
			return
		}
		e.emit(addr)
		if !matched && len(e.out) >= maxChain {
			return
		}
	}
}
