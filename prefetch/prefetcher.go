package prefetch

import "github.com/go-logr/logr"

// Statistics counts prefetcher decisions.
type Statistics struct {
	// Accesses is the number of events passed to Calculate.
	Accesses uint64
	// NoPattern counts events with no valid back-link to walk.
	NoPattern uint64
	// PatternMatches counts events whose prediction met the confidence
	// threshold.
	PatternMatches uint64
	// LowConfidence counts events predicted from below-threshold candidates.
	LowConfidence uint64
	// Fallbacks counts events that fell back to the most recent delta.
	Fallbacks uint64
	// Empty counts events that walked a pattern but produced no prediction.
	Empty uint64
	// Candidates is the total number of addresses emitted.
	Candidates uint64
}

// MatchRate returns the share of accesses that matched, as a percentage.
func (s Statistics) MatchRate() float64 {
	if s.Accesses == 0 {
		return 0
	}
	return float64(s.PatternMatches) / float64(s.Accesses) * 100
}

// Prefetcher is a GHB delta-correlation prefetcher. It is not safe for
// concurrent use; callers serialize accesses.
type Prefetcher struct {
	config    Config
	history   *HistoryBuffer
	table     *PatternTable
	predictor *Predictor
	generator *Generator

	stats  Statistics
	logger logr.Logger
}

// Option configures a Prefetcher.
type Option func(*Prefetcher)

// WithLogger sets the logger for per-access decisions, logged at V(1).
func WithLogger(logger logr.Logger) Option {
	return func(p *Prefetcher) {
		p.logger = logger
	}
}

// New creates a prefetcher. The config is clamped into its valid range.
func New(config Config, opts ...Option) *Prefetcher {
	config = config.Clamp()
	table := NewPatternTable()

	p := &Prefetcher{
		config:    config,
		history:   NewHistoryBuffer(config.HistorySize, config.UsePC, config.PageBytes),
		table:     table,
		predictor: NewPredictor(table, config.ConfidenceThreshold, config.Degree),
		generator: NewGenerator(config.Degree, config.PageBytes),
		logger:    logr.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Config returns the effective (clamped) configuration.
func (p *Prefetcher) Config() Config {
	return p.config
}

// Stats returns the decision counters.
func (p *Prefetcher) Stats() Statistics {
	return p.stats
}

// PatternCount returns the number of delta pairs learned so far.
func (p *Prefetcher) PatternCount() int {
	return p.table.Len()
}

// Reset clears the history, the pattern table and the statistics.
func (p *Prefetcher) Reset() {
	p.history.Reset()
	p.table.Reset()
	p.stats = Statistics{}
}

// BlockAddress aligns addr down to its cache block.
func (p *Prefetcher) BlockAddress(addr uint64) uint64 {
	return (addr / p.config.BlockSize) * p.config.BlockSize
}

// Calculate records the access and returns the addresses to prefetch.
func (p *Prefetcher) Calculate(access Access) []AddrPriority {
	p.stats.Accesses++

	blockAddr := p.BlockAddress(access.Addr)
	event := Access{Addr: blockAddr}
	if p.config.UsePC && access.HasPC {
		event.PC = access.PC
		event.HasPC = true
	}

	slot := p.history.Insert(event)
	if slot == NoSlot {
		return nil
	}

	deltas := p.history.BuildPattern(slot, KeyPC, p.config.PatternLength)
	if len(deltas) == 0 {
		deltas = p.history.BuildPattern(slot, KeyPage, p.config.PatternLength)
	}
	if len(deltas) == 0 {
		p.stats.NoPattern++
		return nil
	}

	chronological := Reverse(deltas)
	p.table.Update(chronological)

	predicted, matched := p.predictor.FindMatch(chronological, 4*p.config.Degree)
	switch {
	case matched:
		p.stats.PatternMatches++
	case len(predicted) > 0:
		p.stats.LowConfidence++
	default:
		predicted = Fallback(chronological)
		if len(predicted) == 0 {
			p.stats.Empty++
			return nil
		}
		p.stats.Fallbacks++
	}

	addresses := p.generator.Generate(blockAddr, predicted, matched, chronological)
	p.stats.Candidates += uint64(len(addresses))

	if v := p.logger.V(1); v.Enabled() {
		v.Info("prefetch",
			"addr", blockAddr,
			"deltas", chronological,
			"predicted", predicted,
			"matched", matched,
			"emitted", len(addresses))
	}

	return addresses
}
