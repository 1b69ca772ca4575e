package prefetch

import (
	"math/bits"
	"sort"
)

// Thresholds used when no candidate reaches the configured confidence.
const (
	lowConfidenceFloor  = 20
	pairConfidenceFloor = 30
	pairConfidenceSpan  = 10
	enrichConfidence    = 60
)

// Candidate is a predicted next delta with its recency-weighted evidence.
type Candidate struct {
	Delta int64
	Count uint64
	Total uint64
}

// Confidence returns 100 * Count / Total, truncated.
func (c Candidate) Confidence() int {
	if c.Total == 0 {
		return 0
	}
	return percent(c.Count, c.Total)
}

// Predictor ranks candidate deltas from pattern table lookups.
type Predictor struct {
	table     *PatternTable
	threshold int
	degree    int
}

// NewPredictor creates a predictor over table. The threshold is clamped to
// [0, 100]; degree is the default number of predictions.
func NewPredictor(table *PatternTable, threshold, degree int) *Predictor {
	return &Predictor{
		table:     table,
		threshold: min(100, max(0, threshold)),
		degree:    max(1, degree),
	}
}

// recencyWeight weighs a delta pair by its distance from the end of the
// sequence. The most recent pairs count up to eight times as much as old
// ones.
func recencyWeight(distance int) uint64 {
	switch {
	case distance < 3:
		return uint64(8 - distance)
	case distance < 6:
		return uint64(5 - (distance - 3))
	case distance < 10:
		return 2
	default:
		return 1
	}
}

// Candidates aggregates the pattern table entries of every consecutive delta
// pair in chronological and returns the candidates ranked by confidence.
func (p *Predictor) Candidates(chronological []int64) []Candidate {
	n := len(chronological)
	if n < 2 {
		return nil
	}

	aggregated := make(map[int64]*Candidate)
	for i := 0; i+1 < n; i++ {
		entry, ok := p.table.Lookup(DeltaPair{D0: chronological[i], D1: chronological[i+1]})
		if !ok || entry.Total == 0 {
			continue
		}

		weight := recencyWeight(n - 1 - i)
		for delta, count := range entry.Counts {
			c, ok := aggregated[delta]
			if !ok {
				c = &Candidate{Delta: delta}
				aggregated[delta] = c
			}
			c.Count += count * weight
			c.Total += entry.Total * weight
		}
	}

	candidates := make([]Candidate, 0, len(aggregated))
	for _, c := range aggregated {
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if cmp := compareRatio(a, b); cmp != 0 {
			return cmp > 0
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Delta < b.Delta
	})

	return candidates
}

// compareRatio compares a.Count/a.Total with b.Count/b.Total exactly,
// cross-multiplying at 128 bits.
func compareRatio(a, b Candidate) int {
	lhsHi, lhsLo := bits.Mul64(a.Count, b.Total)
	rhsHi, rhsLo := bits.Mul64(b.Count, a.Total)
	switch {
	case lhsHi != rhsHi:
		if lhsHi > rhsHi {
			return 1
		}
		return -1
	case lhsLo != rhsLo:
		if lhsLo > rhsLo {
			return 1
		}
		return -1
	default:
		return 0
	}
}

// FindMatch predicts up to maxPredictions next deltas. A maxPredictions of
// zero or less means the configured degree.
//
// Candidates at or above the confidence threshold are taken in rank order and
// reported as a match. Without such candidates the top one is still used at
// 20% confidence or more, and the runner-up joins it when both are close. A
// very confident top candidate additionally admits lower-ranked candidates
// under a relaxed threshold. Only the first path sets matched.
func (p *Predictor) FindMatch(chronological []int64, maxPredictions int) ([]int64, bool) {
	if len(chronological) < 2 {
		return nil, false
	}
	if maxPredictions <= 0 {
		maxPredictions = p.degree
	}

	candidates := p.Candidates(chronological)
	if len(candidates) == 0 {
		return nil, false
	}

	var predicted []int64
	for _, c := range candidates {
		if c.Confidence() >= p.threshold {
			predicted = append(predicted, c.Delta)
			if len(predicted) >= maxPredictions {
				break
			}
		}
	}
	matched := len(predicted) > 0

	top := candidates[0].Confidence()
	if !matched && top >= lowConfidenceFloor {
		predicted = append(predicted, candidates[0].Delta)
		if len(candidates) > 1 && top >= pairConfidenceFloor {
			second := candidates[1].Confidence()
			if second >= lowConfidenceFloor && second >= top-pairConfidenceSpan {
				predicted = append(predicted, candidates[1].Delta)
			}
		}
	}

	if top > enrichConfidence && len(predicted) < maxPredictions {
		relaxed := p.relaxedThreshold(top)
		for i := len(predicted); i < len(candidates) && len(predicted) < maxPredictions; i++ {
			c := candidates[i]
			if c.Confidence() >= relaxed && !containsDelta(predicted, c.Delta) {
				predicted = append(predicted, c.Delta)
			}
		}
	}

	return predicted, matched
}

func (p *Predictor) relaxedThreshold(top int) int {
	switch {
	case top > 80:
		return max(0, p.threshold-15)
	case top > 70:
		return max(0, p.threshold-10)
	default:
		return p.threshold
	}
}

func containsDelta(deltas []int64, delta int64) bool {
	for _, d := range deltas {
		if d == delta {
			return true
		}
	}
	return false
}

// Fallback returns the most recent nonzero delta of chronological, or nil
// when every delta is zero.
func Fallback(chronological []int64) []int64 {
	for i := len(chronological) - 1; i >= 0; i-- {
		if chronological[i] != 0 {
			return []int64{chronological[i]}
		}
	}
	return nil
}
