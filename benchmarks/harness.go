// Package benchmarks replays memory access workloads through a cache with
// a GHB prefetcher and reports hit and prefetch statistics.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/sugawarayuuta/sonnet"

	"github.com/sarchlab/ghbsim/prefetch"
	"github.com/sarchlab/ghbsim/timing/cache"
	"github.com/sarchlab/ghbsim/trace"
)

// accessSize is the number of bytes each replayed access touches.
const accessSize = 8

// Result holds the statistics of one workload replay.
type Result struct {
	// Name identifies the workload
	Name string `json:"name"`

	// Description explains the access pattern
	Description string `json:"description"`

	// Prefetch is true when the replay ran with the prefetcher attached
	Prefetch bool `json:"prefetch"`

	// Accesses is the number of demand accesses replayed
	Accesses uint64 `json:"accesses"`

	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate_percent"`

	PrefetchesIssued  uint64  `json:"prefetches_issued,omitempty"`
	PrefetchesDropped uint64  `json:"prefetches_dropped,omitempty"`
	UsefulPrefetches  uint64  `json:"useful_prefetches,omitempty"`
	UnusedEvictions   uint64  `json:"unused_evictions,omitempty"`
	Accuracy          float64 `json:"accuracy_percent,omitempty"`
	Coverage          float64 `json:"coverage_percent,omitempty"`

	// Prefetcher decision counters
	PatternMatches uint64 `json:"pattern_matches,omitempty"`
	LowConfidence  uint64 `json:"low_confidence,omitempty"`
	Fallbacks      uint64 `json:"fallbacks,omitempty"`

	// Patterns is the number of delta pairs in the pattern table at the end
	Patterns int `json:"patterns,omitempty"`

	// WallTime is the actual time taken to replay the workload
	WallTime time.Duration `json:"wall_time_ns"`
}

// Workload is a named access trace.
type Workload struct {
	// Name identifies the workload
	Name string

	// Description explains the access pattern
	Description string

	// Accesses is the trace to replay
	Accesses []trace.Access
}

// HarnessConfig configures the replay harness.
type HarnessConfig struct {
	// Cache is the geometry of the simulated cache
	Cache cache.Config

	// Prefetch configures the GHB prefetcher. Its block size is overridden
	// with the cache's.
	Prefetch prefetch.Config

	// EnablePrefetch attaches the prefetcher to the cache
	EnablePrefetch bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool

	// Logger receives per-workload summaries and, at V(1), per-access
	// prefetcher decisions
	Logger logr.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Cache:          cache.DefaultL1DConfig(),
		Prefetch:       prefetch.DefaultConfig(),
		EnablePrefetch: true,
		Output:         os.Stdout,
		Logger:         logr.Discard(),
	}
}

// Harness replays workloads and reports results.
type Harness struct {
	config    HarnessConfig
	workloads []Workload
}

// NewHarness creates a new replay harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:    config,
		workloads: []Workload{},
	}
}

// Config returns the harness configuration.
func (h *Harness) Config() HarnessConfig {
	return h.config
}

// AddWorkload adds a workload to the harness.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// AddWorkloads adds multiple workloads to the harness.
func (h *Harness) AddWorkloads(workloads []Workload) {
	h.workloads = append(h.workloads, workloads...)
}

// RunAll replays all workloads and returns results.
func (h *Harness) RunAll() []Result {
	results := make([]Result, 0, len(h.workloads))
	for _, w := range h.workloads {
		results = append(results, h.Run(w))
	}
	return results
}

// Run replays a single workload on a fresh cache and prefetcher.
func (h *Harness) Run(w Workload) Result {
	logger := h.config.Logger.WithValues("workload", w.Name)

	var opts []cache.Option
	var ghb *prefetch.Prefetcher
	if h.config.EnablePrefetch {
		pfConfig := h.config.Prefetch
		pfConfig.BlockSize = uint64(h.config.Cache.BlockSize)
		ghb = prefetch.New(pfConfig, prefetch.WithLogger(logger.WithName("ghb")))
		opts = append(opts, cache.WithPrefetcher(ghb))
	}
	c := cache.New(h.config.Cache, cache.NewSparseMemory(), opts...)

	start := time.Now()
	for _, a := range w.Accesses {
		switch {
		case a.IsWrite && a.HasPC:
			c.WriteAt(a.PC, a.Addr, accessSize, a.Addr)
		case a.IsWrite:
			c.Write(a.Addr, accessSize, a.Addr)
		case a.HasPC:
			c.ReadAt(a.PC, a.Addr, accessSize)
		default:
			c.Read(a.Addr, accessSize)
		}
	}
	wallTime := time.Since(start)

	stats := c.Stats()
	result := Result{
		Name:              w.Name,
		Description:       w.Description,
		Prefetch:          h.config.EnablePrefetch,
		Accesses:          uint64(len(w.Accesses)),
		Hits:              stats.Hits,
		Misses:            stats.Misses,
		HitRate:           stats.HitRate(),
		PrefetchesIssued:  stats.PrefetchesIssued,
		PrefetchesDropped: stats.PrefetchesDropped,
		UsefulPrefetches:  stats.UsefulPrefetches,
		UnusedEvictions:   stats.UnusedEvictions,
		Accuracy:          stats.PrefetchAccuracy(),
		Coverage:          stats.PrefetchCoverage(),
		WallTime:          wallTime,
	}

	if ghb != nil {
		pfStats := ghb.Stats()
		result.PatternMatches = pfStats.PatternMatches
		result.LowConfidence = pfStats.LowConfidence
		result.Fallbacks = pfStats.Fallbacks
		result.Patterns = ghb.PatternCount()
	}

	logger.Info("workload replayed",
		"accesses", result.Accesses,
		"misses", result.Misses,
		"coverage", result.Coverage,
		"accuracy", result.Accuracy)

	return result
}

// PrintResults outputs results in a human-readable format.
func (h *Harness) PrintResults(results []Result) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== GHB Prefetcher Replay Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Workload: %s\n", r.Name)
		if r.Description != "" {
			_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		}
		_, _ = fmt.Fprintln(out, "  --- Cache ---")
		_, _ = fmt.Fprintf(out, "  Accesses: %d\n", r.Accesses)
		_, _ = fmt.Fprintf(out, "  Hits:     %d\n", r.Hits)
		_, _ = fmt.Fprintf(out, "  Misses:   %d\n", r.Misses)
		_, _ = fmt.Fprintf(out, "  Hit Rate: %.1f%%\n", r.HitRate)

		if r.Prefetch {
			_, _ = fmt.Fprintln(out, "  --- Prefetcher ---")
			_, _ = fmt.Fprintf(out, "  Issued:    %d\n", r.PrefetchesIssued)
			_, _ = fmt.Fprintf(out, "  Useful:    %d\n", r.UsefulPrefetches)
			_, _ = fmt.Fprintf(out, "  Accuracy:  %.1f%%\n", r.Accuracy)
			_, _ = fmt.Fprintf(out, "  Coverage:  %.1f%%\n", r.Coverage)
			if h.config.Verbose {
				_, _ = fmt.Fprintf(out, "  Dropped:         %d\n", r.PrefetchesDropped)
				_, _ = fmt.Fprintf(out, "  Unused Evicted:  %d\n", r.UnusedEvictions)
				_, _ = fmt.Fprintf(out, "  Pattern Matches: %d\n", r.PatternMatches)
				_, _ = fmt.Fprintf(out, "  Low Confidence:  %d\n", r.LowConfidence)
				_, _ = fmt.Fprintf(out, "  Fallbacks:       %d\n", r.Fallbacks)
				_, _ = fmt.Fprintf(out, "  Patterns:        %d\n", r.Patterns)
			}
		}

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,prefetch,accesses,hits,misses,hit_rate,issued,useful,unused_evictions,accuracy,coverage,patterns")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%t,%d,%d,%d,%.2f,%d,%d,%d,%.2f,%.2f,%d\n",
			r.Name,
			r.Prefetch,
			r.Accesses,
			r.Hits,
			r.Misses,
			r.HitRate,
			r.PrefetchesIssued,
			r.UsefulPrefetches,
			r.UnusedEvictions,
			r.Accuracy,
			r.Coverage,
			r.Patterns,
		)
	}
}

// Report is the JSON document written by PrintJSON.
type Report struct {
	Metadata ReportMetadata `json:"metadata"`
	Results  []Result       `json:"results"`
	Summary  ReportSummary  `json:"summary"`
}

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	Timestamp      string          `json:"timestamp"`
	Cache          cache.Config    `json:"cache"`
	Prefetch       prefetch.Config `json:"prefetch"`
	EnablePrefetch bool            `json:"enable_prefetch"`
}

// ReportSummary aggregates all results of a report.
type ReportSummary struct {
	TotalWorkloads   int           `json:"total_workloads"`
	TotalAccesses    uint64        `json:"total_accesses"`
	TotalMisses      uint64        `json:"total_misses"`
	UsefulPrefetches uint64        `json:"useful_prefetches"`
	TotalWallTime    time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []Result) error {
	summary := ReportSummary{TotalWorkloads: len(results)}
	for _, r := range results {
		summary.TotalAccesses += r.Accesses
		summary.TotalMisses += r.Misses
		summary.UsefulPrefetches += r.UsefulPrefetches
		summary.TotalWallTime += r.WallTime
	}

	report := Report{
		Metadata: ReportMetadata{
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			Cache:          h.config.Cache,
			Prefetch:       h.config.Prefetch,
			EnablePrefetch: h.config.EnablePrefetch,
		},
		Results: results,
		Summary: summary,
	}

	data, err := sonnet.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := h.config.Output.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
