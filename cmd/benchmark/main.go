// Command benchmark runs the built-in replay workloads with and without the
// GHB prefetcher.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv   Output results in CSV format (default: human-readable)
//	-core  Run only the core workloads
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/ghbsim/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	coreOnly := flag.Bool("core", false, "Run only the core workloads")
	flag.Parse()

	workloads := benchmarks.GetWorkloads()
	if *coreOnly {
		workloads = benchmarks.GetCoreWorkloads()
	}

	run(os.Stdout, workloads, *csvOutput)
}

// run replays workloads without and then with the prefetcher and writes the
// report to out.
func run(out io.Writer, workloads []benchmarks.Workload, csvOutput bool) {
	var results []benchmarks.Result
	var harness *benchmarks.Harness
	for _, enable := range []bool{false, true} {
		config := benchmarks.DefaultConfig()
		config.EnablePrefetch = enable
		config.Output = out

		harness = benchmarks.NewHarness(config)
		harness.AddWorkloads(workloads)
		results = append(results, harness.RunAll()...)
	}

	if csvOutput {
		harness.PrintCSV(results)
		return
	}

	config := harness.Config()
	_, _ = fmt.Fprintln(out, "GHB Prefetcher Benchmark Harness")
	_, _ = fmt.Fprintln(out, "================================")
	_, _ = fmt.Fprintf(out, "Cache: %d KB, %d-way, %d B blocks\n",
		config.Cache.Size/1024, config.Cache.Associativity, config.Cache.BlockSize)
	_, _ = fmt.Fprintf(out, "Prefetch: history=%d pattern=%d degree=%d threshold=%d\n",
		config.Prefetch.HistorySize, config.Prefetch.PatternLength,
		config.Prefetch.Degree, config.Prefetch.ConfidenceThreshold)
	_, _ = fmt.Fprintln(out, "")

	harness.PrintResults(results)

	_, _ = fmt.Fprintln(out, "=== Summary ===")
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintf(out, "%-16s %10s %10s %10s\n", "workload", "misses", "with GHB", "removed")
	half := len(results) / 2
	for i := 0; i < half; i++ {
		off, on := results[i], results[half+i]
		removed := 0.0
		if off.Misses > 0 {
			removed = 100 * (1 - float64(on.Misses)/float64(off.Misses))
		}
		_, _ = fmt.Fprintf(out, "%-16s %10d %10d %9.1f%%\n", off.Name, off.Misses, on.Misses, removed)
	}
}
