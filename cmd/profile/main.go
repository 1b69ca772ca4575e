// Package main provides a profiling wrapper around trace replay to identify
// prefetcher performance bottlenecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/ghbsim/benchmarks"
	"github.com/sarchlab/ghbsim/trace"
)

var (
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	repeat     = flag.Int("repeat", 10, "number of times to replay each workload")
)

func main() {
	flag.Parse()

	workloads := benchmarks.GetWorkloads()
	if flag.NArg() > 0 {
		accesses, err := trace.LoadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
			os.Exit(1)
		}
		workloads = []benchmarks.Workload{{Name: flag.Arg(0), Accesses: accesses}}
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	harness := benchmarks.NewHarness(benchmarks.DefaultConfig())

	start := time.Now()
	var accesses uint64
	for i := 0; i < *repeat; i++ {
		for _, w := range workloads {
			r := harness.Run(w)
			accesses += r.Accesses
		}
	}
	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Workloads: %d x %d\n", len(workloads), *repeat)
	fmt.Printf("Accesses replayed: %d\n", accesses)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if accesses > 0 {
		fmt.Printf("Accesses/second: %.0f\n", float64(accesses)/elapsed.Seconds())
	}
}
