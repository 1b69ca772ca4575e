// Package main provides the entry point for ghbsim.
// ghbsim replays memory access traces through a cache with a Global History
// Buffer delta-correlation prefetcher.
//
// For the full CLI, use: go run ./cmd/ghbsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("ghbsim - GHB Delta-Correlation Prefetcher Simulator")
	fmt.Println("Built on Akita cache primitives")
	fmt.Println("")
	fmt.Println("Usage: ghbsim [options] [trace.txt]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config       Path to prefetcher configuration JSON file")
	fmt.Println("  -db           Path to SQLite trace database")
	fmt.Println("  -name         Trace name in the database")
	fmt.Println("  -import       Store the given trace file in the database")
	fmt.Println("  -list         List traces in the database")
	fmt.Println("  -no-prefetch  Disable the prefetcher")
	fmt.Println("  -format       Output format: text, csv or json")
	fmt.Println("  -v            Log verbosity")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/ghbsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/ghbsim' instead.")
	}
}
