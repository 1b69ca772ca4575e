// Package main provides the ghbsim CLI, which replays memory access traces
// through a cache with a GHB prefetcher.
//
// Usage:
//
//	ghbsim [flags] [trace.txt]
//
// Without a trace file or a -db/-name pair, the built-in workloads run.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/ghbsim/benchmarks"
	"github.com/sarchlab/ghbsim/prefetch"
	"github.com/sarchlab/ghbsim/trace"
)

var (
	configPath = flag.String("config", "", "Path to prefetcher configuration JSON file")
	dbPath     = flag.String("db", "", "Path to SQLite trace database")
	traceName  = flag.String("name", "", "Trace name in the database")
	importFlag = flag.Bool("import", false, "Store the given trace file in the database and exit")
	listFlag   = flag.Bool("list", false, "List traces in the database and exit")
	noPrefetch = flag.Bool("no-prefetch", false, "Disable the prefetcher")
	format     = flag.String("format", "text", "Output format: text, csv or json")
	verbosity  = flag.Int("v", 0, "Log verbosity (1 logs every prefetch decision)")
)

func main() {
	flag.Parse()

	logger := newLogger(*verbosity)

	switch {
	case *listFlag:
		if err := listTraces(*dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing traces: %v\n", err)
			os.Exit(1)
		}
		return
	case *importFlag:
		if flag.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "Usage: ghbsim -import -db traces.db [-name name] <trace.txt>\n")
			os.Exit(1)
		}
		if err := importTrace(*dbPath, *traceName, flag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing trace: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Set up prefetcher configuration
	pfConfig := prefetch.DefaultConfig()
	if *configPath != "" {
		loaded, err := prefetch.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading prefetch config: %v\n", err)
			os.Exit(1)
		}
		pfConfig = *loaded
	}

	workloads, err := loadWorkloads(flag.Arg(0), *dbPath, *traceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading workloads: %v\n", err)
		os.Exit(1)
	}

	config := benchmarks.DefaultConfig()
	config.Prefetch = pfConfig
	config.EnablePrefetch = !*noPrefetch
	config.Verbose = *verbosity > 0
	config.Logger = logger
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	harness.AddWorkloads(workloads)
	results := harness.RunAll()

	switch *format {
	case "csv":
		harness.PrintCSV(results)
	case "json":
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
	default:
		harness.PrintResults(results)
	}
}

// newLogger returns a stderr logger that keeps entries up to verbosity.
func newLogger(verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
		} else {
			fmt.Fprintln(os.Stderr, args)
		}
	}, funcr.Options{Verbosity: verbosity})
}

// loadWorkloads picks the replay input: a text trace file, a named trace in
// the database, or the built-in workloads.
func loadWorkloads(path, db, name string) ([]benchmarks.Workload, error) {
	if path != "" {
		accesses, err := trace.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []benchmarks.Workload{{
			Name:        baseName(path),
			Description: "trace file " + path,
			Accesses:    accesses,
		}}, nil
	}

	if db != "" && name != "" {
		store, err := trace.OpenStore(db)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()

		accesses, err := store.LoadTrace(name)
		if err != nil {
			return nil, err
		}
		return []benchmarks.Workload{{
			Name:        name,
			Description: "stored trace from " + db,
			Accesses:    accesses,
		}}, nil
	}

	return benchmarks.GetWorkloads(), nil
}

func importTrace(db, name, path string) error {
	if db == "" {
		return errors.New("-db is required")
	}
	if name == "" {
		name = baseName(path)
	}

	accesses, err := trace.LoadFile(path)
	if err != nil {
		return err
	}

	store, err := trace.OpenStore(db)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveTrace(name, accesses); err != nil {
		return err
	}

	fmt.Printf("Imported %d accesses as %q\n", len(accesses), name)
	return nil
}

func listTraces(db string) error {
	if db == "" {
		return errors.New("-db is required")
	}

	store, err := trace.OpenStore(db)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	infos, err := store.ListTraces()
	if err != nil {
		return err
	}

	for _, info := range infos {
		fmt.Printf("%-32s %d\n", info.Name, info.Accesses)
	}
	return nil
}

// baseName strips directory and extension: "traces/mm.txt" -> "mm".
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
