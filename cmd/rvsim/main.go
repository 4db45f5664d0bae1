// Package main provides the entry point for rvsim, a cycle-driven
// functional simulator of a single-issue, out-of-order RV32I+M core.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvtomasulo/frontend"
	"github.com/sarchlab/rvtomasulo/internal/logging"
	"github.com/sarchlab/rvtomasulo/loader"
	"github.com/sarchlab/rvtomasulo/timing/backend"
	"github.com/sarchlab/rvtomasulo/timing/cache"
)

var (
	cachePath     = flag.String("cache-config", "", "Path to L1 cache configuration JSON file (enables the cache)")
	memoryLatency = flag.Uint64("memory-latency", 50, "Main memory access latency, in cycles")
	seed          = flag.Int64("seed", 1, "Seed for memory jitter and random cache replacement")
	maxCycles     = flag.Uint64("max-cycles", 10_000_000, "Abort the run after this many cycles without EXIT")
	verbose       = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	log := logging.Default(*verbose)

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvsim [options] <program.elf>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)
	prog, err := loader.Load(programPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", programPath).Msg("failed to load program")
	}
	log.Debug().Str("path", programPath).Uint32("entry", prog.EntryPoint).Msg("loaded program")

	cfg := backend.Config{MemoryLatency: *memoryLatency, Seed: *seed}
	if *cachePath != "" {
		cacheCfg, err := cache.LoadConfig(*cachePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *cachePath).Msg("failed to load cache config")
		}
		cfg.Cache = cacheCfg
	}

	be := backend.New(cfg)
	be.Reset(prog.DataWords)
	f := frontend.New(prog.InstWords, prog.EntryPoint)

	exited := run(be, f, *maxCycles)
	report(be, exited)

	if !exited {
		os.Exit(1)
	}
}

func run(be *backend.Backend, f *frontend.Frontend, maxCycles uint64) bool {
	for cycles := uint64(0); cycles < maxCycles; cycles++ {
		if be.Tick(f) {
			return true
		}
	}
	return false
}

func report(be *backend.Backend, exited bool) {
	stats := be.Stats()

	fmt.Printf("Exited: %v\n", exited)
	fmt.Printf("Cycles: %d\n", stats.Cycles)
	fmt.Printf("Committed: %d\n", stats.Committed)
	fmt.Printf("Flushes: %d\n", stats.Flushes)
	if stats.Committed > 0 {
		fmt.Printf("CPI: %.3f\n", float64(stats.Cycles)/float64(stats.Committed))
	}

	if c := be.Cache(); c != nil {
		s := c.Stats()
		fmt.Printf("\nCache:\n")
		fmt.Printf("  Reads:      %d\n", s.Reads)
		fmt.Printf("  Writes:     %d\n", s.Writes)
		fmt.Printf("  Hits:       %d\n", s.Hits)
		fmt.Printf("  Misses:     %d\n", s.Misses)
		fmt.Printf("  Evictions:  %d\n", s.Evictions)
		fmt.Printf("  Writebacks: %d\n", s.Writebacks)
		if total := s.Hits + s.Misses; total > 0 {
			fmt.Printf("  Hit rate:   %.3f\n", float64(s.Hits)/float64(total))
		}
	}
}
