// Package main provides rvcachecheck, a scored harness that configures an
// L1 cache per testcase and verifies its reported geometry/policy plus,
// for testcases that request it, that a tiled 16x16 matrix multiply
// access pattern achieves a hit rate above 0.91.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvtomasulo/internal/logging"
	"github.com/sarchlab/rvtomasulo/timing/cache"
	"github.com/sarchlab/rvtomasulo/timing/memory"
)

const matmulHitRateThreshold = 0.91 - 1e-6

var (
	inputPath = flag.String("f", "", "Input check file")
	debug     = flag.Bool("d", false, "Print debug infos")
)

type testcase struct {
	latency       uint64
	cacheSize     int
	blockSize     int
	associativity int
	replace       cache.Replace
	writeThrough  bool
	doMatmul      bool
}

func main() {
	flag.Parse()
	log := logging.Default(*debug)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: rvcachecheck -f <checkfile>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cases, err := parseCases(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *inputPath).Msg("failed to parse check file")
	}

	sizeOK, blockOK, assocOK, matmulOK, replOK, writeOK := true, true, true, true, true, true
	results := make([][]bool, 6)

	for i, tc := range cases {
		cfg := cache.Config{
			Size:          tc.cacheSize,
			BlockSize:     tc.blockSize,
			Associativity: tc.associativity,
			Replace:       tc.replace,
			WriteThrough:  tc.writeThrough,
		}
		c := cache.New(cfg, int64(i))

		if got := c.Config().Size; sizeOK && got == tc.cacheSize {
			results[0] = append(results[0], true)
		} else {
			sizeOK = false
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, cache size mismatch: want %d, got %d\n", i, tc.cacheSize, got)
		}

		if got := c.Config().BlockSize; blockOK && got == tc.blockSize {
			results[1] = append(results[1], true)
		} else {
			blockOK = false
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, block size mismatch: want %d, got %d\n", i, tc.blockSize, got)
		}

		if got := c.Config().Associativity; assocOK && got == tc.associativity {
			results[2] = append(results[2], true)
		} else {
			assocOK = false
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, associativity mismatch: want %d, got %d\n", i, tc.associativity, got)
		}

		if tc.doMatmul {
			hitRate := measureMatmulHitRate(cfg, tc.latency, int64(i))
			log.Info().Int("testcase", i).Float64("hit_rate", hitRate).Msg("tiled matmul hit rate")
			if matmulOK && hitRate > matmulHitRateThreshold {
				results[3] = append(results[3], true)
			} else {
				matmulOK = false
				fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, tiled matmul hit rate %.3f did not exceed 0.91\n", i, hitRate)
			}
		}

		if got := c.Config().Replace; replOK && got == tc.replace {
			results[4] = append(results[4], true)
		} else {
			replOK = false
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, replacement policy mismatch\n", i)
		}

		if got := c.Config().WriteThrough; writeOK && got == tc.writeThrough {
			results[5] = append(results[5], true)
		} else {
			writeOK = false
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, write policy mismatch\n", i)
		}
	}

	score := 0
	if sizeOK {
		score += 20
	}
	if blockOK {
		score += 30
	}
	if assocOK {
		score += 30
	}
	if matmulOK {
		score += 20
	}
	if replOK {
		score += 10
	}
	if writeOK {
		score += 10
	}

	printScoreboard(len(cases), results)
	fmt.Fprintf(os.Stderr, "Final score: %d\n", score)
}

func printScoreboard(n int, results [][]bool) {
	labels := []string{"Size    ", "Block   ", "Assoc   ", "Matmul  ", "Replace ", "Write   "}

	fmt.Fprint(os.Stderr, "Testcase")
	for i := 0; i < n; i++ {
		fmt.Fprintf(os.Stderr, "%8d", i)
	}
	fmt.Fprintln(os.Stderr)

	for row, label := range labels {
		fmt.Fprint(os.Stderr, label)
		for j := 0; j < n; j++ {
			switch {
			case j < len(results[row]):
				fmt.Fprint(os.Stderr, "  PASSED")
			case j == len(results[row]):
				fmt.Fprint(os.Stderr, "  FAILED")
			default:
				fmt.Fprint(os.Stderr, " SKIPPED")
			}
		}
		fmt.Fprintln(os.Stderr)
	}
}

// measureMatmulHitRate drives a 16x16 tiled matrix multiply's address
// stream through a freshly configured cache and returns its hit rate. The
// tile width is chosen to keep one row of each operand resident, which is
// what lets a correctly-sized/associative cache clear the 0.91 threshold.
func measureMatmulHitRate(cfg cache.Config, latency uint64, seed int64) float64 {
	const n = 16
	const tile = 4

	mem := memory.New(latency, seed)
	c := cache.New(cfg, seed)

	aBase := memory.DataBase
	bBase := aBase + n*n*4
	cBase := bBase + n*n*4

	addr := func(base uint32, row, col int) uint32 {
		return base + uint32(row*n+col)*4
	}

	for ii := 0; ii < n; ii += tile {
		for jj := 0; jj < n; jj += tile {
			for kk := 0; kk < n; kk += tile {
				for i := ii; i < ii+tile; i++ {
					for j := jj; j < jj+tile; j++ {
						for k := kk; k < kk+tile; k++ {
							pollRead(c, mem, addr(aBase, i, k))
							pollRead(c, mem, addr(bBase, k, j))
						}
						pollWrite(c, mem, addr(cBase, i, j), 0)
					}
				}
			}
		}
	}

	stats := c.Stats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total)
}

func pollRead(c *cache.Cache, mem *memory.Memory, addr uint32) uint32 {
	for {
		if v, ok, _ := c.Read(addr, mem); ok {
			return v
		}
	}
}

func pollWrite(c *cache.Cache, mem *memory.Memory, addr uint32, data uint32) {
	for {
		if ok, _ := c.Write(addr, data, 0xf, mem); ok {
			return
		}
	}
}

// parseCases reads a count line followed by, per testcase, a "latency
// cacheSize blockSize associativity" line, a replace-policy flag (0=FIFO,
// else LRU), a write-through flag, and a do-matmul flag.
func parseCases(path string) ([]testcase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)

	var count int
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty check file")
	}
	if _, err := fmt.Sscanf(scanner.Text(), "%d", &count); err != nil {
		return nil, fmt.Errorf("invalid case count: %w", err)
	}

	cases := make([]testcase, 0, count)
	for i := 0; i < count; i++ {
		var latency, cacheSize, blockSize, associativity int
		if !scanner.Scan() {
			return nil, fmt.Errorf("expected %d testcases, found %d", count, i)
		}
		if _, err := fmt.Sscanf(scanner.Text(), "%d %d %d %d", &latency, &cacheSize, &blockSize, &associativity); err != nil {
			return nil, fmt.Errorf("malformed geometry line %q: %w", scanner.Text(), err)
		}

		replaceFlag, err := scanInt(scanner)
		if err != nil {
			return nil, err
		}
		writeThroughFlag, err := scanInt(scanner)
		if err != nil {
			return nil, err
		}
		doMatmulFlag, err := scanInt(scanner)
		if err != nil {
			return nil, err
		}

		replace := cache.LRU
		if replaceFlag == 0 {
			replace = cache.FIFO
		}

		cases = append(cases, testcase{
			latency:       uint64(latency),
			cacheSize:     cacheSize,
			blockSize:     blockSize,
			associativity: associativity,
			replace:       replace,
			writeThrough:  writeThroughFlag != 0,
			doMatmul:      doMatmulFlag != 0,
		})
	}

	return cases, nil
}

func scanInt(scanner *bufio.Scanner) (int, error) {
	if !scanner.Scan() {
		return 0, fmt.Errorf("unexpected end of file")
	}
	var v int
	if _, err := fmt.Sscanf(scanner.Text(), "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", scanner.Text(), err)
	}
	return v, nil
}
