// Package main provides rvcheck, a pass/fail harness that runs an ELF
// program to completion and compares its final register and memory state
// against a checkfile of expected values.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/rvtomasulo/frontend"
	"github.com/sarchlab/rvtomasulo/internal/logging"
	"github.com/sarchlab/rvtomasulo/loader"
	"github.com/sarchlab/rvtomasulo/timing/backend"
)

var (
	elfPath   = flag.String("f", "", "Input ELF file")
	chkPath   = flag.String("c", "", "Check file")
	latency   = flag.Uint64("l", 5, "Memory latency")
	maxCycles = flag.Uint64("max-cycles", 10_000_000, "Abort the run after this many cycles without EXIT")
	debug     = flag.Bool("d", false, "Print debug infos")
)

// expectation is one line of a checkfile: either a RAM word or a register
// value, checked against the machine's architectural state after EXIT.
type expectation struct {
	isRAM  bool
	addr   uint32
	answer uint32
}

func main() {
	flag.Parse()
	log := logging.Default(*debug)

	if *elfPath == "" || *chkPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: rvcheck -f <program.elf> -c <checkfile> [-l latency]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	expectations, err := parseCheckFile(*chkPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *chkPath).Msg("failed to parse check file")
	}

	prog, err := loader.Load(*elfPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *elfPath).Msg("failed to load program")
	}

	be := backend.New(backend.Config{MemoryLatency: *latency, Seed: 1})
	be.Reset(prog.DataWords)
	f := frontend.New(prog.InstWords, prog.EntryPoint)

	exited := false
	for cycles := uint64(0); cycles < *maxCycles; cycles++ {
		if be.Tick(f) {
			exited = true
			break
		}
	}
	if !exited {
		fmt.Fprintf(os.Stderr, "[ FAILED  ] program did not EXIT within %d cycles\n", *maxCycles)
		os.Exit(1)
	}
	log.Info().Uint64("cycles", be.Stats().Cycles).Msg("finished")

	passed := 0
	for i, e := range expectations {
		var got uint32
		var kind string
		if e.isRAM {
			got = be.FunctionalReadMemory(e.addr, 1)[0]
			kind = "DRAM"
		} else {
			got = be.ReadRegister(uint8(e.addr))
			kind = "Register"
		}
		if got != e.answer {
			fmt.Fprintf(os.Stderr, "[ FAILED  ] On testcase %d, answer is %d, but %d is found in %s\n",
				i+1, e.answer, got, kind)
			continue
		}
		passed++
	}

	if passed == len(expectations) {
		fmt.Fprintf(os.Stderr, "[   OK    ] %d testcase(s) passed\n", len(expectations))
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "[ FAILED  ] %d of %d testcase(s) passed\n", passed, len(expectations))
	os.Exit(1)
}

// parseCheckFile reads a count line followed by that many "RAM <hex-addr>
// <answer>" or "REG <reg> <answer>" lines.
func parseCheckFile(path string) ([]expectation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty check file")
	}
	count, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("invalid case count: %w", err)
	}

	expectations := make([]expectation, 0, count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("expected %d testcases, found %d", count, i)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed testcase line %q", scanner.Text())
		}

		answer, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid answer in %q: %w", scanner.Text(), err)
		}

		switch fields[0] {
		case "RAM":
			addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid RAM address in %q: %w", scanner.Text(), err)
			}
			if addr&0x3 != 0 {
				return nil, fmt.Errorf("unaligned RAM address 0x%x", addr)
			}
			expectations = append(expectations, expectation{isRAM: true, addr: uint32(addr), answer: uint32(answer)})
		case "REG":
			reg, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid register in %q: %w", scanner.Text(), err)
			}
			expectations = append(expectations, expectation{isRAM: false, addr: uint32(reg), answer: uint32(answer)})
		default:
			return nil, fmt.Errorf("unknown testcase kind %q", fields[0])
		}
	}

	return expectations, nil
}
