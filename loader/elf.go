// Package loader provides ELF binary loading for RISC-V (RV32I+M)
// executables, splitting a program's PT_LOAD segments into the fixed
// instruction and data word images the backend's Frontend and Memory are
// seeded from.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// Address map bounds, mirroring the backend's memory regions: code lives
// in [InstBase, InstBase+InstSize), data in [DataBase, DataBase+DataSize).
// Both regions are 4 MiB and word-addressed.
const (
	InstBase = 0x80000000
	InstSize = 0x400000
	DataBase = 0x80400000
	DataSize = 0x400000
)

// Program is a loaded RISC-V image: two word arrays plus the entry PC.
// A .bss tail (Memsz > Filesz) is already zero since the backing arrays
// start zeroed and are never written past the segment's file bytes.
type Program struct {
	InstWords  []uint32
	DataWords  []uint32
	EntryPoint uint32
}

// Load parses a RISC-V little-endian 32-bit ELF binary at path.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		InstWords:  make([]uint32, InstSize/4),
		DataWords:  make([]uint32, DataSize/4),
		EntryPoint: uint32(f.Entry),
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		addr := uint32(phdr.Vaddr)
		switch {
		case addr >= InstBase && addr < InstBase+InstSize:
			if err := placeBytes(prog.InstWords, InstBase, addr, data); err != nil {
				return nil, err
			}
		case addr >= DataBase && addr < DataBase+DataSize:
			if err := placeBytes(prog.DataWords, DataBase, addr, data); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("segment at 0x%x falls outside the instruction or data region", phdr.Vaddr)
		}
	}

	return prog, nil
}

// placeBytes merges data (starting at addr) into words, a word array whose
// element 0 covers [base, base+4). Sub-word alignment is tolerated so an
// odd-length or misaligned segment still lands correctly.
func placeBytes(words []uint32, base uint32, addr uint32, data []byte) error {
	for i, bVal := range data {
		a := addr + uint32(i)
		idx := (a - base) / 4
		if int(idx) >= len(words) {
			return fmt.Errorf("address 0x%x overruns its region", a)
		}
		shift := (a % 4) * 8
		words[idx] = (words[idx] &^ (0xff << shift)) | uint32(bVal)<<shift
	}
	return nil
}
