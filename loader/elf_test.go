package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtomasulo/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RISC-V ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalELF32(elfPath, loader.InstBase, loader.InstBase+0x80, []byte{
					0x13, 0x00, 0x00, 0x00, // ADDI x0, x0, 0
					0x6f, 0x00, 0x00, 0x00, // JAL x0, 0
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint32(loader.InstBase + 0x80)))
			})

			It("should allocate the full instruction and data word images", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.InstWords).To(HaveLen(loader.InstSize / 4))
				Expect(prog.DataWords).To(HaveLen(loader.DataSize / 4))
			})
		})

		Context("with segment data", func() {
			It("should correctly place segment contents into the instruction image", func() {
				elfPath := filepath.Join(tempDir, "code.elf")
				createMinimalELF32(elfPath, loader.InstBase, loader.InstBase, []byte{
					0x93, 0x02, 0x50, 0x00, // ADDI x5, x0, 5
					0x13, 0x00, 0x00, 0x00, // ADDI x0, x0, 0
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.InstWords[0]).To(Equal(uint32(0x00500293)))
				Expect(prog.InstWords[1]).To(Equal(uint32(0x00000013)))
			})

			It("should correctly place segment contents into the data image", func() {
				elfPath := filepath.Join(tempDir, "data.elf")
				createMinimalELF32(elfPath, loader.DataBase, loader.InstBase, []byte{
					0x2a, 0x00, 0x00, 0x00, // 42 little-endian
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.DataWords[0]).To(Equal(uint32(42)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.elf")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should return error for an x86 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createMinimalX86ELF32(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})

		Context("with a 64-bit ELF", func() {
			It("should return error for a 64-bit ELF", func() {
				elfPath := filepath.Join(tempDir, "elf64.elf")
				createMinimal64BitELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 32-bit"))
			})
		})

		Context("with a segment outside the address map", func() {
			It("should return an error", func() {
				elfPath := filepath.Join(tempDir, "oob.elf")
				createMinimalELF32(elfPath, 0x1000, 0x1000, []byte{0x13, 0x00, 0x00, 0x00})

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("outside the instruction or data region"))
			})
		})
	})

	Describe("multi-segment ELFs", func() {
		It("should load both a code segment and a data segment", func() {
			elfPath := filepath.Join(tempDir, "multi-segment.elf")
			codeData := []byte{0x13, 0x00, 0x00, 0x00, 0x6f, 0x00, 0x00, 0x00}
			dataData := []byte{0x01, 0x02, 0x03, 0x04}
			createMultiSegmentELF32(elfPath, loader.InstBase, loader.InstBase, codeData, loader.DataBase, dataData)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.InstWords[0]).To(Equal(binary.LittleEndian.Uint32(codeData[0:4])))
			Expect(prog.InstWords[1]).To(Equal(binary.LittleEndian.Uint32(codeData[4:8])))
			Expect(prog.DataWords[0]).To(Equal(binary.LittleEndian.Uint32(dataData)))
		})
	})

	Describe("BSS segments", func() {
		It("should zero-fill the tail where Memsz > Filesz", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			initialData := []byte{0x01, 0x02, 0x03, 0x04}
			createBSSSegmentELF32(elfPath, loader.DataBase, loader.InstBase, initialData, 16)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.DataWords[0]).To(Equal(binary.LittleEndian.Uint32(initialData)))
			Expect(prog.DataWords[1]).To(Equal(uint32(0)))
			Expect(prog.DataWords[2]).To(Equal(uint32(0)))
			Expect(prog.DataWords[3]).To(Equal(uint32(0)))
		})
	})

	Describe("zero Filesz segments", func() {
		It("should leave the whole region zeroed", func() {
			elfPath := filepath.Join(tempDir, "zero-filesz.elf")
			createZeroFileszELF32(elfPath, loader.DataBase, loader.InstBase, 4096)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			for _, w := range prog.DataWords[:4] {
				Expect(w).To(Equal(uint32(0)))
			}
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should load an empty image and still report the entry point", func() {
			elfPath := filepath.Join(tempDir, "no-load.elf")
			createNoLoadableSegmentsELF32(elfPath, loader.InstBase)

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint32(loader.InstBase)))
			for _, w := range prog.InstWords[:4] {
				Expect(w).To(Equal(uint32(0)))
			}
		})
	})
})

// elf32Header writes a 52-byte ELF32 header with the given machine type,
// entry point, and program header count.
func elf32Header(machine uint16, entry, phnum uint32) []byte {
	h := make([]byte, 52)
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = 1 // ELFCLASS32
	h[5] = 1 // ELFDATA2LSB
	h[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(h[16:18], 2)       // ET_EXEC
	binary.LittleEndian.PutUint16(h[18:20], machine) // e_machine
	binary.LittleEndian.PutUint32(h[20:24], 1)       // e_version
	binary.LittleEndian.PutUint32(h[24:28], entry)   // e_entry
	binary.LittleEndian.PutUint32(h[28:32], 52)      // e_phoff
	binary.LittleEndian.PutUint32(h[32:36], 0)       // e_shoff
	binary.LittleEndian.PutUint16(h[40:42], 52)      // e_ehsize
	binary.LittleEndian.PutUint16(h[42:44], 32)      // e_phentsize
	binary.LittleEndian.PutUint16(h[44:46], uint16(phnum))
	return h
}

// elf32ProgHeader writes a 32-byte ELF32 program header.
func elf32ProgHeader(typ, offset, vaddr, filesz, memsz, flags uint32) []byte {
	p := make([]byte, 32)
	binary.LittleEndian.PutUint32(p[0:4], typ)
	binary.LittleEndian.PutUint32(p[4:8], offset)
	binary.LittleEndian.PutUint32(p[8:12], vaddr)
	binary.LittleEndian.PutUint32(p[12:16], vaddr) // paddr
	binary.LittleEndian.PutUint32(p[16:20], filesz)
	binary.LittleEndian.PutUint32(p[20:24], memsz)
	binary.LittleEndian.PutUint32(p[24:28], flags)
	binary.LittleEndian.PutUint32(p[28:32], 0x1000) // align
	return p
}

const (
	emRISCV = 243
	emX86   = 3
)

// createMinimalELF32 creates a minimal RISC-V ELF32 binary with a single
// PT_LOAD segment.
func createMinimalELF32(path string, loadAddr, entryPoint uint32, code []byte) {
	header := elf32Header(emRISCV, entryPoint, 1)
	offset := uint32(52 + 32)
	phdr := elf32ProgHeader(1, offset, loadAddr, uint32(len(code)), uint32(len(code)), 0x5)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdr)
	_, _ = file.Write(code)
}

// createMinimalX86ELF32 creates a minimal x86 ELF32 header to test machine
// type rejection.
func createMinimalX86ELF32(path string) {
	header := elf32Header(emX86, 0, 0)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createMinimal64BitELF creates a minimal 64-bit ELF header to test class
// rejection.
func createMinimal64BitELF(path string) {
	h := make([]byte, 64)
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = 2 // ELFCLASS64
	h[5] = 1 // little endian
	h[6] = 1
	binary.LittleEndian.PutUint16(h[16:18], 2)
	binary.LittleEndian.PutUint16(h[18:20], emRISCV)
	binary.LittleEndian.PutUint32(h[20:24], 1)
	binary.LittleEndian.PutUint64(h[32:40], 64) // phoff
	binary.LittleEndian.PutUint16(h[52:54], 64) // ehsize
	binary.LittleEndian.PutUint16(h[54:56], 56) // phentsize
	binary.LittleEndian.PutUint16(h[56:58], 0)  // phnum

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(h)
}

// createMultiSegmentELF32 creates a RISC-V ELF32 with two PT_LOAD segments:
// a code segment (RX) and a data segment (RW).
func createMultiSegmentELF32(path string, codeAddr, entryPoint uint32, code []byte, dataAddr uint32, data []byte) {
	header := elf32Header(emRISCV, entryPoint, 2)

	codeOff := uint32(52 + 2*32)
	dataOff := codeOff + uint32(len(code))
	codePhdr := elf32ProgHeader(1, codeOff, codeAddr, uint32(len(code)), uint32(len(code)), 0x5)
	dataPhdr := elf32ProgHeader(1, dataOff, dataAddr, uint32(len(data)), uint32(len(data)), 0x6)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(codePhdr)
	_, _ = file.Write(dataPhdr)
	_, _ = file.Write(code)
	_, _ = file.Write(data)
}

// createBSSSegmentELF32 creates a RISC-V ELF32 with a segment whose
// Memsz exceeds Filesz.
func createBSSSegmentELF32(path string, segAddr, entryPoint uint32, data []byte, memSize uint32) {
	header := elf32Header(emRISCV, entryPoint, 1)
	offset := uint32(52 + 32)
	phdr := elf32ProgHeader(1, offset, segAddr, uint32(len(data)), memSize, 0x6)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdr)
	_, _ = file.Write(data)
}

// createZeroFileszELF32 creates a RISC-V ELF32 segment with zero Filesz
// and non-zero Memsz.
func createZeroFileszELF32(path string, segAddr, entryPoint uint32, memSize uint32) {
	header := elf32Header(emRISCV, entryPoint, 1)
	offset := uint32(52 + 32)
	phdr := elf32ProgHeader(1, offset, segAddr, 0, memSize, 0x6)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdr)
}

// createNoLoadableSegmentsELF32 creates a RISC-V ELF32 with only a
// PT_NOTE segment, no PT_LOAD.
func createNoLoadableSegmentsELF32(path string, entryPoint uint32) {
	header := elf32Header(emRISCV, entryPoint, 1)
	offset := uint32(52 + 32)
	phdr := elf32ProgHeader(4, offset, 0, 0, 0, 0x4) // PT_NOTE

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdr)
}
