package backend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtomasulo/frontend"
	"github.com/sarchlab/rvtomasulo/timing/backend"
	"github.com/sarchlab/rvtomasulo/timing/memory"
)

const exitWord = 0x0000000b

func encodeR(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(imm, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(imm, rs2, rs1, funct3, opcode uint32) uint32 {
	return (imm>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (imm&0x1f)<<7 | opcode
}

func encodeILoad(imm, rs1, funct3, rd, opcode uint32) uint32 {
	return (imm&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeU(immUpper20, rd, opcode uint32) uint32 {
	return immUpper20<<12 | rd<<7 | opcode
}

// encodeB mirrors decodeB's bit layout in reverse, taking a plain byte
// offset so callers don't have to hand-scatter the B-type immediate.
func encodeB(imm, rs2, rs1, funct3, opcode uint32) uint32 {
	bit12 := (imm >> 12) & 1
	bit11 := (imm >> 11) & 1
	bits10_5 := (imm >> 5) & 0x3f
	bits4_1 := (imm >> 1) & 0xf
	return bit12<<31 | bits10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | bits4_1<<8 | bit11<<7 | opcode
}

func runUntilExit(b *backend.Backend, f *frontend.Frontend, maxCycles int) bool {
	for i := 0; i < maxCycles; i++ {
		if b.Tick(f) {
			return true
		}
	}
	return false
}

var _ = Describe("Backend", func() {
	var b *backend.Backend

	BeforeEach(func() {
		b = backend.New(backend.Config{MemoryLatency: 1, Seed: 7})
	})

	It("runs a straight-line ADDI/ADD chain to EXIT", func() {
		image := []uint32{
			encodeI(5, 0, 0x0, 1, 0x13),          // ADDI x1, x0, 5
			encodeI(7, 0, 0x0, 2, 0x13),          // ADDI x2, x0, 7
			encodeR(0, 2, 1, 0x0, 3, 0b0110011),  // ADD x3, x1, x2
			exitWord,
		}
		f := frontend.New(image, frontend.InstBase)

		Expect(runUntilExit(b, f, 200)).To(BeTrue())
		Expect(b.ReadRegister(3)).To(Equal(uint32(12)))
		Expect(b.Stats().Committed).To(Equal(uint64(4)))
	})

	It("forwards a stored value through commit into a dependent load", func() {
		image := []uint32{
			encodeU(memory.DataBase>>12, 10, 0b0110111),  // LUI x10, DataBase
			encodeI(42, 0, 0x0, 1, 0x13),                 // ADDI x1, x0, 42
			encodeS(0, 1, 10, 0x2, 0b0100011),            // SW x1, 0(x10)
			encodeILoad(0, 10, 0x2, 2, 0b0000011),        // LW x2, 0(x10)
			exitWord,
		}
		f := frontend.New(image, frontend.InstBase)

		Expect(runUntilExit(b, f, 200)).To(BeTrue())
		Expect(b.ReadRegister(2)).To(Equal(uint32(42)))
		Expect(b.FunctionalReadMemory(memory.DataBase, 1)[0]).To(Equal(uint32(42)))
	})

	It("squashes a mispredicted taken branch and resumes on the correct path", func() {
		image := []uint32{
			encodeB(8, 0, 0, 0x0, 0b1100011),    // BEQ x0, x0, +8 (always taken)
			encodeI(99, 0, 0x0, 5, 0x13),        // ADDI x5, x0, 99 (must be squashed)
			encodeI(1, 0, 0x0, 5, 0x13),         // ADDI x5, x0, 1  (correct target)
			exitWord,
		}
		f := frontend.New(image, frontend.InstBase)

		Expect(runUntilExit(b, f, 200)).To(BeTrue())
		Expect(b.ReadRegister(5)).To(Equal(uint32(1)))
		Expect(b.Stats().Flushes).To(Equal(uint64(1)))
	})

	It("carries a true dependency chain across a full ROB wraparound", func() {
		const iterations = 20 // exceeds rob.Size and every station's depth
		image := make([]uint32, 0, iterations+1)
		for i := 0; i < iterations; i++ {
			image = append(image, encodeI(1, 1, 0x0, 1, 0x13)) // ADDI x1, x1, 1
		}
		image = append(image, exitWord)
		f := frontend.New(image, frontend.InstBase)

		Expect(runUntilExit(b, f, 2000)).To(BeTrue())
		Expect(b.ReadRegister(1)).To(Equal(uint32(iterations)))
	})

	It("resolves a real backward branch loop of 1000 iterations", func() {
		const limit = 1000
		image := []uint32{
			encodeI(limit, 0, 0x0, 2, 0x13),                 // ADDI x2, x0, 1000
			encodeI(0, 0, 0x0, 1, 0x13),                      // ADDI x1, x0, 0
			encodeI(1, 1, 0x0, 1, 0x13),                      // loop: ADDI x1, x1, 1
			encodeB(uint32(int32(-4)), 2, 1, 0x4, 0b1100011), // BLT x1, x2, loop
			exitWord,
		}
		f := frontend.New(image, frontend.InstBase)

		Expect(runUntilExit(b, f, 200000)).To(BeTrue())
		Expect(b.ReadRegister(1)).To(Equal(uint32(limit)))
		// Every taken branch mispredicts against the always-not-taken
		// frontend; the loop is taken on every iteration but the last.
		Expect(b.Stats().Flushes).To(Equal(uint64(limit - 1)))
	})
})
