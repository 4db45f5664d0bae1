package isa

// Decoder decodes RV32I+M machine code words into Instruction values.
//
// Decode is organized the same way as a hardware decode stage: a cheap
// opcode-field dispatch followed by one decode function per instruction
// format. It is deliberately free of any notion of cycles or functional
// units — those live in Instruction and GetFUType respectively.
type Decoder struct{}

// NewDecoder returns a ready-to-use Decoder. It holds no state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a single 32-bit instruction word fetched from pc.
// Unrecognized opcodes decode to a NOP so that a malformed or padding word
// never crashes the pipeline; EXIT is special-cased first.
func (d *Decoder) Decode(word uint32, pc uint32) Instruction {
	if word == ExitOpcode {
		return Instruction{Raw: word, Type: FormatR, PC: pc, Name: "EXIT"}
	}

	opcode := word & 0x7f
	funct3 := (word >> 12) & 0x7
	funct7 := (word >> 25) & 0x7f

	switch opcode {
	case 0b0110011: // R-type: integer reg-reg, including M extension
		return decodeR(word, pc, funct3, funct7)
	case 0b0010011: // I-type ALU immediate
		return decodeIAlu(word, pc, funct3, funct7)
	case 0b0000011: // I-type load
		return decodeILoad(word, pc, funct3)
	case 0b1100111: // I-type JALR
		return decodeJALR(word, pc)
	case 0b0100011: // S-type store
		return decodeS(word, pc, funct3)
	case 0b1100011: // B-type branch
		return decodeB(word, pc, funct3)
	case 0b1101111: // J-type JAL
		return decodeJAL(word, pc)
	case 0b0110111: // U-type LUI
		return decodeU(word, pc, "LUI")
	case 0b0010111: // U-type AUIPC
		return decodeU(word, pc, "AUIPC")
	default:
		n := NOP()
		n.PC = pc
		return n
	}
}

func decodeR(word, pc, funct3, funct7 uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatR, PC: pc}
	inst.rd = field(word, 7, 5)
	inst.rs1 = field(word, 15, 5)
	inst.rs2 = field(word, 20, 5)

	if funct7 == 0x01 {
		inst.Name = [8]string{"MUL", "MULH", "MULHSU", "MULHU", "DIV", "DIVU", "REM", "REMU"}[funct3]
		return inst
	}

	switch funct3 {
	case 0x0:
		if funct7 == 0x20 {
			inst.Name = "SUB"
		} else {
			inst.Name = "ADD"
		}
	case 0x1:
		inst.Name = "SLL"
	case 0x2:
		inst.Name = "SLT"
	case 0x3:
		inst.Name = "SLTU"
	case 0x4:
		inst.Name = "XOR"
	case 0x5:
		if funct7 == 0x20 {
			inst.Name = "SRA"
		} else {
			inst.Name = "SRL"
		}
	case 0x6:
		inst.Name = "OR"
	case 0x7:
		inst.Name = "AND"
	}
	return inst
}

func decodeIAlu(word, pc, funct3, funct7 uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatI, PC: pc}
	inst.rd = field(word, 7, 5)
	inst.rs1 = field(word, 15, 5)
	inst.imm = signExtend(word>>20, 12)

	switch funct3 {
	case 0x0:
		inst.Name = "ADDI"
	case 0x1:
		inst.Name = "SLLI"
		inst.imm = int32(field(word, 20, 5))
	case 0x2:
		inst.Name = "SLTI"
	case 0x3:
		inst.Name = "SLTIU"
	case 0x4:
		inst.Name = "XORI"
	case 0x5:
		inst.imm = int32(field(word, 20, 5))
		if funct7 == 0x20 {
			inst.Name = "SRAI"
		} else {
			inst.Name = "SRLI"
		}
	case 0x6:
		inst.Name = "ORI"
	case 0x7:
		inst.Name = "ANDI"
	}
	return inst
}

func decodeILoad(word, pc, funct3 uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatI, PC: pc}
	inst.rd = field(word, 7, 5)
	inst.rs1 = field(word, 15, 5)
	inst.imm = signExtend(word>>20, 12)

	switch funct3 {
	case 0x0:
		inst.Name = "LB"
	case 0x1:
		inst.Name = "LH"
	case 0x2:
		inst.Name = "LW"
	case 0x4:
		inst.Name = "LBU"
	case 0x5:
		inst.Name = "LHU"
	}
	return inst
}

func decodeJALR(word, pc uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatI, PC: pc, Name: "JALR"}
	inst.rd = field(word, 7, 5)
	inst.rs1 = field(word, 15, 5)
	inst.imm = signExtend(word>>20, 12)
	return inst
}

func decodeS(word, pc, funct3 uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatS, PC: pc}
	inst.rs1 = field(word, 15, 5)
	inst.rs2 = field(word, 20, 5)
	imm := (field(word, 25, 7) << 5) | field(word, 7, 5)
	inst.imm = signExtend(imm, 12)

	switch funct3 {
	case 0x0:
		inst.Name = "SB"
	case 0x1:
		inst.Name = "SH"
	case 0x2:
		inst.Name = "SW"
	}
	return inst
}

func decodeB(word, pc, funct3 uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatB, PC: pc}
	inst.rs1 = field(word, 15, 5)
	inst.rs2 = field(word, 20, 5)

	imm := (field(word, 31, 1) << 12) | (field(word, 7, 1) << 11) |
		(field(word, 25, 6) << 5) | (field(word, 8, 4) << 1)
	inst.imm = signExtend(imm, 13)

	switch funct3 {
	case 0x0:
		inst.Name = "BEQ"
	case 0x1:
		inst.Name = "BNE"
	case 0x4:
		inst.Name = "BLT"
	case 0x5:
		inst.Name = "BGE"
	case 0x6:
		inst.Name = "BLTU"
	case 0x7:
		inst.Name = "BGEU"
	}
	return inst
}

func decodeJAL(word, pc uint32) Instruction {
	inst := Instruction{Raw: word, Type: FormatJ, PC: pc, Name: "JAL"}
	inst.rd = field(word, 7, 5)

	imm := (field(word, 31, 1) << 20) | (field(word, 12, 8) << 12) |
		(field(word, 20, 1) << 11) | (field(word, 21, 10) << 1)
	inst.imm = signExtend(imm, 21)
	return inst
}

func decodeU(word, pc uint32, name string) Instruction {
	inst := Instruction{Raw: word, Type: FormatU, PC: pc, Name: name}
	inst.rd = field(word, 7, 5)
	inst.imm = int32(word &^ 0xfff)
	return inst
}

// field extracts `width` bits from word starting at bit `shift`.
func field(word, shift, width uint32) uint32 {
	return (word >> shift) & ((1 << width) - 1)
}

// signExtend sign-extends the low `bits` bits of v.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
