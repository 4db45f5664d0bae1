// Package isa defines the decoded instruction representation, the RV32I+M
// decoder, and per-opcode execute semantics consumed by the timing model.
// Nothing in this package is cycle-aware; it is the functional boundary the
// backend treats as an opaque producer of already-decoded instructions.
package isa

// Format classifies an instruction's encoding per the RISC-V base spec.
type Format uint8

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatJ
	FormatU
)

// FUType is the functional-unit class an instruction is routed to.
type FUType uint8

const (
	FUALU FUType = iota
	FUBRU
	FULSU
	FUMUL
	FUDIV
	FUNone
)

func (t FUType) String() string {
	switch t {
	case FUALU:
		return "ALU"
	case FUBRU:
		return "BRU"
	case FULSU:
		return "LSU"
	case FUMUL:
		return "MUL"
	case FUDIV:
		return "DIV"
	default:
		return "NONE"
	}
}

// ExitOpcode is the custom 32-bit opcode that terminates the simulation
// when committed. It decodes to no registers and classifies as FUNone.
const ExitOpcode uint32 = 0x0000000b

// BranchPredictBundle carries the frontend's prediction for a branch or
// jump instruction, captured at dispatch time and checked at execute time.
type BranchPredictBundle struct {
	PredictedTaken  bool
	PredictedTarget uint32
}

// MaskedLiteral identifies an instruction encoding by a (mask, value) pair:
// an instruction matches iff raw&Mask == Value.
type MaskedLiteral struct {
	Mask  uint32
	Value uint32
}

// ExecuteResultBundle is what Instruction.Execute hands back to the calling
// execute pipeline.
type ExecuteResultBundle struct {
	Mispredict  bool
	ActualTaken bool
	Result      uint32
	JumpTarget  uint32
}

// Instruction is a fully decoded instruction flowing through the backend.
type Instruction struct {
	Raw     uint32
	Type    Format
	PC      uint32
	Predict BranchPredictBundle

	Name string // mnemonic, e.g. "ADDI", "LW", "BEQ"
	rd   uint32
	rs1  uint32
	rs2  uint32
	imm  int32
}

// NOP returns an ADDI x0, x0, 0 instruction, the canonical do-nothing encoding.
func NOP() Instruction {
	return Instruction{Raw: 0x00000013, Type: FormatI, Name: "ADDI"}
}

// Immediate returns the sign-extended decoded immediate.
func (i *Instruction) Immediate() int32 { return i.imm }

// Rd returns the destination register index, or 0 for formats without one.
func (i *Instruction) Rd() uint8 { return uint8(i.rd) }

// Rs1 returns the first source register index, or 0 for formats without one.
func (i *Instruction) Rs1() uint8 { return uint8(i.rs1) }

// Rs2 returns the second source register index, or 0 for formats without one.
func (i *Instruction) Rs2() uint8 { return uint8(i.rs2) }

// Equal reports whether the raw encoding matches a masked literal.
func (i *Instruction) Equal(lit MaskedLiteral) bool {
	return i.Raw&lit.Mask == lit.Value
}

// IsExit reports whether this is the EXIT sentinel.
func (i *Instruction) IsExit() bool {
	return i.Raw == ExitOpcode
}

// WritesRegister reports whether committing this instruction writes rd.
// Branches, stores and EXIT do not.
func (i *Instruction) WritesRegister() bool {
	switch GetFUType(i) {
	case FUBRU:
		return i.Name == "JAL" || i.Name == "JALR"
	case FULSU:
		switch i.Name {
		case "LB", "LH", "LW", "LBU", "LHU":
			return true
		default:
			return false
		}
	case FUNone:
		return false
	default:
		return true
	}
}

// IsStore reports whether this is a store instruction (SB/SH/SW).
func (i *Instruction) IsStore() bool {
	switch i.Name {
	case "SB", "SH", "SW":
		return true
	default:
		return false
	}
}

// IsLoad reports whether this is a load instruction.
func (i *Instruction) IsLoad() bool {
	switch i.Name {
	case "LB", "LH", "LW", "LBU", "LHU":
		return true
	default:
		return false
	}
}

// IsCall reports whether a committed instruction is a call per the BPU
// update contract: JAL with rd==x1.
func (i *Instruction) IsCall() bool {
	return i.Name == "JAL" && i.rd == 1
}

// IsReturn reports whether a committed instruction is a return: JALR with
// rs1==x1.
func (i *Instruction) IsReturn() bool {
	return i.Name == "JALR" && i.rs1 == 1
}

// GetFUType classifies an instruction into the functional unit that
// executes it. EXIT and any instruction consuming no functional unit
// classify as FUNone.
func GetFUType(inst *Instruction) FUType {
	if inst.IsExit() {
		return FUNone
	}
	switch inst.Name {
	case "ADD", "SUB", "SLL", "SLT", "SLTU", "XOR", "SRL", "SRA", "OR", "AND",
		"ADDI", "SLTI", "SLTIU", "XORI", "ORI", "ANDI", "SLLI", "SRLI", "SRAI",
		"LUI", "AUIPC":
		return FUALU
	case "BEQ", "BNE", "BLT", "BGE", "BLTU", "BGEU", "JAL", "JALR":
		return FUBRU
	case "LB", "LH", "LW", "LBU", "LHU", "SB", "SH", "SW":
		return FULSU
	case "MUL", "MULH", "MULHSU", "MULHU":
		return FUMUL
	case "DIV", "DIVU", "REM", "REMU":
		return FUDIV
	default:
		return FUNone
	}
}

// Execute carries out the pure-functional semantics of the instruction
// named by name, given its two captured register operands. Instructions
// that consume an immediate read it off the receiver rather than op2.
func (i *Instruction) Execute(name string, op1, op2 uint32) ExecuteResultBundle {
	imm := uint32(i.imm)
	switch name {
	case "ADD":
		return ExecuteResultBundle{Result: op1 + op2}
	case "SUB":
		return ExecuteResultBundle{Result: op1 - op2}
	case "SLL":
		return ExecuteResultBundle{Result: op1 << (op2 & 0x1f)}
	case "SLT":
		return ExecuteResultBundle{Result: boolToWord(int32(op1) < int32(op2))}
	case "SLTU":
		return ExecuteResultBundle{Result: boolToWord(op1 < op2)}
	case "XOR":
		return ExecuteResultBundle{Result: op1 ^ op2}
	case "SRL":
		return ExecuteResultBundle{Result: op1 >> (op2 & 0x1f)}
	case "SRA":
		return ExecuteResultBundle{Result: uint32(int32(op1) >> (op2 & 0x1f))}
	case "OR":
		return ExecuteResultBundle{Result: op1 | op2}
	case "AND":
		return ExecuteResultBundle{Result: op1 & op2}

	case "ADDI":
		return ExecuteResultBundle{Result: op1 + imm}
	case "SLTI":
		return ExecuteResultBundle{Result: boolToWord(int32(op1) < i.imm)}
	case "SLTIU":
		return ExecuteResultBundle{Result: boolToWord(op1 < imm)}
	case "XORI":
		return ExecuteResultBundle{Result: op1 ^ imm}
	case "ORI":
		return ExecuteResultBundle{Result: op1 | imm}
	case "ANDI":
		return ExecuteResultBundle{Result: op1 & imm}
	case "SLLI":
		return ExecuteResultBundle{Result: op1 << (imm & 0x1f)}
	case "SRLI":
		return ExecuteResultBundle{Result: op1 >> (imm & 0x1f)}
	case "SRAI":
		return ExecuteResultBundle{Result: uint32(int32(op1) >> (imm & 0x1f))}

	case "LUI":
		return ExecuteResultBundle{Result: imm}
	case "AUIPC":
		return ExecuteResultBundle{Result: i.PC + imm}

	case "JAL":
		target := uint32(int32(i.PC) + i.imm)
		return ExecuteResultBundle{
			Result:      i.PC + 4,
			ActualTaken: true,
			JumpTarget:  target,
			Mispredict:  i.mispredicted(true, target),
		}
	case "JALR":
		target := (op1 + imm) &^ 1
		return ExecuteResultBundle{
			Result:      i.PC + 4,
			ActualTaken: true,
			JumpTarget:  target,
			Mispredict:  i.mispredicted(true, target),
		}
	case "BEQ":
		return i.branch(op1 == op2)
	case "BNE":
		return i.branch(op1 != op2)
	case "BLT":
		return i.branch(int32(op1) < int32(op2))
	case "BGE":
		return i.branch(int32(op1) >= int32(op2))
	case "BLTU":
		return i.branch(op1 < op2)
	case "BGEU":
		return i.branch(op1 >= op2)

	case "LB", "LH", "LW", "LBU", "LHU", "SB", "SH", "SW":
		return ExecuteResultBundle{Result: op1 + imm}

	case "MUL":
		return ExecuteResultBundle{Result: op1 * op2}
	case "MULH":
		return ExecuteResultBundle{Result: uint32((int64(int32(op1)) * int64(int32(op2))) >> 32)}
	case "MULHSU":
		return ExecuteResultBundle{Result: uint32((int64(int32(op1)) * int64(uint64(op2))) >> 32)}
	case "MULHU":
		return ExecuteResultBundle{Result: uint32((uint64(op1) * uint64(op2)) >> 32)}
	case "DIV":
		return ExecuteResultBundle{Result: sdiv(op1, op2)}
	case "DIVU":
		return ExecuteResultBundle{Result: udiv(op1, op2)}
	case "REM":
		return ExecuteResultBundle{Result: srem(op1, op2)}
	case "REMU":
		return ExecuteResultBundle{Result: urem(op1, op2)}
	default:
		return ExecuteResultBundle{}
	}
}

func (i *Instruction) branch(taken bool) ExecuteResultBundle {
	target := uint32(int32(i.PC) + i.imm)
	if !taken {
		target = i.PC + 4
	}
	return ExecuteResultBundle{
		ActualTaken: taken,
		JumpTarget:  target,
		Mispredict:  i.mispredicted(taken, target),
	}
}

func (i *Instruction) mispredicted(actualTaken bool, target uint32) bool {
	if actualTaken != i.Predict.PredictedTaken {
		return true
	}
	if actualTaken && target != i.Predict.PredictedTarget {
		return true
	}
	return false
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func sdiv(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return 0xffffffff
	}
	if sa == -0x80000000 && sb == -1 {
		return a
	}
	return uint32(sa / sb)
}

func udiv(a, b uint32) uint32 {
	if b == 0 {
		return 0xffffffff
	}
	return a / b
}

func srem(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	if sb == 0 {
		return a
	}
	if sa == -0x80000000 && sb == -1 {
		return 0
	}
	return uint32(sa % sb)
}

func urem(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
