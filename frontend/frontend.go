// Package frontend implements the instruction supply side of the
// pipeline: a one-entry-BTB-less sequential fetcher that the backend
// treats as an opaque source of decoded instructions plus a
// jump/flush/BPU-update sink. No branch prediction beyond "always predict
// not-taken, fall through to pc+4" is attempted; every taken branch or
// jump is a guaranteed mispredict resolved at commit.
package frontend

import (
	"github.com/sarchlab/rvtomasulo/isa"
)

// InstBase and InstSize bound the instruction image's address range.
const (
	InstBase = 0x80000000
	InstSize = 0x400000
)

// BpuUpdateData is the commit-time notification the backend sends for
// every committed branch, call, or return, carrying enough information
// for a real predictor to train on. This frontend ignores it, since it
// carries no predictor state to train.
type BpuUpdateData struct {
	PC          uint32
	IsCall      bool
	IsReturn    bool
	IsBranch    bool
	BranchTaken bool
	JumpTarget  uint32
}

// Frontend fetches and decodes one instruction per step from a flat
// instruction image, always predicting sequential fall-through. Each
// Step call consumes one word and advances pc; the backend is
// responsible for holding onto an instruction it fails to dispatch
// rather than calling Step again for it.
type Frontend struct {
	image []uint32 // word-indexed, one entry per 4-byte slot of the instruction region
	dec   *isa.Decoder
	pc    uint32
}

// New returns a Frontend fetching from image starting at entry.
func New(image []uint32, entry uint32) *Frontend {
	return &Frontend{image: image, dec: isa.NewDecoder(), pc: entry}
}

func (f *Frontend) wordAt(pc uint32) uint32 {
	idx := (pc - InstBase) / 4
	if int(idx) >= len(f.image) {
		return isa.ExitOpcode
	}
	return f.image[idx]
}

// Step fetches, decodes, and advances past one instruction, predicting
// fall-through (never taken).
func (f *Frontend) Step() (isa.Instruction, bool) {
	word := f.wordAt(f.pc)
	inst := f.dec.Decode(word, f.pc)
	inst.Predict = isa.BranchPredictBundle{PredictedTaken: false, PredictedTarget: f.pc + 4}
	f.pc += 4
	return inst, true
}

// Jump redirects fetch to jumpAddress, used by the backend to recover
// from a mispredict or a squashed load.
func (f *Frontend) Jump(jumpAddress uint32) {
	f.pc = jumpAddress
}

// HaltDispatch is part of the frontend contract but carries no state for
// a frontend with no internal fetch pipeline to freeze: the backend
// itself holds an undispatched instruction and simply does not call
// Step again until it is accepted.
func (f *Frontend) HaltDispatch() {}

// BpuBackendUpdate receives the commit-time branch outcome notification.
// A one-entry-BTB-less frontend has no predictor state to update.
func (f *Frontend) BpuBackendUpdate(x BpuUpdateData) {}

// Reset reloads the instruction image and restarts fetch at entry.
func (f *Frontend) Reset(image []uint32, entry uint32) {
	f.image = image
	f.pc = entry
}
