// Package rob implements the reorder buffer: the circular in-order queue
// of in-flight instructions that anchors out-of-order execution back onto
// a committed, in-order architectural state.
package rob

import "github.com/sarchlab/rvtomasulo/isa"

// Size is the fixed ROB capacity. It must be a power of two so that index
// arithmetic wraps with a simple mask.
const Size = 16

// StatusBundle is the per-entry execute result recorded by writeState and
// consumed at commit.
type StatusBundle struct {
	Result      uint32
	Mispredict  bool
	ActualTaken bool
	JumpTarget  uint32
	Ready       bool
	CacheHit    bool
}

// WritePort is a single CDB broadcast: the producing entry's result,
// tagged with the ROB index it targets.
type WritePort struct {
	Result      uint32
	Mispredict  bool
	ActualTaken bool
	JumpTarget  uint32
	RobIdx      uint32
	CacheHit    bool
}

// Entry is one slot of the reorder buffer.
type Entry struct {
	Inst  isa.Instruction
	State StatusBundle
	Valid bool
}

// ReorderBuffer is the circular [popPtr, pushPtr) queue of in-flight
// instructions, indexed modulo Size.
type ReorderBuffer struct {
	buffer  [Size]Entry
	pushPtr uint32
	popPtr  uint32
	count   uint32
}

// New returns an empty ReorderBuffer.
func New() *ReorderBuffer {
	return &ReorderBuffer{}
}

// CanPush reports whether there is room for one more entry. One slot is
// held back so the buffer never reaches Size live entries, matching the
// at-most-(Size-1) invariant the rest of the design relies on.
func (r *ReorderBuffer) CanPush() bool { return r.count < Size-1 }

// CanPop reports whether the buffer has a committable head: an entry is
// present and its result is ready.
func (r *ReorderBuffer) CanPop() bool { return r.count > 0 && r.buffer[r.popPtr].State.Ready }

// Push inserts inst at the tail and returns the ROB index it was assigned.
// ready marks entries that need no execute-pipeline result (FUNone).
func (r *ReorderBuffer) Push(inst isa.Instruction, ready bool) uint32 {
	idx := r.pushPtr
	r.buffer[idx] = Entry{Inst: inst, State: StatusBundle{Ready: ready}, Valid: true}
	r.pushPtr = (r.pushPtr + 1) % Size
	r.count++
	return idx
}

// Pop retires the head entry.
func (r *ReorderBuffer) Pop() {
	r.buffer[r.popPtr].Valid = false
	r.popPtr = (r.popPtr + 1) % Size
	r.count--
}

// GetFront returns the head entry, if any, whether or not it is ready.
func (r *ReorderBuffer) GetFront() (Entry, bool) {
	if r.count == 0 {
		return Entry{}, false
	}
	return r.buffer[r.popPtr], true
}

// GetPopPtr returns the ROB index of the current head.
func (r *ReorderBuffer) GetPopPtr() uint32 { return r.popPtr }

// WriteState applies a CDB broadcast to the targeted entry.
func (r *ReorderBuffer) WriteState(w WritePort) {
	e := &r.buffer[w.RobIdx]
	e.State.Result = w.Result
	e.State.Mispredict = w.Mispredict
	e.State.ActualTaken = w.ActualTaken
	e.State.JumpTarget = w.JumpTarget
	e.State.CacheHit = w.CacheHit
	e.State.Ready = true
}

// Read returns the captured result value at addr, for forwarding to
// reservation stations whose operand is still in flight.
func (r *ReorderBuffer) Read(addr uint32) uint32 {
	return r.buffer[addr].State.Result
}

// CheckReady reports whether the entry at addr already has a result.
func (r *ReorderBuffer) CheckReady(addr uint32) bool {
	return r.buffer[addr].State.Ready
}

// Flush clears every entry and resets the buffer to empty.
func (r *ReorderBuffer) Flush() {
	r.buffer = [Size]Entry{}
	r.pushPtr = 0
	r.popPtr = 0
	r.count = 0
}
