// Package storebuffer implements the speculative store queue: stores land
// here at execute time and drain to the memory hierarchy at commit, serving
// store-to-load forwarding to younger loads in between.
package storebuffer

import "github.com/sarchlab/rvtomasulo/timing/rob"

// Slot is one in-flight store.
type Slot struct {
	StoreAddress uint32
	StoreData    uint32
	RobIdx       uint32
	Valid        bool
}

// StoreBuffer is a circular queue of rob.Size slots.
type StoreBuffer struct {
	slots   [rob.Size]Slot
	pushPtr uint32
	popPtr  uint32
}

// New returns an empty StoreBuffer.
func New() *StoreBuffer {
	return &StoreBuffer{}
}

// Push records a speculatively executed store.
func (b *StoreBuffer) Push(addr, data, robIdx uint32) {
	b.slots[b.pushPtr] = Slot{StoreAddress: addr, StoreData: data, RobIdx: robIdx, Valid: true}
	b.pushPtr = (b.pushPtr + 1) % rob.Size
}

// Front returns the oldest store without removing it.
func (b *StoreBuffer) Front() Slot {
	return b.slots[b.popPtr]
}

// Pop retires the oldest store after it has drained to memory.
func (b *StoreBuffer) Pop() {
	b.slots[b.popPtr].Valid = false
	b.popPtr = (b.popPtr + 1) % rob.Size
}

// ord linearizes a ROB index onto the commit-relative program order used
// to compare store and load ages without wraparound ambiguity.
func ord(i, robPopPtr uint32) uint32 {
	return (i - robPopPtr) % rob.Size
}

// Query searches for the youngest store older than requesterRobIdx whose
// address matches addr at word granularity, scanning from newest to
// oldest. It returns the forwarded word and true on a hit.
func (b *StoreBuffer) Query(addr, requesterRobIdx, robPopPtr uint32) (uint32, bool) {
	requesterOrd := ord(requesterRobIdx, robPopPtr)
	for n := uint32(0); n < rob.Size; n++ {
		i := (b.pushPtr - 1 - n + 2*rob.Size) % rob.Size
		s := b.slots[i]
		if !s.Valid {
			continue
		}
		if s.StoreAddress != addr {
			continue
		}
		if ord(s.RobIdx, robPopPtr) < requesterOrd {
			return s.StoreData, true
		}
	}
	return 0, false
}

// Flush clears every entry and resets both pointers to zero.
func (b *StoreBuffer) Flush() {
	b.slots = [rob.Size]Slot{}
	b.pushPtr = 0
	b.popPtr = 0
}
