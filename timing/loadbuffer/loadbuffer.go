// Package loadbuffer tracks speculatively executed loads so that a later
// store to an overlapping address can mark them invalid, forcing a
// squash-and-refetch when the load commits.
package loadbuffer

import "github.com/sarchlab/rvtomasulo/timing/rob"

// Slot is one in-flight load, addressed directly by its ROB index.
type Slot struct {
	LoadAddress uint32
	RobIdx      uint32
	Valid       bool
	Invalidate  bool
}

// LoadBuffer is a direct-mapped table of rob.Size slots, one per possible
// in-flight ROB index.
type LoadBuffer struct {
	slots [rob.Size]Slot
}

// New returns an empty LoadBuffer.
func New() *LoadBuffer {
	return &LoadBuffer{}
}

// Push records a speculatively executed load at robIdx.
func (b *LoadBuffer) Push(addr, robIdx uint32) {
	b.slots[robIdx] = Slot{LoadAddress: addr, RobIdx: robIdx, Valid: true}
}

// Pop clears the slot at robIdx and returns its prior contents so the
// caller can inspect Invalidate.
func (b *LoadBuffer) Pop(robIdx uint32) Slot {
	s := b.slots[robIdx]
	b.slots[robIdx].Valid = false
	return s
}

func ord(i, robPopPtr uint32) uint32 {
	return (i - robPopPtr) % rob.Size
}

// Check marks every valid load strictly younger than the executing store
// (storeRobIdx) with an overlapping address as invalidated. It is called
// when a store executes, anchoring ordering against loads that raced
// ahead of it speculatively.
func (b *LoadBuffer) Check(storeAddr, storeRobIdx, robPopPtr uint32) {
	storeOrd := ord(storeRobIdx, robPopPtr)
	for i := range b.slots {
		s := &b.slots[i]
		if !s.Valid {
			continue
		}
		if ord(s.RobIdx, robPopPtr) > storeOrd && s.LoadAddress&^0x3 == storeAddr&^0x3 {
			s.Invalidate = true
		}
	}
}

// Flush invalidates every slot.
func (b *LoadBuffer) Flush() {
	b.slots = [rob.Size]Slot{}
}
