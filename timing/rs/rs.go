// Package rs implements the per-functional-unit reservation station: an
// operand-capture buffer that wakes slots on CDB broadcasts and issues a
// ready slot to its execute pipeline.
package rs

import (
	"github.com/sarchlab/rvtomasulo/isa"
	"github.com/sarchlab/rvtomasulo/timing/regfile"
	"github.com/sarchlab/rvtomasulo/timing/rob"
)

// RegReadBundle is one operand read port of an issue slot.
type RegReadBundle struct {
	WaitForWakeup bool
	RobIdx        uint32
	Value         uint32
}

// IssueSlot is a single reservation-station entry.
type IssueSlot struct {
	Inst      isa.Instruction
	RobIdx    uint32
	ReadPort1 RegReadBundle
	ReadPort2 RegReadBundle
	Busy      bool
}

func (s *IssueSlot) ready() bool {
	return s.Busy && !s.ReadPort1.WaitForWakeup && !s.ReadPort2.WaitForWakeup
}

// Station is an N-slot reservation station for one functional-unit class.
// lsu marks a station whose slots must preserve program order and whose
// issue obeys the oldest-store-gates-later-loads rule.
type Station struct {
	slots []IssueSlot
	lsu   bool
}

// New returns a Station with the given slot count. Pass lsu=true for the
// LSU station, which maintains program order and a stricter issue rule.
func New(size int, lsu bool) *Station {
	return &Station{slots: make([]IssueSlot, size), lsu: lsu}
}

// HasEmptySlot reports whether any slot is free.
func (s *Station) HasEmptySlot() bool {
	for i := range s.slots {
		if !s.slots[i].Busy {
			return true
		}
	}
	return false
}

func captureOperand(r uint8, rf *regfile.RegisterFile, rb *rob.ReorderBuffer) RegReadBundle {
	if r == 0 || !rf.IsBusy(r) {
		return RegReadBundle{Value: rf.Read(r)}
	}
	p := uint32(rf.GetBusyIndex(r))
	if rb.CheckReady(p) {
		return RegReadBundle{Value: rb.Read(p)}
	}
	return RegReadBundle{WaitForWakeup: true, RobIdx: p}
}

// InsertInstruction places inst into the first free slot, capturing its
// operands against the current register file and ROB state. For an LSU
// station the new slot is appended as the newest-in-program-order entry;
// other stations place it in whatever free slot is found first.
func (s *Station) InsertInstruction(inst isa.Instruction, robIdx uint32, rf *regfile.RegisterFile, rb *rob.ReorderBuffer) {
	slot := IssueSlot{
		Inst:      inst,
		RobIdx:    robIdx,
		Busy:      true,
		ReadPort1: captureOperand(inst.Rs1(), rf, rb),
		ReadPort2: captureOperand(inst.Rs2(), rf, rb),
	}

	if s.lsu {
		for i := range s.slots {
			if !s.slots[i].Busy {
				s.slots[i] = slot
				return
			}
		}
		return
	}

	for i := range s.slots {
		if !s.slots[i].Busy {
			s.slots[i] = slot
			return
		}
	}
}

// Wakeup applies a CDB broadcast to every slot waiting on w.RobIdx.
func (s *Station) Wakeup(w rob.WritePort) {
	for i := range s.slots {
		slot := &s.slots[i]
		if !slot.Busy {
			continue
		}
		if slot.ReadPort1.WaitForWakeup && slot.ReadPort1.RobIdx == w.RobIdx {
			slot.ReadPort1.Value = w.Result
			slot.ReadPort1.WaitForWakeup = false
		}
		if slot.ReadPort2.WaitForWakeup && slot.ReadPort2.RobIdx == w.RobIdx {
			slot.ReadPort2.Value = w.Result
			slot.ReadPort2.WaitForWakeup = false
		}
	}
}

// lsuEligibleIndex implements the LSU ordering rule: any load appearing
// before the oldest store is issuable once ready; the oldest store is
// issuable once ready; loads after the oldest store may not overtake it.
// Slots are kept in program order, so index order is program order.
func (s *Station) lsuEligibleIndex() int {
	storeSeen := false
	for i := range s.slots {
		slot := &s.slots[i]
		if !slot.Busy {
			continue
		}
		if slot.Inst.IsStore() {
			if storeSeen {
				// not the oldest store; nothing past this point may issue.
				return -1
			}
			storeSeen = true
			if slot.ready() {
				return i
			}
			return -1
		}
		if !storeSeen && slot.ready() {
			return i
		}
	}
	return -1
}

// CanIssue reports whether some slot is eligible to issue this cycle.
func (s *Station) CanIssue() bool {
	if s.lsu {
		return s.lsuEligibleIndex() >= 0
	}
	for i := range s.slots {
		if s.slots[i].ready() {
			return true
		}
	}
	return false
}

// Issue removes and returns an eligible ready slot. For the LSU station
// this is the oldest eligible slot in program order, and the remaining
// slots are compacted to preserve that order. Other stations return the
// first ready slot in slot-index order, which is not necessarily the
// oldest.
func (s *Station) Issue() IssueSlot {
	var idx int
	if s.lsu {
		idx = s.lsuEligibleIndex()
	} else {
		idx = -1
		for i := range s.slots {
			if s.slots[i].ready() {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return IssueSlot{}
	}

	entry := s.slots[idx]
	if s.lsu {
		copy(s.slots[idx:], s.slots[idx+1:])
		s.slots[len(s.slots)-1] = IssueSlot{}
	} else {
		s.slots[idx] = IssueSlot{}
	}
	return entry
}

// Flush clears every slot.
func (s *Station) Flush() {
	for i := range s.slots {
		s.slots[i] = IssueSlot{}
	}
}
