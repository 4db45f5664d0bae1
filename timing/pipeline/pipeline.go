// Package pipeline implements the execute pipeline: one unit per
// functional-unit class, each holding a single in-flight issue slot and a
// fixed countdown latency before it produces a CDB broadcast.
package pipeline

import (
	"github.com/sarchlab/rvtomasulo/isa"
	"github.com/sarchlab/rvtomasulo/timing/loadbuffer"
	"github.com/sarchlab/rvtomasulo/timing/rob"
	"github.com/sarchlab/rvtomasulo/timing/rs"
	"github.com/sarchlab/rvtomasulo/timing/storebuffer"
)

// Latency is the fixed per-unit countdown, keyed by unit name.
var Latency = map[string]uint64{
	"ALU": 1,
	"BRU": 1,
	"LSU": 2,
	"MUL": 3,
	"DIV": 10,
}

// Hierarchy abstracts the memory-side target an LSU pipeline probes: a
// Cache when one is configured, the bare Memory otherwise. cacheHit in the
// Write return is meaningless for a bare Memory implementation and should
// be reported as true (there being no cache layer to miss).
type Hierarchy interface {
	Read(addr uint32) (value uint32, ok bool, cacheHit bool)
	Write(addr uint32, data uint32, byteEnable uint8) (ok bool, cacheHit bool)
}

// Pipeline is one execute unit. name selects both its latency and its
// execute semantics ("ALU", "BRU", "LSU", "MUL", "DIV").
type Pipeline struct {
	name    string
	slot    rs.IssueSlot
	counter uint64
}

// New returns an idle Pipeline for the named functional unit.
func New(name string) *Pipeline {
	return &Pipeline{name: name}
}

// CanExecute reports whether the pipeline is free to accept a new slot.
func (p *Pipeline) CanExecute() bool { return !p.slot.Busy }

// Execute admits x into the pipeline and starts its countdown. The caller
// must have checked CanExecute.
func (p *Pipeline) Execute(x rs.IssueSlot) {
	x.Busy = true
	p.slot = x
	p.counter = Latency[p.name]
}

// Flush clears the in-flight slot, discarding any partially completed work.
func (p *Pipeline) Flush() {
	p.slot = rs.IssueSlot{}
}

// Step advances the countdown by one cycle. If the slot isn't busy, or the
// countdown hasn't reached zero, it produces nothing. Once the countdown
// reaches zero it computes the instruction's result and, for ALU/BRU/MUL/DIV,
// clears busy and returns a CDB broadcast directly. For LSU it defers to
// stepLSU, which may re-stall the slot (leaving busy set) when the memory
// hierarchy isn't ready yet.
func (p *Pipeline) Step(hier Hierarchy, ldBuf *loadbuffer.LoadBuffer, rb *rob.ReorderBuffer, stBuf *storebuffer.StoreBuffer) (rob.WritePort, bool) {
	if !p.slot.Busy {
		return rob.WritePort{}, false
	}
	if p.counter != 0 {
		p.counter--
	}
	if p.counter != 0 {
		return rob.WritePort{}, false
	}

	exe := p.slot.Inst.Execute(p.slot.Inst.Name, p.slot.ReadPort1.Value, p.slot.ReadPort2.Value)
	w := rob.WritePort{
		Result:      exe.Result,
		Mispredict:  exe.Mispredict,
		ActualTaken: exe.ActualTaken,
		JumpTarget:  exe.JumpTarget,
		RobIdx:      p.slot.RobIdx,
		CacheHit:    true,
	}

	if p.name != "LSU" {
		p.slot.Busy = false
		return w, true
	}

	return p.stepLSU(exe, w, hier, ldBuf, rb, stBuf)
}

func (p *Pipeline) stepLSU(exe isa.ExecuteResultBundle, w rob.WritePort, hier Hierarchy, ldBuf *loadbuffer.LoadBuffer, rb *rob.ReorderBuffer, stBuf *storebuffer.StoreBuffer) (rob.WritePort, bool) {
	inst := &p.slot.Inst
	addr := exe.Result

	if inst.IsLoad() {
		value, ok := stBuf.Query(addr&^0x3, p.slot.RobIdx, rb.GetPopPtr())
		cacheHit := true
		if !ok {
			if addr < 0x80400000 || addr >= 0x80800000 {
				p.slot.Busy = true
				return rob.WritePort{}, false
			}
			v, hit, ch := hier.Read(addr &^ 0x3)
			if !hit {
				p.slot.Busy = true
				return rob.WritePort{}, false
			}
			value, cacheHit = v, ch
		}

		loaded := extendLoad(inst.Name, value, addr)
		ldBuf.Push(addr, p.slot.RobIdx)
		p.slot.Busy = false
		w.Result = loaded
		w.CacheHit = cacheHit
		return w, true
	}

	// Store: invalidate any younger, address-overlapping speculative load
	// before the store's own data lands in the store buffer.
	ldBuf.Check(addr, p.slot.RobIdx, rb.GetPopPtr())

	original, ok := stBuf.Query(addr&^0x3, p.slot.RobIdx, rb.GetPopPtr())
	cacheHit := true
	if !ok {
		if addr < 0x80400000 || addr >= 0x80800000 {
			p.slot.Busy = true
			return rob.WritePort{}, false
		}
		v, hit, ch := hier.Read(addr &^ 0x3)
		if !hit {
			p.slot.Busy = true
			return rob.WritePort{}, false
		}
		original, cacheHit = v, ch
	} else {
		cacheHit = true
	}

	merged := mergeStore(inst.Name, original, p.slot.ReadPort2.Value, addr)
	stBuf.Push(addr&^0x3, merged, p.slot.RobIdx)

	p.slot.Busy = false
	w.Result = addr
	w.CacheHit = cacheHit
	return w, true
}

// extendLoad slices and sign/zero-extends a freshly read word per opcode,
// using the low two bits of the effective address as the byte offset.
func extendLoad(name string, word, addr uint32) uint32 {
	switch name {
	case "LW":
		return word
	case "LH", "LHU":
		var half uint32
		if addr&2 != 0 {
			half = word >> 16
		} else {
			half = word & 0xffff
		}
		if name == "LH" && half&0x8000 != 0 {
			half |= 0xffff0000
		}
		return half
	case "LB", "LBU":
		shift := (addr & 0x3) << 3
		b := (word >> shift) & 0xff
		if name == "LB" && b&0x80 != 0 {
			b |= 0xffffff00
		}
		return b
	default:
		return word
	}
}

// mergeStore merges the store's register data into the currently resident
// word at the appropriate sub-word offset.
func mergeStore(name string, original, data, addr uint32) uint32 {
	switch name {
	case "SW":
		return data
	case "SH":
		if addr&2 != 0 {
			return (original & 0xffff) | (data << 16)
		}
		return (original &^ 0xffff) | (data & 0xffff)
	case "SB":
		offset := addr & 0x3
		shift := offset << 3
		mask := uint32(0xff) << shift
		return (original &^ mask) | ((data & 0xff) << shift)
	default:
		return original
	}
}
