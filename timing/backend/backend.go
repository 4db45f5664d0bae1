// Package backend wires the reorder buffer, reservation stations, execute
// pipelines, store/load buffers, register file, and memory hierarchy into
// the single-issue Tomasulo core. Backend owns an optional Cache
// collaborator rather than subclassing a cache-aware variant: the same
// dispatch/issue/commit/flush logic drives both a bare-memory and a
// cached configuration, selecting its memory-hierarchy path through the
// pipeline.Hierarchy interface.
package backend

import (
	"github.com/sarchlab/rvtomasulo/frontend"
	"github.com/sarchlab/rvtomasulo/isa"
	"github.com/sarchlab/rvtomasulo/timing/cache"
	"github.com/sarchlab/rvtomasulo/timing/loadbuffer"
	"github.com/sarchlab/rvtomasulo/timing/memory"
	"github.com/sarchlab/rvtomasulo/timing/pipeline"
	"github.com/sarchlab/rvtomasulo/timing/regfile"
	"github.com/sarchlab/rvtomasulo/timing/rob"
	"github.com/sarchlab/rvtomasulo/timing/rs"
	"github.com/sarchlab/rvtomasulo/timing/storebuffer"
)

// stationSize is the per-functional-unit reservation station depth,
// including the LSU station.
const stationSize = 4

// storeByteEnable writes a full word: store data already lands in the
// store buffer pre-merged with the resident word at execute time.
const storeByteEnable = 0xf

// Config configures a Backend's memory hierarchy.
type Config struct {
	MemoryLatency uint64
	Seed          int64
	Cache         *cache.Config // nil disables the L1 cache
}

// Stats accumulates run-wide counters exposed for diagnostics and the
// rvsim and checker reports.
type Stats struct {
	Cycles    uint64
	Committed uint64
	Flushes   uint64
}

// Backend is the out-of-order execution core driven one tick at a time.
type Backend struct {
	rob     *rob.ReorderBuffer
	regFile *regfile.RegisterFile

	rsALU, rsBRU, rsMUL, rsDIV, rsLSU *rs.Station
	alu, bru, mul, div, lsu           *pipeline.Pipeline

	storeBuffer *storebuffer.StoreBuffer
	loadBuffer  *loadbuffer.LoadBuffer

	mem   *memory.Memory
	cch   *cache.Cache
	hier  pipeline.Hierarchy

	pending *isa.Instruction

	exited bool
	stats  Stats
}

// New returns a Backend configured per cfg, with an empty ROB and zeroed
// register file.
func New(cfg Config) *Backend {
	b := &Backend{
		rob:         rob.New(),
		regFile:     regfile.New(),
		rsALU:       rs.New(stationSize, false),
		rsBRU:       rs.New(stationSize, false),
		rsMUL:       rs.New(stationSize, false),
		rsDIV:       rs.New(stationSize, false),
		rsLSU:       rs.New(stationSize, true),
		alu:         pipeline.New("ALU"),
		bru:         pipeline.New("BRU"),
		mul:         pipeline.New("MUL"),
		div:         pipeline.New("DIV"),
		lsu:         pipeline.New("LSU"),
		storeBuffer: storebuffer.New(),
		loadBuffer:  loadbuffer.New(),
		mem:         memory.New(cfg.MemoryLatency, cfg.Seed),
	}
	if cfg.Cache != nil {
		b.cch = cache.New(*cfg.Cache, cfg.Seed)
		b.hier = &cache.Adapter{Cache: b.cch, Mem: b.mem}
	} else {
		b.hier = &cache.MemoryAdapter{Mem: b.mem}
	}
	return b
}

// Stats returns a snapshot of the run-wide counters.
func (b *Backend) Stats() Stats { return b.stats }

// Exited reports whether the EXIT sentinel has committed.
func (b *Backend) Exited() bool { return b.exited }

// Cache returns the configured cache, or nil if none was configured.
func (b *Backend) Cache() *cache.Cache { return b.cch }

// ReadRegister returns the architectural value of register r.
func (b *Backend) ReadRegister(r uint8) uint32 { return b.regFile.Read(r) }

// FunctionalWriteRegister sets a register's architectural value directly,
// bypassing rename bookkeeping. Used by the harness to seed initial state.
func (b *Backend) FunctionalWriteRegister(r uint8, v uint32) { b.regFile.FunctionalWrite(r, v) }

// FunctionalReadMemory bypasses timing, for harness verification.
func (b *Backend) FunctionalReadMemory(addr uint32, length int) []uint32 {
	return b.mem.FunctionalRead(addr, length)
}

// FunctionalWriteMemory bypasses timing, for harness program loading.
func (b *Backend) FunctionalWriteMemory(addr uint32, data []uint32) {
	b.mem.FunctionalWrite(addr, data)
}

func (b *Backend) stationFor(fu isa.FUType) *rs.Station {
	switch fu {
	case isa.FUALU:
		return b.rsALU
	case isa.FUBRU:
		return b.rsBRU
	case isa.FUMUL:
		return b.rsMUL
	case isa.FUDIV:
		return b.rsDIV
	case isa.FULSU:
		return b.rsLSU
	default:
		return nil
	}
}

// Tick advances the machine by one cycle, in the order: execute pipelines
// broadcast, reservation stations wake up and the ROB records completion,
// reservation stations issue into now-free pipelines, the ROB head
// commits if ready, and the frontend supplies at most one new
// instruction for dispatch. It returns true once EXIT has committed.
func (b *Backend) Tick(f *frontend.Frontend) bool {
	if b.exited {
		return true
	}
	b.stats.Cycles++

	b.applyBroadcasts(b.stepPipelines())
	b.issue()
	b.commit(f)
	b.dispatch(f)

	return b.exited
}

func (b *Backend) stepPipelines() []rob.WritePort {
	var out []rob.WritePort
	for _, p := range [5]*pipeline.Pipeline{b.alu, b.bru, b.mul, b.div, b.lsu} {
		if w, ok := p.Step(b.hier, b.loadBuffer, b.rob, b.storeBuffer); ok {
			out = append(out, w)
		}
	}
	return out
}

func (b *Backend) applyBroadcasts(ws []rob.WritePort) {
	for _, w := range ws {
		b.rsALU.Wakeup(w)
		b.rsBRU.Wakeup(w)
		b.rsMUL.Wakeup(w)
		b.rsDIV.Wakeup(w)
		b.rsLSU.Wakeup(w)
		b.rob.WriteState(w)
	}
}

func (b *Backend) issue() {
	tryIssue := func(st *rs.Station, p *pipeline.Pipeline) {
		if st.CanIssue() && p.CanExecute() {
			p.Execute(st.Issue())
		}
	}
	tryIssue(b.rsALU, b.alu)
	tryIssue(b.rsBRU, b.bru)
	tryIssue(b.rsMUL, b.mul)
	tryIssue(b.rsDIV, b.div)
	tryIssue(b.rsLSU, b.lsu)
}

// commit applies §4.10's policy to the ROB head, if present and ready.
func (b *Backend) commit(f *frontend.Frontend) {
	front, ok := b.rob.GetFront()
	if !ok || !front.State.Ready {
		return
	}

	inst := front.Inst
	state := front.State
	popPtr := b.rob.GetPopPtr()

	if inst.IsExit() {
		b.exited = true
		b.stats.Committed++
		return
	}

	switch isa.GetFUType(&inst) {
	case isa.FUALU, isa.FUBRU, isa.FUMUL, isa.FUDIV:
		b.commitRegWrite(f, &inst, state, popPtr)
	case isa.FULSU:
		if inst.IsStore() {
			b.commitStore()
		} else {
			b.commitLoad(f, &inst, state, popPtr)
		}
	case isa.FUNone:
		if inst.WritesRegister() {
			b.regFile.Write(inst.Rd(), state.Result, int(popPtr))
		}
		b.rob.Pop()
		b.stats.Committed++
	}
}

func (b *Backend) commitRegWrite(f *frontend.Frontend, inst *isa.Instruction, state rob.StatusBundle, popPtr uint32) {
	b.regFile.Write(inst.Rd(), state.Result, int(popPtr))
	b.rob.Pop()
	b.stats.Committed++

	isBRU := isa.GetFUType(inst) == isa.FUBRU
	if isBRU {
		f.BpuBackendUpdate(frontend.BpuUpdateData{
			PC:          inst.PC,
			IsCall:      inst.IsCall(),
			IsReturn:    inst.IsReturn(),
			IsBranch:    inst.Name != "JAL" && inst.Name != "JALR",
			BranchTaken: state.ActualTaken,
			JumpTarget:  state.JumpTarget,
		})
	}

	if state.Mispredict {
		target := inst.PC + 4
		if state.ActualTaken {
			target = state.JumpTarget
		}
		f.Jump(target)
		b.flush()
	}
}

// commitStore drains one store to the memory hierarchy. A "not yet" leaves
// the ROB untouched for a retry next cycle.
func (b *Backend) commitStore() {
	front := b.storeBuffer.Front()
	ok, _ := b.hier.Write(front.StoreAddress, front.StoreData, storeByteEnable)
	if !ok {
		return
	}
	b.storeBuffer.Pop()
	b.rob.Pop()
	b.stats.Committed++
}

// commitLoad pops the matching LoadBuffer slot. A squashed load (a later
// store landed between its execute and its commit) triggers a
// jump-and-flush without popping the ROB; the flush resets it instead.
func (b *Backend) commitLoad(f *frontend.Frontend, inst *isa.Instruction, state rob.StatusBundle, popPtr uint32) {
	slot := b.loadBuffer.Pop(popPtr)
	if slot.Invalidate {
		f.Jump(inst.PC)
		b.flush()
		return
	}
	b.regFile.Write(inst.Rd(), state.Result, int(popPtr))
	b.rob.Pop()
	b.stats.Committed++
}

// dispatch supplies at most one instruction from the frontend into the
// ROB and its target reservation station, all-or-nothing. A held
// instruction (rejected for lack of room last tick) is retried first,
// without fetching a new one.
func (b *Backend) dispatch(f *frontend.Frontend) {
	if b.exited {
		return
	}

	var inst isa.Instruction
	if b.pending != nil {
		inst = *b.pending
	} else {
		fetched, ok := f.Step()
		if !ok {
			return
		}
		inst = fetched
	}

	fu := isa.GetFUType(&inst)
	station := b.stationFor(fu)

	if !b.rob.CanPush() || (station != nil && !station.HasEmptySlot()) {
		b.pending = &inst
		f.HaltDispatch()
		return
	}

	robIdx := b.rob.Push(inst, fu == isa.FUNone)
	if station != nil {
		station.InsertInstruction(inst, robIdx, b.regFile, b.rob)
	}
	if inst.WritesRegister() {
		b.regFile.MarkBusy(inst.Rd(), int(robIdx))
	}

	b.pending = nil
}

// flush clears every in-flight structure, per §4.11. Register values and
// architectural memory contents are preserved.
func (b *Backend) flush() {
	b.rsALU.Flush()
	b.rsBRU.Flush()
	b.rsMUL.Flush()
	b.rsDIV.Flush()
	b.rsLSU.Flush()

	b.alu.Flush()
	b.bru.Flush()
	b.mul.Flush()
	b.div.Flush()
	b.lsu.Flush()

	b.regFile.Flush()
	b.storeBuffer.Flush()
	b.loadBuffer.Flush()
	b.rob.Flush()

	b.mem.ResetState()
	if b.cch != nil {
		b.cch.ResetState()
	}

	b.pending = nil
	b.stats.Flushes++
}

// Reset reinitializes the data memory from data and clears every piece of
// in-flight and architectural state (except what data itself seeds).
func (b *Backend) Reset(data []uint32) {
	b.flush()
	b.mem.Reset(data)
	if b.cch != nil {
		b.cch.Reset()
	}
	b.regFile.Reset()
	b.exited = false
	b.stats = Stats{}
}
