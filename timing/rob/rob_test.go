package rob_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtomasulo/isa"
	"github.com/sarchlab/rvtomasulo/timing/rob"
)

var _ = Describe("ReorderBuffer", func() {
	var r *rob.ReorderBuffer

	BeforeEach(func() {
		r = rob.New()
	})

	It("starts empty", func() {
		Expect(r.CanPop()).To(BeFalse())
		Expect(r.CanPush()).To(BeTrue())
	})

	It("assigns sequential indices and wraps modulo Size", func() {
		var last uint32
		for i := 0; i < rob.Size-1; i++ {
			last = r.Push(isa.NOP(), true)
		}
		Expect(last).To(Equal(uint32(rob.Size - 2)))
		Expect(r.CanPush()).To(BeFalse())

		r.Pop()
		Expect(r.Push(isa.NOP(), true)).To(Equal(uint32(rob.Size - 1)))
		r.Pop()
		Expect(r.Push(isa.NOP(), true)).To(Equal(uint32(0)))
	})

	It("reports not ready until writeState runs", func() {
		idx := r.Push(isa.NOP(), false)
		Expect(r.CheckReady(idx)).To(BeFalse())
		r.WriteState(rob.WritePort{RobIdx: idx, Result: 7})
		Expect(r.CheckReady(idx)).To(BeTrue())
		Expect(r.Read(idx)).To(Equal(uint32(7)))
	})

	It("commits from the head in FIFO order", func() {
		r.Push(isa.NOP(), true)
		r.Push(isa.NOP(), true)
		front, ok := r.GetFront()
		Expect(ok).To(BeTrue())
		Expect(front.State.Ready).To(BeTrue())
		popPtr := r.GetPopPtr()
		Expect(popPtr).To(Equal(uint32(0)))
		r.Pop()
		Expect(r.GetPopPtr()).To(Equal(uint32(1)))
	})

	It("flush empties the buffer entirely", func() {
		r.Push(isa.NOP(), true)
		r.Push(isa.NOP(), true)
		r.Flush()
		Expect(r.CanPop()).To(BeFalse())
		Expect(r.CanPush()).To(BeTrue())
	})
})
