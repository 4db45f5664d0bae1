package loadbuffer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtomasulo/timing/loadbuffer"
)

var _ = Describe("LoadBuffer", func() {
	var b *loadbuffer.LoadBuffer

	BeforeEach(func() {
		b = loadbuffer.New()
	})

	It("invalidates a younger load with an overlapping address", func() {
		b.Push(0x80400000, 3) // load at robIdx 3
		b.Check(0x80400000, 1, 0) // store at robIdx 1, older
		s := b.Pop(3)
		Expect(s.Invalidate).To(BeTrue())
	})

	It("does not invalidate an older load", func() {
		b.Push(0x80400000, 1)
		b.Check(0x80400000, 3, 0) // store is younger than the load
		s := b.Pop(1)
		Expect(s.Invalidate).To(BeFalse())
	})

	It("does not invalidate on a non-overlapping address", func() {
		b.Push(0x80400000, 3)
		b.Check(0x80400010, 1, 0)
		s := b.Pop(3)
		Expect(s.Invalidate).To(BeFalse())
	})

	It("flush clears every slot", func() {
		b.Push(0x80400000, 3)
		b.Flush()
		s := b.Pop(3)
		Expect(s.Valid).To(BeFalse())
	})
})
