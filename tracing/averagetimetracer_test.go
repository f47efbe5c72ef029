package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/remoteport/clock"
)

var _ = Describe("AverageTimeTracer", func() {
	var (
		clk    *clock.ManualClock
		tracer *AverageTimeTracer
	)

	BeforeEach(func() {
		clk = clock.NewManualClock(0)
		tracer = NewAverageTimeTracer(clk, KindIs(KindTransaction))
	})

	It("should average finished tasks", func() {
		tracer.StartTask(Task{ID: "a", Kind: KindTransaction})
		clk.Advance(10)
		tracer.StartTask(Task{ID: "b", Kind: KindTransaction})
		clk.Advance(20)
		tracer.EndTask(Task{ID: "a"})
		clk.Advance(10)
		tracer.EndTask(Task{ID: "b"})

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTime()).To(Equal(clock.VTime(30)))
		Expect(tracer.MaxTime()).To(Equal(clock.VTime(30)))
	})

	It("should skip filtered tasks", func() {
		tracer.StartTask(Task{ID: "a", Kind: KindRequest})
		clk.Advance(10)
		tracer.EndTask(Task{ID: "a"})

		Expect(tracer.TotalCount()).To(Equal(uint64(0)))
		Expect(tracer.AverageTime()).To(Equal(clock.VTime(0)))
	})

	It("should ignore tasks that never started", func() {
		tracer.EndTask(Task{ID: "ghost"})

		Expect(tracer.TotalCount()).To(Equal(uint64(0)))
	})
})
