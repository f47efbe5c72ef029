package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
	"github.com/sarchlab/remoteport/remoteport"
)

type namedDomain struct {
	hooking.HookableBase
}

func (d *namedDomain) Name() string { return "Domain" }

var _ = Describe("Trace hook", func() {
	var (
		mockCtrl *gomock.Controller
		tracer   *MockTracer
		domain   *namedDomain
		tx       *remoteport.Transaction
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tracer = NewMockTracer(mockCtrl)
		domain = &namedDomain{}
		tx = &remoteport.Transaction{
			ID:      "tx-1",
			Channel: "Host.Dev1",
			Command: protocol.CmdRead,
			Address: 0x1000,
			Length:  4,
		}

		CollectTrace(domain, tracer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	invoke := func(pos *hooking.HookPos, item any) {
		domain.InvokeHook(hooking.HookCtx{Domain: domain, Pos: pos, Item: item})
	}

	It("should refuse the same tracer twice", func() {
		Expect(func() { CollectTrace(domain, tracer) }).To(Panic())
	})

	It("should start and end transaction tasks", func() {
		expected := Task{
			ID:     "tx-1",
			Kind:   KindTransaction,
			What:   protocol.CmdRead.String(),
			Where:  "Host.Dev1",
			Detail: tx,
		}

		gomock.InOrder(
			tracer.EXPECT().StartTask(expected),
			tracer.EXPECT().EndTask(expected),
		)

		invoke(remoteport.HookPosTransactionStart, tx)
		invoke(remoteport.HookPosTransactionEnd, tx)
	})

	It("should start and end request tasks", func() {
		tx.Inbound = true

		tracer.EXPECT().StartTask(gomock.Any()).Do(func(task Task) {
			Expect(task.Kind).To(Equal(KindRequest))
		})
		tracer.EXPECT().EndTask(gomock.Any()).Do(func(task Task) {
			Expect(task.Kind).To(Equal(KindRequest))
			Expect(task.ID).To(Equal("tx-1"))
		})

		invoke(remoteport.HookPosRequestStart, tx)
		invoke(remoteport.HookPosRequestEnd, tx)
	})

	It("should ignore packet positions", func() {
		invoke(remoteport.HookPosPacketSent, protocol.Header{})
		invoke(remoteport.HookPosPacketReceived, protocol.Header{})
	})
})
