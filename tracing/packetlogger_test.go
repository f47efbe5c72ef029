package tracing

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
	"github.com/sarchlab/remoteport/remoteport"
)

var _ = Describe("PacketLogger", func() {
	var (
		buf    *bytes.Buffer
		domain *namedDomain
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		domain = &namedDomain{}
		domain.AcceptHook(NewPacketLogger(zerolog.New(buf), zerolog.DebugLevel))
	})

	It("should log sent packets", func() {
		domain.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    remoteport.HookPosPacketSent,
			Item: protocol.Header{
				Command: protocol.CmdWrite,
				Length:  40,
				ID:      7,
				Device:  2,
			},
		})

		var line map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
		Expect(line["dir"]).To(Equal("tx"))
		Expect(line["cmd"]).To(Equal("write"))
		Expect(line["id"]).To(BeNumerically("==", 7))
		Expect(line["session"]).To(Equal("Domain"))
		Expect(line["level"]).To(Equal("debug"))
	})

	It("should log received responses", func() {
		domain.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    remoteport.HookPosPacketReceived,
			Item: protocol.Header{
				Command: protocol.CmdSync,
				Flags:   protocol.FlagResponse,
			},
		})

		Expect(buf.String()).To(ContainSubstring(`"dir":"rx"`))
		Expect(buf.String()).To(ContainSubstring(`"rsp":true`))
	})

	It("should ignore other positions", func() {
		domain.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    remoteport.HookPosTransactionStart,
			Item:   &remoteport.Transaction{},
		})

		Expect(buf.Len()).To(Equal(0))
	})
})
