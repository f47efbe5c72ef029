package remoteport

import (
	"errors"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/remoteport/clock"
	"github.com/sarchlab/remoteport/protocol"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Inbound requests", func() {
	var (
		host    *clock.ManualClock
		peer    *fakePeer
		session *Session
	)

	BeforeEach(func() {
		local, remote := net.Pipe()
		peer = newFakePeer(remote)
		host = clock.NewManualClock(0)
		session = MakeBuilder().WithTimeTeller(host).Build("RP", local)
	})

	AfterEach(func() {
		session.Close()
		peer.conn.Close()
	})

	It("should serve reads with the device handler", func() {
		session.RegisterDevice(4, DeviceOps{
			protocol.CmdRead: func(ch *Channel, pkt protocol.Packet) error {
				ba := pkt.Payload.(*protocol.BusAccess)
				data := make([]byte, ba.Length)
				for i := range data {
					data[i] = byte(ba.Address) + byte(i)
				}

				return ch.RespondRead(pkt, data, ba.Timestamp+5)
			},
		})
		handshake(session, peer)

		peer.send(peer.mustEncode(protocol.EncodeRead(11, 4, &protocol.BusAccess{
			Timestamp:   100,
			Address:     0x10,
			Length:      4,
			StreamWidth: 4,
		})))

		rsp := peer.recv()
		Expect(rsp.Header.ID).To(Equal(uint32(11)))
		Expect(rsp.Header.Device).To(Equal(uint32(4)))
		Expect(rsp.Header.IsResponse()).To(BeTrue())

		ba := rsp.Payload.(*protocol.BusAccess)
		Expect(ba.Timestamp).To(Equal(int64(105)))
		Expect(ba.Address).To(Equal(uint64(0x10)))
		Expect(ba.Data).To(Equal([]byte{0x10, 0x11, 0x12, 0x13}))

		Eventually(func() uint64 {
			return session.Channel(4).Stats().RequestsServed
		}).Should(Equal(uint64(1)))
	})

	It("should serve writes with the device handler", func() {
		var got []byte
		session.RegisterDevice(4, DeviceOps{
			protocol.CmdWrite: func(ch *Channel, pkt protocol.Packet) error {
				ba := pkt.Payload.(*protocol.BusAccess)
				got = append([]byte(nil), ba.Data...)

				return ch.RespondWrite(pkt, ba.Timestamp)
			},
		})
		handshake(session, peer)

		peer.send(peer.mustEncode(protocol.EncodeWrite(12, 4, &protocol.BusAccess{
			Address:     0x20,
			Length:      3,
			StreamWidth: 3,
			Data:        []byte{7, 8, 9},
		})))

		rsp := peer.recv()
		Expect(rsp.Header.Command).To(Equal(protocol.CmdWrite))
		Expect(rsp.Header.Length).To(Equal(uint32(protocol.BusAccessSize)))
		Expect(got).To(Equal([]byte{7, 8, 9}))
	})

	It("should hand interrupts to the device", func() {
		lines := make(chan *protocol.Interrupt, 1)
		session.RegisterDevice(6, DeviceOps{
			protocol.CmdInterrupt: func(ch *Channel, pkt protocol.Packet) error {
				irq := *pkt.Payload.(*protocol.Interrupt)
				lines <- &irq

				return nil
			},
		})
		handshake(session, peer)

		peer.send(protocol.EncodeInterrupt(1, 6, &protocol.Interrupt{
			Timestamp: 3,
			Line:      5,
			Value:     1,
		}))

		var irq *protocol.Interrupt
		Eventually(lines).Should(Receive(&irq))
		Expect(irq.Line).To(Equal(uint32(5)))
		Expect(irq.Value).To(Equal(uint8(1)))
		Eventually(func() uint64 {
			return session.Channel(6).Stats().InterruptsReceived
		}).Should(Equal(uint64(1)))
	})

	It("should serve requests in arrival order", func() {
		var (
			mu    sync.Mutex
			order []uint32
		)
		session.RegisterDevice(6, DeviceOps{
			protocol.CmdInterrupt: func(ch *Channel, pkt protocol.Packet) error {
				mu.Lock()
				defer mu.Unlock()

				order = append(order, pkt.Payload.(*protocol.Interrupt).Line)

				return nil
			},
		})
		handshake(session, peer)

		for line := uint32(0); line < 10; line++ {
			peer.send(protocol.EncodeInterrupt(line, 6, &protocol.Interrupt{Line: line}))
		}

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()

			return len(order)
		}).Should(Equal(10))
		Expect(order).To(Equal([]uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
	})

	It("should answer reads nobody handles with zeros", func() {
		handshake(session, peer)

		peer.send(peer.mustEncode(protocol.EncodeRead(13, 9, &protocol.BusAccess{
			Timestamp:   50,
			Length:      2,
			StreamWidth: 2,
		})))

		rsp := peer.recv()
		Expect(rsp.Header.ID).To(Equal(uint32(13)))
		Expect(rsp.Payload.(*protocol.BusAccess).Data).To(Equal([]byte{0, 0}))
		Expect(rsp.Payload.(*protocol.BusAccess).Timestamp).To(Equal(int64(50)))
	})

	It("should answer writes nobody handles", func() {
		handshake(session, peer)

		peer.send(peer.mustEncode(protocol.EncodeWrite(14, 9, &protocol.BusAccess{
			Length:      1,
			StreamWidth: 1,
			Data:        []byte{1},
		})))

		rsp := peer.recv()
		Expect(rsp.Header.ID).To(Equal(uint32(14)))
		Expect(rsp.Header.IsResponse()).To(BeTrue())
	})

	It("should answer syncs with the local clock", func() {
		handshake(session, peer)
		host.Set(250)

		peer.send(protocol.EncodeSync(15, 0, 700))

		rsp := peer.recv()
		Expect(rsp.Header.ID).To(Equal(uint32(15)))
		Expect(rsp.Header.IsResponse()).To(BeTrue())
		Expect(rsp.Payload).To(Equal(&protocol.Sync{Timestamp: 250}))
		Eventually(func() clock.VTime {
			return session.Synchronizer().PeerClock()
		}).Should(Equal(clock.VTime(700)))
	})

	It("should abort when a handler fails", func() {
		failure := errors.New("device on fire")
		session.RegisterDevice(6, DeviceOps{
			protocol.CmdInterrupt: func(*Channel, protocol.Packet) error {
				return failure
			},
		})
		handshake(session, peer)

		peer.send(protocol.EncodeInterrupt(1, 6, &protocol.Interrupt{}))

		Eventually(session.Done()).Should(BeClosed())
		Expect(session.Err()).To(MatchError(failure))
	})

	It("should close only after the running handler returned", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		session.RegisterDevice(6, DeviceOps{
			protocol.CmdInterrupt: func(*Channel, protocol.Packet) error {
				close(started)
				<-release

				return nil
			},
		})
		handshake(session, peer)

		peer.send(protocol.EncodeInterrupt(1, 6, &protocol.Interrupt{}))
		Eventually(started).Should(BeClosed())

		closed := async(session.Close)
		Consistently(closed, 30*time.Millisecond).ShouldNot(Receive())

		close(release)
		Eventually(closed).Should(Receive(BeNil()))
	})

	It("should panic when a device registers twice", func() {
		session.RegisterDevice(1, DeviceOps{})

		Expect(func() { session.RegisterDevice(1, DeviceOps{}) }).To(Panic())
	})

	It("should panic when responding to the wrong kind of request", func() {
		ch := session.Channel(1)
		irq := protocol.Packet{
			Header:  protocol.Header{Command: protocol.CmdInterrupt},
			Payload: &protocol.Interrupt{},
		}

		Expect(func() { _ = ch.RespondRead(irq, nil, 0) }).To(Panic())
	})

	It("should list channels by device id", func() {
		session.Channel(7)
		session.Channel(3)
		session.Channel(5)

		var devs []uint32
		for _, c := range session.Channels() {
			devs = append(devs, c.Device())
		}

		Expect(devs).To(Equal([]uint32{3, 5, 7}))
	})
})

var _ = Describe("Execution context", func() {
	var (
		mockCtrl *gomock.Controller
		peer     *fakePeer
		session  *Session
	)

	AfterEach(func() {
		session.Close()
		peer.conn.Close()
	})

	It("should be left while waiting and entered to serve requests", func() {
		mockCtrl = gomock.NewController(GinkgoT())
		execCtx := NewMockExecutionContext(mockCtrl)

		local, remote := net.Pipe()
		peer = newFakePeer(remote)
		session = MakeBuilder().WithExecutionContext(execCtx).Build("RP", local)

		served := make(chan struct{})
		session.RegisterDevice(1, DeviceOps{
			protocol.CmdInterrupt: func(*Channel, protocol.Packet) error {
				close(served)
				return nil
			},
		})

		gomock.InOrder(
			execCtx.EXPECT().Leave(),
			execCtx.EXPECT().Enter(),
		)
		handshake(session, peer)
		Expect(mockCtrl.Satisfied()).To(BeTrue())

		gomock.InOrder(
			execCtx.EXPECT().Enter(),
			execCtx.EXPECT().Leave(),
		)
		peer.send(protocol.EncodeInterrupt(1, 1, &protocol.Interrupt{}))
		Eventually(served).Should(BeClosed())
		Eventually(mockCtrl.Satisfied).Should(BeTrue())
	})

	It("should let the peer's requests run while a caller waits", func() {
		lock := NewBigLock()

		local, remote := net.Pipe()
		peer = newFakePeer(remote)
		session = MakeBuilder().WithExecutionContext(lock).Build("RP", local)

		served := make(chan struct{})
		session.RegisterDevice(1, DeviceOps{
			protocol.CmdInterrupt: func(*Channel, protocol.Packet) error {
				close(served)
				return nil
			},
		})

		errCh := async(func() error {
			lock.Enter()
			defer lock.Leave()

			return session.Handshake()
		})
		peer.acceptHandshake()
		Eventually(errCh).Should(Receive(BeNil()))

		readCh := async(func() error {
			lock.Enter()
			defer lock.Leave()

			_, err := session.Channel(1).Read(0, 4, 0)
			return err
		})

		req := peer.recv()
		peer.send(protocol.EncodeInterrupt(1, 1, &protocol.Interrupt{}))
		Eventually(served).Should(BeClosed())
		Consistently(readCh, 20*time.Millisecond).ShouldNot(Receive())

		peer.respondRead(req, []byte{0, 0, 0, 0}, 0)
		Eventually(readCh).Should(Receive(BeNil()))
	})
})
