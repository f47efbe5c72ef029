package remoteport

import (
	"fmt"
	"sync"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
)

// A HandlerFunc serves one request from the peer. Bus access data in pkt is
// only valid until the handler returns. A returned error aborts the session.
type HandlerFunc func(ch *Channel, pkt protocol.Packet) error

// DeviceOps maps commands to the handlers of a device. Devices usually handle
// read, write and interrupt.
type DeviceOps map[protocol.Command]HandlerFunc

type inboundPacket struct {
	pkt protocol.Packet
	buf *protocol.DynPkt
}

// dispatchQueue is an unbounded FIFO. The reader must never block on it,
// since a handler may itself wait for a response that only the reader can
// deliver.
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []inboundPacket
	closed bool
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{}
	q.cond = sync.NewCond(&q.mu)

	return q
}

func (q *dispatchQueue) push(p inboundPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.queue = append(q.queue, p)
	q.cond.Signal()
}

// pop blocks until a packet is available. It returns false once the queue is
// closed; packets still queued are dropped.
func (q *dispatchQueue) pop() (inboundPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return inboundPacket{}, false
	}

	p := q.queue[0]
	q.queue[0] = inboundPacket{}
	q.queue = q.queue[1:]

	return p, true
}

func (q *dispatchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.queue = nil
	q.cond.Broadcast()
}

func (s *Session) dispatchLoop() {
	defer close(s.dispatchDone)

	for {
		in, ok := s.inbound.pop()
		if !ok {
			return
		}

		err := s.serve(in.pkt)
		s.putBuffer(in.buf)

		if err != nil {
			s.abort(err)
			return
		}
	}
}

func (s *Session) serve(pkt protocol.Packet) error {
	s.execCtx.Enter()
	defer s.execCtx.Leave()

	h := pkt.Header
	if h.Command == protocol.CmdSync {
		return s.answerSync(pkt)
	}

	c := s.lookupChannel(h.Device)

	handler := c.handler(h.Command)
	if handler == nil {
		return s.serveUnhandled(c, pkt)
	}

	if h.Command == protocol.CmdInterrupt {
		c.counters.interruptsReceived.Add(1)
	}

	tx := s.startRequest(c, pkt)
	err := handler(c, pkt)
	c.counters.requestsServed.Add(1)
	s.endRequest(tx, err)

	if err != nil {
		return fmt.Errorf("device %d serving %s: %w", h.Device, h.Command, err)
	}

	return nil
}

func (s *Session) answerSync(pkt protocol.Packet) error {
	h := pkt.Header
	req := pkt.Payload.(*protocol.Sync)

	local := s.sync.Normalized()
	if err := s.send(protocol.EncodeSyncResp(h.ID, h.Device, local)); err != nil {
		return err
	}

	s.sync.Reconcile(local, req.Timestamp)

	if c := s.lookupChannel(h.Device); c != nil {
		c.counters.syncs.Add(1)
	}

	return nil
}

// serveUnhandled answers bus requests nobody handles so that the peer does
// not wait forever. Reads return zeros. Interrupts are dropped.
func (s *Session) serveUnhandled(c *Channel, pkt protocol.Packet) error {
	h := pkt.Header

	s.log.Warn().
		Stringer("header", h).
		Bool("registered", c != nil).
		Msg("no handler for request")

	switch h.Command {
	case protocol.CmdRead:
		ba := pkt.Payload.(*protocol.BusAccess)
		return s.respondRead(pkt, make([]byte, ba.Length), ba.Timestamp)
	case protocol.CmdWrite:
		ba := pkt.Payload.(*protocol.BusAccess)
		return s.respondWrite(pkt, ba.Timestamp)
	default:
		return nil
	}
}

func (s *Session) respondRead(req protocol.Packet, data []byte, ts int64) error {
	ba := requestMustBe(req, protocol.CmdRead)

	rsp, err := protocol.EncodeReadResp(req.Header.ID, req.Header.Device,
		&protocol.BusAccess{
			Timestamp:   ts,
			Attributes:  ba.Attributes,
			Address:     ba.Address,
			Length:      ba.Length,
			Width:       ba.Width,
			StreamWidth: ba.StreamWidth,
			Data:        data,
		})
	if err != nil {
		return err
	}

	return s.send(rsp)
}

func (s *Session) respondWrite(req protocol.Packet, ts int64) error {
	ba := requestMustBe(req, protocol.CmdWrite)

	rsp, err := protocol.EncodeWriteResp(req.Header.ID, req.Header.Device,
		&protocol.BusAccess{
			Timestamp:   ts,
			Attributes:  ba.Attributes,
			Address:     ba.Address,
			Length:      ba.Length,
			Width:       ba.Width,
			StreamWidth: ba.StreamWidth,
		})
	if err != nil {
		return err
	}

	return s.send(rsp)
}

func requestMustBe(req protocol.Packet, cmd protocol.Command) *protocol.BusAccess {
	ba, ok := req.Payload.(*protocol.BusAccess)
	if !ok || req.Header.Command != cmd || req.Header.IsResponse() {
		panic(fmt.Sprintf("responding to %s as a %s request", req.Header, cmd))
	}

	return ba
}

func (s *Session) startRequest(c *Channel, pkt protocol.Packet) *Transaction {
	if s.NumHooks() == 0 {
		return nil
	}

	tx := c.newTransaction(pkt.Header.Command, pkt.Header.ID)
	tx.Inbound = true

	switch p := pkt.Payload.(type) {
	case *protocol.BusAccess:
		tx.Address = p.Address
		tx.Length = p.Length
		tx.PeerClock = p.Timestamp
	case *protocol.Interrupt:
		tx.Address = uint64(p.Line)
		tx.PeerClock = p.Timestamp
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosRequestStart,
		Item:   tx,
	})

	return tx
}

func (s *Session) endRequest(tx *Transaction, err error) {
	if tx == nil {
		return
	}

	tx.Err = err

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosRequestEnd,
		Item:   tx,
	})
}
