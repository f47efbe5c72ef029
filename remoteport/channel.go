package remoteport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/idgen"
	"github.com/sarchlab/remoteport/protocol"
)

// A Channel carries the traffic of one device id.
//
// Transactions on a channel are serialized: the channel mutex is held from
// encoding the request until the response is consumed and the clocks are
// reconciled. Operations on different channels proceed independently.
type Channel struct {
	session *Session
	dev     uint32
	name    string
	ids     idgen.Generator

	// Guarded by the session mutex.
	ops DeviceOps

	txMu        sync.Mutex
	outstanding atomic.Pointer[outstanding]
	rsp         protocol.DynPkt
	rspCh       chan protocol.Packet

	counters channelCounters
}

type outstanding struct {
	id     uint32
	cmd    protocol.Command
	length uint32
}

// Access describes a bus access issued on a channel. A StreamWidth of zero
// means Length, which is a plain incremental access. For writes, Length is
// taken from Data.
type Access struct {
	Address     uint64
	Attributes  uint64
	Length      uint32
	Width       uint32
	StreamWidth uint32
	Data        []byte
}

func (a Access) busAccess(clk int64) *protocol.BusAccess {
	ba := &protocol.BusAccess{
		Timestamp:   clk,
		Attributes:  a.Attributes,
		Address:     a.Address,
		Length:      a.Length,
		Width:       a.Width,
		StreamWidth: a.StreamWidth,
		Data:        a.Data,
	}

	if ba.StreamWidth == 0 {
		ba.StreamWidth = ba.Length
	}

	return ba
}

func newChannel(s *Session, dev uint32) *Channel {
	return &Channel{
		session: s,
		dev:     dev,
		name:    fmt.Sprintf("%s.Dev%d", s.name, dev),
		ids:     idgen.New(),
		rspCh:   make(chan protocol.Packet, 1),
	}
}

// Name returns the name of the channel.
func (c *Channel) Name() string {
	return c.name
}

// Device returns the device id of the channel.
func (c *Channel) Device() uint32 {
	return c.dev
}

// Session returns the session the channel belongs to.
func (c *Channel) Session() *Session {
	return c.session
}

func (c *Channel) handler(cmd protocol.Command) HandlerFunc {
	if c == nil {
		return nil
	}

	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	return c.ops[cmd]
}

// Read reads a value of 1 to 8 bytes. The value is assembled little-endian
// from the response data.
func (c *Channel) Read(addr uint64, size int, attr uint64) (uint64, error) {
	if err := valueSizeMustBeValid(size); err != nil {
		return 0, err
	}

	var value uint64

	err := c.yield(func() error {
		return c.read(Access{
			Address:    addr,
			Attributes: attr,
			Length:     uint32(size),
		}, func(data []byte) {
			value = UnpackValue(data)
		})
	})

	return value, err
}

// Write writes the low size bytes of value, 1 to 8, in little-endian order.
func (c *Channel) Write(addr uint64, size int, value uint64, attr uint64) error {
	if err := valueSizeMustBeValid(size); err != nil {
		return err
	}

	return c.WriteData(addr, PackValue(value, size), attr)
}

// ReadData reads length bytes.
func (c *Channel) ReadData(addr uint64, length int, attr uint64) ([]byte, error) {
	if err := accessLengthMustFit(length); err != nil {
		return nil, err
	}

	return c.ReadAccess(Access{
		Address:    addr,
		Attributes: attr,
		Length:     uint32(length),
	})
}

// WriteData writes data.
func (c *Channel) WriteData(addr uint64, data []byte, attr uint64) error {
	return c.WriteAccess(Access{
		Address:    addr,
		Attributes: attr,
		Data:       data,
	})
}

// ReadAccess performs a read of any shape the protocol can carry and returns
// a copy of the data.
func (c *Channel) ReadAccess(a Access) ([]byte, error) {
	var out []byte

	err := c.yield(func() error {
		return c.read(a, func(data []byte) {
			out = make([]byte, len(data))
			copy(out, data)
		})
	})

	return out, err
}

// WriteAccess performs a write of any shape the protocol can carry.
func (c *Channel) WriteAccess(a Access) error {
	if err := accessLengthMustFit(len(a.Data)); err != nil {
		return err
	}

	a.Length = uint32(len(a.Data))

	return c.yield(func() error {
		return c.transact(request{
			cmd:     protocol.CmdWrite,
			address: a.Address,
			length:  a.Length,
			encode: func(id uint32, clk int64) ([]byte, error) {
				return protocol.EncodeWrite(id, c.dev, a.busAccess(clk))
			},
			consume: func(rsp protocol.Packet) int64 {
				c.counters.writes.Add(1)
				return rsp.Payload.(*protocol.BusAccess).Timestamp
			},
		})
	})
}

// accessLengthMustFit rejects lengths that would not survive the conversion
// to the 32-bit wire field or could not be framed.
func accessLengthMustFit(length int) error {
	if length < 0 || length > protocol.MaxAccessLength {
		return fmt.Errorf("%w: length %d",
			protocol.ErrInvalidAccessWidth, length)
	}

	return nil
}

func (c *Channel) read(a Access, use func(data []byte)) error {
	a.Data = nil

	return c.transact(request{
		cmd:     protocol.CmdRead,
		address: a.Address,
		length:  a.Length,
		encode: func(id uint32, clk int64) ([]byte, error) {
			return protocol.EncodeRead(id, c.dev, a.busAccess(clk))
		},
		consume: func(rsp protocol.Packet) int64 {
			ba := rsp.Payload.(*protocol.BusAccess)
			use(ba.Data)
			c.counters.reads.Add(1)

			return ba.Timestamp
		},
	})
}

// Sync exchanges clocks with the peer without a bus access.
func (c *Channel) Sync() error {
	return c.yield(c.sync)
}

func (c *Channel) sync() error {
	return c.transact(request{
		cmd: protocol.CmdSync,
		encode: func(id uint32, clk int64) ([]byte, error) {
			return protocol.EncodeSync(id, c.dev, clk), nil
		},
		consume: func(rsp protocol.Packet) int64 {
			c.counters.syncs.Add(1)
			return rsp.Payload.(*protocol.Sync).Timestamp
		},
	})
}

// SendInterrupt signals a level change on an interrupt line. It does not
// wait for the peer.
func (c *Channel) SendInterrupt(line uint32, value uint8) error {
	if err := c.session.mustBeReady(); err != nil {
		return err
	}

	irq := &protocol.Interrupt{
		Timestamp: c.session.sync.Normalized(),
		Line:      line,
		Value:     value,
	}

	err := c.session.send(protocol.EncodeInterrupt(c.ids.Generate(), c.dev, irq))
	if err != nil {
		return err
	}

	c.counters.interruptsSent.Add(1)

	return nil
}

// RespondRead answers a read request from the peer with data. ts is the
// completion time to report, usually the request timestamp plus the access
// delay.
func (c *Channel) RespondRead(req protocol.Packet, data []byte, ts int64) error {
	return c.session.respondRead(req, data, ts)
}

// RespondWrite acknowledges a write request from the peer.
func (c *Channel) RespondWrite(req protocol.Packet, ts int64) error {
	return c.session.respondWrite(req, ts)
}

func (c *Channel) yield(f func() error) error {
	c.session.execCtx.Leave()
	defer c.session.execCtx.Enter()

	return f()
}

type request struct {
	cmd     protocol.Command
	address uint64
	length  uint32
	encode  func(id uint32, clk int64) ([]byte, error)
	consume func(rsp protocol.Packet) int64
}

func (c *Channel) transact(req request) error {
	if err := c.session.mustBeReady(); err != nil {
		return err
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	clk := c.session.sync.Normalized()
	id := c.ids.Generate()

	pkt, err := req.encode(id, clk)
	if err != nil {
		return err
	}

	tx := c.startTransaction(req, id, clk)

	c.outstanding.Store(&outstanding{id: id, cmd: req.cmd, length: req.length})

	err = c.session.send(pkt)
	if err == nil {
		err = c.complete(req, clk, tx)
	}

	if err != nil {
		c.outstanding.Store(nil)
	}

	c.endTransaction(tx, err)

	return err
}

func (c *Channel) complete(req request, clk int64, tx *Transaction) error {
	rsp, err := c.waitResponse()
	if err != nil {
		return err
	}

	peer := req.consume(rsp)
	c.rsp.Invalidate()
	c.session.sync.Reconcile(clk, peer)

	if tx != nil {
		tx.PeerClock = peer
	}

	return nil
}

func (c *Channel) waitResponse() (protocol.Packet, error) {
	var timeout <-chan time.Time

	if d := c.session.responseTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case rsp := <-c.rspCh:
		return rsp, nil
	case <-c.session.done:
		return protocol.Packet{}, c.session.closedErr()
	case <-timeout:
		c.session.abort(fmt.Errorf("%w: %s waited %s",
			ErrResponseTimeout, c.name, c.session.responseTimeout))

		return protocol.Packet{}, c.session.closedErr()
	}
}

// deliver is called by the reader with a response addressed to the channel.
// On success the response storage moves into the channel and buf receives
// the storage of the previous response.
func (c *Channel) deliver(pkt protocol.Packet, buf *protocol.DynPkt) error {
	h := pkt.Header

	o := c.outstanding.Swap(nil)
	switch {
	case o == nil:
		return fmt.Errorf("%w: %s without outstanding request",
			ErrResponseCorrelation, h)
	case o.id != h.ID:
		return fmt.Errorf("%w: %s, want id %d",
			ErrResponseCorrelation, h, o.id)
	case o.cmd != h.Command:
		return fmt.Errorf("%w: %s, want %s",
			ErrResponseCorrelation, h, o.cmd)
	}

	if ba, ok := pkt.Payload.(*protocol.BusAccess); ok {
		if h.Command == protocol.CmdRead && ba.Length != o.length {
			return fmt.Errorf("%w: %s carries %d bytes, want %d",
				ErrResponseCorrelation, h, ba.Length, o.length)
		}
	}

	c.rsp.Swap(buf)
	c.rspCh <- pkt

	return nil
}

func (c *Channel) free() {
	c.txMu.Lock()
	defer c.txMu.Unlock()

	c.rsp.Free()
}

func (c *Channel) newTransaction(cmd protocol.Command, id uint32) *Transaction {
	return &Transaction{
		ID:       xid.New().String(),
		Channel:  c.name,
		Device:   c.dev,
		PacketID: id,
		Command:  cmd,
	}
}

func (c *Channel) startTransaction(req request, id uint32, clk int64) *Transaction {
	if c.session.NumHooks() == 0 {
		return nil
	}

	tx := c.newTransaction(req.cmd, id)
	tx.Address = req.address
	tx.Length = req.length
	tx.LocalClock = clk

	c.session.InvokeHook(hooking.HookCtx{
		Domain: c.session,
		Pos:    HookPosTransactionStart,
		Item:   tx,
	})

	return tx
}

func (c *Channel) endTransaction(tx *Transaction, err error) {
	if tx == nil {
		return
	}

	tx.Err = err

	c.session.InvokeHook(hooking.HookCtx{
		Domain: c.session,
		Pos:    HookPosTransactionEnd,
		Item:   tx,
	})
}
