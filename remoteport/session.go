// Package remoteport implements Remote Port sessions.
//
// A Session runs the protocol over one reliable byte stream. It performs the
// hello handshake, reads every inbound packet on a single goroutine, routes
// responses to the Channel that is waiting for them, and hands unsolicited
// requests to the devices registered on the session. A Channel is one device
// id; it serializes its transactions so that at most one request is
// outstanding at any time.
package remoteport

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/remoteport/clock"
	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/idgen"
	"github.com/sarchlab/remoteport/protocol"
)

const numSpareBuffers = 8

// A Session is one Remote Port connection with a peer.
type Session struct {
	hooking.HookableBase

	name string
	conn io.ReadWriteCloser
	log  zerolog.Logger

	sync             *clock.Synchronizer
	execCtx          ExecutionContext
	version          protocol.Version
	ids              idgen.Generator
	quantum          clock.VTime
	syncDevice       uint32
	syncInterval     time.Duration
	responseTimeout  time.Duration
	handshakeTimeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	peer     PeerState
	channels map[uint32]*Channel

	// Only touched by the reader.
	helloSeen bool
	helloCh   chan struct{}

	handshakeMu sync.Mutex
	ready       atomic.Bool

	spare        chan *protocol.DynPkt
	inbound      *dispatchQueue
	dispatchDone chan struct{}

	abortOnce sync.Once
	done      chan struct{}
	err       error
	wg        sync.WaitGroup

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

// Name returns the name of the session.
func (s *Session) Name() string {
	return s.name
}

// Synchronizer returns the clock synchronizer of the session.
func (s *Session) Synchronizer() *clock.Synchronizer {
	return s.sync
}

// Ready reports whether the handshake completed and the session is still
// open.
func (s *Session) Ready() bool {
	return s.ready.Load() && s.Err() == nil
}

// Done is closed when the session is closed or aborted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the session ended, or nil while it is open.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Peer returns a copy of what the session knows about the peer.
func (s *Session) Peer() PeerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peer.clone()
}

// Channel returns the channel of a device id, creating it if needed.
func (s *Session) Channel(dev uint32) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channelLocked(dev)
}

func (s *Session) channelLocked(dev uint32) *Channel {
	c, ok := s.channels[dev]
	if !ok {
		c = newChannel(s, dev)
		s.channels[dev] = c
	}

	return c
}

// RegisterDevice installs the handlers that serve the peer's requests for a
// device id and returns the channel of the device. Registering a device id
// twice panics.
func (s *Session) RegisterDevice(dev uint32, ops DeviceOps) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.channelLocked(dev)
	if c.ops != nil {
		panic(fmt.Sprintf("device %d registered twice", dev))
	}

	c.ops = make(DeviceOps, len(ops))
	for cmd, h := range ops {
		c.ops[cmd] = h
	}

	return c
}

// Channels returns all the channels of the session ordered by device id.
func (s *Session) Channels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].dev < list[j].dev
	})

	return list
}

func (s *Session) lookupChannel(dev uint32) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channels[dev]
}

// Handshake announces the local version and configuration and waits for the
// peer's hello. The clock base is captured when it returns successfully.
// Calling it again after success does nothing.
func (s *Session) Handshake() error {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()

	if s.ready.Load() {
		return nil
	}

	if err := s.Err(); err != nil {
		return s.closedErr()
	}

	s.execCtx.Leave()
	defer s.execCtx.Enter()

	err := s.send(protocol.EncodeHello(s.ids.Generate(), 0, s.version))
	if err != nil {
		return err
	}

	err = s.send(protocol.EncodeCfg(
		s.ids.Generate(), 0, protocol.OptQuantum, s.quantum > 0))
	if err != nil {
		return err
	}

	if err := s.waitHello(); err != nil {
		return err
	}

	s.sync.SetBase()
	s.mu.Lock()
	s.peer.ClockBase = s.sync.Base()
	version := s.peer.Version
	s.mu.Unlock()

	s.ready.Store(true)

	if s.quantum > 0 {
		s.wg.Add(1)
		go s.syncLoop()
	}

	s.log.Info().
		Str("version", version.String()).
		Int64("clock_base", s.sync.Base()).
		Msg("handshake completed")

	return nil
}

func (s *Session) waitHello() error {
	var timeout <-chan time.Time

	if s.handshakeTimeout > 0 {
		timer := time.NewTimer(s.handshakeTimeout)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case <-s.helloCh:
		return nil
	case <-s.done:
		return s.closedErr()
	case <-timeout:
		s.abort(fmt.Errorf("%w: no hello within %s",
			ErrResponseTimeout, s.handshakeTimeout))

		return s.closedErr()
	}
}

// Close ends the session. Operations blocked on the session return
// ErrSessionClosed. Close returns once the device handler running at that
// moment, if any, has returned.
//
// Close must not be called from a device handler, nor while holding the
// execution context; a handler aborts the session by returning an error.
func (s *Session) Close() error {
	s.abort(ErrSessionClosed)
	s.wg.Wait()
	<-s.dispatchDone

	for _, c := range s.Channels() {
		c.free()
	}

	return nil
}

func (s *Session) abort(cause error) {
	s.abortOnce.Do(func() {
		s.err = cause
		close(s.done)
		s.inbound.close()

		if err := s.conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("closing transport")
		}

		if errors.Is(cause, ErrSessionClosed) {
			s.log.Info().Msg("session closed")
		} else {
			s.log.Error().Err(cause).Msg("session aborted")
		}
	})
}

func (s *Session) closedErr() error {
	<-s.done

	if errors.Is(s.err, ErrSessionClosed) {
		return s.err
	}

	return fmt.Errorf("%w: %w", ErrSessionClosed, s.err)
}

func (s *Session) mustBeReady() error {
	if s.Err() != nil {
		return s.closedErr()
	}

	if !s.ready.Load() {
		return ErrNotReady
	}

	return nil
}

// send writes one encoded packet. Packets are never interleaved on the
// transport. A failed write aborts the session.
func (s *Session) send(pkt []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Err() != nil {
		return s.closedErr()
	}

	if err := protocol.WritePacket(s.conn, pkt); err != nil {
		s.abort(fmt.Errorf("%w: %w", ErrTransport, err))
		return s.closedErr()
	}

	s.packetsSent.Add(1)
	s.bytesSent.Add(uint64(len(pkt)))

	if s.NumHooks() > 0 {
		h, _ := protocol.DecodeHeader(pkt)
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosPacketSent,
			Item:   h,
		})
	}

	return nil
}

func (s *Session) getBuffer() *protocol.DynPkt {
	select {
	case buf := <-s.spare:
		return buf
	default:
		return &protocol.DynPkt{}
	}
}

func (s *Session) putBuffer(buf *protocol.DynPkt) {
	buf.Invalidate()

	select {
	case s.spare <- buf:
	default:
	}
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	st := Stats{
		Name:            s.name,
		Ready:           s.Ready(),
		Peer:            s.Peer(),
		Clock:           s.sync.Snapshot(),
		PacketsSent:     s.packetsSent.Load(),
		PacketsReceived: s.packetsReceived.Load(),
		BytesSent:       s.bytesSent.Load(),
		BytesReceived:   s.bytesReceived.Load(),
	}

	if err := s.Err(); err != nil {
		st.Closed = true
		st.Err = err.Error()
	}

	for _, c := range s.Channels() {
		st.Channels = append(st.Channels, c.Stats())
	}

	return st
}
