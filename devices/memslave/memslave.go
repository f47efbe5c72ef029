// Package memslave serves the peer's memory accesses from local storage.
package memslave

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sarchlab/remoteport/protocol"
	"github.com/sarchlab/remoteport/remoteport"
	"github.com/sarchlab/remoteport/storage"
)

// ErrUnsupportedRequest is returned for requests a slave cannot serve. It
// aborts the session.
var ErrUnsupportedRequest = errors.New("memslave: unsupported request")

// Responder answers the peer's requests.
type Responder interface {
	RespondRead(req protocol.Packet, data []byte, ts int64) error
	RespondWrite(req protocol.Packet, ts int64) error
}

// A Slave serves reads and writes on a storage.
//
// Addresses arriving from the peer have Base subtracted before they reach the
// storage. The reported completion time is the request timestamp plus Delay.
// Accesses outside the storage read as zeros and drop written data.
type Slave struct {
	name    string
	storage *storage.Storage
	base    uint64
	delay   int64
	log     zerolog.Logger
}

// Name returns the name of the slave.
func (s *Slave) Name() string {
	return s.name
}

// Storage returns the storage the slave serves.
func (s *Slave) Storage() *storage.Storage {
	return s.storage
}

// Ops returns the handlers to register the slave on a session.
func (s *Slave) Ops() remoteport.DeviceOps {
	return remoteport.DeviceOps{
		protocol.CmdRead: func(ch *remoteport.Channel, pkt protocol.Packet) error {
			return s.ServeRead(ch, pkt)
		},
		protocol.CmdWrite: func(ch *remoteport.Channel, pkt protocol.Packet) error {
			return s.ServeWrite(ch, pkt)
		},
	}
}

// Attach registers the slave as device dev of a session.
func (s *Slave) Attach(session *remoteport.Session, dev uint32) *remoteport.Channel {
	return session.RegisterDevice(dev, s.Ops())
}

// ServeRead answers a read request with data from the storage.
func (s *Slave) ServeRead(r Responder, pkt protocol.Packet) error {
	ba, err := s.requestMustBeServable(pkt, protocol.CmdRead)
	if err != nil {
		return err
	}

	window := ba.StreamWidth
	if !ba.IsStreaming() {
		window = ba.Length
	}

	chunk, err := s.storage.Read(ba.Address-s.base, uint64(window))
	if err != nil {
		s.log.Warn().Err(err).Uint64("address", ba.Address).Msg("read outside storage")
		chunk = make([]byte, window)
	}

	data := make([]byte, ba.Length)
	for offset := 0; offset < len(data); offset += len(chunk) {
		copy(data[offset:], chunk)
	}

	s.log.Trace().
		Uint64("address", ba.Address).
		Uint32("length", ba.Length).
		Msg("read served")

	return r.RespondRead(pkt, data, ba.Timestamp+s.delay)
}

// ServeWrite stores the data of a write request and acknowledges it. For
// streaming writes every stride lands on the same window, so the last stride
// wins.
func (s *Slave) ServeWrite(r Responder, pkt protocol.Packet) error {
	ba, err := s.requestMustBeServable(pkt, protocol.CmdWrite)
	if err != nil {
		return err
	}

	data := ba.Data
	if ba.IsStreaming() {
		data = data[len(data)-int(ba.StreamWidth):]
	}

	if err := s.storage.Write(ba.Address-s.base, data); err != nil {
		s.log.Warn().Err(err).Uint64("address", ba.Address).Msg("write outside storage")
	}

	s.log.Trace().
		Uint64("address", ba.Address).
		Uint32("length", ba.Length).
		Msg("write served")

	return r.RespondWrite(pkt, ba.Timestamp+s.delay)
}

func (s *Slave) requestMustBeServable(
	pkt protocol.Packet,
	cmd protocol.Command,
) (*protocol.BusAccess, error) {
	h := pkt.Header

	ba, ok := pkt.Payload.(*protocol.BusAccess)
	if !ok || h.Command != cmd || h.IsResponse() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRequest, h)
	}

	if ba.Address < s.base {
		return nil, fmt.Errorf("%w: address %#x below base %#x",
			ErrUnsupportedRequest, ba.Address, s.base)
	}

	if ba.IsStreaming() && ba.Length%ba.StreamWidth != 0 {
		return nil, fmt.Errorf("%w: %d bytes in strides of %d",
			ErrUnsupportedRequest, ba.Length, ba.StreamWidth)
	}

	return ba, nil
}
