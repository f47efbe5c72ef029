package remoteport

import (
	"errors"
	"fmt"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
)

func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := s.getBuffer()

	for {
		pkt, err := protocol.ReadPacket(s.conn, buf)
		if err != nil {
			if s.canSkip(pkt.Header, buf, err) {
				continue
			}

			s.abort(s.readError(err))

			return
		}

		s.packetsReceived.Add(1)
		s.bytesReceived.Add(uint64(protocol.HeaderSize) + uint64(pkt.Header.Length))

		if s.NumHooks() > 0 {
			s.InvokeHook(hooking.HookCtx{
				Domain: s,
				Pos:    HookPosPacketReceived,
				Item:   pkt.Header,
			})
		}

		buf, err = s.route(pkt, buf)
		if err != nil {
			s.abort(err)
			return
		}
	}
}

// canSkip reports whether a packet that failed to decode can be ignored.
// Only fully consumed packets of unknown commands flagged optional qualify.
func (s *Session) canSkip(h protocol.Header, buf *protocol.DynPkt, err error) bool {
	if !errors.Is(err, protocol.ErrUnknownCommand) || !buf.IsValid() {
		return false
	}

	if !h.Flags.IsOptional() {
		return false
	}

	s.log.Debug().Stringer("header", h).Msg("ignoring optional packet")

	return true
}

func (s *Session) readError(err error) error {
	if errors.Is(err, protocol.ErrMalformedPacket) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// route handles one decoded packet and returns the buffer to read the next
// packet into.
func (s *Session) route(
	pkt protocol.Packet,
	buf *protocol.DynPkt,
) (*protocol.DynPkt, error) {
	h := pkt.Header

	if !s.helloSeen {
		if h.Command != protocol.CmdHello {
			return nil, fmt.Errorf("%w: %s before hello", ErrProtocolMismatch, h)
		}

		return buf, s.handleHello(pkt.Payload.(*protocol.Hello))
	}

	switch {
	case h.Command == protocol.CmdHello:
		s.log.Warn().Stringer("header", h).Msg("ignoring repeated hello")
		return buf, nil
	case h.Command == protocol.CmdNop:
		return buf, nil
	case h.Command == protocol.CmdCfg:
		s.handleCfg(pkt.Payload.(*protocol.Cfg))
		return buf, nil
	case h.IsResponse():
		return s.deliverResponse(pkt, buf)
	default:
		s.inbound.push(inboundPacket{pkt: pkt, buf: buf})
		return s.getBuffer(), nil
	}
}

func (s *Session) handleHello(hello *protocol.Hello) error {
	if !s.version.CompatibleWith(hello.Version) {
		return fmt.Errorf("%w: local %s, peer %s",
			ErrProtocolMismatch, s.version, hello.Version)
	}

	s.mu.Lock()
	s.peer.Version = negotiate(s.version, hello.Version)
	s.mu.Unlock()

	s.helloSeen = true
	close(s.helloCh)

	s.log.Debug().Str("peer_version", hello.Version.String()).Msg("hello received")

	return nil
}

func (s *Session) handleCfg(cfg *protocol.Cfg) {
	s.mu.Lock()
	s.peer.PeerOptions[cfg.Option] = cfg.IsSet
	s.mu.Unlock()

	s.log.Debug().
		Uint32("option", cfg.Option).
		Bool("set", cfg.IsSet).
		Msg("peer cfg received")
}

func (s *Session) deliverResponse(
	pkt protocol.Packet,
	buf *protocol.DynPkt,
) (*protocol.DynPkt, error) {
	h := pkt.Header

	if h.Command == protocol.CmdInterrupt {
		s.log.Debug().Stringer("header", h).Msg("ignoring interrupt response")
		return buf, nil
	}

	c := s.lookupChannel(h.Device)
	if c == nil {
		return nil, fmt.Errorf("%w: %s: %w",
			ErrResponseCorrelation, h, ErrNoSuchDevice)
	}

	if err := c.deliver(pkt, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
