package protocol

import "fmt"

// EncodePacket returns the wire form of p. Header.Length is derived from the
// payload; whatever the caller put there is ignored.
func EncodePacket(p Packet) ([]byte, error) {
	if err := payloadMustMatchHeader(p.Header, p.Payload); err != nil {
		return nil, err
	}

	size := p.Payload.wireSize()
	if size > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %s payload of %d bytes exceeds %d",
			ErrMalformedPacket, p.Header.Command, size, MaxPayloadLength)
	}

	h := p.Header
	h.Length = uint32(size)

	buf := make([]byte, HeaderSize+size)
	putHeader(buf, h)
	p.Payload.put(buf[HeaderSize:])

	return buf, nil
}

func mustEncode(p Packet) []byte {
	buf, err := EncodePacket(p)
	if err != nil {
		panic(err)
	}

	return buf
}

func payloadMustMatchHeader(h Header, payload Payload) error {
	ok := false

	switch pl := payload.(type) {
	case *Nop:
		ok = h.Command == CmdNop
	case *Hello:
		ok = h.Command == CmdHello
	case *Cfg:
		ok = h.Command == CmdCfg
	case *Interrupt:
		ok = h.Command == CmdInterrupt
	case *Sync:
		ok = h.Command == CmdSync
	case *BusAccess:
		if h.Command != CmdRead && h.Command != CmdWrite {
			break
		}

		return busAccessMustBeEncodable(h, pl)
	}

	if !ok {
		return fmt.Errorf("%w: payload %T does not fit command %s",
			ErrMalformedPacket, payload, h.Command)
	}

	return nil
}

func busAccessMustBeEncodable(h Header, ba *BusAccess) error {
	if err := ValidateAccess(ba); err != nil {
		return err
	}

	want := 0
	if CarriesData(h) {
		want = int(ba.Length)
	}

	if len(ba.Data) != want {
		return fmt.Errorf("%w: %s carries %d bytes, want %d",
			ErrDataLengthMismatch, h, len(ba.Data), want)
	}

	return nil
}

// CarriesData reports whether a bus access with the given header has
// trailing data: write requests and read responses do.
func CarriesData(h Header) bool {
	switch h.Command {
	case CmdWrite:
		return !h.IsResponse()
	case CmdRead:
		return h.IsResponse()
	default:
		return false
	}
}

// ValidateAccess checks that the access shape can be expressed on the wire.
//
// A non-zero Width must divide StreamWidth. StreamWidth must be positive for
// non-empty accesses, and an access longer than its stream width must cover
// a whole number of strides. Length is bounded by MaxAccessLength so that the
// data can be framed, including the data of the response to a read.
func ValidateAccess(ba *BusAccess) error {
	if ba.Length > MaxAccessLength {
		return fmt.Errorf("%w: length %d exceeds %d",
			ErrInvalidAccessWidth, ba.Length, MaxAccessLength)
	}

	if ba.Length == 0 && ba.StreamWidth == 0 {
		return nil
	}

	if ba.StreamWidth == 0 {
		return fmt.Errorf("%w: zero stream width for %d bytes",
			ErrInvalidAccessWidth, ba.Length)
	}

	if ba.Width != 0 && ba.StreamWidth%ba.Width != 0 {
		return fmt.Errorf("%w: stream width %d is not a multiple of width %d",
			ErrInvalidAccessWidth, ba.StreamWidth, ba.Width)
	}

	if ba.Length > ba.StreamWidth && ba.Length%ba.StreamWidth != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of stream width %d",
			ErrInvalidAccessWidth, ba.Length, ba.StreamWidth)
	}

	return nil
}

// EncodeHello encodes a hello packet announcing version.
func EncodeHello(id, dev uint32, version Version) []byte {
	return mustEncode(Packet{
		Header:  Header{Command: CmdHello, ID: id, Device: dev},
		Payload: &Hello{Version: version},
	})
}

// EncodeCfg encodes a cfg packet. Cfg packets are optional for the peer.
func EncodeCfg(id, dev uint32, opt uint32, set bool) []byte {
	return mustEncode(Packet{
		Header:  Header{Command: CmdCfg, ID: id, Device: dev, Flags: FlagOptional},
		Payload: &Cfg{Option: opt, IsSet: set},
	})
}

// EncodeRead encodes a read request. ba.Timestamp is the normalized clock of
// the requester and ba.Data must be empty.
func EncodeRead(id, dev uint32, ba *BusAccess) ([]byte, error) {
	return EncodePacket(Packet{
		Header:  Header{Command: CmdRead, ID: id, Device: dev},
		Payload: ba,
	})
}

// EncodeReadResp encodes a read response carrying ba.Data.
func EncodeReadResp(id, dev uint32, ba *BusAccess) ([]byte, error) {
	return EncodePacket(Packet{
		Header:  Header{Command: CmdRead, ID: id, Device: dev, Flags: FlagResponse},
		Payload: ba,
	})
}

// EncodeWrite encodes a write request carrying ba.Data.
func EncodeWrite(id, dev uint32, ba *BusAccess) ([]byte, error) {
	return EncodePacket(Packet{
		Header:  Header{Command: CmdWrite, ID: id, Device: dev},
		Payload: ba,
	})
}

// EncodeWriteResp encodes a write response. ba.Data must be empty.
func EncodeWriteResp(id, dev uint32, ba *BusAccess) ([]byte, error) {
	return EncodePacket(Packet{
		Header:  Header{Command: CmdWrite, ID: id, Device: dev, Flags: FlagResponse},
		Payload: ba,
	})
}

// EncodeInterrupt encodes an interrupt packet. No response is expected.
func EncodeInterrupt(id, dev uint32, irq *Interrupt) []byte {
	return mustEncode(Packet{
		Header:  Header{Command: CmdInterrupt, ID: id, Device: dev},
		Payload: irq,
	})
}

// EncodeSync encodes a sync request at the given normalized clock.
func EncodeSync(id, dev uint32, clk int64) []byte {
	return mustEncode(Packet{
		Header:  Header{Command: CmdSync, ID: id, Device: dev},
		Payload: &Sync{Timestamp: clk},
	})
}

// EncodeSyncResp encodes a sync response at the given normalized clock.
func EncodeSyncResp(id, dev uint32, clk int64) []byte {
	return mustEncode(Packet{
		Header:  Header{Command: CmdSync, ID: id, Device: dev, Flags: FlagResponse},
		Payload: &Sync{Timestamp: clk},
	})
}
