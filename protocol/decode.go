package protocol

import (
	"encoding/binary"
	"fmt"
)

// Decode parses a complete packet, header included.
func Decode(b []byte) (Packet, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Packet{}, err
	}

	payload, err := DecodePayload(h, b[HeaderSize:])
	if err != nil {
		return Packet{Header: h}, err
	}

	return Packet{Header: h, Payload: payload}, nil
}

// DecodePayload parses the payload that follows h. b must hold exactly
// h.Length bytes.
func DecodePayload(h Header, b []byte) (Payload, error) {
	switch {
	case uint64(len(b)) < uint64(h.Length):
		return nil, fmt.Errorf("%w: %s has %d payload bytes",
			ErrTruncated, h, len(b))
	case uint64(len(b)) > uint64(h.Length):
		return nil, fmt.Errorf("%w: %s has %d payload bytes",
			ErrMalformedPacket, h, len(b))
	}

	switch h.Command {
	case CmdNop:
		if err := lengthMustBe(h, 0); err != nil {
			return nil, err
		}

		return &Nop{}, nil
	case CmdHello:
		return decodeHello(h, b)
	case CmdCfg:
		return decodeCfg(h, b)
	case CmdRead, CmdWrite:
		return decodeBusAccess(h, b)
	case CmdInterrupt:
		return decodeInterrupt(h, b)
	case CmdSync:
		return decodeSync(h, b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, uint32(h.Command))
	}
}

func lengthMustBe(h Header, size uint32) error {
	if h.Length != size {
		return fmt.Errorf("%w: %s, want len=%d", ErrMalformedPacket, h, size)
	}

	return nil
}

func decodeHello(h Header, b []byte) (Payload, error) {
	// Later minor versions may append to the hello payload.
	if h.Length < HelloSize {
		return nil, fmt.Errorf("%w: %s, want len>=%d",
			ErrMalformedPacket, h, HelloSize)
	}

	return &Hello{
		Version: Version{
			Major: binary.BigEndian.Uint16(b[0:2]),
			Minor: binary.BigEndian.Uint16(b[2:4]),
		},
	}, nil
}

func decodeCfg(h Header, b []byte) (Payload, error) {
	if err := lengthMustBe(h, CfgSize); err != nil {
		return nil, err
	}

	return &Cfg{
		Option: binary.BigEndian.Uint32(b[0:4]),
		IsSet:  b[4] != 0,
	}, nil
}

func decodeBusAccess(h Header, b []byte) (Payload, error) {
	if h.Length < BusAccessSize {
		return nil, fmt.Errorf("%w: %s, want len>=%d",
			ErrMalformedPacket, h, BusAccessSize)
	}

	ba := &BusAccess{
		Timestamp:   int64(binary.BigEndian.Uint64(b[0:8])),
		Attributes:  binary.BigEndian.Uint64(b[8:16]),
		Address:     binary.BigEndian.Uint64(b[16:24]),
		Length:      binary.BigEndian.Uint32(b[24:28]),
		Width:       binary.BigEndian.Uint32(b[28:32]),
		StreamWidth: binary.BigEndian.Uint32(b[32:36]),
	}

	// A read nobody could answer in one packet is refused up front.
	if ba.Length > MaxAccessLength {
		return nil, fmt.Errorf("%w: %s, access length %d exceeds %d",
			ErrMalformedPacket, h, ba.Length, MaxAccessLength)
	}

	want := uint64(BusAccessSize)
	if CarriesData(h) {
		want += uint64(ba.Length)
	}

	if uint64(h.Length) != want {
		return nil, fmt.Errorf("%w: %s, access length %d",
			ErrMalformedPacket, h, ba.Length)
	}

	if h.Length > BusAccessSize {
		ba.Data = b[BusAccessSize:h.Length]
	}

	return ba, nil
}

func decodeInterrupt(h Header, b []byte) (Payload, error) {
	if err := lengthMustBe(h, InterruptSize); err != nil {
		return nil, err
	}

	return &Interrupt{
		Timestamp: int64(binary.BigEndian.Uint64(b[0:8])),
		Vector:    binary.BigEndian.Uint64(b[8:16]),
		Line:      binary.BigEndian.Uint32(b[16:20]),
		Value:     b[20],
	}, nil
}

func decodeSync(h Header, b []byte) (Payload, error) {
	if err := lengthMustBe(h, SyncSize); err != nil {
		return nil, err
	}

	return &Sync{
		Timestamp: int64(binary.BigEndian.Uint64(b[0:8])),
	}, nil
}
