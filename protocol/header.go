package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the fixed packet header on the wire.
const HeaderSize = 20

// MaxPayloadLength bounds the payload a peer may declare. Larger values are
// treated as malformed before any allocation happens.
const MaxPayloadLength = 16 << 20

// MaxAccessLength is the longest bus access whose data still fits in one
// packet.
const MaxAccessLength = MaxPayloadLength - BusAccessSize

// Header is the fixed part of every packet.
type Header struct {
	Command Command
	// Length is the number of payload bytes following the header.
	Length uint32
	ID     uint32
	Flags  Flags
	Device uint32
}

// IsResponse reports whether the header belongs to a response.
func (h Header) IsResponse() bool {
	return h.Flags.IsResponse()
}

func (h Header) String() string {
	kind := "req"
	if h.IsResponse() {
		kind = "rsp"
	}

	return fmt.Sprintf("%s %s id=%d dev=%d len=%d",
		h.Command, kind, h.ID, h.Device, h.Length)
}

// EncodeHeader returns the wire form of a header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	putHeader(buf, h)

	return buf
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Command))
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	binary.BigEndian.PutUint32(buf[8:12], h.ID)
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.Flags))
	binary.BigEndian.PutUint32(buf[16:20], h.Device)
}

// DecodeHeader parses the first HeaderSize bytes of b. Any command value is
// accepted so that a reader can skip packets it does not understand; the
// payload decoder rejects unknown commands.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header has %d bytes", ErrTruncated, len(b))
	}

	h := Header{
		Command: Command(binary.BigEndian.Uint32(b[0:4])),
		Length:  binary.BigEndian.Uint32(b[4:8]),
		ID:      binary.BigEndian.Uint32(b[8:12]),
		Flags:   Flags(binary.BigEndian.Uint32(b[12:16])),
		Device:  binary.BigEndian.Uint32(b[16:20]),
	}

	if h.Length > MaxPayloadLength {
		return h, fmt.Errorf("%w: payload length %d exceeds %d",
			ErrMalformedPacket, h.Length, MaxPayloadLength)
	}

	return h, nil
}
