package protocol

import (
	"errors"
	"fmt"
	"io"
)

// ReadPacket reads one packet from r into d and decodes it.
//
// I/O errors are returned unchanged, except that a stream ending inside a
// packet yields io.ErrUnexpectedEOF. When the header is readable but the
// payload is not decodable, the bytes of the packet are consumed, d is left
// valid and the returned Packet carries the header so that callers can skip
// optional commands.
func ReadPacket(r io.Reader, d *DynPkt) (Packet, error) {
	d.Invalidate()
	d.EnsureCapacity(HeaderSize)

	if _, err := io.ReadFull(r, d.data[:HeaderSize]); err != nil {
		return Packet{}, err
	}

	h, err := DecodeHeader(d.data[:HeaderSize])
	if err != nil {
		return Packet{Header: h}, err
	}

	size := HeaderSize + int(h.Length)
	d.EnsureCapacity(size)

	if _, err := io.ReadFull(r, d.data[HeaderSize:size]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return Packet{Header: h}, err
	}

	d.n = size
	d.valid = true

	payload, err := DecodePayload(h, d.data[HeaderSize:size])
	if err != nil {
		return Packet{Header: h}, err
	}

	return Packet{Header: h, Payload: payload}, nil
}

// WritePacket writes an encoded packet to w in one call.
func WritePacket(w io.Writer, pkt []byte) error {
	n, err := w.Write(pkt)
	if err != nil {
		return err
	}

	if n != len(pkt) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(pkt))
	}

	return nil
}
