package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPacket is returned when a packet is structurally
	// inconsistent. A session receiving one cannot resynchronize and must
	// close.
	ErrMalformedPacket = errors.New("protocol: malformed packet")

	// ErrInvalidAccessWidth is returned when a bus access shape cannot be
	// represented on the wire. Nothing is sent.
	ErrInvalidAccessWidth = errors.New("protocol: invalid access width")

	// ErrDataLengthMismatch is returned when the trailing data of a bus
	// access does not match its declared length.
	ErrDataLengthMismatch = errors.New("protocol: data length mismatch")

	// ErrUnknownCommand is a malformed packet whose command is outside the
	// known set.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrMalformedPacket)

	// ErrTruncated is a malformed packet with fewer bytes than declared.
	ErrTruncated = fmt.Errorf("%w: truncated", ErrMalformedPacket)
)
