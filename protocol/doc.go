// Package protocol implements the Remote Port wire format.
//
// A Remote Port packet is a fixed 20-byte header followed by a command
// specific payload. Bus accesses may carry trailing data (write requests and
// read responses). All header and payload integers are big endian; trailing
// data is opaque to this package.
//
// The package has no I/O state. ReadPacket frames one packet from an
// io.Reader into a DynPkt, which callers recycle between packets.
package protocol
