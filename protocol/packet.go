package protocol

import "encoding/binary"

// Fixed payload sizes, excluding the header and trailing data.
const (
	HelloSize     = 4
	CfgSize       = 5
	BusAccessSize = 36
	InterruptSize = 21
	SyncSize      = 8
)

// A Payload is the command specific part of a packet. The concrete types are
// *Nop, *Hello, *Cfg, *BusAccess, *Interrupt and *Sync. The command itself
// lives in the header; *BusAccess serves both CmdRead and CmdWrite.
type Payload interface {
	wireSize() int
	put(buf []byte)
}

// A Packet is a decoded header and its payload.
type Packet struct {
	Header  Header
	Payload Payload
}

// Nop carries nothing.
type Nop struct{}

func (*Nop) wireSize() int { return 0 }

func (*Nop) put([]byte) {}

// Hello announces the protocol version of the sender.
type Hello struct {
	Version Version
}

func (*Hello) wireSize() int { return HelloSize }

func (p *Hello) put(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], p.Version.Major)
	binary.BigEndian.PutUint16(buf[2:4], p.Version.Minor)
}

// Cfg announces whether a configuration option is set on the sender side.
type Cfg struct {
	Option uint32
	IsSet  bool
}

func (*Cfg) wireSize() int { return CfgSize }

func (p *Cfg) put(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], p.Option)
	buf[4] = 0
	if p.IsSet {
		buf[4] = 1
	}
}

// BusAccess is the payload of read and write requests and responses.
//
// Width is the beat width in bytes, 0 lets the peer choose. StreamWidth is
// the stride after which the address repeats; it equals Length for normal
// incremental accesses. Data holds the trailing bytes of write requests and
// read responses and is nil otherwise. Decoded Data aliases the buffer it was
// decoded from.
type BusAccess struct {
	Timestamp   int64
	Attributes  uint64
	Address     uint64
	Length      uint32
	Width       uint32
	StreamWidth uint32
	Data        []byte
}

// IsStreaming reports whether the address wraps within the access.
func (p *BusAccess) IsStreaming() bool {
	return p.StreamWidth != 0 && p.StreamWidth < p.Length
}

func (p *BusAccess) wireSize() int { return BusAccessSize + len(p.Data) }

func (p *BusAccess) put(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Timestamp))
	binary.BigEndian.PutUint64(buf[8:16], p.Attributes)
	binary.BigEndian.PutUint64(buf[16:24], p.Address)
	binary.BigEndian.PutUint32(buf[24:28], p.Length)
	binary.BigEndian.PutUint32(buf[28:32], p.Width)
	binary.BigEndian.PutUint32(buf[32:36], p.StreamWidth)
	copy(buf[BusAccessSize:], p.Data)
}

// Interrupt changes the level of one interrupt line.
type Interrupt struct {
	Timestamp int64
	Vector    uint64
	Line      uint32
	Value     uint8
}

func (*Interrupt) wireSize() int { return InterruptSize }

func (p *Interrupt) put(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Timestamp))
	binary.BigEndian.PutUint64(buf[8:16], p.Vector)
	binary.BigEndian.PutUint32(buf[16:20], p.Line)
	buf[20] = p.Value
}

// Sync carries the timestamp of a synchronization point.
type Sync struct {
	Timestamp int64
}

func (*Sync) wireSize() int { return SyncSize }

func (p *Sync) put(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Timestamp))
}
