package protocol

import "fmt"

// Version of the protocol spoken by this package.
const (
	VersionMajor uint16 = 3
	VersionMinor uint16 = 1
)

// A Version is exchanged in the hello packet.
type Version struct {
	Major uint16
	Minor uint16
}

// CurrentVersion returns the version this package implements.
func CurrentVersion() Version {
	return Version{Major: VersionMajor, Minor: VersionMinor}
}

// CompatibleWith reports whether two peers can talk. Only the major version
// has to match.
func (v Version) CompatibleWith(other Version) bool {
	return v.Major == other.Major
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Command identifies the kind of a packet.
type Command uint32

// The commands defined by the protocol.
const (
	CmdNop       Command = 0
	CmdHello     Command = 1
	CmdCfg       Command = 2
	CmdRead      Command = 3
	CmdWrite     Command = 4
	CmdInterrupt Command = 5
	CmdSync      Command = 6

	CmdMax = CmdSync
)

var commandNames = [...]string{
	CmdNop:       "nop",
	CmdHello:     "hello",
	CmdCfg:       "cfg",
	CmdRead:      "read",
	CmdWrite:     "write",
	CmdInterrupt: "interrupt",
	CmdSync:      "sync",
}

// IsKnown reports whether the command is part of the protocol.
func (c Command) IsKnown() bool {
	return c <= CmdMax
}

// String returns the diagnostic name of the command, or "unknown".
func (c Command) String() string {
	if !c.IsKnown() {
		return "unknown"
	}

	return commandNames[c]
}

// Flags carried in the packet header.
type Flags uint32

const (
	// FlagOptional marks a packet that the peer may ignore if it does not
	// understand the command.
	FlagOptional Flags = 1 << 0

	// FlagResponse marks a response to a request with the same command and
	// id.
	FlagResponse Flags = 1 << 1
)

// IsOptional reports whether the optional bit is set.
func (f Flags) IsOptional() bool {
	return f&FlagOptional != 0
}

// IsResponse reports whether the response bit is set.
func (f Flags) IsResponse() bool {
	return f&FlagResponse != 0
}

// Config option identifiers carried by cfg packets.
const (
	OptQuantum uint32 = 0
)

// Bus access attributes.
const (
	// AttrEOP marks the last access of a burst.
	AttrEOP uint64 = 1 << 0
)

// Interrupt line ranges understood by peers.
const (
	WireIRQ0     uint32 = 0
	WireIRQMax   uint32 = 127
	WireHalt0    uint32 = 128
	WireHaltMax  uint32 = 159
	WireReset0   uint32 = 160
	WireResetMax uint32 = 191

	WireMax uint32 = 192
)

// LineKind classifies an interrupt line number.
type LineKind int

// The kinds of interrupt lines.
const (
	LineInvalid LineKind = iota
	LineIRQ
	LineHalt
	LineReset
)

// ClassifyLine tells which range an interrupt line belongs to.
func ClassifyLine(line uint32) LineKind {
	switch {
	case line <= WireIRQMax:
		return LineIRQ
	case line >= WireHalt0 && line <= WireHaltMax:
		return LineHalt
	case line >= WireReset0 && line <= WireResetMax:
		return LineReset
	default:
		return LineInvalid
	}
}

func (k LineKind) String() string {
	switch k {
	case LineIRQ:
		return "irq"
	case LineHalt:
		return "halt"
	case LineReset:
		return "reset"
	default:
		return "invalid"
	}
}
