package tracing

import (
	"github.com/rs/zerolog"

	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
	"github.com/sarchlab/remoteport/remoteport"
)

// PacketLogger is a hook for logging packets as they cross a session's
// transport.
type PacketLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

// NewPacketLogger returns a PacketLogger that writes into log at the given
// level.
func NewPacketLogger(log zerolog.Logger, level zerolog.Level) *PacketLogger {
	return &PacketLogger{log: log, level: level}
}

// Func writes the header of the packet into the logger
func (h *PacketLogger) Func(ctx hooking.HookCtx) {
	hdr, ok := ctx.Item.(protocol.Header)
	if !ok {
		return
	}

	var dir string

	switch ctx.Pos {
	case remoteport.HookPosPacketSent:
		dir = "tx"
	case remoteport.HookPosPacketReceived:
		dir = "rx"
	default:
		return
	}

	e := h.log.WithLevel(h.level)
	if named, ok := ctx.Domain.(hooking.NamedHookable); ok {
		e = e.Str("session", named.Name())
	}

	e.Str("dir", dir).
		Str("cmd", hdr.Command.String()).
		Uint32("id", hdr.ID).
		Uint32("dev", hdr.Device).
		Uint32("len", hdr.Length).
		Bool("rsp", hdr.IsResponse()).
		Msg("packet")
}
