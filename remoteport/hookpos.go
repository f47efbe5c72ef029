package remoteport

import (
	"github.com/sarchlab/remoteport/hooking"
	"github.com/sarchlab/remoteport/protocol"
)

var (
	// HookPosTransactionStart marks a request sent on a channel. The item is
	// a *Transaction.
	HookPosTransactionStart = &hooking.HookPos{Name: "Transaction Start"}

	// HookPosTransactionEnd marks the end of a transaction, successful or
	// not. The item is the *Transaction passed at the start.
	HookPosTransactionEnd = &hooking.HookPos{Name: "Transaction End"}

	// HookPosRequestStart marks an inbound request handed to a device. The
	// item is a *Transaction.
	HookPosRequestStart = &hooking.HookPos{Name: "Request Start"}

	// HookPosRequestEnd marks the device returning from an inbound request.
	HookPosRequestEnd = &hooking.HookPos{Name: "Request End"}

	// HookPosPacketSent marks a packet written to the transport. The item is
	// its protocol.Header.
	HookPosPacketSent = &hooking.HookPos{Name: "Packet Sent"}

	// HookPosPacketReceived marks a packet read from the transport.
	HookPosPacketReceived = &hooking.HookPos{Name: "Packet Received"}
)

// Transaction describes one request and its response as seen by hooks.
type Transaction struct {
	ID         string
	Channel    string
	Device     uint32
	PacketID   uint32
	Command    protocol.Command
	Inbound    bool
	Address    uint64
	Length     uint32
	LocalClock int64
	PeerClock  int64
	Err        error
}
