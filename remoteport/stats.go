package remoteport

import (
	"sync/atomic"

	"github.com/sarchlab/remoteport/clock"
)

type channelCounters struct {
	reads              atomic.Uint64
	writes             atomic.Uint64
	syncs              atomic.Uint64
	interruptsSent     atomic.Uint64
	interruptsReceived atomic.Uint64
	requestsServed     atomic.Uint64
}

// ChannelStats counts the traffic of one channel.
type ChannelStats struct {
	Device             uint32 `json:"device"`
	Name               string `json:"name"`
	Reads              uint64 `json:"reads"`
	Writes             uint64 `json:"writes"`
	Syncs              uint64 `json:"syncs"`
	InterruptsSent     uint64 `json:"interrupts_sent"`
	InterruptsReceived uint64 `json:"interrupts_received"`
	RequestsServed     uint64 `json:"requests_served"`
}

// Stats is a snapshot of a session.
type Stats struct {
	Name            string         `json:"name"`
	Ready           bool           `json:"ready"`
	Closed          bool           `json:"closed"`
	Err             string         `json:"err,omitempty"`
	Peer            PeerState      `json:"peer"`
	Clock           clock.State    `json:"clock"`
	PacketsSent     uint64         `json:"packets_sent"`
	PacketsReceived uint64         `json:"packets_received"`
	BytesSent       uint64         `json:"bytes_sent"`
	BytesReceived   uint64         `json:"bytes_received"`
	Channels        []ChannelStats `json:"channels"`
}

// Stats returns the counters of the channel.
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		Device:             c.dev,
		Name:               c.name,
		Reads:              c.counters.reads.Load(),
		Writes:             c.counters.writes.Load(),
		Syncs:              c.counters.syncs.Load(),
		InterruptsSent:     c.counters.interruptsSent.Load(),
		InterruptsReceived: c.counters.interruptsReceived.Load(),
		RequestsServed:     c.counters.requestsServed.Load(),
	}
}
