package remoteport

import "github.com/sarchlab/remoteport/protocol"

// CfgState holds configuration values of one side of a session.
type CfgState struct {
	Quantum uint64 `json:"quantum"`
}

// PeerState is what a session knows about its peer.
//
// Cfg packets only announce whether an option is in use, so PeerCfg stays at
// its zero value and the announcements are kept in PeerOptions.
type PeerState struct {
	Version     protocol.Version `json:"version"`
	ClockBase   int64            `json:"clock_base"`
	LocalCfg    CfgState         `json:"local_cfg"`
	PeerCfg     CfgState         `json:"peer_cfg"`
	PeerOptions map[uint32]bool  `json:"peer_options"`
}

func (p PeerState) clone() PeerState {
	c := p
	c.PeerOptions = make(map[uint32]bool, len(p.PeerOptions))

	for k, v := range p.PeerOptions {
		c.PeerOptions[k] = v
	}

	return c
}

// negotiate returns the version both sides understand.
func negotiate(local, peer protocol.Version) protocol.Version {
	v := local
	if peer.Minor < v.Minor {
		v.Minor = peer.Minor
	}

	return v
}
