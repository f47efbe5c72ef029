package clock

import "sync"

// A Synchronizer tracks the local clock base, the latest clock reported by
// the peer, and the time since the last synchronization point.
type Synchronizer struct {
	mu         sync.Mutex
	timeTeller TimeTeller
	quantum    VTime

	base     VTime
	baseSet  bool
	peer     VTime
	lag      VTime
	lastSync VTime
	numSyncs uint64
}

// State is a snapshot of a Synchronizer.
type State struct {
	Base      VTime  `json:"base"`
	Local     VTime  `json:"local"`
	Peer      VTime  `json:"peer"`
	Lag       VTime  `json:"lag"`
	SinceSync VTime  `json:"since_sync"`
	Quantum   VTime  `json:"quantum"`
	NumSyncs  uint64 `json:"num_syncs"`
}

// NewSynchronizer creates a Synchronizer reading the host clock from
// timeTeller. A positive quantum bounds how long the session may run without
// a synchronization point; zero disables the bound.
func NewSynchronizer(timeTeller TimeTeller, quantum VTime) *Synchronizer {
	if timeTeller == nil {
		panic("time teller must not be nil")
	}

	if quantum < 0 {
		panic("quantum must not be negative")
	}

	return &Synchronizer{
		timeTeller: timeTeller,
		quantum:    quantum,
	}
}

// SetBase captures the current host time as the clock base. Only the first
// call has an effect; it reports whether the base was set by this call.
func (s *Synchronizer) SetBase() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseSet {
		return false
	}

	s.base = s.timeTeller.Now()
	s.baseSet = true
	s.lastSync = 0

	return true
}

// Base returns the clock base.
func (s *Synchronizer) Base() VTime {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.base
}

// Normalized returns the host time minus the clock base. This is the value
// stamped on outgoing requests.
func (s *Synchronizer) Normalized() VTime {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.normalized()
}

func (s *Synchronizer) normalized() VTime {
	return s.timeTeller.Now() - s.base
}

// Reconcile is called at a synchronization point. local is the normalized
// clock stamped on the request and peer is the timestamp the peer returned.
// The tracked peer clock never regresses, and the sync timer restarts.
func (s *Synchronizer) Reconcile(local, peer VTime) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peer > s.peer {
		s.peer = peer
	}

	s.lag = peer - local
	s.lastSync = s.normalized()
	s.numSyncs++
}

// PeerClock returns the latest clock reported by the peer.
func (s *Synchronizer) PeerClock() VTime {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peer
}

// Lag returns how far the peer was ahead of the request at the last
// synchronization point. Negative values mean the peer was behind.
func (s *Synchronizer) Lag() VTime {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lag
}

// RestartSyncTimer marks now as a synchronization point without touching the
// peer clock.
func (s *Synchronizer) RestartSyncTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync = s.normalized()
}

// SinceLastSync returns the normalized time elapsed since the last
// synchronization point.
func (s *Synchronizer) SinceLastSync() VTime {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.normalized() - s.lastSync
}

// Quantum returns the configured quantum.
func (s *Synchronizer) Quantum() VTime {
	return s.quantum
}

// SyncDue reports whether a full quantum passed without a synchronization
// point. It is always false when no quantum is configured.
func (s *Synchronizer) SyncDue() bool {
	if s.quantum == 0 {
		return false
	}

	return s.SinceLastSync() >= s.quantum
}

// Snapshot returns the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.normalized()

	return State{
		Base:      s.base,
		Local:     local,
		Peer:      s.peer,
		Lag:       s.lag,
		SinceSync: local - s.lastSync,
		Quantum:   s.quantum,
		NumSyncs:  s.numSyncs,
	}
}
