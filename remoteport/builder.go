package remoteport

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/remoteport/clock"
	"github.com/sarchlab/remoteport/idgen"
	"github.com/sarchlab/remoteport/protocol"
)

// A Builder can build sessions.
type Builder struct {
	log              zerolog.Logger
	timeTeller       clock.TimeTeller
	execCtx          ExecutionContext
	version          protocol.Version
	quantum          clock.VTime
	syncDevice       uint32
	syncInterval     time.Duration
	responseTimeout  time.Duration
	handshakeTimeout time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		log:          zerolog.Nop(),
		execCtx:      NopExecutionContext{},
		version:      protocol.CurrentVersion(),
		syncInterval: time.Millisecond,
	}
}

// WithLogger sets the logger of the session.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// WithTimeTeller sets the clock of the host. A wall clock is used if none is
// given.
func (b Builder) WithTimeTeller(tt clock.TimeTeller) Builder {
	b.timeTeller = tt
	return b
}

// WithExecutionContext sets the execution context that blocking operations
// release while they wait.
func (b Builder) WithExecutionContext(ctx ExecutionContext) Builder {
	b.execCtx = ctx
	return b
}

// WithVersion sets the protocol version announced in the hello packet.
func (b Builder) WithVersion(v protocol.Version) Builder {
	b.version = v
	return b
}

// WithQuantum sets the longest virtual time the session may run without a
// synchronization point. When no bus traffic happens within a quantum, a sync
// is issued on the sync device. Zero disables periodic syncs.
func (b Builder) WithQuantum(q clock.VTime) Builder {
	b.quantum = q
	return b
}

// WithSyncDevice sets the device id that periodic syncs are sent on.
func (b Builder) WithSyncDevice(dev uint32) Builder {
	b.syncDevice = dev
	return b
}

// WithSyncCheckInterval sets how often, in wall time, the session checks
// whether a periodic sync is due.
func (b Builder) WithSyncCheckInterval(d time.Duration) Builder {
	b.syncInterval = d
	return b
}

// WithResponseTimeout bounds the wait for a response. When it expires the
// operation fails with ErrResponseTimeout and the session is aborted. Zero,
// the default, waits forever.
func (b Builder) WithResponseTimeout(d time.Duration) Builder {
	b.responseTimeout = d
	return b
}

// WithHandshakeTimeout bounds the wait for the peer's hello. Zero waits
// forever.
func (b Builder) WithHandshakeTimeout(d time.Duration) Builder {
	b.handshakeTimeout = d
	return b
}

// Build creates a session over conn and starts reading from it.
func (b Builder) Build(name string, conn io.ReadWriteCloser) *Session {
	b.parametersMustBeValid(conn)

	tt := b.timeTeller
	if tt == nil {
		tt = clock.NewWallClock()
	}

	s := &Session{
		name:             name,
		conn:             conn,
		log:              b.log.With().Str("session", name).Logger(),
		sync:             clock.NewSynchronizer(tt, b.quantum),
		execCtx:          b.execCtx,
		version:          b.version,
		ids:              idgen.New(),
		quantum:          b.quantum,
		syncDevice:       b.syncDevice,
		syncInterval:     b.syncInterval,
		responseTimeout:  b.responseTimeout,
		handshakeTimeout: b.handshakeTimeout,
		channels:         make(map[uint32]*Channel),
		helloCh:          make(chan struct{}),
		done:             make(chan struct{}),
		dispatchDone:     make(chan struct{}),
		spare:            make(chan *protocol.DynPkt, numSpareBuffers),
		inbound:          newDispatchQueue(),
	}
	s.peer.LocalCfg.Quantum = uint64(b.quantum)
	s.peer.PeerOptions = make(map[uint32]bool)

	s.wg.Add(1)
	go s.readLoop()
	go s.dispatchLoop()

	return s
}

func (b Builder) parametersMustBeValid(conn io.ReadWriteCloser) {
	if conn == nil {
		panic("session requires a connection")
	}

	if b.execCtx == nil {
		panic("execution context must not be nil")
	}

	if b.quantum < 0 {
		panic("quantum must not be negative")
	}

	if b.quantum > 0 && b.syncInterval <= 0 {
		panic("sync check interval must be positive")
	}
}
