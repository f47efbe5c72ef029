package memslave

import (
	"github.com/rs/zerolog"
	"github.com/sarchlab/remoteport/storage"
)

// A Builder can build memory slaves.
type Builder struct {
	storage *storage.Storage
	base    uint64
	delay   int64
	log     zerolog.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		log: zerolog.Nop(),
	}
}

// WithStorage sets the storage to serve.
func (b Builder) WithStorage(s *storage.Storage) Builder {
	b.storage = s
	return b
}

// WithBase sets the peer address that maps to the first storage byte.
func (b Builder) WithBase(base uint64) Builder {
	b.base = base
	return b
}

// WithDelay sets the latency reported for every access.
func (b Builder) WithDelay(delay int64) Builder {
	b.delay = delay
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates a slave.
func (b Builder) Build(name string) *Slave {
	if b.storage == nil {
		panic("memory slave requires a storage")
	}

	if b.delay < 0 {
		panic("delay must not be negative")
	}

	return &Slave{
		name:    name,
		storage: b.storage,
		base:    b.base,
		delay:   b.delay,
		log:     b.log.With().Str("device", name).Logger(),
	}
}
