// Package idgen produces packet identifiers and unique names.
package idgen

import (
	"sync/atomic"

	"github.com/rs/xid"
)

// ID identifies a packet on the wire.
type ID = uint32

// Generator produces packet identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is 1. The
// counter wraps around after 2^32 identifiers; with a single outstanding
// transaction per channel a wrapped value cannot collide.
func New() Generator {
	return &sequentialGenerator{}
}

// NewStartingAt returns a sequential generator whose first emitted ID is
// first.
func NewStartingAt(first ID) Generator {
	return &sequentialGenerator{next: first - 1}
}

type sequentialGenerator struct {
	next uint32
}

func (g *sequentialGenerator) Generate() ID {
	return atomic.AddUint32(&g.next, 1)
}

// NewName returns prefix followed by a globally unique suffix.
func NewName(prefix string) string {
	return prefix + "-" + xid.New().String()
}
