// Package memmaster lets a host issue memory accesses that the peer serves.
//
// A Master exposes one or more address windows. An access at an address
// inside a window is forwarded to the peer with the window offset added.
package memmaster

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for accesses that do not fit their window.
	ErrOutOfRange = errors.New("memmaster: access outside of window")

	// ErrNoSuchMap is returned when the window index is invalid.
	ErrNoSuchMap = errors.New("memmaster: no such map")
)

// Bus is the side of a channel a Master issues accesses on.
type Bus interface {
	Read(addr uint64, size int, attr uint64) (uint64, error)
	Write(addr uint64, size int, value uint64, attr uint64) error
}

// Map is an address window. Addresses in the window start at zero and reach
// the peer as Offset plus the address.
type Map struct {
	Size   uint64
	Offset uint64
}

// A Master forwards accesses in its windows to the peer.
type Master struct {
	name string
	bus  Bus
	maps []Map
}

// Name returns the name of the master.
func (m *Master) Name() string {
	return m.name
}

// NumMaps returns the number of windows.
func (m *Master) NumMaps() int {
	return len(m.maps)
}

// Map returns a window.
func (m *Master) Map(i int) Map {
	return m.maps[i]
}

// Read reads size bytes at addr in window mapIdx.
func (m *Master) Read(mapIdx int, addr uint64, size int) (uint64, error) {
	peerAddr, err := m.translate(mapIdx, addr, size)
	if err != nil {
		return 0, err
	}

	return m.bus.Read(peerAddr, size, 0)
}

// Write writes the low size bytes of value at addr in window mapIdx.
func (m *Master) Write(mapIdx int, addr uint64, size int, value uint64) error {
	peerAddr, err := m.translate(mapIdx, addr, size)
	if err != nil {
		return err
	}

	return m.bus.Write(peerAddr, size, value, 0)
}

func (m *Master) translate(mapIdx int, addr uint64, size int) (uint64, error) {
	if mapIdx < 0 || mapIdx >= len(m.maps) {
		return 0, fmt.Errorf("%w: %d of %d", ErrNoSuchMap, mapIdx, len(m.maps))
	}

	mm := m.maps[mapIdx]
	if size < 0 || addr > mm.Size || uint64(size) > mm.Size-addr {
		return 0, fmt.Errorf("%w: %#x+%d in map %d of %#x bytes",
			ErrOutOfRange, addr, size, mapIdx, mm.Size)
	}

	return mm.Offset + addr, nil
}
