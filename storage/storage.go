// Package storage keeps the bytes behind a memory device.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultUnitSize is the size of the units storage is allocated in.
const DefaultUnitSize = 4096

// ErrOutOfRange is returned for accesses beyond the capacity.
var ErrOutOfRange = errors.New("storage: access beyond capacity")

// A Storage is a sparse byte array.
//
// Storage is managed in units, similar to pages. Units that were never
// written take no memory and read as zeros. A Storage is safe for concurrent
// use.
type Storage struct {
	mu       sync.RWMutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// New creates a storage with the given capacity in bytes.
func New(capacity uint64) *Storage {
	return NewWithUnitSize(capacity, DefaultUnitSize)
}

// NewWithUnitSize creates a storage allocated in units of unitSize bytes.
func NewWithUnitSize(capacity, unitSize uint64) *Storage {
	if unitSize == 0 {
		panic("unit size must be positive")
	}

	return &Storage{
		unitSize: unitSize,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the size of the storage in bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// NumUnits returns how many units have been allocated.
func (s *Storage) NumUnits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

func (s *Storage) rangeMustFit(address, length uint64) error {
	if address > s.capacity || length > s.capacity-address {
		return fmt.Errorf("%w: [%#x, +%d) of %d bytes",
			ErrOutOfRange, address, length, s.capacity)
	}

	return nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return baseAddr, inUnitAddr
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address, length uint64) ([]byte, error) {
	if err := s.rangeMustFit(address, length); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]byte, length)
	s.walk(address, length, func(unit []byte, inUnit, offset, n uint64) {
		if unit != nil {
			copy(res[offset:offset+n], unit[inUnit:inUnit+n])
		}
	}, false)

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := s.rangeMustFit(address, length); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.walk(address, length, func(unit []byte, inUnit, offset, n uint64) {
		copy(unit[inUnit:inUnit+n], data[offset:offset+n])
	}, true)

	return nil
}

// walk visits the units covering [address, address+length). Missing units
// are passed as nil unless create is set.
func (s *Storage) walk(
	address, length uint64,
	visit func(unit []byte, inUnit, offset, n uint64),
	create bool,
) {
	offset := uint64(0)

	for offset < length {
		baseAddr, inUnit := s.parseAddress(address + offset)

		n := s.unitSize - inUnit
		if left := length - offset; left < n {
			n = left
		}

		unit, ok := s.data[baseAddr]
		if !ok && create {
			unit = make([]byte, s.unitSize)
			s.data[baseAddr] = unit
		}

		visit(unit, inUnit, offset, n)
		offset += n
	}
}
