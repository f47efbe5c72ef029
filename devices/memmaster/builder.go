package memmaster

// A Builder can build memory masters.
type Builder struct {
	bus  Bus
	maps []Map
}

// MakeBuilder creates a builder with no windows.
func MakeBuilder() Builder {
	return Builder{}
}

// WithBus sets the channel that accesses are issued on.
func (b Builder) WithBus(bus Bus) Builder {
	b.bus = bus
	return b
}

// WithMap adds a window of size bytes placed at offset on the peer.
func (b Builder) WithMap(size, offset uint64) Builder {
	maps := make([]Map, len(b.maps), len(b.maps)+1)
	copy(maps, b.maps)
	b.maps = append(maps, Map{Size: size, Offset: offset})

	return b
}

// Build creates a master.
func (b Builder) Build(name string) *Master {
	if b.bus == nil {
		panic("memory master requires a bus")
	}

	if len(b.maps) == 0 {
		panic("memory master requires at least one map")
	}

	return &Master{
		name: name,
		bus:  b.bus,
		maps: b.maps,
	}
}
