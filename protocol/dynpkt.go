package protocol

const minDynPktCapacity = 64

// A DynPkt is a growable buffer that holds one packet and its trailing data.
//
// A DynPkt is empty until storage is first needed. Once it holds a decoded
// packet it is valid; consumers invalidate it when they are done so that a
// stale read can be caught. Storage grows and is never shrunk until Free.
type DynPkt struct {
	data  []byte
	n     int
	valid bool
}

// EnsureCapacity grows the storage to at least size bytes, keeping the bytes
// already held. Growth is geometric.
func (d *DynPkt) EnsureCapacity(size int) {
	if size <= len(d.data) {
		return
	}

	newSize := 2 * len(d.data)
	if newSize < minDynPktCapacity {
		newSize = minDynPktCapacity
	}

	for newSize < size {
		newSize *= 2
	}

	data := make([]byte, newSize)
	copy(data, d.data)
	d.data = data
}

// Capacity returns the number of bytes the storage can hold.
func (d *DynPkt) Capacity() int {
	return len(d.data)
}

// IsEmpty reports whether no storage has been allocated.
func (d *DynPkt) IsEmpty() bool {
	return d.data == nil
}

// IsValid reports whether the buffer holds a packet that has not been
// consumed yet.
func (d *DynPkt) IsValid() bool {
	return d.valid
}

// Invalidate marks the content as consumed. The storage is kept.
func (d *DynPkt) Invalidate() {
	d.valid = false
	d.n = 0
}

// Swap exchanges the storage and state of two buffers.
func (d *DynPkt) Swap(other *DynPkt) {
	*d, *other = *other, *d
}

// Free releases the storage.
func (d *DynPkt) Free() {
	*d = DynPkt{}
}

// Bytes returns the packet held by the buffer, header included. It returns
// nil when the buffer is not valid.
func (d *DynPkt) Bytes() []byte {
	if !d.valid {
		return nil
	}

	return d.data[:d.n]
}

// Set copies a complete wire packet into the buffer and marks it valid.
func (d *DynPkt) Set(pkt []byte) {
	d.EnsureCapacity(len(pkt))
	copy(d.data, pkt)
	d.n = len(pkt)
	d.valid = true
}

// Decode parses the packet held by the buffer. Bus access data in the result
// aliases the buffer storage.
func (d *DynPkt) Decode() (Packet, error) {
	if !d.valid {
		panic("decoding an invalid packet buffer")
	}

	return Decode(d.data[:d.n])
}
