package remoteport

import (
	"fmt"

	"github.com/sarchlab/remoteport/protocol"
)

// MaxValueSize is the largest access that fits in a uint64 value.
const MaxValueSize = 8

// PackValue lays out the low size bytes of value in little-endian order.
func PackValue(value uint64, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(value >> (8 * i))
	}

	return data
}

// UnpackValue assembles a little-endian value from up to 8 bytes.
func UnpackValue(data []byte) uint64 {
	var value uint64
	for i := 0; i < len(data) && i < MaxValueSize; i++ {
		value |= uint64(data[i]) << (8 * i)
	}

	return value
}

func valueSizeMustBeValid(size int) error {
	if size < 1 || size > MaxValueSize {
		return fmt.Errorf("%w: value size %d", protocol.ErrInvalidAccessWidth, size)
	}

	return nil
}
