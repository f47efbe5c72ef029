package remoteport

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Values", func() {
	It("should pack little-endian", func() {
		Expect(PackValue(0x1234, 2)).To(Equal([]byte{0x34, 0x12}))
		Expect(PackValue(0x0102030405060708, 8)).To(Equal(
			[]byte{8, 7, 6, 5, 4, 3, 2, 1}))
		Expect(PackValue(0xffff, 1)).To(Equal([]byte{0xff}))
	})

	It("should unpack little-endian", func() {
		Expect(UnpackValue([]byte{0xAA, 0xBB, 0xCC, 0xDD})).
			To(Equal(uint64(0xDDCCBBAA)))
		Expect(UnpackValue(nil)).To(Equal(uint64(0)))
	})

	It("should only use the first 8 bytes", func() {
		data := []byte{1, 0, 0, 0, 0, 0, 0, 0, 9}

		Expect(UnpackValue(data)).To(Equal(uint64(1)))
	})
})
