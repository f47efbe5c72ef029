package protocol

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Header", func() {
	It("should encode in network order", func() {
		buf := EncodeHeader(Header{
			Command: CmdWrite,
			Length:  38,
			ID:      7,
			Flags:   FlagResponse,
			Device:  2,
		})

		Expect(buf).To(Equal([]byte{
			0, 0, 0, 4,
			0, 0, 0, 38,
			0, 0, 0, 7,
			0, 0, 0, 2,
			0, 0, 0, 2,
		}))
	})

	It("should decode what it encodes", func() {
		h := Header{Command: CmdSync, Length: 8, ID: 1 << 30, Device: 9}

		decoded, err := DecodeHeader(EncodeHeader(h))

		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(Equal(h))
	})

	It("should reject a short header", func() {
		_, err := DecodeHeader(make([]byte, HeaderSize-1))

		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject an absurd payload length", func() {
		buf := EncodeHeader(Header{Command: CmdWrite})
		binary.BigEndian.PutUint32(buf[4:8], MaxPayloadLength+1)

		_, err := DecodeHeader(buf)

		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should accept unknown commands", func() {
		h, err := DecodeHeader(EncodeHeader(Header{Command: 42}))

		Expect(err).NotTo(HaveOccurred())
		Expect(h.Command.IsKnown()).To(BeFalse())
	})
})

var _ = Describe("Command", func() {
	DescribeTable("names",
		func(c Command, name string) {
			Expect(c.String()).To(Equal(name))
		},
		Entry("nop", CmdNop, "nop"),
		Entry("hello", CmdHello, "hello"),
		Entry("cfg", CmdCfg, "cfg"),
		Entry("read", CmdRead, "read"),
		Entry("write", CmdWrite, "write"),
		Entry("interrupt", CmdInterrupt, "interrupt"),
		Entry("sync", CmdSync, "sync"),
		Entry("past the end", CmdMax+1, "unknown"),
		Entry("far away", Command(0xffffffff), "unknown"),
	)

	It("should classify interrupt lines", func() {
		Expect(ClassifyLine(0)).To(Equal(LineIRQ))
		Expect(ClassifyLine(127)).To(Equal(LineIRQ))
		Expect(ClassifyLine(128)).To(Equal(LineHalt))
		Expect(ClassifyLine(160)).To(Equal(LineReset))
		Expect(ClassifyLine(191)).To(Equal(LineReset))
		Expect(ClassifyLine(WireMax)).To(Equal(LineInvalid))
	})

	It("should only require the major version to match", func() {
		Expect(CurrentVersion().CompatibleWith(Version{Major: 3, Minor: 0})).
			To(BeTrue())
		Expect(CurrentVersion().CompatibleWith(Version{Major: 2, Minor: 1})).
			To(BeFalse())
		Expect(CurrentVersion().String()).To(Equal("3.1"))
	})
})

var _ = Describe("Codec", func() {
	roundTrip := func(buf []byte) Packet {
		pkt, err := Decode(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(pkt.Header.Length).To(BeEquivalentTo(len(buf) - HeaderSize))

		return pkt
	}

	It("should round trip a hello", func() {
		pkt := roundTrip(EncodeHello(1, 0, CurrentVersion()))

		Expect(pkt.Header.Command).To(Equal(CmdHello))
		Expect(pkt.Payload).To(Equal(&Hello{Version: Version{3, 1}}))
	})

	It("should round trip a cfg", func() {
		pkt := roundTrip(EncodeCfg(2, 0, OptQuantum, true))

		Expect(pkt.Header.Flags.IsOptional()).To(BeTrue())
		Expect(pkt.Payload).To(Equal(&Cfg{Option: OptQuantum, IsSet: true}))
	})

	It("should round trip a read request", func() {
		ba := &BusAccess{
			Timestamp:   100,
			Address:     0x1000,
			Length:      4,
			StreamWidth: 4,
		}

		buf, err := EncodeRead(1, 2, ba)
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Header).To(Equal(Header{
			Command: CmdRead,
			Length:  BusAccessSize,
			ID:      1,
			Device:  2,
		}))
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should round trip a read response with data", func() {
		ba := &BusAccess{
			Timestamp:   150,
			Address:     0x1000,
			Length:      4,
			StreamWidth: 4,
			Data:        []byte{0xAA, 0xBB, 0xCC, 0xDD},
		}

		buf, err := EncodeReadResp(1, 2, ba)
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Header.IsResponse()).To(BeTrue())
		Expect(pkt.Header.Length).To(BeEquivalentTo(BusAccessSize + 4))
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should round trip a maximal write", func() {
		ba := &BusAccess{
			Timestamp:   -5,
			Attributes:  AttrEOP,
			Address:     0xffff_ffff_ffff_fff8,
			Length:      8,
			Width:       4,
			StreamWidth: 8,
			Data:        []byte{1, 2, 3, 4, 5, 6, 7, 8},
		}

		buf, err := EncodeWrite(9, 3, ba)
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should round trip a zero length write", func() {
		ba := &BusAccess{Address: 0x40}

		buf, err := EncodeWrite(9, 3, ba)
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Header.Length).To(BeEquivalentTo(BusAccessSize))
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should round trip a write response", func() {
		ba := &BusAccess{Timestamp: 7, Address: 0x2000, Length: 2, StreamWidth: 2}

		buf, err := EncodeWriteResp(4, 1, ba)
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Header.Length).To(BeEquivalentTo(BusAccessSize))
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should round trip an interrupt", func() {
		irq := &Interrupt{Timestamp: 12, Vector: 3, Line: 130, Value: 1}

		pkt := roundTrip(EncodeInterrupt(5, 6, irq))

		Expect(pkt.Header.Command).To(Equal(CmdInterrupt))
		Expect(pkt.Payload).To(Equal(irq))
	})

	It("should round trip sync requests and responses", func() {
		req := roundTrip(EncodeSync(1, 0, 500))
		rsp := roundTrip(EncodeSyncResp(1, 0, 480))

		Expect(req.Header.IsResponse()).To(BeFalse())
		Expect(req.Payload).To(Equal(&Sync{Timestamp: 500}))
		Expect(rsp.Header.IsResponse()).To(BeTrue())
		Expect(rsp.Payload).To(Equal(&Sync{Timestamp: 480}))
	})

	It("should round trip a nop", func() {
		buf, err := EncodePacket(Packet{
			Header:  Header{Command: CmdNop},
			Payload: &Nop{},
		})
		Expect(err).NotTo(HaveOccurred())

		pkt := roundTrip(buf)
		Expect(pkt.Payload).To(Equal(&Nop{}))
	})

	It("should reject a payload that does not fit the command", func() {
		_, err := EncodePacket(Packet{
			Header:  Header{Command: CmdRead},
			Payload: &Sync{},
		})

		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject data on a read request", func() {
		_, err := EncodeRead(1, 0, &BusAccess{
			Length:      1,
			StreamWidth: 1,
			Data:        []byte{1},
		})

		Expect(err).To(MatchError(ErrDataLengthMismatch))
	})

	It("should reject a write whose data does not match its length", func() {
		_, err := EncodeWrite(1, 0, &BusAccess{
			Length:      4,
			StreamWidth: 4,
			Data:        []byte{1, 2},
		})

		Expect(err).To(MatchError(ErrDataLengthMismatch))
	})

	DescribeTable("access width validation",
		func(length, width, streamWidth uint32, valid bool) {
			_, err := EncodeRead(1, 0, &BusAccess{
				Length:      length,
				Width:       width,
				StreamWidth: streamWidth,
			})

			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ErrInvalidAccessWidth))
			}
		},
		Entry("incremental", uint32(4), uint32(0), uint32(4), true),
		Entry("beats dividing the stride", uint32(16), uint32(4), uint32(8), true),
		Entry("beat not dividing the stride", uint32(8), uint32(3), uint32(8), false),
		Entry("zero stride", uint32(4), uint32(0), uint32(0), false),
		Entry("partial last stride", uint32(10), uint32(0), uint32(4), false),
		Entry("stride longer than the access", uint32(2), uint32(1), uint32(4), true),
		Entry("empty access", uint32(0), uint32(0), uint32(0), true),
		Entry("longest framable access",
			uint32(MaxAccessLength), uint32(0), uint32(MaxAccessLength), true),
		Entry("access too long to frame",
			uint32(MaxAccessLength+1), uint32(0), uint32(MaxAccessLength+1), false),
		Entry("access length near 4 GiB",
			^uint32(0), uint32(0), ^uint32(0), false),
	)

	It("should round trip a read response of the longest framable length", func() {
		ba := &BusAccess{
			Length:      MaxAccessLength,
			StreamWidth: MaxAccessLength,
			Data:        make([]byte, MaxAccessLength),
		}
		ba.Data[MaxAccessLength-1] = 0x5a

		buf, err := EncodeReadResp(1, 0, ba)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf).To(HaveLen(HeaderSize + MaxPayloadLength))

		pkt := roundTrip(buf)
		Expect(pkt.Payload).To(Equal(ba))
	})

	It("should refuse to encode a read response that cannot be framed", func() {
		ba := &BusAccess{
			Length:      MaxAccessLength + 1,
			StreamWidth: MaxAccessLength + 1,
			Data:        make([]byte, MaxAccessLength+1),
		}

		_, err := EncodeReadResp(1, 0, ba)

		Expect(err).To(MatchError(ErrInvalidAccessWidth))
	})
})

var _ = Describe("Decoding malformed packets", func() {
	It("should reject an unknown command", func() {
		buf := EncodeHeader(Header{Command: CmdMax + 1})

		pkt, err := Decode(buf)

		Expect(err).To(MatchError(ErrUnknownCommand))
		Expect(err).To(MatchError(ErrMalformedPacket))
		Expect(pkt.Header.Command).To(Equal(CmdMax + 1))
	})

	It("should reject a truncated payload", func() {
		buf := EncodeSync(1, 0, 10)

		_, err := Decode(buf[:len(buf)-1])

		Expect(err).To(MatchError(ErrTruncated))
	})

	It("should reject trailing garbage", func() {
		buf := append(EncodeSync(1, 0, 10), 0)

		_, err := Decode(buf)

		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject a sync with the wrong length", func() {
		buf := append(EncodeHeader(Header{Command: CmdSync, Length: 4}),
			0, 0, 0, 0)

		_, err := Decode(buf)

		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject a write whose length disagrees with its access", func() {
		buf, err := EncodeWrite(1, 0, &BusAccess{
			Length:      2,
			StreamWidth: 2,
			Data:        []byte{1, 2},
		})
		Expect(err).NotTo(HaveOccurred())

		binary.BigEndian.PutUint32(buf[HeaderSize+24:HeaderSize+28], 3)

		_, err = Decode(buf)
		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject a read request carrying data", func() {
		buf, err := EncodeWrite(1, 0, &BusAccess{
			Length:      1,
			StreamWidth: 1,
			Data:        []byte{1},
		})
		Expect(err).NotTo(HaveOccurred())

		binary.BigEndian.PutUint32(buf[0:4], uint32(CmdRead))

		_, err = Decode(buf)
		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should reject a read request whose answer cannot be framed", func() {
		buf, err := EncodeRead(1, 0, &BusAccess{Length: 4, StreamWidth: 4})
		Expect(err).NotTo(HaveOccurred())

		binary.BigEndian.PutUint32(buf[HeaderSize+24:], MaxAccessLength+1)
		binary.BigEndian.PutUint32(buf[HeaderSize+32:], MaxAccessLength+1)

		_, err = Decode(buf)
		Expect(err).To(MatchError(ErrMalformedPacket))
	})

	It("should tolerate a longer hello", func() {
		buf := EncodeHello(1, 0, CurrentVersion())
		buf = append(buf, 0xff, 0xff)
		binary.BigEndian.PutUint32(buf[4:8], HelloSize+2)

		pkt, err := Decode(buf)

		Expect(err).NotTo(HaveOccurred())
		Expect(pkt.Payload).To(Equal(&Hello{Version: CurrentVersion()}))
	})
})
