package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func exchange(ln Listener, ep Endpoint, d Dialer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan io.ReadWriteCloser, 1)
	go func() {
		defer GinkgoRecover()

		conn, err := ln.Accept(ctx)
		Expect(err).NotTo(HaveOccurred())
		accepted <- conn
	}()

	client, err := d.Dial(ctx, ep)
	Expect(err).NotTo(HaveOccurred())
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	Expect(err).NotTo(HaveOccurred())

	var server io.ReadWriteCloser
	Eventually(accepted, 5*time.Second).Should(Receive(&server))
	defer server.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	Expect(err).NotTo(HaveOccurred())
	Expect(string(buf)).To(Equal("ping"))

	_, err = server.Write([]byte("pong"))
	Expect(err).NotTo(HaveOccurred())

	_, err = io.ReadFull(client, buf)
	Expect(err).NotTo(HaveOccurred())
	Expect(string(buf)).To(Equal("pong"))
}

var _ = Describe("Streams", func() {
	It("should carry bytes over tcp", func() {
		ln, err := Listen(MustParse("tcp://127.0.0.1:0"))
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		exchange(ln, MustParse("tcp://"+ln.Addr()), MakeDialer())
	})

	It("should carry bytes over unix sockets", func() {
		path := filepath.Join(GinkgoT().TempDir(), "rp.sock")

		ln, err := Listen(MustParse("unix://" + path))
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		exchange(ln, MustParse("unix://"+path), MakeDialer())
	})

	It("should carry bytes over quic", func() {
		ln, err := Listen(MustParse("quic://127.0.0.1:0"))
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		exchange(ln, MustParse("quic://"+ln.Addr()), MakeDialer())
	})

	It("should wait for a unix socket to appear", func() {
		path := filepath.Join(GinkgoT().TempDir(), "late.sock")
		ep := MustParse("unix://" + path)

		lnCh := make(chan Listener, 1)
		go func() {
			defer GinkgoRecover()

			time.Sleep(50 * time.Millisecond)

			ln, err := Listen(ep)
			Expect(err).NotTo(HaveOccurred())
			lnCh <- ln
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := MakeDialer().WithWaitForSocket(true).Dial(ctx, ep)
		Expect(err).NotTo(HaveOccurred())
		conn.Close()

		ln := <-lnCh
		ln.Close()
	})

	It("should fail fast on a missing unix socket", func() {
		path := filepath.Join(GinkgoT().TempDir(), "missing.sock")

		_, err := Dial(context.Background(), MustParse("unix://"+path))

		Expect(err).To(HaveOccurred())
	})

	It("should give up waiting after the timeout", func() {
		path := filepath.Join(GinkgoT().TempDir(), "never.sock")

		_, err := MakeDialer().
			WithWaitForSocket(true).
			WithTimeout(50*time.Millisecond).
			Dial(context.Background(), MustParse("unix://"+path))

		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should stop accepting when the context is done", func() {
		ln, err := Listen(MustParse("tcp://127.0.0.1:0"))
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = ln.Accept(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should report closed listeners", func() {
		ln, err := Listen(MustParse("tcp://127.0.0.1:0"))
		Expect(err).NotTo(HaveOccurred())

		errCh := make(chan error, 1)
		go func() {
			_, err := ln.Accept(context.Background())
			errCh <- err
		}()

		time.Sleep(10 * time.Millisecond)
		ln.Close()

		Eventually(errCh).Should(Receive(MatchError(ErrListenerClosed)))
	})

	It("should panic on a negative timeout", func() {
		Expect(func() { MakeDialer().WithTimeout(-1) }).To(Panic())
	})
})

var _ = Describe("Pipe", func() {
	It("should join two files", func() {
		inR, inW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())
		outR, outW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())

		p := NewPipe(inR, outW)

		go func() {
			inW.Write([]byte("abc"))
			inW.Close()
		}()

		buf := make([]byte, 3)
		_, err = io.ReadFull(p, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf)).To(Equal("abc"))

		_, err = p.Write([]byte("xyz"))
		Expect(err).NotTo(HaveOccurred())

		_, err = io.ReadFull(outR, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf)).To(Equal("xyz"))

		Expect(p.Close()).To(Succeed())
		Expect(p.Close()).To(Succeed())
		outR.Close()
	})
})
