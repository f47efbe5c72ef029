package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// quicALPN is the application protocol negotiated on QUIC endpoints.
const quicALPN = "remote-port"

// quicStream carries the packets on the first bidirectional stream of a
// connection.
type quicStream struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func (s *quicStream) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

func (s *quicStream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

func (s *quicStream) Close() error {
	s.stream.CancelRead(0)

	return errors.Join(s.stream.Close(), s.conn.CloseWithError(0, "closed"))
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 5 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

func dialQUIC(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	tlsConf := &tls.Config{
		// Certificates are minted per listener, so there is nothing to pin.
		InsecureSkipVerify: true, //nolint:gosec
		NextProtos:         []string{quicALPN},
		MinVersion:         tls.VersionTLS13,
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}

	return &quicStream{conn: conn, stream: stream}, nil
}

type quicListener struct {
	ln *quic.Listener
}

func listenQUIC(addr string) (*quicListener, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
		MinVersion:   tls.VersionTLS13,
	}

	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}

	return &quicListener{ln: ln}, nil
}

// Accept returns once the peer opened its stream and sent the first bytes.
func (l *quicListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return nil, err
	}

	return &quicStream{conn: conn, stream: stream}, nil
}

func (l *quicListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *quicListener) Close() error {
	return l.ln.Close()
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: quicALPN},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
