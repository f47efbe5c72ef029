package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// Dialer opens client side streams.
type Dialer struct {
	timeout       time.Duration
	waitForSocket bool
	retryInterval time.Duration
}

// MakeDialer creates a Dialer with no timeout that fails fast on missing
// sockets.
func MakeDialer() Dialer {
	return Dialer{retryInterval: 10 * time.Millisecond}
}

// WithTimeout bounds the time spent dialing. Zero means no bound.
func (d Dialer) WithTimeout(t time.Duration) Dialer {
	if t < 0 {
		panic("dial timeout must not be negative")
	}

	d.timeout = t

	return d
}

// WithWaitForSocket makes unix dials wait for the socket file to be created
// and for the listener to accept.
func (d Dialer) WithWaitForSocket(wait bool) Dialer {
	d.waitForSocket = wait
	return d
}

// Dial opens a stream to the endpoint.
func (d Dialer) Dial(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	switch ep.Scheme {
	case SchemeTCP:
		var nd net.Dialer
		return nd.DialContext(ctx, "tcp", ep.Address)
	case SchemeUnix:
		return d.dialUnix(ctx, ep.Address)
	case SchemeQUIC:
		return dialQUIC(ctx, ep.Address)
	case SchemeStdio:
		return Stdio()
	default:
		return nil, ErrInvalidEndpoint
	}
}

func (d Dialer) dialUnix(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	var nd net.Dialer

	if !d.waitForSocket {
		return nd.DialContext(ctx, "unix", path)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		err := waitForFile(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	for {
		conn, err := nd.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}

		// The file shows up at bind time, before the peer listens.
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryInterval):
		}
	}
}

// Dial opens a stream with the default Dialer.
func Dial(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	return MakeDialer().Dial(ctx, ep)
}
