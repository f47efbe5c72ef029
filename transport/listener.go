package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("transport: listener closed")

// Listener accepts server side streams.
type Listener interface {
	// Accept blocks until a peer connects or the listener is closed. A
	// done ctx closes the listener.
	Accept(ctx context.Context) (io.ReadWriteCloser, error)

	// Addr returns the address peers can dial.
	Addr() string

	Close() error
}

// Listen opens a listener on the endpoint.
func Listen(ep Endpoint) (Listener, error) {
	switch ep.Scheme {
	case SchemeTCP, SchemeUnix:
		ln, err := net.Listen(string(ep.Scheme), ep.Address)
		if err != nil {
			return nil, err
		}

		return &netListener{ln: ln}, nil
	case SchemeQUIC:
		ln, err := listenQUIC(ep.Address)
		if err != nil {
			return nil, err
		}

		return ln, nil
	case SchemeStdio:
		return &stdioListener{closed: make(chan struct{})}, nil
	default:
		return nil, ErrInvalidEndpoint
	}
}

type netListener struct {
	ln net.Listener
}

func (l *netListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	type result struct {
		conn net.Conn
		err  error
	}

	ch := make(chan result, 1)

	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}

		return r.conn, r.err
	case <-ctx.Done():
		l.ln.Close()
		<-ch

		return nil, ctx.Err()
	}
}

func (l *netListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *netListener) Close() error {
	return l.ln.Close()
}

// stdioListener hands out the standard streams once.
type stdioListener struct {
	mu        sync.Mutex
	accepted  bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *stdioListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	l.mu.Lock()
	first := !l.accepted
	l.accepted = true
	l.mu.Unlock()

	if first {
		return Stdio()
	}

	select {
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *stdioListener) Addr() string {
	return string(SchemeStdio)
}

func (l *stdioListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}
