package remoteport

import "errors"

var (
	// ErrProtocolMismatch is returned when the peer speaks an incompatible
	// protocol version or sends other packets before its hello.
	ErrProtocolMismatch = errors.New("remoteport: protocol mismatch")

	// ErrResponseCorrelation is returned when a response does not match the
	// outstanding request of its channel. The session is aborted.
	ErrResponseCorrelation = errors.New("remoteport: response correlation failure")

	// ErrTransport wraps failures of the underlying byte stream.
	ErrTransport = errors.New("remoteport: transport error")

	// ErrSessionClosed is returned by operations on a session that has been
	// closed or aborted. It wraps the cause of the abort.
	ErrSessionClosed = errors.New("remoteport: session closed")

	// ErrNotReady is returned by bus operations issued before the handshake
	// completed.
	ErrNotReady = errors.New("remoteport: handshake not completed")

	// ErrResponseTimeout is returned when the peer did not answer within the
	// configured response timeout. The session is aborted.
	ErrResponseTimeout = errors.New("remoteport: response timeout")

	// ErrNoSuchDevice is returned when a packet addresses a device that is
	// not registered.
	ErrNoSuchDevice = errors.New("remoteport: no such device")
)
