// Package transport opens the reliable byte streams that carry remote port
// packets.
//
// Endpoints are written as URLs: "tcp://host:port", "unix:///path/to/sock",
// "quic://host:port" and "stdio".
package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme names a kind of byte stream.
type Scheme string

// Supported schemes.
const (
	SchemeTCP   Scheme = "tcp"
	SchemeUnix  Scheme = "unix"
	SchemeQUIC  Scheme = "quic"
	SchemeStdio Scheme = "stdio"
)

// ErrInvalidEndpoint is returned for endpoints that cannot be parsed.
var ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

// Endpoint is a parsed transport address.
type Endpoint struct {
	Scheme  Scheme
	Address string
}

// Parse reads an endpoint URL.
func Parse(s string) (Endpoint, error) {
	if s == string(SchemeStdio) || s == "stdio://" {
		return Endpoint{Scheme: SchemeStdio}, nil
	}

	scheme, addr, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidEndpoint, s)
	}

	ep := Endpoint{Scheme: Scheme(scheme), Address: addr}

	switch ep.Scheme {
	case SchemeTCP, SchemeQUIC:
		if !strings.Contains(addr, ":") {
			return Endpoint{}, fmt.Errorf("%w: %q has no port", ErrInvalidEndpoint, s)
		}
	case SchemeUnix:
		if addr == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no path", ErrInvalidEndpoint, s)
		}
	default:
		return Endpoint{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, scheme)
	}

	return ep, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Endpoint {
	ep, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return ep
}

func (e Endpoint) String() string {
	if e.Scheme == SchemeStdio {
		return string(SchemeStdio)
	}

	return string(e.Scheme) + "://" + e.Address
}
