package transport

import (
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// ErrTerminal is returned when stdio is requested on an interactive terminal.
var ErrTerminal = errors.New("transport: stdio is a terminal")

// stdio joins an input and an output file into one stream.
type stdio struct {
	in, out   *os.File
	closeOnce sync.Once
	closeErr  error
}

// Stdio returns the process standard input and output as one stream. It
// refuses to run on a terminal since the packets are binary.
func Stdio() (io.ReadWriteCloser, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) || term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, ErrTerminal
	}

	return NewPipe(os.Stdin, os.Stdout), nil
}

// NewPipe joins two files into a stream. Closing the stream closes both.
func NewPipe(in, out *os.File) io.ReadWriteCloser {
	return &stdio{in: in, out: out}
}

func (s *stdio) Read(p []byte) (int, error) {
	return s.in.Read(p)
}

func (s *stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *stdio) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.in.Close(), s.out.Close())
	})

	return s.closeErr
}
