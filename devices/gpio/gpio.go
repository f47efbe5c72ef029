// Package gpio carries interrupt lines between the host and the peer.
//
// Level changes the host makes on a line are sent to the peer as interrupt
// packets. Interrupts from the peer drive the output registered for the line.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/remoteport/protocol"
	"github.com/sarchlab/remoteport/remoteport"
)

const (
	// DefaultNumLines is the number of lines of a GPIO unless configured.
	DefaultNumLines = 16

	// MaxLines is the largest number of lines a GPIO can have.
	MaxLines = 32
)

var (
	// ErrNoSuchLine is returned for lines beyond the configured count.
	ErrNoSuchLine = errors.New("gpio: no such line")

	// ErrNotAttached is returned when the GPIO has no channel to send on.
	ErrNotAttached = errors.New("gpio: not attached to a session")
)

// Sender is the side of a channel that level changes are sent on.
type Sender interface {
	SendInterrupt(line uint32, value uint8) error
}

// An OutputFunc is called with the new level of a line.
type OutputFunc func(level uint8)

// A GPIO is a bank of interrupt lines.
type GPIO struct {
	name     string
	numLines int
	log      zerolog.Logger

	mu      sync.Mutex
	sender  Sender
	outputs []OutputFunc
	in      []uint8
	out     []uint8
}

// Name returns the name of the GPIO.
func (g *GPIO) Name() string {
	return g.name
}

// NumLines returns the number of lines.
func (g *GPIO) NumLines() int {
	return g.numLines
}

// SetSender sets where level changes are sent.
func (g *GPIO) SetSender(s Sender) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sender = s
}

// Attach registers the GPIO as device dev of a session and sends level
// changes on its channel.
func (g *GPIO) Attach(session *remoteport.Session, dev uint32) *remoteport.Channel {
	ch := session.RegisterDevice(dev, remoteport.DeviceOps{
		protocol.CmdInterrupt: func(_ *remoteport.Channel, pkt protocol.Packet) error {
			return g.ServeInterrupt(pkt)
		},
	})
	g.SetSender(ch)

	return ch
}

// OnLine registers the output driven by interrupts from the peer on a line.
func (g *GPIO) OnLine(line uint32, f OutputFunc) error {
	if err := g.lineMustExist(line); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.outputs[line] = f

	return nil
}

// SetLevel changes the level the host drives on a line. The change is sent
// to the peer without waiting.
func (g *GPIO) SetLevel(line uint32, level uint8) error {
	if err := g.lineMustExist(line); err != nil {
		return err
	}

	g.mu.Lock()
	sender := g.sender
	g.out[line] = level
	g.mu.Unlock()

	if sender == nil {
		return ErrNotAttached
	}

	return sender.SendInterrupt(line, level)
}

// OutLevel returns the level the host last drove on a line.
func (g *GPIO) OutLevel(line uint32) uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.out[line]
}

// InLevel returns the level the peer last signalled on a line.
func (g *GPIO) InLevel(line uint32) uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.in[line]
}

// ServeInterrupt applies an interrupt packet from the peer. Interrupts on
// lines the GPIO does not have are dropped.
func (g *GPIO) ServeInterrupt(pkt protocol.Packet) error {
	irq, ok := pkt.Payload.(*protocol.Interrupt)
	if !ok {
		return fmt.Errorf("gpio: %s is not an interrupt", pkt.Header)
	}

	if err := g.lineMustExist(irq.Line); err != nil {
		g.log.Warn().
			Uint32("line", irq.Line).
			Stringer("kind", protocol.ClassifyLine(irq.Line)).
			Msg("interrupt on missing line")

		return nil
	}

	g.mu.Lock()
	g.in[irq.Line] = irq.Value
	output := g.outputs[irq.Line]
	g.mu.Unlock()

	g.log.Debug().
		Uint32("line", irq.Line).
		Uint8("level", irq.Value).
		Msg("interrupt received")

	if output != nil {
		output(irq.Value)
	}

	return nil
}

func (g *GPIO) lineMustExist(line uint32) error {
	if line >= uint32(g.numLines) {
		return fmt.Errorf("%w: %d of %d", ErrNoSuchLine, line, g.numLines)
	}

	return nil
}
