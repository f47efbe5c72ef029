package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/remoteport/devices/gpio"
	"github.com/sarchlab/remoteport/devices/memmaster"
	"github.com/sarchlab/remoteport/remoteport"
)

// withPeer runs f on a fresh session to the configured peer.
func withPeer(
	cmd *cobra.Command,
	f func(ctx context.Context, a *app, s *remoteport.Session) error,
) error {
	a := appFrom(cmd)
	ctx := cmd.Context()

	err := a.startObservers(ctx)
	if err != nil {
		return err
	}
	defer a.stopObservers()

	s, err := a.connect(ctx, "Bridge")
	if err != nil {
		return err
	}
	defer a.releaseSession(s)

	return f(ctx, a, s)
}

func (a *app) master(s *remoteport.Session) *memmaster.Master {
	return memmaster.MakeBuilder().
		WithBus(s.Channel(a.cfg.MemDevice)).
		WithMap(a.cfg.MemSize, a.cfg.MemBase).
		Build("Master")
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}

	return v, nil
}

func newReadCmd() *cobra.Command {
	var (
		size   int
		length int
	)

	cmd := &cobra.Command{
		Use:   "read ADDR",
		Short: "Read a value or a block from the peer memory",
		Long: `Read sends one read request. ADDR is relative to --mem-base. ` +
			`With --length the bytes are printed as hex, otherwise a --size ` +
			`byte little-endian value is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint(args[0], 64)
			if err != nil {
				return err
			}

			return withPeer(cmd, func(_ context.Context, a *app, s *remoteport.Session) error {
				if length > 0 {
					data, err := s.Channel(a.cfg.MemDevice).
						ReadData(a.cfg.MemBase+addr, length, 0)
					if err != nil {
						return err
					}

					fmt.Fprintln(a.out, hex.EncodeToString(data))

					return nil
				}

				v, err := a.master(s).Read(0, addr, size)
				if err != nil {
					return err
				}

				fmt.Fprintf(a.out, "0x%x\n", v)

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&size, "size", 4, "access size in bytes, 1 to 8")
	cmd.Flags().IntVar(&length, "length", 0, "read a block of this many bytes")

	return cmd
}

func newWriteCmd() *cobra.Command {
	var (
		size int
		data string
	)

	cmd := &cobra.Command{
		Use:   "write ADDR [VALUE]",
		Short: "Write a value or a block into the peer memory",
		Long: `Write sends one write request. ADDR is relative to --mem-base. ` +
			`Either VALUE is written as a --size byte little-endian value or ` +
			`--data gives the bytes as hex.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint(args[0], 64)
			if err != nil {
				return err
			}

			var block []byte

			switch {
			case data != "" && len(args) == 1:
				block, err = hex.DecodeString(data)
				if err != nil {
					return fmt.Errorf("invalid data: %w", err)
				}
			case data == "" && len(args) == 2:
			default:
				return fmt.Errorf("give either VALUE or --data")
			}

			var value uint64
			if block == nil {
				value, err = parseUint(args[1], 64)
				if err != nil {
					return err
				}
			}

			return withPeer(cmd, func(_ context.Context, a *app, s *remoteport.Session) error {
				if block != nil {
					return s.Channel(a.cfg.MemDevice).
						WriteData(a.cfg.MemBase+addr, block, 0)
				}

				return a.master(s).Write(0, addr, size, value)
			})
		},
	}

	cmd.Flags().IntVar(&size, "size", 4, "access size in bytes, 1 to 8")
	cmd.Flags().StringVar(&data, "data", "", "bytes to write, as hex")

	return cmd
}

func newInterruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt LINE LEVEL",
		Short: "Drive a GPIO line of the peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := parseUint(args[0], 32)
			if err != nil {
				return err
			}

			level, err := parseUint(args[1], 8)
			if err != nil {
				return err
			}

			return withPeer(cmd, func(_ context.Context, a *app, s *remoteport.Session) error {
				bank := gpio.MakeBuilder().
					WithNumLines(a.cfg.GPIOLines).
					WithLogger(a.log).
					Build("GPIO")
				bank.Attach(s, a.cfg.GPIODevice)

				err := bank.SetLevel(uint32(line), uint8(level))
				if err != nil {
					return err
				}

				// Interrupts are not acknowledged. A sync makes sure the
				// peer has read it before the session is closed.
				return s.Channel(a.cfg.GPIODevice).Sync()
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Exchange clocks with the peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPeer(cmd, func(_ context.Context, a *app, s *remoteport.Session) error {
				err := s.Channel(a.cfg.SyncDevice).Sync()
				if err != nil {
					return err
				}

				st := s.Synchronizer().Snapshot()
				fmt.Fprintf(a.out, "local=%d peer=%d lag=%d\n", st.Local, st.Peer, st.Lag)

				return nil
			})
		},
	}
}
