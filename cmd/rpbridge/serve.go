package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/remoteport/devices/gpio"
	"github.com/sarchlab/remoteport/devices/memslave"
	"github.com/sarchlab/remoteport/idgen"
	"github.com/sarchlab/remoteport/remoteport"
	"github.com/sarchlab/remoteport/storage"
	"github.com/sarchlab/remoteport/transport"
)

func newServeCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a memory and a GPIO bank to peers",
		Long: `Serve listens on the --listen endpoint and serves one peer at a time. ` +
			`The memory keeps its content across peers. Interrupts from the peer ` +
			`are logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, appFrom(cmd), once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "exit after the first peer disconnects")

	return cmd
}

func runServe(ctx context.Context, a *app, once bool) error {
	err := a.startObservers(ctx)
	if err != nil {
		return err
	}
	defer a.stopObservers()

	ep, err := a.cfg.ListenEndpoint()
	if err != nil {
		return err
	}

	ln, err := transport.Listen(ep)
	if err != nil {
		return err
	}
	defer ln.Close()

	a.log.Info().Str("endpoint", ep.String()).Str("addr", ln.Addr()).Msg("listening")

	mem := storage.New(a.cfg.MemSize)

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		s := a.newSession(idgen.NewName("peer"), conn)

		err = a.servePeer(ctx, s, mem)
		a.releaseSession(s)

		if err != nil {
			a.log.Warn().Err(err).Str("session", s.Name()).Msg("peer session ended")
		}

		a.printStats(s)

		if once || ctx.Err() != nil {
			return nil
		}
	}
}

// servePeer attaches the devices and blocks until the peer leaves.
func (a *app) servePeer(
	ctx context.Context,
	s *remoteport.Session,
	mem *storage.Storage,
) error {
	memslave.MakeBuilder().
		WithStorage(mem).
		WithBase(a.cfg.MemBase).
		WithDelay(a.cfg.MemDelay).
		WithLogger(a.log).
		Build("Memory").
		Attach(s, a.cfg.MemDevice)

	bank := gpio.MakeBuilder().
		WithNumLines(a.cfg.GPIOLines).
		WithLogger(a.log).
		Build("GPIO")
	bank.Attach(s, a.cfg.GPIODevice)

	for line := 0; line < bank.NumLines(); line++ {
		line := uint32(line)

		err := bank.OnLine(line, func(level uint8) {
			a.log.Info().
				Str("session", s.Name()).
				Uint32("line", line).
				Uint8("level", level).
				Msg("interrupt")
		})
		if err != nil {
			return err
		}
	}

	err := s.Handshake()
	if err != nil {
		return err
	}

	a.log.Info().Str("session", s.Name()).Msg("peer connected")

	select {
	case <-s.Done():
		err = s.Err()
		if errors.Is(err, remoteport.ErrTransport) {
			// A peer hanging up is the normal end of a session.
			return nil
		}

		return err
	case <-ctx.Done():
		return nil
	}
}

func (a *app) printStats(s *remoteport.Session) {
	data, err := json.Marshal(s.Stats())
	if err != nil {
		a.log.Warn().Err(err).Msg("encoding stats")
		return
	}

	fmt.Fprintln(a.out, string(data))
}
