package main

import (
	"context"
	"io"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"

	"github.com/sarchlab/remoteport/clock"
	"github.com/sarchlab/remoteport/config"
	"github.com/sarchlab/remoteport/datarecording"
	"github.com/sarchlab/remoteport/monitoring"
	"github.com/sarchlab/remoteport/remoteport"
	"github.com/sarchlab/remoteport/tracing"
	"github.com/sarchlab/remoteport/transport"
)

// app holds what every subcommand shares: the configuration, the logger, the
// host clock and the optional observers.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	out   io.Writer
	clock clock.TimeTeller

	recorder datarecording.DataRecorder
	tracer   *tracing.DBTracer
	latency  *tracing.AverageTimeTracer
	monitor  *monitoring.Monitor
}

func newApp(cfg config.Config, log zerolog.Logger, out io.Writer) *app {
	return &app{
		cfg:   cfg,
		log:   log,
		out:   out,
		clock: clock.NewWallClock(),
	}
}

// startObservers opens the trace backend and the monitor if configured.
func (a *app) startObservers(ctx context.Context) error {
	a.latency = tracing.NewAverageTimeTracer(a.clock,
		tracing.KindIs(tracing.KindTransaction))

	switch {
	case a.cfg.TraceDB != "":
		a.recorder = datarecording.New(a.cfg.TraceDB)
	case a.cfg.ClickHouseAddr != "":
		r, err := datarecording.NewClickHouse(ctx, datarecording.ClickHouseConfig{
			Addr:     a.cfg.ClickHouseAddr,
			Database: a.cfg.ClickHouseDB,
			Username: a.cfg.ClickHouseUser,
			Password: a.cfg.ClickHousePass,
		})
		if err != nil {
			return err
		}

		a.recorder = r
	}

	if a.recorder != nil {
		a.tracer = tracing.NewDBTracer(a.clock, a.recorder)
	}

	if a.cfg.MonitorEnabled() {
		a.monitor = monitoring.NewMonitor().
			WithLogger(a.log).
			WithPortNumber(a.cfg.MonitorPort)

		url, err := a.monitor.StartServer()
		if err != nil {
			return err
		}

		a.log.Info().Str("url", url).Msg("monitor started")

		if a.cfg.OpenMonitor {
			err := browser.OpenURL(url)
			if err != nil {
				a.log.Warn().Err(err).Msg("cannot open browser")
			}
		}
	}

	return nil
}

// stopObservers flushes the traces and stops the monitor.
func (a *app) stopObservers() {
	if a.tracer != nil {
		a.tracer.Terminate()
	}

	if a.recorder != nil {
		datarecording.RecordEndTime(a.recorder)

		err := a.recorder.Close()
		if err != nil {
			a.log.Warn().Err(err).Msg("closing trace backend")
		}
	}

	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := a.monitor.StopServer(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("stopping monitor")
		}
	}

	if a.latency != nil && a.latency.TotalCount() > 0 {
		a.log.Info().
			Uint64("transactions", a.latency.TotalCount()).
			Dur("avg", time.Duration(a.latency.AverageTime())).
			Dur("max", time.Duration(a.latency.MaxTime())).
			Msg("transaction latency")
	}
}

// newSession builds a session over conn and hooks the observers to it.
func (a *app) newSession(name string, conn io.ReadWriteCloser) *remoteport.Session {
	s := remoteport.MakeBuilder().
		WithLogger(a.log).
		WithTimeTeller(a.clock).
		WithQuantum(clock.VTime(a.cfg.Quantum)).
		WithSyncDevice(a.cfg.SyncDevice).
		WithResponseTimeout(a.cfg.ResponseTimeout).
		WithHandshakeTimeout(a.cfg.HandshakeTimeout).
		Build(name, conn)

	if a.log.GetLevel() <= zerolog.TraceLevel {
		s.AcceptHook(tracing.NewPacketLogger(a.log, zerolog.TraceLevel))
	}

	if a.latency != nil {
		tracing.CollectTrace(s, a.latency)
	}

	if a.tracer != nil {
		tracing.CollectTrace(s, a.tracer)
	}

	if a.monitor != nil {
		a.monitor.RegisterSession(s)
	}

	return s
}

// releaseSession closes a session and forgets it.
func (a *app) releaseSession(s *remoteport.Session) {
	s.Close()

	if a.monitor != nil {
		a.monitor.UnregisterSession(s)
	}
}

// connect dials the configured peer and completes the handshake.
func (a *app) connect(ctx context.Context, name string) (*remoteport.Session, error) {
	ep, err := a.cfg.ConnectEndpoint()
	if err != nil {
		return nil, err
	}

	conn, err := transport.MakeDialer().
		WithTimeout(a.cfg.DialTimeout).
		WithWaitForSocket(a.cfg.WaitForSocket).
		Dial(ctx, ep)
	if err != nil {
		return nil, err
	}

	s := a.newSession(name, conn)

	err = s.Handshake()
	if err != nil {
		a.releaseSession(s)
		return nil, err
	}

	a.log.Debug().
		Str("endpoint", ep.String()).
		Interface("peer", s.Peer()).
		Msg("connected")

	return s, nil
}
