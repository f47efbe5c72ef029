package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/remoteport/config"
	"github.com/sarchlab/remoteport/logging"
)

type appKey struct{}

// rootFlags mirrors the config fields that can be set on the command line.
type rootFlags struct {
	configFile string
	envFiles   []string
	logLevel   string
	logJSON    bool

	listen           string
	connect          string
	quantum          uint64
	responseTimeout  time.Duration
	handshakeTimeout time.Duration
	dialTimeout      time.Duration
	waitForSocket    bool
	traceDB          string
	clickHouseAddr   string
	monitorPort      int
	openMonitor      bool
	memSize          uint64
	memBase          uint64
	memDelay         int64
	memDevice        uint32
	gpioDevice       uint32
	gpioLines        int
	syncDevice       uint32
}

func (f *rootFlags) register(fs *pflag.FlagSet) {
	d := config.Default()

	fs.StringVar(&f.configFile, "config", "", "TOML configuration file")
	fs.StringSliceVar(&f.envFiles, "env-file", nil, ".env files to load")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn, error or disabled")
	fs.BoolVar(&f.logJSON, "log-json", false, "log JSON lines instead of console text")

	fs.StringVar(&f.listen, "listen", d.Listen, "endpoint to serve on (tcp://, unix://, quic://, stdio)")
	fs.StringVar(&f.connect, "connect", d.Connect, "endpoint of the peer")
	fs.Uint64Var(&f.quantum, "quantum", d.Quantum, "longest time in ns without a sync, 0 disables periodic syncs")
	fs.DurationVar(&f.responseTimeout, "response-timeout", 0, "bound on waiting for a response, 0 waits forever")
	fs.DurationVar(&f.handshakeTimeout, "handshake-timeout", 0, "bound on waiting for the peer hello")
	fs.DurationVar(&f.dialTimeout, "dial-timeout", 0, "bound on connecting to the peer")
	fs.BoolVar(&f.waitForSocket, "wait-for-socket", false, "wait for a unix socket to be created")
	fs.StringVar(&f.traceDB, "trace-db", "", "record transactions into this SQLite file")
	fs.StringVar(&f.clickHouseAddr, "clickhouse", "", "record transactions into this ClickHouse server")
	fs.IntVar(&f.monitorPort, "monitor-port", 0, "serve the HTTP monitor on this port")
	fs.BoolVar(&f.openMonitor, "open-monitor", false, "open the monitor in a browser")
	fs.Uint64Var(&f.memSize, "mem-size", d.MemSize, "bytes of memory served or mapped")
	fs.Uint64Var(&f.memBase, "mem-base", d.MemBase, "bus address of the memory")
	fs.Int64Var(&f.memDelay, "mem-delay", d.MemDelay, "ns added to the timestamp of memory responses")
	fs.Uint32Var(&f.memDevice, "mem-device", d.MemDevice, "device id of the memory")
	fs.Uint32Var(&f.gpioDevice, "gpio-device", d.GPIODevice, "device id of the GPIO bank")
	fs.IntVar(&f.gpioLines, "gpio-lines", d.GPIOLines, "number of GPIO lines")
	fs.Uint32Var(&f.syncDevice, "sync-device", d.SyncDevice, "device id used for syncs")
}

// apply overrides cfg with the flags set on the command line.
func (f *rootFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	overrides := map[string]func(){
		"listen":            func() { cfg.Listen = f.listen },
		"connect":           func() { cfg.Connect = f.connect },
		"quantum":           func() { cfg.Quantum = f.quantum },
		"response-timeout":  func() { cfg.ResponseTimeout = f.responseTimeout },
		"handshake-timeout": func() { cfg.HandshakeTimeout = f.handshakeTimeout },
		"dial-timeout":      func() { cfg.DialTimeout = f.dialTimeout },
		"wait-for-socket":   func() { cfg.WaitForSocket = f.waitForSocket },
		"trace-db":          func() { cfg.TraceDB = f.traceDB },
		"clickhouse":        func() { cfg.ClickHouseAddr = f.clickHouseAddr },
		"monitor-port":      func() { cfg.MonitorPort = f.monitorPort },
		"open-monitor":      func() { cfg.OpenMonitor = f.openMonitor },
		"mem-size":          func() { cfg.MemSize = f.memSize },
		"mem-base":          func() { cfg.MemBase = f.memBase },
		"mem-delay":         func() { cfg.MemDelay = f.memDelay },
		"mem-device":        func() { cfg.MemDevice = f.memDevice },
		"gpio-device":       func() { cfg.GPIODevice = f.gpioDevice },
		"gpio-lines":        func() { cfg.GPIOLines = f.gpioLines },
		"sync-device":       func() { cfg.SyncDevice = f.syncDevice },
	}

	fs.Visit(func(fl *pflag.Flag) {
		if set, ok := overrides[fl.Name]; ok {
			set()
		}
	})
}

func (f *rootFlags) logConfig(fs *pflag.FlagSet, out io.Writer) logging.Config {
	cfg := logging.FromEnv(logging.DefaultConfig())

	if lvl, ok := logging.ParseLevel(f.logLevel); ok {
		cfg.Level = lvl
	}

	if fs.Changed("log-json") {
		cfg.JSON = f.logJSON
	}

	if out != nil {
		cfg.Out = out
	}

	return cfg
}

// newRootCmd builds the command tree. Results go to out, logs to stderr.
func newRootCmd(out io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "rpbridge",
		Short: "rpbridge speaks the Remote Port co-simulation protocol.",
		Long: `rpbridge speaks the Remote Port co-simulation protocol. ` +
			`It can serve a memory and a GPIO bank to a peer (serve), or connect ` +
			`to a peer and issue single operations (read, write, interrupt, sync). ` +
			`Recorded traces can be printed with trace.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile, flags.envFiles...)
			if err != nil {
				return err
			}

			flags.apply(cmd.Flags(), &cfg)

			err = cfg.Validate()
			if err != nil {
				return err
			}

			log := logging.NewWithConfig(cmd.Name(),
				flags.logConfig(cmd.Flags(), cmd.ErrOrStderr()))

			a := newApp(cfg, log, out)
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))

			return nil
		},
	}

	flags.register(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newReadCmd(),
		newWriteCmd(),
		newInterruptCmd(),
		newSyncCmd(),
		newTraceCmd(),
	)

	return root
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}
