// Package config loads the settings of the rpbridge command.
//
// Values are layered: defaults, then an optional TOML file, then .env files,
// then REMOTEPORT_* environment variables. Command line flags are applied
// last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/sarchlab/remoteport/transport"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid")

// Environment variable names.
const (
	EnvListen           = "REMOTEPORT_LISTEN"
	EnvConnect          = "REMOTEPORT_CONNECT"
	EnvQuantum          = "REMOTEPORT_QUANTUM"
	EnvResponseTimeout  = "REMOTEPORT_RESPONSE_TIMEOUT"
	EnvHandshakeTimeout = "REMOTEPORT_HANDSHAKE_TIMEOUT"
	EnvDialTimeout      = "REMOTEPORT_DIAL_TIMEOUT"
	EnvWaitForSocket    = "REMOTEPORT_WAIT_FOR_SOCKET"
	EnvTraceDB          = "REMOTEPORT_TRACE_DB"
	EnvClickHouseAddr   = "REMOTEPORT_CLICKHOUSE_ADDR"
	EnvClickHouseDB     = "REMOTEPORT_CLICKHOUSE_DATABASE"
	EnvClickHouseUser   = "REMOTEPORT_CLICKHOUSE_USER"
	EnvClickHousePass   = "REMOTEPORT_CLICKHOUSE_PASSWORD"
	EnvMonitorPort      = "REMOTEPORT_MONITOR_PORT"
	EnvOpenMonitor      = "REMOTEPORT_OPEN_MONITOR"
	EnvMemSize          = "REMOTEPORT_MEM_SIZE"
	EnvMemBase          = "REMOTEPORT_MEM_BASE"
	EnvMemDelay         = "REMOTEPORT_MEM_DELAY"
	EnvMemDevice        = "REMOTEPORT_MEM_DEVICE"
	EnvGPIODevice       = "REMOTEPORT_GPIO_DEVICE"
	EnvGPIOLines        = "REMOTEPORT_GPIO_LINES"
	EnvSyncDevice       = "REMOTEPORT_SYNC_DEVICE"
)

// Config holds every setting of the bridge.
type Config struct {
	Listen           string        `toml:"listen"`
	Connect          string        `toml:"connect"`
	Quantum          uint64        `toml:"quantum"`
	ResponseTimeout  time.Duration `toml:"response_timeout"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	DialTimeout      time.Duration `toml:"dial_timeout"`
	WaitForSocket    bool          `toml:"wait_for_socket"`

	TraceDB        string `toml:"trace_db"`
	ClickHouseAddr string `toml:"clickhouse_addr"`
	ClickHouseDB   string `toml:"clickhouse_database"`
	ClickHouseUser string `toml:"clickhouse_user"`
	ClickHousePass string `toml:"clickhouse_password"`
	MonitorPort    int    `toml:"monitor_port"`
	OpenMonitor    bool   `toml:"open_monitor"`

	MemSize    uint64 `toml:"mem_size"`
	MemBase    uint64 `toml:"mem_base"`
	MemDelay   int64  `toml:"mem_delay"`
	MemDevice  uint32 `toml:"mem_device"`
	GPIODevice uint32 `toml:"gpio_device"`
	GPIOLines  int    `toml:"gpio_lines"`
	SyncDevice uint32 `toml:"sync_device"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Listen:     "tcp://127.0.0.1:4000",
		Connect:    "tcp://127.0.0.1:4000",
		MemSize:    1 << 20,
		MemDevice:  1,
		GPIODevice: 2,
		GPIOLines:  16,
	}
}

// Load builds a Config from a TOML file (skipped when tomlPath is empty),
// .env files and the environment. Variables already set in the environment
// win over the .env files.
func Load(tomlPath string, envFiles ...string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		_, err := toml.DecodeFile(tomlPath, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", tomlPath, err)
		}
	}

	if len(envFiles) > 0 {
		err := godotenv.Load(envFiles...)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed: %w", err)
		}
	}

	err := cfg.applyEnv()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	uintN := func(name string, bits int, set func(uint64)) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}

		n, err := strconv.ParseUint(strings.TrimSpace(v), 0, bits)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}

		set(n)
	}

	intN := func(name string, set func(int64)) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}

		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}

		set(n)
	}

	duration := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}

		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}

		*dst = d
	}

	boolean := func(name string, dst *bool) {
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}

		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}

		*dst = b
	}

	str(EnvListen, &c.Listen)
	str(EnvConnect, &c.Connect)
	uintN(EnvQuantum, 64, func(n uint64) { c.Quantum = n })
	duration(EnvResponseTimeout, &c.ResponseTimeout)
	duration(EnvHandshakeTimeout, &c.HandshakeTimeout)
	duration(EnvDialTimeout, &c.DialTimeout)
	boolean(EnvWaitForSocket, &c.WaitForSocket)
	str(EnvTraceDB, &c.TraceDB)
	str(EnvClickHouseAddr, &c.ClickHouseAddr)
	str(EnvClickHouseDB, &c.ClickHouseDB)
	str(EnvClickHouseUser, &c.ClickHouseUser)
	str(EnvClickHousePass, &c.ClickHousePass)
	intN(EnvMonitorPort, func(n int64) { c.MonitorPort = int(n) })
	boolean(EnvOpenMonitor, &c.OpenMonitor)
	uintN(EnvMemSize, 64, func(n uint64) { c.MemSize = n })
	uintN(EnvMemBase, 64, func(n uint64) { c.MemBase = n })
	intN(EnvMemDelay, func(n int64) { c.MemDelay = n })
	uintN(EnvMemDevice, 32, func(n uint64) { c.MemDevice = uint32(n) })
	uintN(EnvGPIODevice, 32, func(n uint64) { c.GPIODevice = uint32(n) })
	intN(EnvGPIOLines, func(n int64) { c.GPIOLines = int(n) })
	uintN(EnvSyncDevice, 32, func(n uint64) { c.SyncDevice = uint32(n) })

	return errors.Join(errs...)
}

// MonitorEnabled reports whether the HTTP monitor should run.
func (c Config) MonitorEnabled() bool {
	return c.MonitorPort != 0 || c.OpenMonitor
}

// ListenEndpoint parses Listen.
func (c Config) ListenEndpoint() (transport.Endpoint, error) {
	return transport.Parse(c.Listen)
}

// ConnectEndpoint parses Connect.
func (c Config) ConnectEndpoint() (transport.Endpoint, error) {
	return transport.Parse(c.Connect)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := c.ListenEndpoint(); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}

	if _, err := c.ConnectEndpoint(); err != nil {
		errs = append(errs, fmt.Errorf("connect: %w", err))
	}

	if c.ResponseTimeout < 0 {
		errs = append(errs, errors.New("response timeout must not be negative"))
	}

	if c.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("handshake timeout must not be negative"))
	}

	if c.DialTimeout < 0 {
		errs = append(errs, errors.New("dial timeout must not be negative"))
	}

	if c.MemSize == 0 {
		errs = append(errs, errors.New("memory size must be positive"))
	}

	if c.MemDelay < 0 {
		errs = append(errs, errors.New("memory delay must not be negative"))
	}

	if c.MemDevice == c.GPIODevice {
		errs = append(errs, fmt.Errorf(
			"memory and gpio both use device %d", c.MemDevice))
	}

	if c.GPIOLines < 1 || c.GPIOLines > 32 {
		errs = append(errs, fmt.Errorf("gpio lines %d not in 1..32", c.GPIOLines))
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		errs = append(errs, fmt.Errorf("monitor port %d out of range", c.MonitorPort))
	}

	if c.TraceDB != "" && c.ClickHouseAddr != "" {
		errs = append(errs, errors.New("trace db and clickhouse are exclusive"))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
