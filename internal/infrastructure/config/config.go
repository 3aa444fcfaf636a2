package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration.
type Config struct {
	// File, when set, is decoded over the environment values
	File string `envconfig:"TRIAD_CONFIG_FILE" json:"-" yaml:"-" toml:"-"`

	Channel     ChannelConfig     `json:"channel" yaml:"channel" toml:"channel"`
	Generator   GeneratorConfig   `json:"generator" yaml:"generator" toml:"generator"`
	Receiver    ReceiverConfig    `json:"receiver" yaml:"receiver" toml:"receiver"`
	Supervisor  SupervisorConfig  `json:"supervisor" yaml:"supervisor" toml:"supervisor"`
	Scheduler   SchedulerConfig   `json:"scheduler" yaml:"scheduler" toml:"scheduler"`
	Watchdog    WatchdogConfig    `json:"watchdog" yaml:"watchdog" toml:"watchdog"`
	Memory      MemoryConfig      `json:"memory" yaml:"memory" toml:"memory"`
	Device      DeviceConfig      `json:"device" yaml:"device" toml:"device"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics" toml:"diagnostics"`
	Logging     LogConfig         `json:"logging" yaml:"logging" toml:"logging"`
}

// ChannelConfig sizes the generator to receiver channel.
type ChannelConfig struct {
	Capacity int `envconfig:"CHANNEL_CAPACITY" default:"10" json:"capacity" yaml:"capacity" toml:"capacity"`
}

// TaskConfig holds the scheduling metadata every task carries.
type TaskConfig struct {
	Priority    int `json:"priority" yaml:"priority" toml:"priority"`
	Core        int `json:"core" yaml:"core" toml:"core"`
	StackBudget int `json:"stack" yaml:"stack" toml:"stack"`
}

// GeneratorConfig holds producer settings.
type GeneratorConfig struct {
	Interval     Duration `envconfig:"GENERATOR_INTERVAL" default:"200ms" json:"interval" yaml:"interval" toml:"interval"`
	DropLogRate  float64  `envconfig:"GENERATOR_DROP_LOG_RATE" default:"10" json:"drop_log_rate" yaml:"drop_log_rate" toml:"drop_log_rate"`
	DropLogBurst int      `envconfig:"GENERATOR_DROP_LOG_BURST" default:"10" json:"drop_log_burst" yaml:"drop_log_burst" toml:"drop_log_burst"`
	Priority     int      `envconfig:"GENERATOR_PRIORITY" default:"5" json:"priority" yaml:"priority" toml:"priority"`
	Core         int      `envconfig:"GENERATOR_CORE" default:"1" json:"core" yaml:"core" toml:"core"`
	StackBudget  int      `envconfig:"GENERATOR_STACK" default:"3072" json:"stack" yaml:"stack" toml:"stack"`
}

// Task returns the generator's scheduling metadata.
func (c GeneratorConfig) Task() TaskConfig {
	return TaskConfig{Priority: c.Priority, Core: c.Core, StackBudget: c.StackBudget}
}

// ReceiverConfig holds consumer settings and escalation thresholds.
type ReceiverConfig struct {
	Timeout           Duration `envconfig:"RECEIVER_TIMEOUT" default:"2s" json:"timeout" yaml:"timeout" toml:"timeout"`
	Interval          Duration `envconfig:"RECEIVER_INTERVAL" default:"50ms" json:"interval" yaml:"interval" toml:"interval"`
	AllocRetryDelay   Duration `envconfig:"RECEIVER_ALLOC_RETRY" default:"100ms" json:"alloc_retry" yaml:"alloc_retry" toml:"alloc_retry"`
	WarningThreshold  int      `envconfig:"RECEIVER_WARN_AT" default:"3" json:"warn_at" yaml:"warn_at" toml:"warn_at"`
	RecoveryThreshold int      `envconfig:"RECEIVER_RECOVER_AT" default:"5" json:"recover_at" yaml:"recover_at" toml:"recover_at"`
	ShutdownThreshold int      `envconfig:"RECEIVER_SHUTDOWN_AT" default:"10" json:"shutdown_at" yaml:"shutdown_at" toml:"shutdown_at"`
	Priority          int      `envconfig:"RECEIVER_PRIORITY" default:"4" json:"priority" yaml:"priority" toml:"priority"`
	Core              int      `envconfig:"RECEIVER_CORE" default:"1" json:"core" yaml:"core" toml:"core"`
	StackBudget       int      `envconfig:"RECEIVER_STACK" default:"4096" json:"stack" yaml:"stack" toml:"stack"`
}

// Task returns the receiver's scheduling metadata.
func (c ReceiverConfig) Task() TaskConfig {
	return TaskConfig{Priority: c.Priority, Core: c.Core, StackBudget: c.StackBudget}
}

// SupervisorConfig holds health monitoring settings.
type SupervisorConfig struct {
	Period              Duration `envconfig:"SUPERVISOR_PERIOD" default:"3s" json:"period" yaml:"period" toml:"period"`
	MaxReceiverRestarts int      `envconfig:"SUPERVISOR_MAX_RECEIVER_RESTARTS" default:"5" json:"max_receiver_restarts" yaml:"max_receiver_restarts" toml:"max_receiver_restarts"`
	RecoveryCycles      int      `envconfig:"SUPERVISOR_RECOVERY_CYCLES" default:"0" json:"recovery_cycles" yaml:"recovery_cycles" toml:"recovery_cycles"`
	RestartGrace        Duration `envconfig:"SUPERVISOR_RESTART_GRACE" default:"1s" json:"restart_grace" yaml:"restart_grace" toml:"restart_grace"`
	LowMemoryFloor      int64    `envconfig:"SUPERVISOR_LOW_MEMORY_FLOOR" default:"10240" json:"low_memory_floor" yaml:"low_memory_floor" toml:"low_memory_floor"`
	Priority            int      `envconfig:"SUPERVISOR_PRIORITY" default:"6" json:"priority" yaml:"priority" toml:"priority"`
	Core                int      `envconfig:"SUPERVISOR_CORE" default:"0" json:"core" yaml:"core" toml:"core"`
	StackBudget         int      `envconfig:"SUPERVISOR_STACK" default:"3072" json:"stack" yaml:"stack" toml:"stack"`
}

// Task returns the supervisor's scheduling metadata.
func (c SupervisorConfig) Task() TaskConfig {
	return TaskConfig{Priority: c.Priority, Core: c.Core, StackBudget: c.StackBudget}
}

// SchedulerConfig holds task runtime settings.
type SchedulerConfig struct {
	TerminateTimeout Duration `envconfig:"SCHEDULER_TERMINATE_TIMEOUT" default:"1s" json:"terminate_timeout" yaml:"terminate_timeout" toml:"terminate_timeout"`
}

// WatchdogConfig holds task watchdog settings.
type WatchdogConfig struct {
	Enabled       bool     `envconfig:"WATCHDOG_ENABLED" default:"true" json:"enabled" yaml:"enabled" toml:"enabled"`
	Timeout       Duration `envconfig:"WATCHDOG_TIMEOUT" default:"5s" json:"timeout" yaml:"timeout" toml:"timeout"`
	CheckInterval Duration `envconfig:"WATCHDOG_CHECK_INTERVAL" default:"500ms" json:"check_interval" yaml:"check_interval" toml:"check_interval"`
}

// MemoryConfig sizes the device heap.
type MemoryConfig struct {
	HeapBudget int64 `envconfig:"HEAP_BUDGET" default:"327680" json:"heap_budget" yaml:"heap_budget" toml:"heap_budget"`
}

// DeviceConfig holds device restart settings.
type DeviceConfig struct {
	RestartExitCode int `envconfig:"DEVICE_RESTART_EXIT_CODE" default:"75" json:"restart_exit_code" yaml:"restart_exit_code" toml:"restart_exit_code"`
}

// DiagnosticsConfig holds the optional diagnostics HTTP server settings.
type DiagnosticsConfig struct {
	Enabled        bool   `envconfig:"DIAG_ENABLED" default:"false" json:"enabled" yaml:"enabled" toml:"enabled"`
	Host           string `envconfig:"DIAG_HOST" default:"127.0.0.1" json:"host" yaml:"host" toml:"host"`
	Port           string `envconfig:"DIAG_PORT" default:"9090" json:"port" yaml:"port" toml:"port"`
	RateLimitRPS   int    `envconfig:"DIAG_RATE_LIMIT_RPS" default:"20" json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst int    `envconfig:"DIAG_RATE_LIMIT_BURST" default:"40" json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	// Global limit shared by all clients; zero disables it
	GlobalRateLimitRPS   int `envconfig:"DIAG_GLOBAL_RATE_LIMIT_RPS" default:"200" json:"global_rate_limit_rps" yaml:"global_rate_limit_rps" toml:"global_rate_limit_rps"`
	GlobalRateLimitBurst int `envconfig:"DIAG_GLOBAL_RATE_LIMIT_BURST" default:"400" json:"global_rate_limit_burst" yaml:"global_rate_limit_burst" toml:"global_rate_limit_burst"`
}

// Addr returns host:port for the listener.
func (c DiagnosticsConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" json:"level" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" json:"development" yaml:"development" toml:"development"`
	// Output is a zap sink URL or path, e.g. "stdout" or "/var/log/triad.log"
	Output string `envconfig:"LOG_OUTPUT" default:"stdout" json:"output" yaml:"output" toml:"output"`
}

// Load loads configuration from environment variables, then overlays the
// config file named by TRIAD_CONFIG_FILE if there is one.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. A non-empty path
// replaces TRIAD_CONFIG_FILE, which is then never read. The result is
// validated once, after the overlay.
func LoadWithFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path == "" {
		path = cfg.File
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			Capacity: 10,
		},
		Generator: GeneratorConfig{
			Interval:     Duration(200 * time.Millisecond),
			DropLogRate:  10,
			DropLogBurst: 10,
			Priority:     5,
			Core:         1,
			StackBudget:  3072,
		},
		Receiver: ReceiverConfig{
			Timeout:           Duration(2 * time.Second),
			Interval:          Duration(50 * time.Millisecond),
			AllocRetryDelay:   Duration(100 * time.Millisecond),
			WarningThreshold:  3,
			RecoveryThreshold: 5,
			ShutdownThreshold: 10,
			Priority:          4,
			Core:              1,
			StackBudget:       4096,
		},
		Supervisor: SupervisorConfig{
			Period:              Duration(3 * time.Second),
			MaxReceiverRestarts: 5,
			RecoveryCycles:      0,
			RestartGrace:        Duration(time.Second),
			LowMemoryFloor:      10 * 1024,
			Priority:            6,
			Core:                0,
			StackBudget:         3072,
		},
		Scheduler: SchedulerConfig{
			TerminateTimeout: Duration(time.Second),
		},
		Watchdog: WatchdogConfig{
			Enabled:       true,
			Timeout:       Duration(5 * time.Second),
			CheckInterval: Duration(500 * time.Millisecond),
		},
		Memory: MemoryConfig{
			HeapBudget: 320 * 1024,
		},
		Device: DeviceConfig{
			RestartExitCode: 75,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:        false,
			Host:           "127.0.0.1",
			Port:           "9090",
			RateLimitRPS:   20,
			RateLimitBurst: 40,

			GlobalRateLimitRPS:   200,
			GlobalRateLimitBurst: 400,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      "stdout",
		},
	}
}

// Validate rejects values the system cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Channel.Capacity > 0, "channel capacity must be positive, got %d", c.Channel.Capacity)
	check(c.Generator.Interval > 0, "generator interval must be positive")
	check(c.Generator.DropLogRate >= 0, "generator drop log rate must not be negative")
	check(c.Receiver.Timeout > 0, "receiver timeout must be positive")
	check(c.Receiver.Interval >= 0, "receiver interval must not be negative")
	check(c.Receiver.AllocRetryDelay >= 0, "receiver alloc retry must not be negative")
	check(c.Receiver.WarningThreshold > 1 &&
		c.Receiver.WarningThreshold < c.Receiver.RecoveryThreshold &&
		c.Receiver.RecoveryThreshold < c.Receiver.ShutdownThreshold,
		"receiver thresholds must satisfy 1 < warn (%d) < recover (%d) < shutdown (%d)",
		c.Receiver.WarningThreshold, c.Receiver.RecoveryThreshold, c.Receiver.ShutdownThreshold)
	check(c.Supervisor.Period > 0, "supervisor period must be positive")
	check(c.Supervisor.MaxReceiverRestarts > 0, "supervisor max receiver restarts must be positive")
	check(c.Supervisor.RecoveryCycles >= 0, "supervisor recovery cycles must not be negative")
	check(c.Supervisor.RestartGrace >= 0, "supervisor restart grace must not be negative")
	check(c.Scheduler.TerminateTimeout > 0, "scheduler terminate timeout must be positive")
	if c.Watchdog.Enabled {
		check(c.Watchdog.Timeout > 0, "watchdog timeout must be positive")
		check(c.Watchdog.CheckInterval > 0 && c.Watchdog.CheckInterval <= c.Watchdog.Timeout,
			"watchdog check interval must be in (0, timeout]")
	}
	check(c.Memory.HeapBudget > 0, "heap budget must be positive")
	check(c.Device.RestartExitCode > 0 && c.Device.RestartExitCode < 256,
		"device restart exit code must be in 1..255, got %d", c.Device.RestartExitCode)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
