package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
	Worker    WorkerConfig    `toml:"worker"`
	Engine    EngineConfig    `toml:"engine"`
	Validator ValidatorConfig `toml:"validator"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// WorkerConfig selects and tunes the device worker.
type WorkerConfig struct {
	Mode             string `toml:"mode"`               // "real" or "simulated"
	ConnectTimeout   string `toml:"connect_timeout"`    // e.g., "10s" - per-device connection timeout
	CommandTimeout   string `toml:"command_timeout"`    // e.g., "20s" - per-command read timeout
	SimulatedDelayMS int    `toml:"simulated_delay_ms"` // per-device delay in simulated mode
	ScenarioFile     string `toml:"scenario_file"`      // optional YAML outcome script for simulated mode
}

// EngineConfig tunes run orchestration.
type EngineConfig struct {
	HistoryLimit int `toml:"history_limit"` // terminal jobs retained before eviction
}

// ValidatorConfig selects the import-time connection validator.
type ValidatorConfig struct {
	Mode               string `toml:"mode"`                // "real" or "simulated"
	ConnectTimeout     string `toml:"connect_timeout"`     // e.g., "5s"
	RevalidateSchedule string `toml:"revalidate_schedule"` // cron spec; empty disables periodic revalidation
}

// WebSocketConfig tunes the per-job event stream.
type WebSocketConfig struct {
	EventSendTimeout  string            `toml:"event_send_timeout"` // e.g., "2s" - bound on one subscriber delivery
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // per event type, e.g. {"log" = "100ms"}; absent = unthrottled
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Worker: WorkerConfig{
			Mode:           "real",
			ConnectTimeout: "10s",
			CommandTimeout: "20s",
		},
		Engine: EngineConfig{
			HistoryLimit: 50,
		},
		Validator: ValidatorConfig{
			Mode:           "real",
			ConnectTimeout: "5s",
		},
		WebSocket: WebSocketConfig{
			EventSendTimeout: "2s",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier ones, environment variables override all files, and CLI flags are
// applied last by the caller via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// DiscoverConfigFile returns the default config file path when one exists:
// netrun.toml beside the executable, then in the working directory.
func DiscoverConfigFile() string {
	if exePath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exePath), "netrun.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("netrun.toml"); err == nil {
		return "netrun.toml"
	}
	return ""
}

// applyEnvOverrides applies NETRUN_* environment variable overrides
func applyEnvOverrides(config *Config) {
	// Server
	if port := os.Getenv("NETRUN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NETRUN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("NETRUN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("NETRUN_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("NETRUN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Worker
	if mode := os.Getenv("NETRUN_WORKER_MODE"); mode != "" {
		config.Worker.Mode = mode
	}
	if timeout := os.Getenv("NETRUN_WORKER_CONNECT_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Worker.ConnectTimeout = timeout
		}
	}
	if timeout := os.Getenv("NETRUN_WORKER_COMMAND_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Worker.CommandTimeout = timeout
		}
	}
	if delay := os.Getenv("NETRUN_SIMULATED_DELAY_MS"); delay != "" {
		if d, err := strconv.Atoi(delay); err == nil && d >= 0 {
			config.Worker.SimulatedDelayMS = d
		}
	}
	if scenario := os.Getenv("NETRUN_WORKER_SCENARIO_FILE"); scenario != "" {
		config.Worker.ScenarioFile = scenario
	}

	// Engine
	if limit := os.Getenv("NETRUN_ENGINE_HISTORY_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			config.Engine.HistoryLimit = l
		}
	}

	// Validator
	if mode := os.Getenv("NETRUN_VALIDATOR_MODE"); mode != "" {
		config.Validator.Mode = mode
	}
	if schedule := os.Getenv("NETRUN_VALIDATOR_REVALIDATE_SCHEDULE"); schedule != "" {
		config.Validator.RevalidateSchedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ConnectTimeoutDuration parses the worker connect timeout, falling back to
// the 10s default on a bad value.
func (w WorkerConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(w.ConnectTimeout, 10*time.Second)
}

// CommandTimeoutDuration parses the per-command read timeout, falling back
// to the 20s default on a bad value.
func (w WorkerConfig) CommandTimeoutDuration() time.Duration {
	return parseDurationOr(w.CommandTimeout, 20*time.Second)
}

// SimulatedDelay returns the simulated per-device delay.
func (w WorkerConfig) SimulatedDelay() time.Duration {
	if w.SimulatedDelayMS <= 0 {
		return 0
	}
	return time.Duration(w.SimulatedDelayMS) * time.Millisecond
}

// ConnectTimeoutDuration parses the validator connect timeout, falling back
// to the 5s default on a bad value.
func (v ValidatorConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(v.ConnectTimeout, 5*time.Second)
}

// EventSendTimeoutDuration parses the subscriber send bound, falling back to
// the 2s default on a bad value.
func (w WebSocketConfig) EventSendTimeoutDuration() time.Duration {
	return parseDurationOr(w.EventSendTimeout, 2*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
