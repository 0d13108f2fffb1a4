// Package config holds the server settings: defaults, an optional YAML file and LINECHAT_*
// overrides coming from the environment or a .env file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultPort              = 1976
	DefaultBacklog           = 5
	DefaultSignalTimeout     = 10 * time.Millisecond
	DefaultReceiveBufferSize = 1024
	DefaultMaxEvents         = 1024
	DefaultQuitKeyword       = "quit"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// Address is an IPv4 literal; empty means any.
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Backlog int    `yaml:"backlog"`

	// SignalTimeoutMS bounds the signal wait at the top of each loop cycle.
	SignalTimeoutMS   int    `yaml:"signal_timeout_ms"`
	ReceiveBufferSize int    `yaml:"receive_buffer_size"`
	MaxEvents         int    `yaml:"max_events"`
	QuitKeyword       string `yaml:"quit_keyword"`

	// Relay forwards what a client sends to every other client. Off by default: only the
	// operator's lines are broadcast.
	Relay bool `yaml:"relay"`

	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Address:           "",
		Port:              DefaultPort,
		Backlog:           DefaultBacklog,
		SignalTimeoutMS:   int(DefaultSignalTimeout / time.Millisecond),
		ReceiveBufferSize: DefaultReceiveBufferSize,
		MaxEvents:         DefaultMaxEvents,
		QuitKeyword:       DefaultQuitKeyword,
		LogLevel:          "info",
	}
}

func (c Config) SignalTimeout() time.Duration {
	return time.Duration(c.SignalTimeoutMS) * time.Millisecond
}

// Load starts from Default, applies the YAML file at path (if path is not empty) and then the
// environment. envFile, when not empty, is read with godotenv and layered under the process
// environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	env := map[string]string{}
	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

const (
	envAddress       = "LINECHAT_ADDRESS"
	envPort          = "LINECHAT_PORT"
	envBacklog       = "LINECHAT_BACKLOG"
	envSignalTimeout = "LINECHAT_SIGNAL_TIMEOUT_MS"
	envRelay         = "LINECHAT_RELAY"
	envLogLevel      = "LINECHAT_LOG_LEVEL"
)

var envKeys = []string{envAddress, envPort, envBacklog, envSignalTimeout, envRelay, envLogLevel}

func (c *Config) applyEnv(env map[string]string) error {
	if v, ok := env[envAddress]; ok {
		c.Address = v
	}
	if v, ok := env[envLogLevel]; ok {
		c.LogLevel = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{envPort, &c.Port},
		{envBacklog, &c.Backlog},
		{envSignalTimeout, &c.SignalTimeoutMS},
	}
	for _, i := range ints {
		v, ok := env[i.key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, i.key, v, err)
		}
		*i.dst = n
	}
	if v, ok := env[envRelay]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, envRelay, v, err)
		}
		c.Relay = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.Address != "" {
		ip := net.ParseIP(c.Address)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("%w: address %q is not an IPv4 literal", ErrInvalid, c.Address)
		}
	}
	// port 0 asks the kernel for an ephemeral port
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog must be positive", ErrInvalid)
	}
	if c.SignalTimeoutMS < 1 {
		return fmt.Errorf("%w: signal timeout must be at least 1ms", ErrInvalid)
	}
	if c.ReceiveBufferSize < 1 {
		return fmt.Errorf("%w: receive buffer size must be positive", ErrInvalid)
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("%w: max events must be positive", ErrInvalid)
	}
	if c.QuitKeyword == "" {
		return fmt.Errorf("%w: quit keyword must not be empty", ErrInvalid)
	}
	return nil
}
