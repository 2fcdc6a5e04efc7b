package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "termledger/backend/libs/config"
)

const (
	defaultHTTPPort      = "8090"
	defaultChannel       = "termledger:changes"
	defaultSweepInterval = time.Second
	defaultBufferSize    = 256
	defaultPingInterval  = 30 * time.Second
)

// HTTPConfig is the listener.
type HTTPConfig struct {
	Port string `yaml:"port" env:"LEDGER_HTTP_PORT"`
}

// DatabaseConfig selects Postgres. An empty DSN keeps all state in memory.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"LEDGER_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"LEDGER_POSTGRES_MAX_OPEN_CONNS"`
	Migrate      bool   `yaml:"migrate" env:"LEDGER_POSTGRES_MIGRATE"`
}

// RedisConfig selects the change bus transport. An empty Addr keeps the bus in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"LEDGER_REDIS_ADDR"`
	Password string `yaml:"password" env:"LEDGER_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"LEDGER_REDIS_DB"`
	Channel  string `yaml:"channel" env:"LEDGER_REDIS_CHANNEL"`
}

// SweeperConfig tunes the expiry sweeper.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval" env:"LEDGER_SWEEP_INTERVAL"`
}

// BusConfig tunes the change dispatcher and the viewer hub.
type BusConfig struct {
	BufferSize   int           `yaml:"bufferSize" env:"LEDGER_BUS_BUFFER_SIZE"`
	PingInterval time.Duration `yaml:"pingInterval" env:"LEDGER_WS_PING_INTERVAL"`
}

// AuthConfig holds the HS256 signing secret shared with the token issuer.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"LEDGER_JWT_SECRET"`
}

// SeedConfig lists terminals provisioned at boot.
type SeedConfig struct {
	Terminals []string `yaml:"terminals" env:"LEDGER_SEED_TERMINALS"`
}

// Config defines ledger service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Bus      BusConfig      `yaml:"bus"`
	Auth     AuthConfig     `yaml:"auth"`
	Seed     SeedConfig     `yaml:"seed"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:    HTTPConfig{Port: defaultHTTPPort},
		Redis:   RedisConfig{Channel: defaultChannel},
		Sweeper: SweeperConfig{Interval: defaultSweepInterval},
		Bus:     BusConfig{BufferSize: defaultBufferSize, PingInterval: defaultPingInterval},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth jwt secret required")
	}
	if c.Sweeper.Interval < 0 {
		return fmt.Errorf("config: sweeper interval must not be negative, got %s", c.Sweeper.Interval)
	}
	if c.Bus.BufferSize < 0 {
		return fmt.Errorf("config: bus buffer size must not be negative, got %d", c.Bus.BufferSize)
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// UsePostgres reports whether a database DSN is configured.
func (c *Config) UsePostgres() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}

// UseRedis reports whether the change bus goes through Redis pub/sub.
func (c *Config) UseRedis() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// RedisChannel returns the pub/sub channel name.
func (c *Config) RedisChannel() string {
	if ch := strings.TrimSpace(c.Redis.Channel); ch != "" {
		return ch
	}
	return defaultChannel
}

// SweepInterval returns sweeper period.
func (c *Config) SweepInterval() time.Duration {
	if c.Sweeper.Interval <= 0 {
		return defaultSweepInterval
	}
	return c.Sweeper.Interval
}

// BusBufferSize returns the dispatcher queue length.
func (c *Config) BusBufferSize() int {
	if c.Bus.BufferSize <= 0 {
		return defaultBufferSize
	}
	return c.Bus.BufferSize
}

// PingInterval returns the websocket keepalive period.
func (c *Config) PingInterval() time.Duration {
	if c.Bus.PingInterval <= 0 {
		return defaultPingInterval
	}
	return c.Bus.PingInterval
}

// SeedTerminals returns trimmed, non-empty terminal names.
func (c *Config) SeedTerminals() []string {
	out := make([]string, 0, len(c.Seed.Terminals))
	for _, name := range c.Seed.Terminals {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
