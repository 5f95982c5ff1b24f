package app

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"parley/cmd/internal/chat"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Addr      string `env:"PARLEY_ADDR" envDefault:"127.0.0.1:8080"`
	LogLevel  string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PARLEY_LOG_FORMAT" envDefault:"json"`

	// AllowedOrigins is the browser origin allowlist for the websocket
	// endpoint. "*" disables the check.
	AllowedOrigins []string `env:"PARLEY_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost,http://127.0.0.1"`

	BusCapacity int `env:"PARLEY_BUS_CAPACITY" envDefault:"100"`

	HeartbeatInterval time.Duration `env:"PARLEY_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"PARLEY_HEARTBEAT_TIMEOUT" envDefault:"5s"`

	RateLimit  int           `env:"PARLEY_RATE_LIMIT" envDefault:"120"`
	RateWindow time.Duration `env:"PARLEY_RATE_WINDOW" envDefault:"10s"`

	ReadHeaderTimeout time.Duration `env:"PARLEY_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"PARLEY_HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	ShutdownTimeout time.Duration `env:"PARLEY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig loads Config from the environment, reading a .env file first if
// one is present. Malformed values fail loudly; merely out-of-range ones fall
// back to their defaults.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	c.AllowedOrigins = lo.FilterMap(c.AllowedOrigins, func(o string, _ int) (string, bool) {
		o = strings.TrimSpace(o)
		return o, o != ""
	})

	if c.BusCapacity <= 0 {
		c.BusCapacity = chat.DefaultBusCapacity
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 120
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 10 * time.Second
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("PARLEY_ADDR must not be empty")
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return errors.New("PARLEY_LOG_FORMAT must be json or pretty")
	}
	return nil
}
