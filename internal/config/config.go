package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	TransportTelegram = "telegram"
	TransportRelay    = "relay"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type AppConfig struct {
	BotToken  string `env:"BOT_TOKEN,required,notEmpty"`
	Transport string `env:"TRANSPORT" envDefault:"telegram"`

	TelegramAPIURL string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`

	RelayWSURL   string `env:"RELAY_WS_URL"`
	RelaySession string `env:"RELAY_SESSION"`

	Store       string `env:"STORE" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	KeyPrefix   string `env:"KEY_PREFIX" envDefault:"referee:"`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"0s"`
	MovesPerRow  int           `env:"MOVES_PER_ROW" envDefault:"4"`
	BoardImage   bool          `env:"BOARD_IMAGE" envDefault:"false"`

	AllowedChats []string `env:"ALLOWED_CHATS" envSeparator:","`
	MessagesDir  string   `env:"MESSAGES_DIR"`

	Log LogConfig `envPrefix:"LOG_"`
}

type LogConfig struct {
	Level   string `env:"LEVEL" envDefault:"info"`
	Format  string `env:"FORMAT" envDefault:"legacy"`
	Console bool   `env:"TO_CONSOLE" envDefault:"true"`
	File    string `env:"FILE"`
	Caller  bool   `env:"CALLER" envDefault:"false"`
}

// Load reads AppConfig from the environment and validates cross-field rules.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	chats := c.AllowedChats[:0]
	for _, s := range c.AllowedChats {
		if s = strings.TrimSpace(s); s != "" {
			chats = append(chats, s)
		}
	}
	c.AllowedChats = chats
}

func (c *AppConfig) Validate() error {
	switch c.Transport {
	case TransportTelegram:
	case TransportRelay:
		if c.RelayWSURL == "" {
			return errors.New("RELAY_WS_URL is required when TRANSPORT=relay")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.MovesPerRow <= 0 {
		return fmt.Errorf("MOVES_PER_ROW must be positive, got %d", c.MovesPerRow)
	}
	if c.ChallengeTTL < 0 {
		return errors.New("CHALLENGE_TTL must not be negative")
	}
	return nil
}

// ChatAllowed reports whether conv may use the bot. An empty allow list admits every chat.
func (c *AppConfig) ChatAllowed(conv string) bool {
	if len(c.AllowedChats) == 0 {
		return true
	}
	for _, s := range c.AllowedChats {
		if s == conv {
			return true
		}
	}
	return false
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
