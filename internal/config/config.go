package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"resortbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	Approval      ApprovalConfig     `yaml:"approval"`
	Notifications NotificationConfig `yaml:"notifications"`
	Slots         []SlotConfig       `yaml:"slots"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	// Driver is sqlite (default), postgres or memory.
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConnections int32  `yaml:"max_connections"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ApprovalConfig struct {
	// LockBackend is memory or redis; redis falls back to memory when unreachable.
	LockBackend string        `yaml:"lock_backend"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
	LockWait    time.Duration `yaml:"lock_wait"`
}

type NotificationConfig struct {
	// Transport is log or telegram.
	Transport    string          `yaml:"transport"`
	Telegram     TelegramConfig  `yaml:"telegram"`
	Retry        RetryConfig     `yaml:"retry"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	BatchSize    int             `yaml:"batch_size"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// SlotConfig overrides one display window of the slot catalog.
type SlotConfig struct {
	Slot              models.TimeSlot          `yaml:"slot"`
	AccommodationType models.AccommodationType `yaml:"accommodation_type"`
	Start             string                   `yaml:"start"`
	End               string                   `yaml:"end"`
	Label             string                   `yaml:"label"`
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return errors.New("database.postgres.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Approval.LockBackend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("approval.lock_backend=redis requires redis.address")
		}
	default:
		return fmt.Errorf("unknown approval lock backend %q", c.Approval.LockBackend)
	}

	switch c.Notifications.Transport {
	case "log":
	case "telegram":
		if c.Notifications.Telegram.BotToken == "" {
			return errors.New("telegram bot token is required for the telegram transport")
		}
		if c.Notifications.Telegram.ChatID == 0 {
			return errors.New("telegram chat_id is required for the telegram transport")
		}
	default:
		return fmt.Errorf("unknown notification transport %q", c.Notifications.Transport)
	}

	return ValidateSlots(c.Slots)
}

func ValidateSlots(slots []SlotConfig) error {
	seen := make(map[string]bool)
	for _, s := range slots {
		if !s.Slot.Valid() {
			return fmt.Errorf("slot %q is not a known time slot", s.Slot)
		}
		if !s.AccommodationType.Valid() {
			return fmt.Errorf("slot %s: unknown accommodation type %q", s.Slot, s.AccommodationType)
		}
		if s.AccommodationType == models.AccommodationCottage && s.Slot == models.SlotWholeDay {
			return errors.New("cottages do not offer the whole_day slot")
		}
		if !clockPattern.MatchString(s.Start) || !clockPattern.MatchString(s.End) {
			return fmt.Errorf("slot %s/%s: start and end must be HH:MM", s.Slot, s.AccommodationType)
		}
		key := string(s.Slot) + "/" + string(s.AccommodationType)
		if seen[key] {
			return fmt.Errorf("duplicate slot window: %s", key)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "resortbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/resortbook.db"
	}
	if c.Database.Postgres.MaxConnections == 0 {
		c.Database.Postgres.MaxConnections = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Approval.LockBackend == "" {
		c.Approval.LockBackend = "memory"
	}
	if c.Approval.LockTTL == 0 {
		c.Approval.LockTTL = 30 * time.Second
	}
	if c.Approval.LockWait == 0 {
		c.Approval.LockWait = 10 * time.Second
	}

	n := &c.Notifications
	if n.Transport == "" {
		n.Transport = "log"
	}
	if n.PollInterval == 0 {
		n.PollInterval = 2 * time.Second
	}
	if n.BatchSize == 0 {
		n.BatchSize = 20
	}
	if n.RateLimit.RPS == 0 {
		n.RateLimit.RPS = 10
	}
	if n.RateLimit.Burst == 0 {
		n.RateLimit.Burst = 5
	}
}
