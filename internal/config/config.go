// Package config reads the service configuration from the environment.
// Call godotenv.Load before Load to pick up a local .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Match    MatchConfig
	Telegram TelegramConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// DSN is empty when the archive is disabled.
	DSN string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type MatchConfig struct {
	Store                   string
	QueueIdleTimeout        time.Duration
	ConversationIdleTimeout time.Duration
	EndedRetention          time.Duration
	MaxPairAttempts         int
	SweepInterval           time.Duration
	SweepMode               string
	NotifyQueuePosition     bool
	JoinRate                float64
	JoinBurst               int
}

type TelegramConfig struct {
	// BotToken is empty when Telegram notifications are off.
	BotToken   string
	LocalesDir string
}

type LogConfig struct {
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_URL", "host=localhost user=user password=password dbname=strangerchat port=5432 sslmode=disable"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6380/0"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getDuration("TOKEN_TTL", DefaultTokenTTL),
		},
		Match: MatchConfig{
			Store:                   getEnv("MATCH_STORE", StoreRedis),
			QueueIdleTimeout:        getDuration("MATCH_QUEUE_IDLE_TIMEOUT", DefaultQueueIdleTimeout),
			ConversationIdleTimeout: getDuration("MATCH_CONVERSATION_IDLE_TIMEOUT", DefaultConversationIdleTimeout),
			EndedRetention:          getDuration("MATCH_ENDED_RETENTION", DefaultEndedRetention),
			MaxPairAttempts:         getInt("MATCH_MAX_PAIR_ATTEMPTS", DefaultMaxPairAttempts),
			SweepInterval:           getDuration("MATCH_SWEEP_INTERVAL", DefaultSweepInterval),
			SweepMode:               getEnv("MATCH_SWEEP_MODE", SweepModeLocal),
			NotifyQueuePosition:     getBool("MATCH_NOTIFY_QUEUE_POSITION", false),
			JoinRate:                getFloat("MATCH_JOIN_RATE", DefaultJoinRate),
			JoinBurst:               getInt("MATCH_JOIN_BURST", DefaultJoinBurst),
		},
		Telegram: TelegramConfig{
			BotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			LocalesDir: getEnv("LOCALES_DIR", "locales"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Match.Store {
	case StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("MATCH_STORE: unknown store %q", c.Match.Store))
	}
	switch c.Match.SweepMode {
	case SweepModeLocal:
	case SweepModeAsynq:
		if c.Match.Store != StoreRedis {
			errs = append(errs, errors.New("MATCH_SWEEP_MODE=asynq needs MATCH_STORE=redis"))
		}
		if c.Match.SweepInterval < time.Second {
			errs = append(errs, errors.New("MATCH_SWEEP_INTERVAL must be at least 1s with asynq"))
		}
	default:
		errs = append(errs, fmt.Errorf("MATCH_SWEEP_MODE: unknown mode %q", c.Match.SweepMode))
	}
	for name, d := range map[string]time.Duration{
		"MATCH_QUEUE_IDLE_TIMEOUT":        c.Match.QueueIdleTimeout,
		"MATCH_CONVERSATION_IDLE_TIMEOUT": c.Match.ConversationIdleTimeout,
		"MATCH_SWEEP_INTERVAL":            c.Match.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Match.MaxPairAttempts <= 0 {
		errs = append(errs, errors.New("MATCH_MAX_PAIR_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
