package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env          string
	LogLevel     string
	StoreDriver  string
	Server       ServerConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Auth         AuthConfig
	CheckIn      CheckInConfig
	Registration RegistrationConfig
	RateLimit    RateLimitConfig
	Mail         MailConfig
	Reminder     ReminderConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN renders the connection URL with credentials escaped.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// RedisConfig with an empty Addr disables Redis; caching, rate limiting and
// idempotency keys are then off and pub/sub stays in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type CheckInConfig struct {
	OpensBefore time.Duration
	ClosesAfter time.Duration
}

type RegistrationConfig struct {
	IdempotencyTTL time.Duration
}

type RateLimitConfig struct {
	PerMinute int
}

type MailConfig struct {
	Provider           string
	FromAddress        string
	FromName           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SESEndpoint        string
}

type ReminderConfig struct {
	Interval time.Duration
}

// New reads the configuration from the environment. envFile, if set, must
// exist; otherwise a .env in the working directory is loaded when present.
func New(envFile string) (*Config, error) {
	const op = "config.New"

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("%s: load %s: %w", op, envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var p parser

	cfg := &Config{
		Env:         p.str("GO_ENV", "development"),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		StoreDriver: p.str("STORE_DRIVER", DriverPostgres),
		Server: ServerConfig{
			Host:            p.str("SERVER_HOST", "localhost"),
			Port:            p.integer("SERVER_PORT", 8080),
			RequestTimeout:  p.duration("REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     p.str("POSTGRES_HOST", "localhost"),
			Port:     p.integer("POSTGRES_PORT", 5432),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     os.Getenv("POSTGRES_DB"),
			SSLMode:  p.str("POSTGRES_SSLMODE", "disable"),
			MaxConns: int32(p.integer("POSTGRES_MAX_CONNS", 20)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.integer("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		CheckIn: CheckInConfig{
			OpensBefore: p.duration("CHECKIN_OPENS_BEFORE", 60*time.Minute),
			ClosesAfter: p.duration("CHECKIN_CLOSES_AFTER", 15*time.Minute),
		},
		Registration: RegistrationConfig{
			IdempotencyTTL: p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PerMinute: p.integer("RATE_LIMIT_PER_MINUTE", 30),
		},
		Mail: MailConfig{
			Provider:           p.str("MAIL_PROVIDER", "noop"),
			FromAddress:        p.str("MAIL_FROM_ADDRESS", "no-reply@campus.local"),
			FromName:           p.str("MAIL_FROM_NAME", "Campus Events"),
			AWSRegion:          p.str("AWS_REGION", "us-east-1"),
			AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SESEndpoint:        os.Getenv("SES_ENDPOINT"),
		},
		Reminder: ReminderConfig{
			Interval: p.duration("REMINDER_INTERVAL", time.Minute),
		},
	}

	if p.err != nil {
		return nil, fmt.Errorf("%s: %w", op, p.err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.Postgres.User == "" {
			return fmt.Errorf("missing POSTGRES_USER")
		}
		if c.Postgres.Password == "" {
			return fmt.Errorf("missing POSTGRES_PASSWORD")
		}
		if c.Postgres.Name == "" {
			return fmt.Errorf("missing POSTGRES_DB")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("missing JWT_SECRET")
	}

	if c.CheckIn.OpensBefore < 0 || c.CheckIn.ClosesAfter < 0 {
		return fmt.Errorf("check-in window offsets must not be negative")
	}

	if c.Mail.Provider != "noop" && c.Mail.Provider != "ses" {
		return fmt.Errorf("invalid MAIL_PROVIDER %q", c.Mail.Provider)
	}

	return nil
}

// parser keeps the first conversion error so New can report it once.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}

	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}

	v, err := time.ParseDuration(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

// NewLogger returns a JSON logger in production and a text logger
// otherwise. Unknown levels fall back to info.
func NewLogger(env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
