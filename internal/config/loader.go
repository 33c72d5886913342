package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable through ROOMBOOKING_STORAGE.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// SMTP holds outbound mail relay settings. An empty Addr selects the log mailer.
type SMTP struct {
	Addr     string
	Username string
	Password string
	From     string
}

// Config captures environment driven configuration values for the reservation service.
type Config struct {
	HTTPPort       int
	Storage        string
	SQLiteDSN      string
	DatabaseURL    string
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	LogLevel       string
	Location       *time.Location

	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPMaxAttempts int
	AMQPRetryDelay  time.Duration

	RedisAddr     string
	RedisPassword string
	OTPTTL        time.Duration

	SMTP SMTP

	NotifyWorkers int
	NotifyQueue   int

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// LoadDotEnv loads the given files (".env" when none) into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Optional values fall back to defaults. Every missing or malformed variable
// is collected so a single error names all of them.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:        5000,
		Storage:         StorageSQLite,
		SQLiteDSN:       "file:reservations.db",
		TokenTTL:        24 * time.Hour,
		AllowedOrigins:  []string{"http://localhost:5173"},
		LogLevel:        "info",
		Location:        time.UTC,
		AMQPExchange:    "booking.events",
		AMQPQueue:       "booking.notifications",
		AMQPMaxAttempts: 5,
		AMQPRetryDelay:  30 * time.Second,
		OTPTTL:          10 * time.Minute,
		NotifyWorkers:   4,
		NotifyQueue:     256,
		AdminName:       "Administrator",
	}

	var missing, invalid []string
	env := func(key string) string { return strings.TrimSpace(os.Getenv(key)) }
	positiveInt := func(key string, target *int) {
		if value := env(key); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				invalid = append(invalid, key)
				return
			}
			*target = n
		}
	}
	duration := func(key string, target *time.Duration) {
		if value := env(key); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				invalid = append(invalid, key)
				return
			}
			*target = d
		}
	}
	text := func(key string, target *string) {
		if value := env(key); value != "" {
			*target = value
		}
	}

	positiveInt("ROOMBOOKING_HTTP_PORT", &cfg.HTTPPort)
	if storage := strings.ToLower(env("ROOMBOOKING_STORAGE")); storage != "" {
		switch storage {
		case StorageSQLite, StoragePostgres, StorageMemory:
			cfg.Storage = storage
		default:
			invalid = append(invalid, "ROOMBOOKING_STORAGE")
		}
	}
	text("ROOMBOOKING_SQLITE_DSN", &cfg.SQLiteDSN)
	text("ROOMBOOKING_DATABASE_URL", &cfg.DatabaseURL)
	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "ROOMBOOKING_DATABASE_URL")
	}

	if cfg.JWTSecret = env("ROOMBOOKING_JWT_SECRET"); cfg.JWTSecret == "" {
		missing = append(missing, "ROOMBOOKING_JWT_SECRET")
	}
	duration("ROOMBOOKING_TOKEN_TTL", &cfg.TokenTTL)

	if origins := env("ROOMBOOKING_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	text("ROOMBOOKING_LOG_LEVEL", &cfg.LogLevel)
	if tz := env("ROOMBOOKING_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "ROOMBOOKING_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	text("ROOMBOOKING_AMQP_URL", &cfg.AMQPURL)
	text("ROOMBOOKING_AMQP_EXCHANGE", &cfg.AMQPExchange)
	text("ROOMBOOKING_AMQP_QUEUE", &cfg.AMQPQueue)
	positiveInt("ROOMBOOKING_AMQP_MAX_ATTEMPTS", &cfg.AMQPMaxAttempts)
	duration("ROOMBOOKING_AMQP_RETRY_DELAY", &cfg.AMQPRetryDelay)

	text("ROOMBOOKING_REDIS_ADDR", &cfg.RedisAddr)
	cfg.RedisPassword = os.Getenv("ROOMBOOKING_REDIS_PASSWORD")
	duration("ROOMBOOKING_OTP_TTL", &cfg.OTPTTL)

	text("ROOMBOOKING_SMTP_ADDR", &cfg.SMTP.Addr)
	text("ROOMBOOKING_SMTP_USERNAME", &cfg.SMTP.Username)
	cfg.SMTP.Password = os.Getenv("ROOMBOOKING_SMTP_PASSWORD")
	text("ROOMBOOKING_SMTP_FROM", &cfg.SMTP.From)
	if cfg.SMTP.Addr != "" && cfg.SMTP.From == "" {
		missing = append(missing, "ROOMBOOKING_SMTP_FROM")
	}

	positiveInt("ROOMBOOKING_NOTIFY_WORKERS", &cfg.NotifyWorkers)
	positiveInt("ROOMBOOKING_NOTIFY_QUEUE", &cfg.NotifyQueue)

	text("ROOMBOOKING_ADMIN_NAME", &cfg.AdminName)
	text("ROOMBOOKING_ADMIN_EMAIL", &cfg.AdminEmail)
	cfg.AdminPassword = os.Getenv("ROOMBOOKING_ADMIN_PASSWORD")
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		if cfg.AdminEmail == "" {
			missing = append(missing, "ROOMBOOKING_ADMIN_EMAIL")
		} else {
			missing = append(missing, "ROOMBOOKING_ADMIN_PASSWORD")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// ListenAddr returns the HTTP listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
