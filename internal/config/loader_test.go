package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var allKeys = []string{
	"ROOMBOOKING_HTTP_PORT",
	"ROOMBOOKING_STORAGE",
	"ROOMBOOKING_SQLITE_DSN",
	"ROOMBOOKING_DATABASE_URL",
	"ROOMBOOKING_JWT_SECRET",
	"ROOMBOOKING_TOKEN_TTL",
	"ROOMBOOKING_ALLOWED_ORIGINS",
	"ROOMBOOKING_LOG_LEVEL",
	"ROOMBOOKING_TIMEZONE",
	"ROOMBOOKING_AMQP_URL",
	"ROOMBOOKING_AMQP_EXCHANGE",
	"ROOMBOOKING_AMQP_QUEUE",
	"ROOMBOOKING_AMQP_MAX_ATTEMPTS",
	"ROOMBOOKING_AMQP_RETRY_DELAY",
	"ROOMBOOKING_REDIS_ADDR",
	"ROOMBOOKING_REDIS_PASSWORD",
	"ROOMBOOKING_OTP_TTL",
	"ROOMBOOKING_SMTP_ADDR",
	"ROOMBOOKING_SMTP_USERNAME",
	"ROOMBOOKING_SMTP_PASSWORD",
	"ROOMBOOKING_SMTP_FROM",
	"ROOMBOOKING_NOTIFY_WORKERS",
	"ROOMBOOKING_NOTIFY_QUEUE",
	"ROOMBOOKING_ADMIN_NAME",
	"ROOMBOOKING_ADMIN_EMAIL",
	"ROOMBOOKING_ADMIN_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		const secret = "super-secret"
		t.Setenv("ROOMBOOKING_JWT_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 5000 {
			t.Fatalf("expected default HTTP port 5000, got %d", cfg.HTTPPort)
		}
		if cfg.Storage != StorageSQLite || cfg.SQLiteDSN != "file:reservations.db" {
			t.Fatalf("unexpected storage defaults: %q %q", cfg.Storage, cfg.SQLiteDSN)
		}
		if cfg.JWTSecret != secret {
			t.Fatalf("expected jwt secret to be %q, got %q", secret, cfg.JWTSecret)
		}
		if cfg.OTPTTL != 10*time.Minute || cfg.TokenTTL != 24*time.Hour {
			t.Fatalf("unexpected ttl defaults: otp=%s token=%s", cfg.OTPTTL, cfg.TokenTTL)
		}
		if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://localhost:5173"}) {
			t.Fatalf("unexpected default origins: %v", cfg.AllowedOrigins)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC location, got %v", cfg.Location)
		}
		if cfg.AMQPMaxAttempts != 5 || cfg.AMQPRetryDelay != 30*time.Second {
			t.Fatalf("unexpected broker retry defaults: attempts=%d delay=%s", cfg.AMQPMaxAttempts, cfg.AMQPRetryDelay)
		}
		if cfg.ListenAddr() != ":5000" {
			t.Fatalf("unexpected listen addr %q", cfg.ListenAddr())
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOKING_STORAGE", "postgres")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: ROOMBOOKING_DATABASE_URL, ROOMBOOKING_JWT_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("collects every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOKING_JWT_SECRET", "secret")
		t.Setenv("ROOMBOOKING_HTTP_PORT", "-1")
		t.Setenv("ROOMBOOKING_STORAGE", "mongo")
		t.Setenv("ROOMBOOKING_OTP_TTL", "soon")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		expected := "environment variables have invalid values: ROOMBOOKING_HTTP_PORT, ROOMBOOKING_STORAGE, ROOMBOOKING_OTP_TTL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires admin email and password together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOKING_JWT_SECRET", "secret")
		t.Setenv("ROOMBOOKING_ADMIN_EMAIL", "admin@example.com")

		_, err := Load()
		if err == nil || err.Error() != "required environment variables are not set: ROOMBOOKING_ADMIN_PASSWORD" {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROOMBOOKING_JWT_SECRET", "secret-value")
		t.Setenv("ROOMBOOKING_HTTP_PORT", "9090")
		t.Setenv("ROOMBOOKING_STORAGE", "Postgres")
		t.Setenv("ROOMBOOKING_DATABASE_URL", "postgres://localhost/reservations")
		t.Setenv("ROOMBOOKING_TOKEN_TTL", "2h")
		t.Setenv("ROOMBOOKING_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
		t.Setenv("ROOMBOOKING_NOTIFY_WORKERS", "8")
		t.Setenv("ROOMBOOKING_SMTP_ADDR", "smtp.example.com:587")
		t.Setenv("ROOMBOOKING_SMTP_FROM", "noreply@example.com")
		t.Setenv("ROOMBOOKING_TIMEZONE", "UTC")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.TokenTTL != 2*time.Hour {
			t.Fatalf("expected token TTL 2h, got %s", cfg.TokenTTL)
		}
		if cfg.HTTPPort != 9090 || cfg.NotifyWorkers != 8 {
			t.Fatalf("unexpected numeric fields: port=%d workers=%d", cfg.HTTPPort, cfg.NotifyWorkers)
		}
		if cfg.Storage != StoragePostgres || cfg.DatabaseURL != "postgres://localhost/reservations" {
			t.Fatalf("unexpected storage: %q %q", cfg.Storage, cfg.DatabaseURL)
		}
		if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
		if cfg.SMTP.Addr != "smtp.example.com:587" || cfg.SMTP.From != "noreply@example.com" {
			t.Fatalf("unexpected smtp config: %#v", cfg.SMTP)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("ROOMBOOKING_JWT_SECRET=from-file\nROOMBOOKING_HTTP_PORT=7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROOMBOOKING_HTTP_PORT", "6000")
	// godotenv only fills variables that are unset, not ones set to "".
	if err := os.Unsetenv("ROOMBOOKING_JWT_SECRET"); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Fatalf("expected secret from file, got %q", cfg.JWTSecret)
	}
	if cfg.HTTPPort != 6000 {
		t.Fatalf("expected environment to win over file, got %d", cfg.HTTPPort)
	}
}
