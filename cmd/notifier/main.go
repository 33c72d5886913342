// Command notifier consumes booking status events from RabbitMQ and emails
// the booking owner.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/room-reservation/internal/config"
	"github.com/example/room-reservation/internal/logging"
	"github.com/example/room-reservation/internal/mail"
	"github.com/example/room-reservation/internal/notification"
	"github.com/example/room-reservation/internal/persistence/backend"
	"github.com/example/room-reservation/internal/persistence/bridge"
)

var errNoBroker = errors.New("AMQP_URL is required for the notifier")

func main() {
	logger := logging.New(os.Stdout, logging.ParseLevel(os.Getenv("ROOMBOOKING_LOG_LEVEL")))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel)).With("service", "notifier")

	if cfg.AMQPURL == "" {
		logger.Error("cannot start", "error", errNoBroker)
		os.Exit(1)
	}

	opts := backend.FromConfig(cfg)
	opts.SkipMigrations = true
	repos, err := backend.Open(ctx, opts, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.SMTP.Addr != "" {
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			logger.Error("failed to configure mailer", "error", err)
			os.Exit(1)
		}
	}

	sender := notification.NewEmailSender(bridge.NewDirectory(repos.Users, repos.Rooms), mailer, cfg.Location)
	consumer, err := notification.NewConsumer(notification.ConsumerConfig{
		URL:         cfg.AMQPURL,
		Exchange:    cfg.AMQPExchange,
		Queue:       cfg.AMQPQueue,
		MaxAttempts: cfg.AMQPMaxAttempts,
		RetryDelay:  cfg.AMQPRetryDelay,
	}, sender, logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() { _ = consumer.Close() }()

	logger.Info("notifier consuming", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
