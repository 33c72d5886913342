package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/auth"
	"github.com/example/room-reservation/internal/config"
	httptransport "github.com/example/room-reservation/internal/http"
	"github.com/example/room-reservation/internal/mail"
	"github.com/example/room-reservation/internal/notification"
	"github.com/example/room-reservation/internal/otp"
	"github.com/example/room-reservation/internal/persistence/backend"
	"github.com/example/room-reservation/internal/persistence/bridge"
)

// app is the wired API server. close releases resources in reverse order of
// acquisition.
type app struct {
	handler    http.Handler
	hub        *notification.Hub
	dispatcher *notification.Dispatcher
	closers    []func(context.Context) error
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newMailer(cfg config.Config, logger *slog.Logger) (mail.Mailer, error) {
	if cfg.SMTP.Addr == "" {
		return mail.NewLogMailer(logger), nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Addr:     cfg.SMTP.Addr,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func newOTPStore(ctx context.Context, cfg config.Config) (otp.Store, func(context.Context) error, error) {
	if cfg.RedisAddr == "" {
		return otp.NewMemoryStore(0, nil), nil, nil
	}
	client, err := otp.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		return nil, nil, err
	}
	return otp.NewRedisStore(client, "otp:"), func(context.Context) error { return client.Close() }, nil
}

func newApp(ctx context.Context, cfg config.Config, mailer mail.Mailer, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := func() time.Time { return time.Now().In(loc) }

	repos, err := backend.Open(ctx, backend.FromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return repos.Close() })

	otpStore, closeOTP, err := newOTPStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otp store: %w", err)
	}
	if closeOTP != nil {
		a.closers = append(a.closers, closeOTP)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		return nil, err
	}

	directory := bridge.NewDirectory(repos.Users, repos.Rooms)
	roomRepo := bridge.NewRoomRepository(repos.Rooms)
	bookingStore := bridge.NewBookingStore(repos.Bookings)

	a.hub = notification.NewHub()
	sinks := notification.Fanout{a.hub}
	if cfg.AMQPURL != "" {
		publisher, err := notification.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return publisher.Close() })
		sinks = append(sinks, publisher)
		logger.InfoContext(ctx, "booking emails are delegated to the notifier", "exchange", cfg.AMQPExchange)
	} else {
		sinks = append(sinks, notification.NewEmailSender(directory, mailer, loc))
	}

	a.dispatcher = notification.NewDispatcher(sinks, notification.DispatcherOptions{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueue,
	}, logger)
	a.dispatcher.Start()
	a.closers = append(a.closers, a.dispatcher.Close)

	otpService := otp.NewService(otpStore, mailer, cfg.OTPTTL, logger)
	authService := application.NewAuthServiceWithLogger(bridge.NewCredentialStore(repos.Users), tokens, otpService, uuid.NewString, now, logger)
	roomService := application.NewRoomServiceWithLogger(roomRepo, bookingStore, uuid.NewString, now, logger)
	bookingService := application.NewBookingServiceWithLogger(bookingStore, roomService, directory, a.dispatcher, uuid.NewString, now, logger)
	userService := application.NewUserServiceWithLogger(bridge.NewUserStore(repos.Users), now, logger, cfg.AdminEmail)
	statsService := application.NewStatsServiceWithLogger(bookingStore, roomRepo, directory, now, logger)

	if cfg.AdminEmail != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return nil, fmt.Errorf("ensure admin: %w", err)
		}
	}

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Tokens:   tokens,
		Auth:     httptransport.NewAuthHandler(authService, logger),
		OTP:      httptransport.NewOTPHandler(otpService, logger),
		Users:    httptransport.NewUserHandler(userService, logger),
		Rooms:    httptransport.NewRoomHandler(roomService, logger),
		Bookings: httptransport.NewBookingHandler(bookingService, logger),
		Stats:    httptransport.NewStatsHandler(statsService, logger),
		Feed:     httptransport.NewFeedHandler(a.hub, notification.NewUpgrader(cfg.AllowedOrigins), logger),
		CORS:     httptransport.CORSOptions{AllowedOrigins: cfg.AllowedOrigins},
		Logger:   logger,
	})
	return a, nil
}
