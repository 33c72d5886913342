// Package otp issues and verifies one-time signup codes delivered by email.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/logging"
	mailer "github.com/example/room-reservation/internal/mail"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 10 * time.Minute

// ErrInvalidCode is returned when a code is wrong, expired or never issued.
var ErrInvalidCode = errors.New("otp: invalid or expired code")

// ErrInvalidEmail is returned for malformed addresses.
var ErrInvalidEmail = errors.New("otp: invalid email address")

const (
	codePrefix     = "code:"
	verifiedPrefix = "verified:"
	codeDigits     = 6
)

// Service issues codes, checks them, and records verified addresses until
// signup consumes them.
type Service struct {
	store    Store
	mailer   mailer.Mailer
	ttl      time.Duration
	generate func() (string, error)
	logger   *slog.Logger
}

// NewService wires a store and a mailer. A non-positive ttl selects DefaultTTL.
func NewService(store Store, m mailer.Mailer, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, mailer: m, ttl: ttl, generate: generateCode, logger: logger}
}

// Issue stores a fresh code for email, replacing any earlier one, and mails it.
func (s *Service) Issue(ctx context.Context, email string) error {
	email, err := normalize(email)
	if err != nil {
		return err
	}
	logger := logging.FromContextOr(ctx, s.logger).With("service", "OTPService", "operation", "Issue")

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("otp: generate code: %w", err)
	}
	if err := s.store.Put(ctx, codePrefix+email, code, s.ttl); err != nil {
		logger.ErrorContext(ctx, "failed to store otp", "error", err)
		return err
	}

	minutes := int(s.ttl / time.Minute)
	msg := mailer.Message{
		To:      email,
		Subject: "Your OTP Code",
		Text:    fmt.Sprintf("Your OTP is %s. It expires in %d minutes.", code, minutes),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "failed to send otp", "error", err)
		_ = s.store.Delete(ctx, codePrefix+email)
		return err
	}
	logger.InfoContext(ctx, "otp issued")
	return nil
}

// Verify checks code against the stored one. A wrong code leaves the stored
// code in place; a correct one is consumed and the address is marked as
// verified for the same ttl.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	email, err := normalize(email)
	if err != nil {
		return err
	}
	stored, err := s.store.Get(ctx, codePrefix+email)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	if _, err := s.store.Take(ctx, codePrefix+email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	return s.store.Put(ctx, verifiedPrefix+email, "1", s.ttl)
}

// ConsumeVerification reports whether email was verified and clears the mark.
func (s *Service) ConsumeVerification(ctx context.Context, email string) (bool, error) {
	email, err := normalize(email)
	if err != nil {
		return false, nil
	}
	if _, err := s.store.Take(ctx, verifiedPrefix+email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func normalize(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
