// Package mail sends outbound email messages.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	gomail "github.com/wneessen/go-mail"

	"github.com/example/room-reservation/internal/logging"
)

// ErrInvalidMessage reports a message that no relay will ever accept, such
// as one without a usable recipient. Retrying it is pointless.
var ErrInvalidMessage = errors.New("mail: invalid message")

// Message is a single HTML or plain text email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SMTPMailer delivers messages through an SMTP relay. STARTTLS is used when
// the relay offers it and PLAIN auth when credentials are configured.
type SMTPMailer struct {
	cfg    SMTPConfig
	host   string
	port   int
	dialer net.Dialer
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Addr == "" || cfg.From == "" {
		return nil, errors.New("mail: smtp address and sender are required")
	}
	host, rawPort, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid smtp address %q: %w", cfg.Addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("mail: invalid smtp port %q", rawPort)
	}
	if err := gomail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("mail: invalid sender %q: %w", cfg.From, err)
	}
	return &SMTPMailer{cfg: cfg, host: host, port: port}, nil
}

// Send delivers msg over a fresh connection. Cancelling ctx or reaching its
// deadline aborts the exchange at any stage, including a relay that never
// sends its greeting.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email, err := m.compose(msg)
	if err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		stops []func() bool
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, stop := range stops {
			stop()
		}
	}()
	dial := func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		conn, err := m.dialer.DialContext(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		stops = append(stops, context.AfterFunc(ctx, func() { _ = conn.Close() }))
		mu.Unlock()
		return conn, nil
	}

	opts := []gomail.Option{
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithPort(m.port),
		gomail.WithDialContextFunc(dial),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("mail: configure client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("mail: send to %s: %w", msg.To, ctxErr)
		}
		return fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) (*gomail.Msg, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}

	email := gomail.NewMsg()
	if err := email.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("mail: sender %q: %w", m.cfg.From, err)
	}
	if err := email.To(to); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %v", ErrInvalidMessage, to, err)
	}
	email.Subject(sanitizeHeader(msg.Subject))
	email.SetDate()
	if msg.HTML != "" {
		email.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	} else {
		email.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return email, nil
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// LogMailer writes messages to the structured log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer. A nil logger selects the default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not sent, no smtp relay configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}
