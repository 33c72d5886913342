package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailer "github.com/example/room-reservation/internal/mail"
)

type recordingMailer struct {
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newTestService(m mailer.Mailer) (*Service, *MemoryStore) {
	store := NewMemoryStore(0, nil)
	svc := NewService(store, m, 0, nil)
	svc.generate = func() (string, error) { return "123456", nil }
	return svc, store
}

func TestService_IssueMailsCode(t *testing.T) {
	ctx := context.Background()
	m := &recordingMailer{}
	svc, store := newTestService(m)

	require.NoError(t, svc.Issue(ctx, " Ann@Example.com "))

	require.Len(t, m.sent, 1)
	assert.Equal(t, "ann@example.com", m.sent[0].To)
	assert.Equal(t, "Your OTP Code", m.sent[0].Subject)
	assert.Equal(t, "Your OTP is 123456. It expires in 10 minutes.", m.sent[0].Text)

	stored, err := store.Get(ctx, codePrefix+"ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", stored)
}

func TestService_IssueRejectsBadEmail(t *testing.T) {
	svc, _ := newTestService(&recordingMailer{})
	assert.ErrorIs(t, svc.Issue(context.Background(), "not-an-email"), ErrInvalidEmail)
}

func TestService_IssueDropsCodeWhenMailFails(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(&recordingMailer{err: errors.New("relay down")})

	require.Error(t, svc.Issue(ctx, "ann@example.com"))
	assert.Zero(t, store.Len())
}

func TestService_VerifyLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(&recordingMailer{})
	require.NoError(t, svc.Issue(ctx, "ann@example.com"))

	assert.ErrorIs(t, svc.Verify(ctx, "ann@example.com", "000000"), ErrInvalidCode)
	require.NoError(t, svc.Verify(ctx, "ann@example.com", "123456"), "wrong guess must not burn the code")
	assert.ErrorIs(t, svc.Verify(ctx, "ann@example.com", "123456"), ErrInvalidCode, "code is single use")

	ok, err := svc.ConsumeVerification(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ConsumeVerification(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_VerifyUnknownEmail(t *testing.T) {
	svc, _ := newTestService(&recordingMailer{})
	assert.ErrorIs(t, svc.Verify(context.Background(), "ghost@example.com", "123456"), ErrInvalidCode)
}

func TestGenerateCode(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestService_UsesConfiguredTTLInBody(t *testing.T) {
	m := &recordingMailer{}
	svc := NewService(NewMemoryStore(0, nil), m, 5*time.Minute, nil)
	svc.generate = func() (string, error) { return "654321", nil }

	require.NoError(t, svc.Issue(context.Background(), "ann@example.com"))
	assert.Equal(t, "Your OTP is 654321. It expires in 5 minutes.", m.sent[0].Text)
}
