package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("issues tokens for valid credentials", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub(UserCredentials{
			User:         User{ID: "user-1", Email: "user@example.com", IsAdmin: true},
			PasswordHash: "hash:secret",
		})
		tokens := &tokenIssuerStub{token: "signed", expiresAt: now.Add(time.Hour)}
		svc := newTestAuthService(creds, tokens, nil, now)

		result, err := svc.Login(context.Background(), LoginParams{Email: " User@Example.com ", Password: "secret"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if result.Token != "signed" || !result.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Fatalf("unexpected auth result: %#v", result)
		}
		if tokens.subject != "user-1" || !tokens.isAdmin {
			t.Fatalf("expected token for admin user-1, got %s admin=%v", tokens.subject, tokens.isAdmin)
		}
	})

	t.Run("rejects wrong passwords with sentinel error", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub(UserCredentials{
			User:         User{ID: "user-1", Email: "user@example.com"},
			PasswordHash: "hash:secret",
		})
		svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, now)

		_, err := svc.Login(context.Background(), LoginParams{Email: "user@example.com", Password: "nope"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("maps unknown emails to invalid credentials", func(t *testing.T) {
		t.Parallel()

		svc := newTestAuthService(newCredentialStoreStub(), &tokenIssuerStub{}, nil, now)

		_, err := svc.Login(context.Background(), LoginParams{Email: "ghost@example.com", Password: "secret"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("propagates repository failures", func(t *testing.T) {
		t.Parallel()

		expected := errors.New("db down")
		creds := newCredentialStoreStub()
		creds.err = expected
		svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, now)

		_, err := svc.Login(context.Background(), LoginParams{Email: "user@example.com", Password: "secret"})
		if !errors.Is(err, expected) {
			t.Fatalf("expected %v, got %v", expected, err)
		}
	})
}

func TestAuthService_Signup(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("creates verified users and signs them in", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub()
		emails := &emailVerifierStub{verified: map[string]bool{"new@example.com": true}}
		svc := newTestAuthService(creds, &tokenIssuerStub{token: "signed"}, emails, now)

		result, err := svc.Signup(context.Background(), SignupParams{Name: " New User ", Email: "New@example.com", Password: "password1"})
		if err != nil {
			t.Fatalf("Signup failed: %v", err)
		}
		if result.User.ID != "user-id" || result.User.Name != "New User" || result.User.IsAdmin {
			t.Fatalf("unexpected user: %#v", result.User)
		}
		stored := creds.byEmail["new@example.com"]
		if stored.PasswordHash != "hash:password1" {
			t.Fatalf("expected hashed password to be stored, got %q", stored.PasswordHash)
		}
		if !stored.User.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, stored.User.CreatedAt)
		}
		if emails.verified["new@example.com"] {
			t.Fatal("expected verification to be consumed")
		}
	})

	t.Run("requires a verified email", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub()
		svc := newTestAuthService(creds, &tokenIssuerStub{}, &emailVerifierStub{}, now)

		_, err := svc.Signup(context.Background(), SignupParams{Name: "New", Email: "new@example.com", Password: "password1"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["email"] == "" {
			t.Fatalf("expected email validation error, got %v", err)
		}
		if len(creds.byEmail) != 0 {
			t.Fatal("expected no user to be created")
		}
	})

	t.Run("validates input before consuming verification", func(t *testing.T) {
		t.Parallel()

		emails := &emailVerifierStub{verified: map[string]bool{"bad": true}}
		svc := newTestAuthService(newCredentialStoreStub(), &tokenIssuerStub{}, emails, now)

		_, err := svc.Signup(context.Background(), SignupParams{Email: "bad", Password: "short"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"name", "email", "password"} {
			if vErr.FieldErrors[field] == "" {
				t.Fatalf("expected %s field error, got %#v", field, vErr.FieldErrors)
			}
		}
		if !emails.verified["bad"] {
			t.Fatal("expected verification to be left untouched")
		}
	})

	t.Run("rejects duplicate emails", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub(UserCredentials{User: User{ID: "user-1", Email: "taken@example.com"}})
		emails := &emailVerifierStub{verified: map[string]bool{"taken@example.com": true}}
		svc := newTestAuthService(creds, &tokenIssuerStub{}, emails, now)

		_, err := svc.Signup(context.Background(), SignupParams{Name: "Dup", Email: "taken@example.com", Password: "password1"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("maps storage duplicates raised during insert", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub()
		creds.createErr = persistence.ErrDuplicate
		svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, now)

		_, err := svc.Signup(context.Background(), SignupParams{Name: "Race", Email: "race@example.com", Password: "password1"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestAuthService_CurrentUser(t *testing.T) {
	t.Parallel()

	creds := newCredentialStoreStub(UserCredentials{User: User{ID: "user-1", Email: "user@example.com"}})
	svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, time.Now())

	user, err := svc.CurrentUser(context.Background(), Principal{UserID: "user-1"})
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("unexpected user: %#v", user)
	}

	if _, err := svc.CurrentUser(context.Background(), Principal{UserID: "missing"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for missing user, got %v", err)
	}
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	t.Parallel()

	t.Run("creates the administrator once", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub()
		svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, time.Now())

		first, err := svc.EnsureAdmin(context.Background(), "", "admin@example.com", "password1")
		if err != nil {
			t.Fatalf("EnsureAdmin failed: %v", err)
		}
		if !first.IsAdmin || first.Name != "Administrator" {
			t.Fatalf("unexpected admin: %#v", first)
		}

		second, err := svc.EnsureAdmin(context.Background(), "", "admin@example.com", "password1")
		if err != nil {
			t.Fatalf("second EnsureAdmin failed: %v", err)
		}
		if second.ID != first.ID || creds.creates != 1 {
			t.Fatalf("expected existing admin to be reused, creates=%d", creds.creates)
		}
	})

	t.Run("refuses to promote an existing member", func(t *testing.T) {
		t.Parallel()

		creds := newCredentialStoreStub(UserCredentials{User: User{ID: "user-1", Email: "admin@example.com"}})
		svc := newTestAuthService(creds, &tokenIssuerStub{}, nil, time.Now())

		if _, err := svc.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "password1"); err == nil {
			t.Fatal("expected error for non-admin account")
		}
	})
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected password to verify, got %v", err)
	}
	if err := VerifyPassword(hash, "battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := VerifyPassword("not-a-hash", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for malformed hash, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected error for oversized password")
	}
}

func newTestAuthService(creds CredentialStore, tokens TokenIssuer, emails EmailVerifier, now time.Time) *AuthService {
	svc := NewAuthService(creds, tokens, emails, func() string { return "user-id" }, func() time.Time { return now })
	return svc.WithPasswordFuncs(
		func(password string) (string, error) { return "hash:" + password, nil },
		func(hashed, password string) error {
			if hashed != "hash:"+password {
				return ErrInvalidCredentials
			}
			return nil
		},
	)
}

// credentialStoreStub implements CredentialStore for tests.
type credentialStoreStub struct {
	byEmail   map[string]UserCredentials
	err       error
	createErr error
	creates   int
}

func newCredentialStoreStub(seed ...UserCredentials) *credentialStoreStub {
	stub := &credentialStoreStub{byEmail: make(map[string]UserCredentials)}
	for _, creds := range seed {
		stub.byEmail[creds.User.Email] = creds
	}
	return stub
}

func (c *credentialStoreStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	if c.err != nil {
		return UserCredentials{}, c.err
	}
	creds, ok := c.byEmail[email]
	if !ok {
		return UserCredentials{}, ErrNotFound
	}
	return creds, nil
}

func (c *credentialStoreStub) GetUser(ctx context.Context, id string) (User, error) {
	if c.err != nil {
		return User{}, c.err
	}
	for _, creds := range c.byEmail {
		if creds.User.ID == id {
			return creds.User, nil
		}
	}
	return User{}, ErrNotFound
}

func (c *credentialStoreStub) CreateUser(ctx context.Context, creds UserCredentials) (User, error) {
	if c.createErr != nil {
		return User{}, c.createErr
	}
	c.creates++
	c.byEmail[creds.User.Email] = creds
	return creds.User, nil
}

type tokenIssuerStub struct {
	token     string
	expiresAt time.Time
	err       error

	subject string
	isAdmin bool
}

func (s *tokenIssuerStub) Issue(subject string, isAdmin bool) (string, time.Time, error) {
	s.subject = subject
	s.isAdmin = isAdmin
	return s.token, s.expiresAt, s.err
}

type emailVerifierStub struct {
	verified map[string]bool
	err      error
}

func (s *emailVerifierStub) ConsumeVerification(ctx context.Context, email string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if !s.verified[email] {
		return false, nil
	}
	delete(s.verified, email)
	return true, nil
}
