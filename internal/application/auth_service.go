package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservation/internal/persistence"
)

// CredentialStore exposes the user credential operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, credentials UserCredentials) (User, error)
}

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(subject string, isAdmin bool) (token string, expiresAt time.Time, err error)
}

// EmailVerifier reports whether an email address completed one-time code
// verification. A successful check consumes the verification.
type EmailVerifier interface {
	ConsumeVerification(ctx context.Context, email string) (bool, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// PasswordHasher derives a storable hash from a password.
type PasswordHasher func(password string) (string, error)

// AuthService coordinates login, signup and administrator bootstrap.
type AuthService struct {
	credentials    CredentialStore
	tokens         TokenIssuer
	emails         EmailVerifier
	verifyPassword PasswordVerifier
	hashPassword   PasswordHasher
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, tokens TokenIssuer, emails EmailVerifier, idGenerator func() string, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(credentials, tokens, emails, idGenerator, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, tokens TokenIssuer, emails EmailVerifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AuthService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		credentials:    credentials,
		tokens:         tokens,
		emails:         emails,
		verifyPassword: VerifyPassword,
		hashPassword:   HashPassword,
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

// WithPasswordFuncs replaces the password hashing functions. Nil arguments
// keep the current ones.
func (s *AuthService) WithPasswordFuncs(hash PasswordHasher, verify PasswordVerifier) *AuthService {
	if hash != nil {
		s.hashPassword = hash
	}
	if verify != nil {
		s.verifyPassword = verify
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Login validates credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.tokens == nil {
		err = fmt.Errorf("auth dependencies not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login",
		"email", email,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "login succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	result, err = s.issue(creds.User)
	return
}

// Signup registers a user whose email address passed one-time code
// verification and signs them in.
func (s *AuthService) Signup(ctx context.Context, params SignupParams) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil || s.tokens == nil {
		err = fmt.Errorf("auth dependencies not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Signup",
		"email", email,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "signup failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "user signed up")
	}()

	name := strings.TrimSpace(params.Name)
	if vErr := validateSignup(name, email, params.Password); vErr.HasErrors() {
		err = vErr
		return
	}

	if _, lookupErr := s.credentials.GetUserCredentialsByEmail(ctx, email); lookupErr == nil {
		err = ErrAlreadyExists
		return
	} else if !isNotFound(lookupErr) {
		err = lookupErr
		return
	}

	if s.emails != nil {
		var verified bool
		verified, err = s.emails.ConsumeVerification(ctx, email)
		if err != nil {
			return
		}
		if !verified {
			err = newValidationError("email", "email address has not been verified")
			return
		}
	}

	var user User
	user, err = s.createUser(ctx, name, email, params.Password, false)
	if err != nil {
		return
	}
	result, err = s.issue(user)
	return
}

// CurrentUser returns the account behind an authenticated principal.
func (s *AuthService) CurrentUser(ctx context.Context, principal Principal) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("AuthService is nil")
	}
	if principal.UserID == "" {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.credentials.GetUser(ctx, principal.UserID)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when no account uses the
// email yet. An existing administrator is returned unchanged.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "EnsureAdmin",
		"email", email,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "admin bootstrap failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "admin account ready")
	}()

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	if vErr := validateSignup(name, email, password); vErr.HasErrors() {
		err = vErr
		return
	}

	creds, lookupErr := s.credentials.GetUserCredentialsByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		if !creds.User.IsAdmin {
			err = fmt.Errorf("user %s exists but is not an administrator", email)
			return
		}
		user = creds.User
		return
	case !isNotFound(lookupErr):
		err = lookupErr
		return
	}

	user, err = s.createUser(ctx, strings.TrimSpace(name), email, password, true)
	return
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, isAdmin bool) (User, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	user, err := s.credentials.CreateUser(ctx, UserCredentials{
		User: User{
			ID:        s.idGenerator(),
			Email:     email,
			Name:      name,
			IsAdmin:   isAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, ErrAlreadyExists) {
			return User{}, ErrAlreadyExists
		}
		return User{}, err
	}
	return user, nil
}

func (s *AuthService) issue(user User) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func validateSignup(name, email, password string) *ValidationError {
	vErr := validateProfile(name, email)
	if len(password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return vErr
}

func validateProfile(name, email string) *ValidationError {
	vErr := &ValidationError{}
	if name == "" {
		vErr.add("name", "name is required")
	}
	if email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		vErr.add("email", "email must be a valid address")
	}
	return vErr
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
