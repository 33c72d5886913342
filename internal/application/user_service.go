package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

// UserStore captures the account operations needed by the user service.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// UserService manages existing accounts. Administrators see and edit every
// account; members may read and edit only their own. Protected accounts,
// normally the bootstrap administrator, cannot be deleted, demoted or
// renamed to another email.
type UserService struct {
	users        UserStore
	hashPassword PasswordHasher
	protected    map[string]struct{}
	now          func() time.Time
	logger       *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserStore, now func() time.Time, protectedEmails ...string) *UserService {
	return NewUserServiceWithLogger(users, now, nil, protectedEmails...)
}

// NewUserServiceWithLogger wires dependencies with a specific logger.
func NewUserServiceWithLogger(users UserStore, now func() time.Time, logger *slog.Logger, protectedEmails ...string) *UserService {
	if now == nil {
		now = time.Now
	}
	protected := make(map[string]struct{}, len(protectedEmails))
	for _, email := range protectedEmails {
		if email = normalizeEmail(email); email != "" {
			protected[email] = struct{}{}
		}
	}
	return &UserService{
		users:        users,
		hashPassword: HashPassword,
		protected:    protected,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// WithPasswordHasher replaces the hash function used by ChangePassword.
func (s *UserService) WithPasswordHasher(hash PasswordHasher) *UserService {
	if hash != nil {
		s.hashPassword = hash
	}
	return s
}

func (s *UserService) isProtected(user User) bool {
	_, ok := s.protected[normalizeEmail(user.Email)]
	return ok
}

// ListUsers returns every account ordered by name for administrators.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) (users []User, err error) {
	if s == nil || s.users == nil {
		err = fmt.Errorf("user service not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "ListUsers", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list users", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(users)).InfoContext(ctx, "users listed")
	}()

	if !principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if users, err = s.users.ListUsers(ctx); err != nil {
		return
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Name), strings.ToLower(users[j].Name)
		if a != b {
			return a < b
		}
		return users[i].Email < users[j].Email
	})
	return
}

// GetUser returns one account to its owner or an administrator.
func (s *UserService) GetUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("user service not configured")
	}
	if !principal.IsAdmin && principal.UserID != userID {
		return User{}, ErrForbidden
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapUserRepoError(err)
	}
	return user, nil
}

// UpdateUser applies a partial update. Only administrators may change
// IsAdmin.
func (s *UserService) UpdateUser(ctx context.Context, params UpdateUserParams) (user User, err error) {
	if s == nil || s.users == nil {
		err = fmt.Errorf("user service not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "UpdateUser",
		"principal_id", params.Principal.UserID,
		"user_id", params.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user updated")
	}()

	principal, patch := params.Principal, params.Patch
	if !principal.IsAdmin && (principal.UserID != params.UserID || patch.IsAdmin != nil) {
		err = ErrForbidden
		return
	}

	var current User
	if current, err = s.users.GetUser(ctx, params.UserID); err != nil {
		err = mapUserRepoError(err)
		return
	}
	if patch.isEmpty() {
		user = current
		return
	}

	updated := current
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		updated.Email = normalizeEmail(*patch.Email)
	}
	if patch.IsAdmin != nil {
		updated.IsAdmin = *patch.IsAdmin
	}

	if s.isProtected(current) && (!updated.IsAdmin || updated.Email != normalizeEmail(current.Email)) {
		err = ErrProtectedAccount
		return
	}

	if vErr := validateProfile(updated.Name, updated.Email); vErr.HasErrors() {
		err = vErr
		return
	}

	updated.UpdatedAt = s.now()
	user, err = s.users.UpdateUser(ctx, updated)
	err = mapUserRepoError(err)
	return
}

// ChangePassword replaces the password of an account. Owners may change
// their own password; administrators may change anyone's.
func (s *UserService) ChangePassword(ctx context.Context, params ChangePasswordParams) (err error) {
	if s == nil || s.users == nil {
		return fmt.Errorf("user service not configured")
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "ChangePassword",
		"principal_id", params.Principal.UserID,
		"user_id", params.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change password", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password changed")
	}()

	if !params.Principal.IsAdmin && params.Principal.UserID != params.UserID {
		return ErrForbidden
	}
	if len(params.Password) < MinPasswordLength {
		return newValidationError("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.hashPassword(params.Password)
	if err != nil {
		return err
	}
	return mapUserRepoError(s.users.SetPasswordHash(ctx, params.UserID, hash, s.now()))
}

// DeleteUser removes an account and, with it, every booking it owns.
// Administrators cannot delete themselves or a protected account.
func (s *UserService) DeleteUser(ctx context.Context, principal Principal, userID string) (err error) {
	if s == nil || s.users == nil {
		return fmt.Errorf("user service not configured")
	}

	logger := serviceLogger(ctx, s.logger, "UserService", "DeleteUser",
		"principal_id", principal.UserID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user deleted")
	}()

	if !principal.IsAdmin || principal.UserID == userID {
		return ErrForbidden
	}

	target, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return mapUserRepoError(err)
	}
	if s.isProtected(target) {
		return ErrProtectedAccount
	}
	return mapUserRepoError(s.users.DeleteUser(ctx, userID))
}

func mapUserRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate), errors.Is(err, ErrAlreadyExists):
		return ErrAlreadyExists
	}
	return err
}
