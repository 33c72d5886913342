package bridge

import (
	"context"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

// CredentialStore implements application.CredentialStore.
type CredentialStore struct {
	repo persistence.UserRepository
}

// NewCredentialStore wraps a user repository.
func NewCredentialStore(repo persistence.UserRepository) *CredentialStore {
	return &CredentialStore{repo: repo}
}

func (a *CredentialStore) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *CredentialStore) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *CredentialStore) CreateUser(ctx context.Context, credentials application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(credentials.User, credentials.PasswordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, credentials.User.ID)
}

// UserStore implements application.UserStore. Password hashes never leave
// the adapter; profile updates keep the stored hash.
type UserStore struct {
	repo persistence.UserRepository
}

// NewUserStore wraps a user repository.
func NewUserStore(repo persistence.UserRepository) *UserStore {
	return &UserStore{repo: repo}
}

func (a *UserStore) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *UserStore) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *UserStore) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, err
	}
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(user, stored.PasswordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *UserStore) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	stored.PasswordHash = hash
	stored.UpdatedAt = at
	return a.repo.UpdateUser(ctx, stored)
}

func (a *UserStore) DeleteUser(ctx context.Context, id string) error {
	return a.repo.DeleteUser(ctx, id)
}
