package bridge

import (
	"context"
	"errors"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

// RoomRepository implements application.RoomRepository and
// application.RoomLister.
type RoomRepository struct {
	repo persistence.RoomRepository
}

// NewRoomRepository wraps a room repository.
func NewRoomRepository(repo persistence.RoomRepository) *RoomRepository {
	return &RoomRepository{repo: repo}
}

func (a *RoomRepository) CreateRoom(ctx context.Context, room application.Room) (application.Room, error) {
	if err := a.repo.CreateRoom(ctx, toPersistenceRoom(room)); err != nil {
		return application.Room{}, err
	}
	return a.GetRoom(ctx, room.ID)
}

func (a *RoomRepository) GetRoom(ctx context.Context, id string) (application.Room, error) {
	stored, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *RoomRepository) UpdateRoom(ctx context.Context, room application.Room) (application.Room, error) {
	if err := a.repo.UpdateRoom(ctx, toPersistenceRoom(room)); err != nil {
		return application.Room{}, err
	}
	return a.GetRoom(ctx, room.ID)
}

func (a *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	return a.repo.DeleteRoom(ctx, id)
}

func (a *RoomRepository) ListRooms(ctx context.Context) ([]application.Room, error) {
	models, err := a.repo.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	rooms := make([]application.Room, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, toApplicationRoom(model))
	}
	return rooms, nil
}

// Directory implements application.Directory over the user and room
// repositories. Unknown IDs are omitted from the result.
type Directory struct {
	users persistence.UserRepository
	rooms persistence.RoomRepository
}

// NewDirectory builds a Directory.
func NewDirectory(users persistence.UserRepository, rooms persistence.RoomRepository) *Directory {
	return &Directory{users: users, rooms: rooms}
}

func (d *Directory) LookupUsers(ctx context.Context, ids []string) (map[string]application.User, error) {
	users := make(map[string]application.User, len(ids))
	for _, id := range ids {
		stored, err := d.users.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return nil, err
		}
		users[id] = toApplicationUser(stored)
	}
	return users, nil
}

func (d *Directory) LookupRooms(ctx context.Context, ids []string) (map[string]application.Room, error) {
	rooms := make(map[string]application.Room, len(ids))
	for _, id := range ids {
		stored, err := d.rooms.GetRoom(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return nil, err
		}
		rooms[id] = toApplicationRoom(stored)
	}
	return rooms, nil
}
