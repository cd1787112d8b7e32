package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-teahub/internal/database"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxRoomNameLength  = 255
	minRoomPasswordLen = 6
)

type CreateRoomInput struct {
	Name        string
	Description string
	// Password makes the room private when set.
	Password string
}

// CreateRoom creates a room with the actor as its first member.
func (s *Service) CreateRoom(ctx context.Context, actor Actor, in CreateRoomInput) (database.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return database.Room{}, invalid("room name is required")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return database.Room{}, invalid("room name must be at most %d characters", maxRoomNameLength)
	}

	var passwordHash string
	if in.Password != "" {
		if len(in.Password) < minRoomPasswordLen {
			return database.Room{}, invalid("room password must be at least %d characters", minRoomPasswordLen)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return database.Room{}, fmt.Errorf("hash room password: %w", err)
		}
		passwordHash = string(hash)
	}

	room, err := s.repo.CreateRoom(ctx, database.CreateRoomParams{
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		CreatorId:    actor.UserId,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return database.Room{}, fmt.Errorf("create room: %w", err)
	}

	s.log.Printf("user %d created room %d", actor.UserId, room.Id)
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, roomId int) (database.Room, error) {
	room, err := s.repo.GetRoom(ctx, roomId)
	if err != nil {
		return database.Room{}, notFoundOr(err, "get room", "room")
	}
	return room, nil
}

// DeleteRoom soft-deletes a room. Only its creator may delete it.
func (s *Service) DeleteRoom(ctx context.Context, actor Actor, roomId int) error {
	room, err := s.GetRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if room.CreatorId != actor.UserId {
		return forbidden("only the room creator can delete this room")
	}

	if err := s.repo.DeleteRoom(ctx, roomId, s.now()); err != nil {
		return notFoundOr(err, "delete room", "room")
	}

	return nil
}

func (s *Service) ListPublicRooms(ctx context.Context) ([]database.Room, error) {
	rooms, err := s.repo.ListPublicRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}
	return rooms, nil
}

func (s *Service) ListJoinedRooms(ctx context.Context, userId int) ([]database.Room, error) {
	rooms, err := s.repo.ListJoinedRooms(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list joined rooms: %w", err)
	}
	return rooms, nil
}

// ListMembers returns the room's members to one of its members.
func (s *Service) ListMembers(ctx context.Context, actor Actor, roomId int) ([]database.Member, error) {
	if err := s.requireMember(ctx, roomId, actor.UserId); err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// requireMember fails with not found for a missing room and forbidden for
// a non-member.
func (s *Service) requireMember(ctx context.Context, roomId, userId int) error {
	if _, err := s.GetRoom(ctx, roomId); err != nil {
		return err
	}

	_, err := s.repo.GetMembership(ctx, roomId, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return forbidden("you are not a member of this room")
	}
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}

	return nil
}
