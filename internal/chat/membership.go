package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"golang.org/x/crypto/bcrypt"
)

type JoinOutcome struct {
	Membership database.Membership
	Room       database.Room
	// Joined is false when the actor was already a member.
	Joined bool
}

type LeaveOutcome struct {
	Left        bool
	MemberCount int
}

// Join makes the actor a member of the room. Joining a room twice is a
// no-op that emits no events.
func (s *Service) Join(ctx context.Context, actor Actor, roomId int, password string) (JoinOutcome, error) {
	room, err := s.GetRoom(ctx, roomId)
	if err != nil {
		return JoinOutcome{}, err
	}

	existing, err := s.repo.GetMembership(ctx, roomId, actor.UserId)
	if err == nil {
		return JoinOutcome{Membership: existing, Room: room}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return JoinOutcome{}, fmt.Errorf("get membership: %w", err)
	}

	if room.IsPrivate() {
		if err := bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)); err != nil {
			return JoinOutcome{}, forbidden("incorrect password")
		}
	}

	res, err := s.repo.CreateMembership(ctx, roomId, actor.UserId, s.now())
	if err != nil {
		return JoinOutcome{}, fmt.Errorf("create membership: %w", err)
	}
	room.MemberCount = res.MemberCount

	out := JoinOutcome{Membership: res.Membership, Room: room, Joined: res.Created}
	if !res.Created {
		// a concurrent request joined first and owns the broadcast
		return out, nil
	}

	s.log.Printf("user %d joined room %d", actor.UserId, roomId)

	if s.opts.AnnounceMembership {
		// the membership is committed, so narration failures are logged only
		if _, err := s.postSystemMessage(ctx, joinedMessage(roomId, actor)); err == nil {
			s.postSystemMessage(ctx, welcomeMessage(room, actor))
		}
		if fresh, err := s.repo.GetRoom(ctx, roomId); err == nil {
			out.Room = fresh
		}
	}

	s.bc.PublishToRoom(ctx, roomId, broadcast.UserJoinedChat{
		RoomId:      roomId,
		UserId:      actor.UserId,
		Username:    actor.Username,
		MemberCount: res.MemberCount,
	}, actor.SocketId)

	s.bc.PublishToUser(ctx, actor.UserId, broadcast.PersonalNotification{
		Type:      broadcast.NotificationSuccess,
		Message:   fmt.Sprintf("You joined %s", room.Name),
		Data:      ToRoom(out.Room),
		Timestamp: s.now(),
	})

	return out, nil
}

// Leave removes the actor from the room. Leaving a room one is not a member
// of does nothing.
func (s *Service) Leave(ctx context.Context, actor Actor, roomId int) (LeaveOutcome, error) {
	room, err := s.GetRoom(ctx, roomId)
	if err != nil {
		return LeaveOutcome{}, err
	}

	res, err := s.repo.DeleteMembership(ctx, roomId, actor.UserId)
	if err != nil {
		return LeaveOutcome{}, fmt.Errorf("delete membership: %w", err)
	}

	out := LeaveOutcome{Left: res.Removed, MemberCount: res.MemberCount}
	if !res.Removed {
		return out, nil
	}

	s.log.Printf("user %d left room %d", actor.UserId, roomId)

	if s.opts.AnnounceMembership {
		s.postSystemMessage(ctx, leftMessage(roomId, actor))
	}

	s.bc.PublishToRoom(ctx, roomId, broadcast.UserLeftChat{
		RoomId:      roomId,
		UserId:      actor.UserId,
		Username:    actor.Username,
		MemberCount: res.MemberCount,
	}, "")

	s.bc.PublishToUser(ctx, actor.UserId, broadcast.PersonalNotification{
		Type:      broadcast.NotificationInfo,
		Message:   fmt.Sprintf("You left %s", room.Name),
		Data:      map[string]int{"room_id": roomId},
		Timestamp: s.now(),
	})

	return out, nil
}

func (s *Service) MemberCount(ctx context.Context, roomId int) (int, error) {
	if _, err := s.GetRoom(ctx, roomId); err != nil {
		return 0, err
	}

	n, err := s.repo.CountMembers(ctx, roomId)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// JoinedAt returns when userId last joined roomId. ok is false for
// non-members.
func (s *Service) JoinedAt(ctx context.Context, roomId, userId int) (t time.Time, ok bool, err error) {
	m, err := s.repo.GetMembership(ctx, roomId, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get membership: %w", err)
	}
	return m.JoinedAt, true, nil
}

func (s *Service) IsMember(ctx context.Context, roomId, userId int) (bool, error) {
	_, ok, err := s.JoinedAt(ctx, roomId, userId)
	return ok, err
}
