package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
)

func (s *Service) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", invalid("message body is required")
	}
	if utf8.RuneCountInString(body) > s.opts.MaxMessageLength {
		return "", invalid("message body must be at most %d characters", s.opts.MaxMessageLength)
	}
	return body, nil
}

// SendMessage stores a user message and broadcasts it to the room.
func (s *Service) SendMessage(ctx context.Context, actor Actor, roomId int, body string) (database.Message, error) {
	body, err := s.validateBody(body)
	if err != nil {
		return database.Message{}, err
	}

	if err := s.requireMember(ctx, roomId, actor.UserId); err != nil {
		return database.Message{}, err
	}

	msg, err := s.append(ctx, database.AppendMessageParams{
		RoomId:  roomId,
		UserId:  &actor.UserId,
		Body:    body,
		Type:    database.MessageTypeUser,
		Subtype: database.SubtypeGeneric,
	})
	if err != nil {
		return database.Message{}, err
	}

	s.bc.PublishToRoom(ctx, roomId, broadcast.MessageSent{Message: ToMessage(msg)}, actor.SocketId)

	return msg, nil
}

// PostAnnouncement stores an admin message from the room creator.
func (s *Service) PostAnnouncement(ctx context.Context, actor Actor, roomId int, body string) (database.Message, error) {
	body, err := s.validateBody(body)
	if err != nil {
		return database.Message{}, err
	}

	room, err := s.GetRoom(ctx, roomId)
	if err != nil {
		return database.Message{}, err
	}
	if room.CreatorId != actor.UserId {
		return database.Message{}, forbidden("only the room creator can post announcements")
	}

	return s.postSystemMessage(ctx, adminMessage(roomId, actor, body))
}

// editableMessage loads a message the actor is allowed to modify.
func (s *Service) editableMessage(ctx context.Context, actor Actor, messageId int, verb string) (database.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageId)
	if err != nil {
		return database.Message{}, notFoundOr(err, "get message", "message")
	}

	if _, err := s.GetRoom(ctx, msg.RoomId); err != nil {
		return database.Message{}, notFound("message not found")
	}

	if msg.Type != database.MessageTypeUser {
		return database.Message{}, forbidden("%s messages cannot be %s", msg.Type, verb)
	}
	if !msg.AuthoredBy(actor.UserId) {
		return database.Message{}, forbidden("you can only modify your own messages")
	}

	return msg, nil
}

func (s *Service) EditMessage(ctx context.Context, actor Actor, messageId int, body string) (database.Message, error) {
	body, err := s.validateBody(body)
	if err != nil {
		return database.Message{}, err
	}

	if _, err := s.editableMessage(ctx, actor, messageId, "edited"); err != nil {
		return database.Message{}, err
	}

	editedAt := s.now()
	msg, err := s.repo.UpdateMessageBody(ctx, messageId, body, editedAt)
	if err != nil {
		return database.Message{}, notFoundOr(err, "update message", "message")
	}

	s.bc.PublishToRoom(ctx, msg.RoomId, broadcast.MessageEdited{
		MessageId: msg.Id,
		RoomId:    msg.RoomId,
		Body:      msg.Body,
		EditedAt:  editedAt,
	}, actor.SocketId)

	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, actor Actor, messageId int) error {
	msg, err := s.editableMessage(ctx, actor, messageId, "deleted")
	if err != nil {
		return err
	}

	if err := s.repo.SoftDeleteMessage(ctx, messageId, s.now()); err != nil {
		return notFoundOr(err, "delete message", "message")
	}

	s.bc.PublishToRoom(ctx, msg.RoomId, broadcast.MessageDeleted{
		MessageId: msg.Id,
		RoomId:    msg.RoomId,
	}, actor.SocketId)

	return nil
}

// Typing relays a typing indicator to the other members. Nothing is stored.
func (s *Service) Typing(ctx context.Context, actor Actor, roomId int) error {
	if err := s.requireMember(ctx, roomId, actor.UserId); err != nil {
		return err
	}

	s.bc.PublishToRoom(ctx, roomId, broadcast.UserTyping{
		RoomId:   roomId,
		UserId:   actor.UserId,
		Username: actor.Username,
	}, actor.SocketId)

	return nil
}
