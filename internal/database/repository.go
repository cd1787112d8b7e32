package database

import (
	"context"
	"time"
)

type GoChatRepository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, userId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoom(ctx context.Context, roomId int) (Room, error)
	ListPublicRooms(ctx context.Context) ([]Room, error)
	ListJoinedRooms(ctx context.Context, userId int) ([]Room, error)
	DeleteRoom(ctx context.Context, roomId int, deletedAt time.Time) error

	CreateMembership(ctx context.Context, roomId, userId int, joinedAt time.Time) (JoinResult, error)
	DeleteMembership(ctx context.Context, roomId, userId int) (LeaveResult, error)
	GetMembership(ctx context.Context, roomId, userId int) (Membership, error)
	CountMembers(ctx context.Context, roomId int) (int, error)
	ListMembers(ctx context.Context, roomId int) ([]Member, error)

	AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error)
	GetMessage(ctx context.Context, messageId int) (Message, error)
	UpdateMessageBody(ctx context.Context, messageId int, body string, editedAt time.Time) (Message, error)
	SoftDeleteMessage(ctx context.Context, messageId int, deletedAt time.Time) error
	QueryMessages(ctx context.Context, roomId, beforeId, limit int) ([]Message, error)
}
