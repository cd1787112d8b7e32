package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) GetRoom(ctx context.Context, roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) ListPublicRooms(ctx context.Context) ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) ListJoinedRooms(ctx context.Context, userId int) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) DeleteRoom(ctx context.Context, roomId int, deletedAt time.Time) error {
	args := m.Called(roomId, deletedAt)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateMembership(ctx context.Context, roomId, userId int, joinedAt time.Time) (JoinResult, error) {
	args := m.Called(roomId, userId, joinedAt)
	return args.Get(0).(JoinResult), args.Error(1)
}
func (m *MockGoChatRepository) DeleteMembership(ctx context.Context, roomId, userId int) (LeaveResult, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(LeaveResult), args.Error(1)
}
func (m *MockGoChatRepository) GetMembership(ctx context.Context, roomId, userId int) (Membership, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockGoChatRepository) CountMembers(ctx context.Context, roomId int) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) ListMembers(ctx context.Context, roomId int) ([]Member, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockGoChatRepository) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) UpdateMessageBody(ctx context.Context, messageId int, body string, editedAt time.Time) (Message, error) {
	args := m.Called(messageId, body, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, deletedAt time.Time) error {
	args := m.Called(messageId, deletedAt)
	return args.Error(0)
}
func (m *MockGoChatRepository) QueryMessages(ctx context.Context, roomId, beforeId, limit int) ([]Message, error) {
	args := m.Called(roomId, beforeId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
