package broadcast

import (
	"time"

	"github.com/npezzotti/go-teahub/internal/types"
)

const (
	EventMessageSent          = "MessageSent"
	EventMessageEdited        = "MessageEdited"
	EventMessageDeleted       = "MessageDeleted"
	EventUserJoinedChat       = "UserJoinedChat"
	EventUserLeftChat         = "UserLeftChat"
	EventUserTyping           = "UserTyping"
	EventPersonalNotification = "PersonalNotification"
)

const (
	NotificationSuccess = "success"
	NotificationInfo    = "info"
)

// Event is one entry of the event catalogue. The concrete types below are
// the only implementations.
type Event interface {
	EventName() string
	isEvent()
}

type MessageSent struct {
	types.Message
}

type MessageEdited struct {
	MessageId int       `json:"message_id"`
	RoomId    int       `json:"room_id"`
	Body      string    `json:"body"`
	EditedAt  time.Time `json:"edited_at"`
}

type MessageDeleted struct {
	MessageId int `json:"message_id"`
	RoomId    int `json:"room_id"`
}

type UserJoinedChat struct {
	RoomId      int    `json:"room_id"`
	UserId      int    `json:"user_id"`
	Username    string `json:"username"`
	MemberCount int    `json:"member_count"`
}

type UserLeftChat struct {
	RoomId      int    `json:"room_id"`
	UserId      int    `json:"user_id"`
	Username    string `json:"username"`
	MemberCount int    `json:"member_count"`
}

// UserTyping is never persisted. Receivers clear the indicator
// client-side a few seconds after the last event.
type UserTyping struct {
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

type PersonalNotification struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (MessageSent) EventName() string          { return EventMessageSent }
func (MessageEdited) EventName() string        { return EventMessageEdited }
func (MessageDeleted) EventName() string       { return EventMessageDeleted }
func (UserJoinedChat) EventName() string       { return EventUserJoinedChat }
func (UserLeftChat) EventName() string         { return EventUserLeftChat }
func (UserTyping) EventName() string           { return EventUserTyping }
func (PersonalNotification) EventName() string { return EventPersonalNotification }

func (MessageSent) isEvent()          {}
func (MessageEdited) isEvent()        {}
func (MessageDeleted) isEvent()       {}
func (UserJoinedChat) isEvent()       {}
func (UserLeftChat) isEvent()         {}
func (UserTyping) isEvent()           {}
func (PersonalNotification) isEvent() {}
