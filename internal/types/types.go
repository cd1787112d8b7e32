package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// UserSummary is the author information attached to messages and members.
type UserSummary struct {
	Id          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarUrl   string `json:"avatar_url,omitempty"`
}

type Room struct {
	Id            int        `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CreatorId     int        `json:"creator_id"`
	IsPrivate     bool       `json:"is_private"`
	MemberCount   int        `json:"member_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
}

type Membership struct {
	RoomId   int       `json:"room_id"`
	UserId   int       `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type Member struct {
	UserSummary
	JoinedAt time.Time `json:"joined_at"`
}

type Message struct {
	Id       int          `json:"id"`
	RoomId   int          `json:"room_id"`
	UserId   *int         `json:"user_id"`
	Body     string       `json:"body"`
	Type     string       `json:"type"`
	Subtype  string       `json:"subtype"`
	SentAt   time.Time    `json:"sent_at"`
	EditedAt *time.Time   `json:"edited_at,omitempty"`
	Author   *UserSummary `json:"author,omitempty"`
}

// MessagePage is one page of room history in ascending id order.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
	OldestId *int      `json:"oldest_id"`
}

type JoinResponse struct {
	Membership Membership `json:"membership"`
	Room       Room       `json:"room"`
	Joined     bool       `json:"joined"`
}
