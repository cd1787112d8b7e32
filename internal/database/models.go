package database

import "time"

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
	MessageTypeAdmin  = "admin"
)

// Subtypes tag system messages at write time so readers never have to
// inspect message bodies to classify them.
const (
	SubtypeGeneric = "generic"
	SubtypeJoined  = "joined"
	SubtypeLeft    = "left"
	SubtypeWelcome = "welcome"
)

type User struct {
	Id           int
	Username     string
	DisplayName  string
	AvatarUrl    string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id            int
	Name          string
	Description   string
	CreatorId     int
	PasswordHash  string
	MemberCount   int
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPrivate reports whether joining the room requires a password.
func (r Room) IsPrivate() bool {
	return r.PasswordHash != ""
}

type Membership struct {
	RoomId   int
	UserId   int
	JoinedAt time.Time
}

type Member struct {
	User     User
	JoinedAt time.Time
}

type Message struct {
	Id       int
	RoomId   int
	UserId   *int
	Body     string
	Type     string
	Subtype  string
	SentAt   time.Time
	EditedAt *time.Time
	// Author is populated by read queries when UserId is set.
	Author *User
}

// AuthoredBy reports whether userId is the message's author.
func (m Message) AuthoredBy(userId int) bool {
	return m.UserId != nil && *m.UserId == userId
}

type JoinResult struct {
	Membership  Membership
	Created     bool
	MemberCount int
}

type LeaveResult struct {
	Removed     bool
	MemberCount int
}

type CreateAccountParams struct {
	Username     string
	DisplayName  string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Name         string
	Description  string
	CreatorId    int
	PasswordHash string
	CreatedAt    time.Time
}

type AppendMessageParams struct {
	RoomId  int
	UserId  *int
	Body    string
	Type    string
	Subtype string
	SentAt  time.Time
}
