package chat

import (
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/types"
)

func ToUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		AvatarUrl:    u.AvatarUrl,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func ToUserSummary(u database.User) types.UserSummary {
	return types.UserSummary{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarUrl:   u.AvatarUrl,
	}
}

func ToRoom(r database.Room) types.Room {
	return types.Room{
		Id:            r.Id,
		Name:          r.Name,
		Description:   r.Description,
		CreatorId:     r.CreatorId,
		IsPrivate:     r.IsPrivate(),
		MemberCount:   r.MemberCount,
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
	}
}

func ToRooms(rooms []database.Room) []types.Room {
	out := make([]types.Room, len(rooms))
	for i, r := range rooms {
		out[i] = ToRoom(r)
	}
	return out
}

func ToMembership(m database.Membership) types.Membership {
	return types.Membership{
		RoomId:   m.RoomId,
		UserId:   m.UserId,
		JoinedAt: m.JoinedAt,
	}
}

func ToMembers(members []database.Member) []types.Member {
	out := make([]types.Member, len(members))
	for i, m := range members {
		out[i] = types.Member{
			UserSummary: ToUserSummary(m.User),
			JoinedAt:    m.JoinedAt,
		}
	}
	return out
}

func ToMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:       m.Id,
		RoomId:   m.RoomId,
		UserId:   m.UserId,
		Body:     m.Body,
		Type:     m.Type,
		Subtype:  m.Subtype,
		SentAt:   m.SentAt,
		EditedAt: m.EditedAt,
	}
	if m.Author != nil {
		author := ToUserSummary(*m.Author)
		msg.Author = &author
	}
	return msg
}

func ToMessagePage(p Page) types.MessagePage {
	messages := make([]types.Message, len(p.Messages))
	for i, m := range p.Messages {
		messages[i] = ToMessage(m)
	}
	return types.MessagePage{
		Messages: messages,
		HasMore:  p.HasMore,
		OldestId: p.OldestId,
	}
}
