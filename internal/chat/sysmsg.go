package chat

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/stats"
)

// systemMessage describes a message synthesized by the server.
type systemMessage struct {
	roomId  int
	aboutId *int
	body    string
	msgType string
	subtype string
	// broadcast sends MessageSent to the room, skipping excludeConnection.
	broadcast         bool
	excludeConnection string
}

func joinedMessage(roomId int, actor Actor) systemMessage {
	return systemMessage{
		roomId:            roomId,
		aboutId:           &actor.UserId,
		body:              fmt.Sprintf("%s joined for a sip!", actor.Username),
		msgType:           database.MessageTypeSystem,
		subtype:           database.SubtypeJoined,
		broadcast:         true,
		excludeConnection: actor.SocketId,
	}
}

func leftMessage(roomId int, actor Actor) systemMessage {
	return systemMessage{
		roomId:            roomId,
		aboutId:           &actor.UserId,
		body:              fmt.Sprintf("%s left for other refreshment.", actor.Username),
		msgType:           database.MessageTypeSystem,
		subtype:           database.SubtypeLeft,
		broadcast:         true,
		excludeConnection: actor.SocketId,
	}
}

// welcomeMessage is only visible to the member it greets, so it is not
// broadcast.
func welcomeMessage(room database.Room, actor Actor) systemMessage {
	name := room.Name
	if name == "" {
		name = "this chatroom"
	}
	return systemMessage{
		roomId:  room.Id,
		aboutId: &actor.UserId,
		body:    fmt.Sprintf("Welcome to %s! Enjoy the new tea!", name),
		msgType: database.MessageTypeSystem,
		subtype: database.SubtypeWelcome,
	}
}

func adminMessage(roomId int, actor Actor, body string) systemMessage {
	return systemMessage{
		roomId:            roomId,
		aboutId:           &actor.UserId,
		body:              body,
		msgType:           database.MessageTypeAdmin,
		subtype:           database.SubtypeGeneric,
		broadcast:         true,
		excludeConnection: actor.SocketId,
	}
}

func (s *Service) postSystemMessage(ctx context.Context, sm systemMessage) (database.Message, error) {
	msg, err := s.append(ctx, database.AppendMessageParams{
		RoomId:  sm.roomId,
		UserId:  sm.aboutId,
		Body:    sm.body,
		Type:    sm.msgType,
		Subtype: sm.subtype,
	})
	if err != nil {
		s.log.Printf("create system message: room=%d subtype=%s: %v", sm.roomId, sm.subtype, err)
		return database.Message{}, err
	}

	if sm.broadcast {
		s.bc.PublishToRoom(ctx, sm.roomId, broadcast.MessageSent{Message: ToMessage(msg)}, sm.excludeConnection)
	}

	return msg, nil
}

// append stores a message stamped with the service clock.
func (s *Service) append(ctx context.Context, params database.AppendMessageParams) (database.Message, error) {
	params.SentAt = s.now()
	msg, err := s.repo.AppendMessage(ctx, params)
	if err != nil {
		return database.Message{}, fmt.Errorf("append message: %w", err)
	}

	s.stats.Incr(stats.MessagesAppended)
	return msg, nil
}
