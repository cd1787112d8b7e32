package chat

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/stats"
)

const DefaultMaxMessageLength = 2000

// Broadcaster is satisfied by *broadcast.Dispatcher.
type Broadcaster interface {
	PublishToRoom(ctx context.Context, roomId int, ev broadcast.Event, excludeConnection string)
	PublishToUser(ctx context.Context, userId int, ev broadcast.Event)
}

// Actor identifies who performs an action and, optionally, the websocket
// connection that should not receive the resulting room events.
type Actor struct {
	UserId   int
	Username string
	SocketId string
}

type Options struct {
	MaxMessageLength int
	// AnnounceMembership appends joined/left/welcome system messages.
	AnnounceMembership bool
	Clock              func() time.Time
}

type Service struct {
	repo  database.GoChatRepository
	bc    Broadcaster
	log   *log.Logger
	stats stats.StatsProvider
	opts  Options
}

func NewService(repo database.GoChatRepository, bc Broadcaster, l *log.Logger, s stats.StatsProvider, opts Options) *Service {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.Clock == nil {
		opts.Clock = Now
	}
	s.RegisterMetric(stats.MessagesAppended)

	return &Service{
		repo:  repo,
		bc:    bc,
		log:   l,
		stats: s,
		opts:  opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Clock().UTC().Round(time.Millisecond)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
