package chat

import (
	"time"

	"github.com/npezzotti/go-teahub/internal/database"
)

// Viewer decides which messages of a room a member may see.
type Viewer struct {
	UserId   int
	JoinedAt time.Time
	// Historical lifts the join horizon. Suppression of narration about
	// the viewer and of other members' welcomes still applies.
	Historical bool
}

func (v Viewer) CanSee(m database.Message) bool {
	about := m.AuthoredBy(v.UserId)

	if m.Type == database.MessageTypeSystem {
		switch m.Subtype {
		case database.SubtypeJoined, database.SubtypeLeft:
			if about {
				return false
			}
		case database.SubtypeWelcome:
			if !about {
				return false
			}
		}
	}

	if v.Historical || about {
		return true
	}

	return !m.SentAt.Before(v.JoinedAt)
}
