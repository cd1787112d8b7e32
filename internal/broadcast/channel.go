package broadcast

import (
	"fmt"
	"strconv"
	"strings"
)

type ChannelKind string

const (
	ChannelRoom ChannelKind = "room"
	ChannelUser ChannelKind = "user"
)

func RoomChannel(roomId int) string {
	return fmt.Sprintf("%s-%d", ChannelRoom, roomId)
}

func UserChannel(userId int) string {
	return fmt.Sprintf("%s-%d", ChannelUser, userId)
}

// ParseChannel splits a channel name such as "room-5" into its kind and id.
func ParseChannel(name string) (ChannelKind, int, error) {
	kind, rawId, ok := strings.Cut(name, "-")
	if !ok {
		return "", 0, fmt.Errorf("invalid channel %q", name)
	}

	switch ChannelKind(kind) {
	case ChannelRoom, ChannelUser:
	default:
		return "", 0, fmt.Errorf("unknown channel kind %q", kind)
	}

	id, err := strconv.Atoi(rawId)
	if err != nil || id < 1 {
		return "", 0, fmt.Errorf("invalid channel id %q", rawId)
	}

	return ChannelKind(kind), id, nil
}
