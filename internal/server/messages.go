package server

import (
	"encoding/json"
	"net/http"

	"github.com/npezzotti/go-teahub/internal/broadcast"
)

const EventConnected = "connected"

type ClientMessage struct {
	Id          int           `json:"id,omitempty"`
	Subscribe   *Subscription `json:"subscribe,omitempty"`
	Unsubscribe *Subscription `json:"unsubscribe,omitempty"`
}

type Subscription struct {
	Channel string `json:"channel"`
}

type ServerMessage struct {
	Id       int       `json:"id,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Event    string    `json:"event,omitempty"`
	Data     any       `json:"data,omitempty"`
	Response *Response `json:"response,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

type ConnectedData struct {
	SocketId string `json:"socket_id"`
}

func Connected(socketId string) *ServerMessage {
	return &ServerMessage{
		Event: EventConnected,
		Data:  ConnectedData{SocketId: socketId},
	}
}

func EventMessage(env *broadcast.Envelope) *ServerMessage {
	return &ServerMessage{
		Channel: env.Channel,
		Event:   env.Event,
		Data:    json.RawMessage(env.Data),
	}
}

func NoErrOK(id int) *ServerMessage {
	return &ServerMessage{
		Id: id,
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func ErrForbidden(id int) *ServerMessage {
	return &ServerMessage{
		Id: id,
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "forbidden",
		},
	}
}

func ErrInvalidChannel(id int) *ServerMessage {
	return &ServerMessage{
		Id: id,
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid channel",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		Id: id,
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		Id: id,
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}
