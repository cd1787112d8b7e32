package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
	authorizeWait  = 5 * time.Second
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	// channels is owned by the chat server's Run goroutine.
	channels map[string]struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate socket id: %w", err)
	}

	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		channels:   make(map[string]struct{}),
		stop:       make(chan struct{}),
	}, nil
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		switch {
		case msg.Subscribe != nil:
			c.handleSubscribe(&msg)
		case msg.Unsubscribe != nil:
			c.handleUnsubscribe(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) handleSubscribe(msg *ClientMessage) {
	channel := msg.Subscribe.Channel
	if resp := c.authorize(msg.Id, channel); resp != nil {
		c.queueMessage(resp)
		return
	}

	if !c.sendSubscriptionReq(c.chatServer.subscribeChan, channel) {
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	}

	// A leave committed between the first check and the subscription has
	// already had its revoke delivered, so it is only visible here.
	if resp := c.authorize(msg.Id, channel); resp != nil {
		c.sendSubscriptionReq(c.chatServer.unsubscribeChan, channel)
		c.queueMessage(resp)
		return
	}
	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) handleUnsubscribe(msg *ClientMessage) {
	if !c.sendSubscriptionReq(c.chatServer.unsubscribeChan, msg.Unsubscribe.Channel) {
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	}
	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) sendSubscriptionReq(ch chan *subscriptionReq, channel string) bool {
	req := &subscriptionReq{client: c, channel: channel, done: make(chan struct{})}

	select {
	case ch <- req:
	case <-c.chatServer.done:
		return false
	}

	select {
	case <-req.done:
		return true
	case <-c.chatServer.done:
		return false
	}
}

// authorize returns an error response if the client may not subscribe to
// channel. Room channels require a current membership, user channels are
// private to their owner.
func (c *Client) authorize(id int, channel string) *ServerMessage {
	kind, channelId, err := broadcast.ParseChannel(channel)
	if err != nil {
		return ErrInvalidChannel(id)
	}

	switch kind {
	case broadcast.ChannelUser:
		if channelId != c.user.Id {
			return ErrForbidden(id)
		}
	case broadcast.ChannelRoom:
		ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
		defer cancel()

		if _, err := c.chatServer.repo.GetMembership(ctx, channelId, c.user.Id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrForbidden(id)
			}
			c.log.Printf("authorize %s for user %d: %v", channel, c.user.Id, err)
			return ErrInternalError(id)
		}
	}

	return nil
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for connection %s, dropping message", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.deRegisterClient(c)
	c.stopClient()
}
