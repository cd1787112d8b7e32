package server

import (
	"context"
	"errors"
	"log"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/stats"
	"github.com/npezzotti/go-teahub/internal/types"
)

var ErrServerStopped = errors.New("chat server stopped")

type stopReq struct {
	done chan struct{}
}

type subscriptionReq struct {
	client  *Client
	channel string
	// done is closed once the hub has applied the change.
	done chan struct{}
}

// ChatServer fans published envelopes out to the websocket connections
// subscribed to their channel. It implements broadcast.Transport.
type ChatServer struct {
	log   *log.Logger
	repo  database.GoChatRepository
	stats stats.StatsProvider
	// clients and channels are owned by the Run goroutine.
	clients         map[*Client]struct{}
	channels        map[string]map[*Client]struct{}
	registerChan    chan *Client
	deRegisterChan  chan *Client
	subscribeChan   chan *subscriptionReq
	unsubscribeChan chan *subscriptionReq
	deliverChan     chan *broadcast.Envelope
	stop            chan stopReq
	done            chan struct{}
}

func NewChatServer(logger *log.Logger, repo database.GoChatRepository, su stats.StatsProvider) *ChatServer {
	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.TotalConnections)
	su.RegisterMetric(stats.ChannelSubscriptions)

	return &ChatServer{
		log:             logger,
		repo:            repo,
		stats:           su,
		clients:         make(map[*Client]struct{}),
		channels:        make(map[string]map[*Client]struct{}),
		registerChan:    make(chan *Client),
		deRegisterChan:  make(chan *Client),
		subscribeChan:   make(chan *subscriptionReq),
		unsubscribeChan: make(chan *subscriptionReq),
		deliverChan:     make(chan *broadcast.Envelope, 256),
		stop:            make(chan stopReq),
		done:            make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
		case req := <-cs.subscribeChan:
			cs.subscribe(req.client, req.channel)
			close(req.done)
		case req := <-cs.unsubscribeChan:
			cs.unsubscribe(req.client, req.channel)
			close(req.done)
		case env := <-cs.deliverChan:
			cs.deliver(env)
		case req := <-cs.stop:
			cs.log.Println("stopping chat server")
			for c := range cs.clients {
				c.stopClient()
			}
			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient adds c to the hub. It reports false if the hub has stopped.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

// ServeConn attaches an upgraded connection for user to the hub and starts
// its read and write pumps. The first frame tells the client its socket id.
func (cs *ChatServer) ServeConn(user types.User, conn *websocket.Conn) error {
	client, err := NewClient(user, conn, cs, cs.log)
	if err != nil {
		conn.Close()
		return err
	}

	client.queueMessage(Connected(client.id))
	if !cs.RegisterClient(client) {
		conn.Close()
		return ErrServerStopped
	}

	go client.Write()
	go client.Read()
	return nil
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// Publish queues env for delivery to local subscribers.
func (cs *ChatServer) Publish(ctx context.Context, env *broadcast.Envelope) error {
	select {
	case <-cs.done:
		return ErrServerStopped
	default:
	}

	select {
	case cs.deliverChan <- env:
		return nil
	case <-cs.done:
		return ErrServerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	select {
	case <-cs.done:
		return nil
	default:
	}

	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
	cs.stats.Incr(stats.TotalConnections)
	cs.log.Printf("added connection %s for user %d", c.id, c.user.Id)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	for channel := range c.channels {
		cs.unsubscribe(c, channel)
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("removed connection %s for user %d", c.id, c.user.Id)
}

func (cs *ChatServer) subscribe(c *Client, channel string) {
	if _, ok := cs.clients[c]; !ok {
		return
	}
	if _, ok := c.channels[channel]; ok {
		return
	}

	if cs.channels[channel] == nil {
		cs.channels[channel] = make(map[*Client]struct{})
	}
	cs.channels[channel][c] = struct{}{}
	c.channels[channel] = struct{}{}
	cs.stats.Incr(stats.ChannelSubscriptions)
}

func (cs *ChatServer) unsubscribe(c *Client, channel string) {
	subs, ok := cs.channels[channel]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}

	delete(subs, c)
	if len(subs) == 0 {
		delete(cs.channels, channel)
	}
	delete(c.channels, channel)
	cs.stats.Decr(stats.ChannelSubscriptions)
}

func (cs *ChatServer) deliver(env *broadcast.Envelope) {
	msg := EventMessage(env)

	for c := range cs.channels[env.Channel] {
		if env.ExcludeConnection != "" && c.id == env.ExcludeConnection {
			continue
		}
		c.queueMessage(msg)
	}

	if env.RevokeUserId != 0 {
		for c := range cs.channels[env.Channel] {
			if c.user.Id == env.RevokeUserId {
				cs.unsubscribe(c, env.Channel)
			}
		}
	}
}
