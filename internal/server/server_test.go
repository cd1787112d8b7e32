package server

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/stats"
	"github.com/npezzotti/go-teahub/internal/testutil"
	"github.com/npezzotti/go-teahub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestChatServer creates a ChatServer that is not running.
func newTestChatServer(t *testing.T, repo database.GoChatRepository) *ChatServer {
	return NewChatServer(testutil.TestLogger(t), repo, stats.NewPermissiveMock())
}

func newTestClient(t *testing.T, cs *ChatServer, id string, userId int) *Client {
	return &Client{
		id:         id,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       types.User{Id: userId},
		send:       make(chan *ServerMessage, 16),
		channels:   make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

// subscribers returns the connections subscribed to channel. The hub must
// not be running.
func subscribers(cs *ChatServer, channel string) []*Client {
	var out []*Client
	for c := range cs.channels[channel] {
		out = append(out, c)
	}
	return out
}

func drain(c *Client) []*ServerMessage {
	var out []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestNewChatServer(t *testing.T) {
	repo := &database.MockGoChatRepository{}
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", stats.ActiveConnections).Return().Once()
	su.On("RegisterMetric", stats.TotalConnections).Return().Once()
	su.On("RegisterMetric", stats.ChannelSubscriptions).Return().Once()

	logger := testutil.TestLogger(t)
	cs := NewChatServer(logger, repo, su)
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, repo, cs.repo, "expected repository to be set")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.channels, "expected channels map to be initialized")
	assert.NotNil(t, cs.deliverChan, "expected deliverChan to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockGoChatRepository{})
		go cs.Run()

		c := newTestClient(t, cs, "a", 1)
		require.True(t, cs.RegisterClient(c))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, cs.Shutdown(ctx), "expected successful shutdown without error")

		select {
		case <-c.stop:
		default:
			t.Error("expected client to be stopped")
		}

		assert.False(t, cs.RegisterClient(newTestClient(t, cs, "b", 2)), "expected registration to fail after shutdown")
		assert.ErrorIs(t, cs.Publish(context.Background(), &broadcast.Envelope{Channel: "room-1"}), ErrServerStopped)
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockGoChatRepository{})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestChatServer_subscribe_unsubscribe(t *testing.T) {
	cs := newTestChatServer(t, &database.MockGoChatRepository{})
	c := newTestClient(t, cs, "a", 1)

	cs.subscribe(c, "room-1")
	assert.Empty(t, subscribers(cs, "room-1"), "unregistered clients cannot subscribe")

	cs.addClient(c)
	cs.subscribe(c, "room-1")
	cs.subscribe(c, "room-1")
	cs.subscribe(c, "user-1")
	assert.Equal(t, []*Client{c}, subscribers(cs, "room-1"))
	assert.Len(t, c.channels, 2)

	cs.unsubscribe(c, "room-1")
	assert.Empty(t, subscribers(cs, "room-1"))
	assert.NotContains(t, cs.channels, "room-1")

	cs.removeClient(c)
	assert.Empty(t, subscribers(cs, "user-1"))
	assert.Empty(t, c.channels)
	assert.NotContains(t, cs.clients, c)
}

func TestChatServer_deliver(t *testing.T) {
	cs := newTestChatServer(t, &database.MockGoChatRepository{})
	alice := newTestClient(t, cs, "alice-tab", 1)
	aliceOther := newTestClient(t, cs, "alice-phone", 1)
	bob := newTestClient(t, cs, "bob-tab", 2)
	outsider := newTestClient(t, cs, "carol-tab", 3)

	for _, c := range []*Client{alice, aliceOther, bob, outsider} {
		cs.addClient(c)
	}
	for _, c := range []*Client{alice, aliceOther, bob} {
		cs.subscribe(c, "room-5")
	}
	cs.subscribe(outsider, "room-6")

	t.Run("excludes the originating connection", func(t *testing.T) {
		cs.deliver(&broadcast.Envelope{
			Channel:           "room-5",
			Event:             broadcast.EventMessageSent,
			Data:              []byte(`{"id":1}`),
			ExcludeConnection: "alice-tab",
		})

		assert.Empty(t, drain(alice))
		assert.Len(t, drain(outsider), 0)

		for _, c := range []*Client{aliceOther, bob} {
			msgs := drain(c)
			require.Len(t, msgs, 1)
			assert.Equal(t, "room-5", msgs[0].Channel)
			assert.Equal(t, broadcast.EventMessageSent, msgs[0].Event)
		}
	})

	t.Run("revokes the leaving user", func(t *testing.T) {
		cs.deliver(&broadcast.Envelope{
			Channel:      "room-5",
			Event:        broadcast.EventUserLeftChat,
			Data:         []byte(`{"user_id":1}`),
			RevokeUserId: 1,
		})

		// the leaver still sees the event itself
		assert.Len(t, drain(alice), 1)
		assert.Len(t, drain(aliceOther), 1)
		assert.Len(t, drain(bob), 1)
		assert.Equal(t, []*Client{bob}, subscribers(cs, "room-5"))

		cs.deliver(&broadcast.Envelope{Channel: "room-5", Event: broadcast.EventUserTyping, Data: []byte(`{}`)})
		assert.Empty(t, drain(alice))
		assert.Len(t, drain(bob), 1)
	})

	t.Run("unknown channel", func(t *testing.T) {
		assert.NotPanics(t, func() {
			cs.deliver(&broadcast.Envelope{Channel: "room-404", Event: broadcast.EventUserTyping})
		})
	})
}

func TestChatServer_Publish(t *testing.T) {
	cs := newTestChatServer(t, &database.MockGoChatRepository{})
	go cs.Run()
	defer cs.Shutdown(context.Background())

	c := newTestClient(t, cs, "a", 1)
	require.True(t, cs.RegisterClient(c))
	require.True(t, c.sendSubscriptionReq(cs.subscribeChan, "user-1"))

	err := cs.Publish(context.Background(), &broadcast.Envelope{
		Channel: "user-1",
		Event:   broadcast.EventPersonalNotification,
		Data:    []byte(`{"type":"info"}`),
	})
	require.NoError(t, err)

	select {
	case msg := <-c.send:
		assert.Equal(t, broadcast.EventPersonalNotification, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("expected the event to be delivered")
	}
}
