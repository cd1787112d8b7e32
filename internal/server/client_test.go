package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teahub/internal/broadcast"
	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/testutil"
	"github.com/npezzotti/go-teahub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Id       int             `json:"id"`
	Channel  string          `json:"channel"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	Response *Response       `json:"response"`
}

// startWsServer runs a hub behind an httptest server that authenticates
// the user from the "user" query parameter.
func startWsServer(t *testing.T, repo database.GoChatRepository) (*ChatServer, string) {
	cs := newTestChatServer(t, repo)
	go cs.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, _ := strconv.Atoi(r.URL.Query().Get("user"))
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.ServeConn(types.User{Id: userId, Username: "user" + strconv.Itoa(userId)}, conn)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
		srv.Close()
	})

	return cs, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, userId int) (*websocket.Conn, string) {
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+strconv.Itoa(userId), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := readFrame(t, conn)
	require.Equal(t, EventConnected, f.Event)

	var data ConnectedData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	require.NotEmpty(t, data.SocketId)
	return conn, data.SocketId
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func subscribe(t *testing.T, conn *websocket.Conn, id int, channel string) int {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Id: id, Subscribe: &Subscription{Channel: channel}}))

	f := readFrame(t, conn)
	require.NotNil(t, f.Response)
	assert.Equal(t, id, f.Id)
	return f.Response.ResponseCode
}

func TestClient_Subscriptions(t *testing.T) {
	repo := &database.MockGoChatRepository{}
	repo.On("GetMembership", 5, 1).Return(database.Membership{RoomId: 5, UserId: 1}, nil)
	repo.On("GetMembership", 6, 1).Return(database.Membership{}, sql.ErrNoRows)
	repo.On("GetMembership", 7, 1).Return(database.Membership{}, assert.AnError)

	_, url := startWsServer(t, repo)
	conn, _ := dial(t, url, 1)

	tcases := []struct {
		channel string
		code    int
	}{
		{channel: "user-1", code: http.StatusOK},
		{channel: "user-2", code: http.StatusForbidden},
		{channel: "room-5", code: http.StatusOK},
		{channel: "room-6", code: http.StatusForbidden},
		{channel: "room-7", code: http.StatusInternalServerError},
		{channel: "lobby", code: http.StatusBadRequest},
	}

	for i, tc := range tcases {
		t.Run(tc.channel, func(t *testing.T) {
			assert.Equal(t, tc.code, subscribe(t, conn, i+1, tc.channel))
		})
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Id: 20, Unsubscribe: &Subscription{Channel: "room-5"}}))
	f := readFrame(t, conn)
	assert.Equal(t, 20, f.Id)
	assert.Equal(t, http.StatusOK, f.Response.ResponseCode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f = readFrame(t, conn)
	assert.Equal(t, http.StatusBadRequest, f.Response.ResponseCode)

	require.NoError(t, conn.WriteJSON(ClientMessage{Id: 21}))
	f = readFrame(t, conn)
	assert.Equal(t, 21, f.Id)
	assert.Equal(t, http.StatusBadRequest, f.Response.ResponseCode)
}

func TestClient_ReceivesEvents(t *testing.T) {
	repo := &database.MockGoChatRepository{}
	repo.On("GetMembership", 5, 1).Return(database.Membership{RoomId: 5, UserId: 1}, nil)
	repo.On("GetMembership", 5, 2).Return(database.Membership{RoomId: 5, UserId: 2}, nil)

	cs, url := startWsServer(t, repo)
	alice, aliceSocket := dial(t, url, 1)
	bob, _ := dial(t, url, 2)

	require.Equal(t, http.StatusOK, subscribe(t, alice, 1, "room-5"))
	require.Equal(t, http.StatusOK, subscribe(t, alice, 2, "user-1"))
	require.Equal(t, http.StatusOK, subscribe(t, bob, 1, "room-5"))

	ctx := context.Background()
	require.NoError(t, cs.Publish(ctx, &broadcast.Envelope{
		Channel:           "room-5",
		Event:             broadcast.EventMessageSent,
		Data:              []byte(`{"id":1,"body":"hi"}`),
		ExcludeConnection: aliceSocket,
	}))

	f := readFrame(t, bob)
	assert.Equal(t, "room-5", f.Channel)
	assert.Equal(t, broadcast.EventMessageSent, f.Event)
	assert.JSONEq(t, `{"id":1,"body":"hi"}`, string(f.Data))

	// alice sent the message, so the next frame she sees is the leave
	require.NoError(t, cs.Publish(ctx, &broadcast.Envelope{
		Channel:      "room-5",
		Event:        broadcast.EventUserLeftChat,
		Data:         []byte(`{"user_id":1,"member_count":1}`),
		RevokeUserId: 1,
	}))
	f = readFrame(t, alice)
	assert.Equal(t, broadcast.EventUserLeftChat, f.Event)
	assert.Equal(t, broadcast.EventUserLeftChat, readFrame(t, bob).Event)

	require.NoError(t, cs.Publish(ctx, &broadcast.Envelope{Channel: "room-5", Event: broadcast.EventUserTyping, Data: []byte(`{}`)}))
	require.NoError(t, cs.Publish(ctx, &broadcast.Envelope{Channel: "user-1", Event: broadcast.EventPersonalNotification, Data: []byte(`{}`)}))

	assert.Equal(t, broadcast.EventUserTyping, readFrame(t, bob).Event)
	assert.Equal(t, broadcast.EventPersonalNotification, readFrame(t, alice).Event, "revoked connections no longer get room events")
}

func TestClient_SubscribeRechecksMembership(t *testing.T) {
	repo := &database.MockGoChatRepository{}
	defer repo.AssertExpectations(t)

	// the user leaves between the first check and the subscription
	repo.On("GetMembership", 5, 1).Return(database.Membership{RoomId: 5, UserId: 1}, nil).Once()
	repo.On("GetMembership", 5, 1).Return(database.Membership{}, sql.ErrNoRows).Once()

	cs := newTestChatServer(t, repo)
	go cs.Run()

	c := newTestClient(t, cs, "sock-1", 1)
	require.True(t, cs.RegisterClient(c))

	c.handleSubscribe(&ClientMessage{Id: 3, Subscribe: &Subscription{Channel: "room-5"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))

	assert.Empty(t, subscribers(cs, "room-5"))
	assert.Empty(t, c.channels)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, 3, msgs[0].Id)
	require.NotNil(t, msgs[0].Response)
	assert.Equal(t, http.StatusForbidden, msgs[0].Response.ResponseCode)
}

func TestClient_ClosedOnShutdown(t *testing.T) {
	cs, url := startWsServer(t, &database.MockGoChatRepository{})
	conn, _ := dial(t, url, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cs.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "expected going away close, got %v", err)
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1)
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopClient to be idempotent")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func TestNewClient(t *testing.T) {
	a, err := NewClient(types.User{Id: 1}, nil, nil, testutil.TestLogger(t))
	require.NoError(t, err)
	b, err := NewClient(types.User{Id: 1}, nil, nil, testutil.TestLogger(t))
	require.NoError(t, err)

	assert.NotEmpty(t, a.id)
	assert.NotEqual(t, a.id, b.id)
}
