package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-teahub/internal/stats"
)

const publishTimeout = 5 * time.Second

// Envelope is the unit handed to a Transport.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	// ExcludeConnection skips the connection that triggered the event.
	ExcludeConnection string `json:"exclude_connection,omitempty"`
	// RevokeUserId removes that user's connections from Channel after delivery.
	RevokeUserId int `json:"revoke_user_id,omitempty"`
}

// Transport delivers an envelope to every subscriber of its channel.
type Transport interface {
	Publish(ctx context.Context, env *Envelope) error
}

type TransportError struct {
	Channel string
	Event   string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish %s to %s: %v", e.Event, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Dispatcher publishes room and user scoped events. Publish failures are
// logged and counted, never returned: the caller's mutation has already
// been committed.
type Dispatcher struct {
	transport Transport
	log       *log.Logger
	stats     stats.StatsProvider
}

func NewDispatcher(t Transport, l *log.Logger, s stats.StatsProvider) *Dispatcher {
	s.RegisterMetric(stats.BroadcastsPublished)
	s.RegisterMetric(stats.BroadcastFailures)

	return &Dispatcher{
		transport: t,
		log:       l,
		stats:     s,
	}
}

func (d *Dispatcher) PublishToRoom(ctx context.Context, roomId int, ev Event, excludeConnection string) {
	env := &Envelope{
		Channel:           RoomChannel(roomId),
		Event:             ev.EventName(),
		ExcludeConnection: excludeConnection,
	}
	if left, ok := ev.(UserLeftChat); ok {
		env.RevokeUserId = left.UserId
	}

	if err := d.publish(ctx, env, ev); err != nil {
		d.log.Printf("broadcast failed: room=%d event=%s: %v", roomId, ev.EventName(), err)
	}
}

func (d *Dispatcher) PublishToUser(ctx context.Context, userId int, ev Event) {
	env := &Envelope{
		Channel: UserChannel(userId),
		Event:   ev.EventName(),
	}

	if err := d.publish(ctx, env, ev); err != nil {
		d.log.Printf("broadcast failed: user=%d event=%s: %v", userId, ev.EventName(), err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, env *Envelope, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		d.stats.Incr(stats.BroadcastFailures)
		return fmt.Errorf("marshal %s: %w", env.Event, err)
	}
	env.Data = data

	// the request may finish before the transport does
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := d.transport.Publish(ctx, env); err != nil {
		d.stats.Incr(stats.BroadcastFailures)
		return &TransportError{Channel: env.Channel, Event: env.Event, Err: err}
	}

	d.stats.Incr(stats.BroadcastsPublished)
	return nil
}
