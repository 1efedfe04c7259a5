package social

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/friendhub/cache"
)

// Friendship event types.
const (
	EventFriendRequest = "friend_request"
	EventFriendAccept  = "friend_accept"
	EventFriendDecline = "friend_decline"
)

// Event is delivered to the account identified by To.
type Event struct {
	Type string    `json:"type"`
	From int64     `json:"from"`
	To   int64     `json:"to"`
	At   time.Time `json:"at"`
}

// EventChannel is the pub/sub channel carrying events for one account.
func EventChannel(accountID int64) string {
	return fmt.Sprintf("user:%d:events", accountID)
}

// DecodeEvent parses a payload published by Events.
func DecodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("social: decode event: %w", err)
	}
	return ev, nil
}

// Publisher delivers friendship events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Events publishes friendship events as JSON over a cache.PubSub.
type Events struct {
	ps cache.PubSub
}

// NewEvents returns a Publisher backed by ps.
func NewEvents(ps cache.PubSub) *Events {
	return &Events{ps: ps}
}

// Publish sends ev to the recipient's channel.
func (e *Events) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("social: encode event: %w", err)
	}
	return e.ps.Publish(ctx, EventChannel(ev.To), string(b))
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
