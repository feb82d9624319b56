package transport

import (
	"context"
	"time"
)

// EventKind is the inbound event type as reported by the messaging platform.
type EventKind string

const (
	EventMessage             EventKind = "message"
	EventConversationStarted EventKind = "conversation_started"
	EventSubscribed          EventKind = "subscribed"
	EventUnsubscribed        EventKind = "unsubscribed"
	EventDelivered           EventKind = "delivered"
	EventSeen                EventKind = "seen"
	EventFailed              EventKind = "failed"
	EventWebhook             EventKind = "webhook"
)

// Event is a platform-neutral inbound event.
type Event struct {
	Kind       EventKind
	At         time.Time
	SenderID   string
	SenderName string
	Text       string
}

// Member is a recipient known to the bot account.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type Button struct {
	ActionType string
	ActionBody string
	Text       string
	TextSize   string
}

// Keyboard is an optional quick-reply keyboard attached to a text message.
type Keyboard struct {
	DefaultHeight bool
	Buttons       []Button
}

// Messenger is the outbound side of a messaging platform.
type Messenger interface {
	Name() string
	SendText(ctx context.Context, to string, text string, kb *Keyboard) error
	// Members returns the full current member list of the bot account.
	Members(ctx context.Context) ([]Member, error)
}

// Listener is implemented by messengers that pull inbound events themselves
// (long polling) instead of receiving them through the webhook.
type Listener interface {
	Listen(ctx context.Context, out chan<- Event) error
}
