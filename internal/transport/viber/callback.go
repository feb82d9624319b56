package viber

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kit "forecastbot/internal/transport"
)

type callbackUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Callback is the webhook payload. Only the fields the bot reads are decoded.
type Callback struct {
	Event        string        `json:"event"`
	Timestamp    int64         `json:"timestamp"`
	MessageToken json.Number   `json:"message_token"`
	UserID       string        `json:"user_id"`
	Sender       *callbackUser `json:"sender"`
	User         *callbackUser `json:"user"`
	Message      *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// ParseCallback decodes a webhook body into a platform-neutral event.
// Unknown event names are kept as-is in Kind.
func ParseCallback(body []byte) (kit.Event, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return kit.Event{}, fmt.Errorf("viber callback: %w", err)
	}
	name := strings.TrimSpace(cb.Event)
	if name == "" {
		return kit.Event{}, fmt.Errorf("viber callback: missing event")
	}

	ev := kit.Event{Kind: kit.EventKind(name)}
	if cb.Timestamp > 0 {
		ev.At = time.UnixMilli(cb.Timestamp)
	}

	// Who the event is about depends on its type.
	switch {
	case cb.Sender != nil:
		ev.SenderID, ev.SenderName = cb.Sender.ID, cb.Sender.Name
	case cb.User != nil:
		ev.SenderID, ev.SenderName = cb.User.ID, cb.User.Name
	default:
		ev.SenderID = cb.UserID
	}
	if cb.Message != nil {
		ev.Text = cb.Message.Text
	}

	if ev.Kind == kit.EventMessage && ev.SenderID == "" {
		return ev, fmt.Errorf("viber callback: message without sender")
	}
	if ev.Kind == kit.EventConversationStarted && ev.SenderID == "" {
		return ev, fmt.Errorf("viber callback: conversation_started without user")
	}
	return ev, nil
}
