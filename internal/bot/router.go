// Package bot maps inbound messenger events to engine operations.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

const (
	CmdForecastTomorrow = "forecast_kiev_tomorrow"
	DefaultWelcome      = "Welcome to Kiev Alerts"
)

// Aliases accepted for the forecast command, compared case-insensitively.
var forecastAliases = []string{CmdForecastTomorrow, "/forecast", "forecast"}

// DefaultKeyboard is attached to welcome messages and forecast replies.
func DefaultKeyboard() *kit.Keyboard {
	return &kit.Keyboard{
		DefaultHeight: true,
		Buttons: []kit.Button{{
			ActionType: "reply",
			ActionBody: CmdForecastTomorrow,
			Text:       "Weather for tomorrow",
			TextSize:   "regular",
		}},
	}
}

// Responder is implemented by engine.Responder.
type Responder interface {
	Respond(ctx context.Context, recipientID string) error
}

// Sender is implemented by every kit.Messenger.
type Sender interface {
	SendText(ctx context.Context, to, text string, kb *kit.Keyboard) error
}

type Config struct {
	Welcome string
	Timeout time.Duration
}

type Router struct {
	mu        sync.RWMutex
	cfg       Config
	responder Responder
	sender    Sender
	keyboard  *kit.Keyboard
	log       logx.Logger

	handle HandlerFunc
}

func New(cfg Config, responder Responder, sender Sender, kb *kit.Keyboard, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{responder: responder, sender: sender, keyboard: kb, log: log}
	r.Apply(cfg)
	r.handle = Chain(r.route,
		MWPanicRecover(log),
		MWEventLog(log),
		r.timeout,
	)
	return r
}

func (r *Router) Apply(cfg Config) {
	if strings.TrimSpace(cfg.Welcome) == "" {
		cfg.Welcome = DefaultWelcome
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Router) timeout(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev kit.Event) error {
		r.mu.RLock()
		d := r.cfg.Timeout
		r.mu.RUnlock()
		return MWTimeout(d)(next)(ctx, ev)
	}
}

// Handle processes one event. Errors are already logged.
func (r *Router) Handle(ctx context.Context, ev kit.Event) error {
	return r.handle(ctx, ev)
}

func (r *Router) route(ctx context.Context, ev kit.Event) error {
	switch ev.Kind {
	case kit.EventMessage:
		if !IsForecastCommand(ev.Text) {
			r.log.Debug("ignoring unrecognized message", logx.String("from", ev.SenderID))
			return nil
		}
		return r.responder.Respond(ctx, ev.SenderID)

	case kit.EventConversationStarted:
		r.mu.RLock()
		welcome, sender := r.cfg.Welcome, r.sender
		r.mu.RUnlock()
		if sender == nil || ev.SenderID == "" {
			return nil
		}
		return sender.SendText(ctx, ev.SenderID, welcome, r.keyboard)

	case kit.EventSubscribed, kit.EventUnsubscribed:
		// Registry changes are picked up by the next refresh.
		r.log.Info("membership changed", logx.String("event", string(ev.Kind)), logx.String("user", ev.SenderID), logx.String("name", ev.SenderName))
		return nil

	default:
		return nil
	}
}

func IsForecastCommand(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, a := range forecastAliases {
		if t == a {
			return true
		}
	}
	return false
}
