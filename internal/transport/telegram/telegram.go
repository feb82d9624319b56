// Package telegram is the alternate messenger: long polling via telebot and a
// static subscriber list taken from configuration.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "forecastbot/internal/runtime/supervisor"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// ChatIDs is the subscriber list; Telegram has no member directory for bots.
	ChatIDs []int64
	// Offline skips the getMe call on construction (tests).
	Offline bool
	URL     string
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out     atomic.Value // chan<- kit.Event
	dropped atomic.Uint64

	// labels maps reply-keyboard button text back to its action body.
	labels sync.Map
}

var (
	_ kit.Messenger = (*Adapter)(nil)
	_ kit.Listener  = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Event
	a.out.Store(nilOut)
	a.bot.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	a.emit(a.toEvent(m))
	return nil
}

func (a *Adapter) toEvent(m *tele.Message) kit.Event {
	ev := kit.Event{
		Kind:     kit.EventMessage,
		At:       m.Time(),
		SenderID: strconv.FormatInt(m.Chat.ID, 10),
		Text:     strings.TrimSpace(m.Text),
	}
	if m.Sender != nil {
		ev.SenderName = m.Sender.Username
	}
	if ev.Text == "/start" {
		ev.Kind = kit.EventConversationStarted
		ev.Text = ""
	}
	if body, ok := a.labels.Load(ev.Text); ok {
		ev.Text = body.(string)
	}
	return ev
}

func (a *Adapter) emit(ev kit.Event) {
	out, _ := a.out.Load().(chan<- kit.Event)
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Listen polls for updates until ctx is done.
func (a *Adapter) Listen(ctx context.Context, out chan<- kit.Event) error {
	a.out.Store(out)
	defer func() {
		var nilOut chan<- kit.Event
		a.out.Store(nilOut)
	}()

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)
	// Telebot's Start can return unexpectedly; restart it until ctx is done.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			go a.bot.Stop()
			wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sup.Stop(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				a.log.Debug("telegram poller stopped with error", logx.Err(err))
			}
			a.reportDropped(cap(out))
			return nil
		case <-ticker.C:
			a.reportDropped(cap(out))
		}
	}
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

// Members returns the configured chat ids.
func (a *Adapter) Members(ctx context.Context) ([]kit.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]kit.Member, 0, len(a.cfg.ChatIDs))
	for _, id := range a.cfg.ChatIDs {
		out = append(out, kit.Member{ID: strconv.FormatInt(id, 10), Role: "participant"})
	}
	return out, nil
}

func (a *Adapter) SendText(ctx context.Context, to, text string, kb *kit.Keyboard) error {
	id, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient %q: %w", to, err)
	}
	chat := &tele.Chat{ID: id}

	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{}
		// Markup goes on the first chunk only.
		if i == 0 {
			opt.ReplyMarkup = a.replyMarkup(kb)
		}
		if _, err := a.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) replyMarkup(kb *kit.Keyboard) *tele.ReplyMarkup {
	if kb == nil || len(kb.Buttons) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{ResizeKeyboard: !kb.DefaultHeight}
	rows := make([]tele.Row, 0, len(kb.Buttons))
	for _, b := range kb.Buttons {
		a.labels.Store(b.Text, b.ActionBody)
		rows = append(rows, rm.Row(rm.Text(b.Text)))
	}
	rm.Reply(rows...)
	return rm
}

const textLimit = 4000

// splitText cuts long messages into chunks under limit runes, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
