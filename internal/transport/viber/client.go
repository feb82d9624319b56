// Package viber talks to the Viber REST bot API and decodes its webhook callbacks.
package viber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

const (
	DefaultBaseURL    = "https://chatapi.viber.com/pa"
	DefaultSenderName = "Kiev Alerts"
	DefaultTimeout    = 10 * time.Second

	authHeader    = "X-Viber-Auth-Token"
	minAPIVersion = 1
	maxErrorBody  = 512
)

type Config struct {
	Token        string
	BaseURL      string
	SenderName   string
	SenderAvatar string
	Timeout      time.Duration
}

// APIError is a response with a non-zero platform status.
type APIError struct {
	Method  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("viber %s: status %d: %s", e.Method, e.Status, e.Message)
}

// HTTPError is a non-2xx transport-level response.
type HTTPError struct {
	Method string
	Code   int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("viber %s: http %d: %s", e.Method, e.Code, e.Body)
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logx.Logger
}

var _ kit.Messenger = (*Client)(nil)

func New(cfg Config, hc *http.Client, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("viber token is empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.SenderName) == "" {
		cfg.SenderName = DefaultSenderName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "viber",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", logx.String("from", from.String()), logx.String("to", to.String()))
		},
	})
	return &Client{cfg: cfg, http: hc, breaker: cb, log: log}, nil
}

func (c *Client) Name() string { return "viber" }

type sender struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type button struct {
	ActionType string `json:"ActionType"`
	ActionBody string `json:"ActionBody"`
	Text       string `json:"Text"`
	TextSize   string `json:"TextSize,omitempty"`
}

type keyboard struct {
	Type          string   `json:"Type"`
	DefaultHeight bool     `json:"DefaultHeight"`
	Buttons       []button `json:"Buttons"`
}

type textMessage struct {
	Receiver      string    `json:"receiver"`
	MinAPIVersion int       `json:"min_api_version"`
	Sender        sender    `json:"sender"`
	TrackingData  string    `json:"tracking_data,omitempty"`
	Type          string    `json:"type"`
	Text          string    `json:"text"`
	Keyboard      *keyboard `json:"keyboard,omitempty"`
}

func toKeyboard(kb *kit.Keyboard) *keyboard {
	if kb == nil || len(kb.Buttons) == 0 {
		return nil
	}
	out := &keyboard{Type: "keyboard", DefaultHeight: kb.DefaultHeight, Buttons: make([]button, 0, len(kb.Buttons))}
	for _, b := range kb.Buttons {
		at := b.ActionType
		if at == "" {
			at = "reply"
		}
		out.Buttons = append(out.Buttons, button{ActionType: at, ActionBody: b.ActionBody, Text: b.Text, TextSize: b.TextSize})
	}
	return out
}

type envelope struct {
	Status        int    `json:"status"`
	StatusMessage string `json:"status_message"`
}

// SendText calls send_message for one receiver.
func (c *Client) SendText(ctx context.Context, to, text string, kb *kit.Keyboard) error {
	msg := textMessage{
		Receiver:      to,
		MinAPIVersion: minAPIVersion,
		Sender:        sender{Name: c.cfg.SenderName, Avatar: c.cfg.SenderAvatar},
		Type:          "text",
		Text:          text,
		Keyboard:      toKeyboard(kb),
	}
	var out envelope
	return c.call(ctx, "send_message", msg, &out)
}

// AccountInfo is the subset of get_account_info the bot uses.
type AccountInfo struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	URI              string       `json:"uri"`
	Webhook          string       `json:"webhook"`
	EventTypes       []string     `json:"event_types"`
	SubscribersCount int          `json:"subscribers_count"`
	Members          []kit.Member `json:"members"`
}

func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var out struct {
		envelope
		AccountInfo
	}
	if err := c.call(ctx, "get_account_info", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out.AccountInfo, nil
}

// Members returns the account's member list from get_account_info.
func (c *Client) Members(ctx context.Context) ([]kit.Member, error) {
	info, err := c.AccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	return info.Members, nil
}

type statusCarrier interface{ status() (int, string) }

func (e *envelope) status() (int, string) { return e.Status, e.StatusMessage }

// call POSTs payload to method and decodes the response into out, which must
// embed envelope. Platform errors do not count against the breaker.
func (c *Client) call(ctx context.Context, method string, payload any, out statusCarrier) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + method
	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(authHeader, c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			return nil, &HTTPError{Method: method, Code: resp.StatusCode, Body: truncate(raw)}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("viber %s: decode: %w", method, err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	if st, msg := out.status(); st != 0 {
		return &APIError{Method: method, Status: st, Message: msg}
	}
	return nil
}

// truncate trims b to at most maxErrorBody bytes without splitting a rune.
func truncate(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	return string(b)
}
