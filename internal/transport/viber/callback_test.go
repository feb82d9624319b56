package viber

import (
	"testing"

	kit "forecastbot/internal/transport"
)

func TestParseCallback(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		body    string
		kind    kit.EventKind
		sender  string
		text    string
		wantErr bool
	}{
		{
			name:   "message",
			body:   `{"event":"message","timestamp":1457764197627,"message_token":4912661846655238145,"sender":{"id":"u1","name":"Olena"},"message":{"type":"text","text":"forecast_kiev_tomorrow"}}`,
			kind:   kit.EventMessage,
			sender: "u1",
			text:   "forecast_kiev_tomorrow",
		},
		{
			name:   "conversation started",
			body:   `{"event":"conversation_started","timestamp":1457764197627,"type":"open","user":{"id":"u2","name":"Taras"},"subscribed":false}`,
			kind:   kit.EventConversationStarted,
			sender: "u2",
		},
		{
			name:   "unsubscribed",
			body:   `{"event":"unsubscribed","timestamp":1457764197627,"user_id":"u3"}`,
			kind:   kit.EventUnsubscribed,
			sender: "u3",
		},
		{
			name: "webhook check",
			body: `{"event":"webhook","timestamp":1457764197627,"message_token":241256543215}`,
			kind: kit.EventWebhook,
		},
		{name: "not json", body: `{`, wantErr: true},
		{name: "no event", body: `{"timestamp":1}`, wantErr: true},
		{name: "message without sender", body: `{"event":"message","message":{"text":"x"}}`, kind: kit.EventMessage, wantErr: true},
	}
	for _, tc := range cases {
		ev, err := ParseCallback([]byte(tc.body))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ev.Kind != tc.kind || ev.SenderID != tc.sender || ev.Text != tc.text {
			t.Fatalf("%s: got %+v", tc.name, ev)
		}
		if ev.At.IsZero() {
			t.Fatalf("%s: timestamp not decoded", tc.name)
		}
	}
}
