package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

const sampleBody = `{
  "latitude": 50.4501,
  "longitude": 30.5234,
  "daily": {
    "data": [
      {"time": 1792015200, "temperatureLow": 4.1, "temperatureHigh": 9.5},
      {"time": 1792101600, "temperatureLow": 3.0, "temperatureHigh": 8.0, "precipType": "rain", "precipProbability": 0.3},
      {"time": 1792188000, "temperatureLow": 2.0, "temperatureHigh": 7.0, "precipType": "rain", "precipProbability": 0.6}
    ]
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL + "/forecast",
		APIKey:    "secret",
		Latitude:  50.4501,
		Longitude: 30.5234,
		Timeout:   2 * time.Second,
	}, srv.Client())
}

func TestFetchParsesDailyBlock(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast/secret/50.4501,30.5234" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lang") != DefaultLang || q.Get("units") != DefaultUnits {
			t.Errorf("lang/units = %s/%s", q.Get("lang"), q.Get("units"))
		}
		if !strings.Contains(q.Get("exclude"), "hourly") {
			t.Errorf("exclude = %s", q.Get("exclude"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	})

	snap, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(snap.Daily) != 3 {
		t.Fatalf("daily points = %d, want 3", len(snap.Daily))
	}
	tm, err := snap.Tomorrow()
	if err != nil {
		t.Fatalf("Tomorrow error: %v", err)
	}
	if tm.Precip != PrecipRain || *tm.Probability != 0.6 || *tm.Low != 2.0 || *tm.High != 7.0 {
		t.Fatalf("unexpected tomorrow point: %+v", tm)
	}
	if snap.Daily[0].Precip != PrecipNone {
		t.Fatalf("point 0 precip = %v, want None", snap.Daily[0].Precip)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		body  string
		check func(error) bool
	}{
		{
			name: "non success status",
			code: http.StatusForbidden,
			body: "daily usage limit exceeded",
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.Code == http.StatusForbidden && se.Body == "daily usage limit exceeded"
			},
		},
		{
			name:  "missing daily",
			code:  http.StatusOK,
			body:  `{"latitude": 1}`,
			check: func(err error) bool { return IsMissingField(err, "daily") },
		},
		{
			name: "malformed json",
			code: http.StatusOK,
			body: `{"daily": [`,
			check: func(err error) bool {
				var pe *ParseError
				return errors.As(err, &pe)
			},
		},
		{
			name: "unknown precipitation",
			code: http.StatusOK,
			body: `{"daily": {"data": [{"time": 1, "precipType": "hail"}]}}`,
			check: func(err error) bool {
				var pe *ParseError
				return errors.As(err, &pe)
			},
		},
		{
			name:  "point without time",
			code:  http.StatusOK,
			body:  `{"daily": {"data": [{"temperatureLow": 1}]}}`,
			check: func(err error) bool { return IsMissingField(err, "daily.data[0].time") },
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Fetch(context.Background())
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want exactly 1 (no retry)", calls)
			}
		})
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, APIKey: "k", Timeout: time.Second}, nil)
	_, err := c.Fetch(context.Background())
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestFetchBreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 5; i++ {
		_, _ = c.Fetch(context.Background())
	}
	_, err := c.Fetch(context.Background())
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError from open breaker", err)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

func TestStatusErrorBodyKeepsRunesWhole(t *testing.T) {
	body := "x" + strings.Repeat("ліміт ", 200)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(body))
	})
	_, err := c.Fetch(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if !utf8.ValidString(se.Body) || len(se.Body) > maxErrorBody || !strings.HasPrefix(body, se.Body) {
		t.Fatalf("body not cut on a rune boundary: len=%d tail=%q", len(se.Body), se.Body[len(se.Body)-3:])
	}
}

func TestParseKeepsLocalMidnightOnUTCDate(t *testing.T) {
	tests := []struct {
		name   string
		month  time.Month
		offset int
	}{
		{name: "winter", month: time.January, offset: 2},
		{name: "summer", month: time.July, offset: 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			// Europe/Kyiv midnight opening the 16th, as the provider stamps it.
			stamp := time.Date(2026, tt.month, 16, 0, 0, 0, 0, time.FixedZone("Europe/Kyiv", tt.offset*3600))
			body := fmt.Sprintf(`{"daily": {"data": [{"time": %d}, {"time": %d}]}}`, stamp.AddDate(0, 0, -1).Unix(), stamp.Unix())
			now := time.Date(2026, tt.month, 15, 8, 0, 0, 0, time.UTC)

			snap, err := Parse([]byte(body), now, time.UTC)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			today, err := snap.Today()
			if err != nil {
				t.Fatalf("Today error: %v", err)
			}
			if !today.SameDay(now, time.UTC) {
				t.Fatalf("today point %s should fall on %s", today.Date, now.Format("2006-01-02"))
			}
		})
	}
}
