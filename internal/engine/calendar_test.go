package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"forecastbot/internal/forecast"
)

// kyivPayload renders a daily block stamped at Europe/Kyiv midnight, starting
// at the local midnight that opens day.
func kyivPayload(day time.Time, offsetHours int) []byte {
	zone := time.FixedZone("Europe/Kyiv", offsetHours*3600)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, zone)
	points := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		points = append(points, fmt.Sprintf(
			`{"time": %d, "temperatureLow": -3.5, "temperatureHigh": 1.5, "precipType": "snow", "precipProbability": 0.4}`,
			start.AddDate(0, 0, i).Unix()))
	}
	return []byte(`{"daily": {"data": [` + strings.Join(points, ",") + `]}}`)
}

func TestProviderMidnightStampsFollowUTCCalendar(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		month  time.Month
		offset int
		label  string
	}{
		{name: "winter", month: time.January, offset: 2, label: "16.01"},
		{name: "summer", month: time.July, offset: 3, label: "16.07"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gateDay := func(hour, min int) time.Time {
				return time.Date(2026, tt.month, 15, hour, min, 0, 0, kyiv)
			}
			// The provider answers on the 15th with index 0 at the midnight
			// that opens the 15th locally.
			body := kyivPayload(gateDay(0, 0), tt.offset)

			h := newHarness(func(int) (*forecast.Snapshot, error) {
				return forecast.Parse(body, gateDay(10, 0), time.UTC)
			}, "a")

			for m := 0; m < 5; m++ {
				h.tickAt(gateDay(10, m))
			}
			if n := h.fetcher.Calls(); n != 1 {
				t.Fatalf("fetch calls=%d want 1", n)
			}

			rep := h.tickAt(gateDay(19, 0))
			if rep.FetchAttempted || rep.Broadcast == nil {
				t.Fatalf("evening tick: %+v", rep)
			}
			got := h.sender.Sent()
			if len(got) != 1 || !strings.Contains(got[0].Text, "tomorrow "+tt.label+":") {
				t.Fatalf("sent=%+v want header for %s", got, tt.label)
			}
		})
	}
}
