package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"forecastbot/internal/forecast"
)

func TestTomorrowMessage(t *testing.T) {
	t.Parallel()
	msg, err := TomorrowMessage(snapshotFor(15), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"16.10", "2.0–7.0", "Rain", "60%"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not contain %q", msg, want)
		}
	}
}

func TestTomorrowMessageWithoutPrecipitation(t *testing.T) {
	t.Parallel()
	snap := snapshotFor(15)
	snap.Daily[2].Precip = forecast.PrecipNone
	snap.Daily[2].Probability = f(0.9)

	msg, err := TomorrowMessage(snap, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg, "None, 0%") {
		t.Fatalf("message %q should report no precipitation at 0%%", msg)
	}
}

func TestTomorrowMessageErrors(t *testing.T) {
	t.Parallel()

	short := &forecast.Snapshot{Daily: snapshotFor(15).Daily[:2]}
	if _, err := TomorrowMessage(short, time.UTC); !errors.Is(err, forecast.ErrArrayIndex) {
		t.Fatalf("short snapshot: got %v, want ErrArrayIndex", err)
	}

	noHigh := snapshotFor(15)
	noHigh.Daily[2].High = nil
	if _, err := TomorrowMessage(noHigh, time.UTC); !forecast.IsMissingField(err, "high") {
		t.Fatalf("missing high: got %v", err)
	}

	noProb := snapshotFor(15)
	noProb.Daily[2].Probability = nil
	if _, err := TomorrowMessage(noProb, time.UTC); !forecast.IsMissingField(err, "precip_probability") {
		t.Fatalf("missing probability: got %v", err)
	}
}
