package forecast

import (
	"errors"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestTomorrowNeedsThreePoints(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	for n := 0; n < 3; n++ {
		snap := &Snapshot{}
		for i := 0; i < n; i++ {
			snap.Daily = append(snap.Daily, DailyPoint{Date: day.AddDate(0, 0, i)})
		}
		if _, err := snap.Tomorrow(); !errors.Is(err, ErrArrayIndex) {
			t.Fatalf("points=%d: err = %v, want ErrArrayIndex", n, err)
		}
		if snap.Usable() {
			t.Fatalf("points=%d: Usable() = true", n)
		}
	}

	var nilSnap *Snapshot
	if _, err := nilSnap.Today(); !errors.Is(err, ErrArrayIndex) {
		t.Fatalf("nil snapshot: err = %v, want ErrArrayIndex", err)
	}
}

func TestSummaryRequiredFields(t *testing.T) {
	t.Parallel()
	date := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		point   DailyPoint
		missing string
		want    Summary
	}{
		{
			name:  "rain",
			point: DailyPoint{Date: date, Low: f64(2), High: f64(7), Precip: PrecipRain, Probability: f64(0.6)},
			want:  Summary{Date: date, Low: 2, High: 7, Precip: PrecipRain, Probability: 0.6},
		},
		{
			name:  "no precipitation ignores probability",
			point: DailyPoint{Date: date, Low: f64(-1), High: f64(3), Probability: f64(0.4)},
			want:  Summary{Date: date, Low: -1, High: 3, Precip: PrecipNone, Probability: 0},
		},
		{name: "missing low", point: DailyPoint{Date: date, High: f64(7)}, missing: "low"},
		{name: "missing high", point: DailyPoint{Date: date, Low: f64(2)}, missing: "high"},
		{
			name:    "kind without probability",
			point:   DailyPoint{Date: date, Low: f64(2), High: f64(7), Precip: PrecipSnow},
			missing: "precip_probability",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.point.Summary()
			if tt.missing != "" {
				if !IsMissingField(err, tt.missing) {
					t.Fatalf("err = %v, want missing %q", err, tt.missing)
				}
				return
			}
			if err != nil {
				t.Fatalf("Summary error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Summary = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePrecipKind(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]PrecipKind{"": PrecipNone, "rain": PrecipRain, "Snow": PrecipSnow, "sleet": PrecipSleet} {
		got, err := ParsePrecipKind(in)
		if err != nil || got != want {
			t.Fatalf("ParsePrecipKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePrecipKind("hail"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestSameDayUsesLocation(t *testing.T) {
	t.Parallel()
	kyiv := time.FixedZone("UTC+2", 2*3600)
	// 22:30 UTC on the 15th is already the 16th at UTC+2.
	p := DailyPoint{Date: time.Date(2026, 10, 15, 22, 30, 0, 0, time.UTC)}
	if !p.SameDay(time.Date(2026, 10, 16, 9, 0, 0, 0, kyiv), kyiv) {
		t.Fatal("expected same local day")
	}
	if p.SameDay(time.Date(2026, 10, 16, 9, 0, 0, 0, kyiv), time.UTC) {
		t.Fatal("expected different UTC day")
	}
}
