package engine

import (
	"fmt"
	"math"
	"time"

	"forecastbot/internal/forecast"
)

// FormatTomorrow renders the broadcast / reply text for one summary.
func FormatTomorrow(s forecast.Summary, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("Forecast for tomorrow %s:\nTemperature: %.1f–%.1f\nPrecipitation: %s, %.0f%% chance",
		s.Date.In(loc).Format("02.01"),
		s.Low, s.High,
		s.Precip,
		math.Round(s.Probability*100),
	)
}

// TomorrowMessage reads the "tomorrow" point of snap and formats it.
func TomorrowMessage(snap *forecast.Snapshot, loc *time.Location) (string, error) {
	p, err := snap.Tomorrow()
	if err != nil {
		return "", err
	}
	sum, err := p.Summary()
	if err != nil {
		return "", err
	}
	return FormatTomorrow(sum, loc), nil
}
