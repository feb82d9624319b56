package engine

import (
	"time"

	"forecastbot/internal/forecast"
)

// NeedsRefresh reports whether the cached snapshot must be refetched: there is
// none, or its "today" point is not on the current date in loc. A snapshot too
// short to hold a "today" point is stale and ErrArrayIndex is returned with it.
func NeedsRefresh(snap *forecast.Snapshot, now time.Time, loc *time.Location) (bool, error) {
	if snap == nil {
		return true, nil
	}
	today, err := snap.Today()
	if err != nil {
		return true, err
	}
	return !today.SameDay(now, loc), nil
}
