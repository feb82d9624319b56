package forecast

import (
	"fmt"
	"strings"
	"time"
)

// Daily point indices consumed by the bot. The provider's daily block is
// read with index 1 as the "today" reference and index 2 as tomorrow.
const (
	TodayIndex    = 1
	TomorrowIndex = 2
)

// PrecipKind is the precipitation variant of a daily point.
type PrecipKind int

const (
	PrecipNone PrecipKind = iota
	PrecipRain
	PrecipSnow
	PrecipSleet
)

func (k PrecipKind) String() string {
	switch k {
	case PrecipRain:
		return "Rain"
	case PrecipSnow:
		return "Snow"
	case PrecipSleet:
		return "Sleet"
	default:
		return "None"
	}
}

// ParsePrecipKind maps the provider's precipType value. Empty means none.
func ParsePrecipKind(s string) (PrecipKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PrecipNone, nil
	case "rain":
		return PrecipRain, nil
	case "snow":
		return PrecipSnow, nil
	case "sleet":
		return PrecipSleet, nil
	default:
		return PrecipNone, fmt.Errorf("unknown precipitation type %q", s)
	}
}

// DailyPoint is one day of the forecast. Optional provider fields are pointers.
type DailyPoint struct {
	Date        time.Time
	Low         *float64
	High        *float64
	Precip      PrecipKind
	Probability *float64
}

// SameDay reports whether the point's calendar date equals t's date in loc.
func (p DailyPoint) SameDay(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	y1, m1, d1 := p.Date.In(loc).Date()
	y2, m2, d2 := t.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Summary is a fully resolved daily point, ready for formatting.
type Summary struct {
	Date        time.Time
	Low         float64
	High        float64
	Precip      PrecipKind
	Probability float64
}

// Summary resolves required fields. Without a precipitation kind the
// probability is 0 regardless of what the provider sent.
func (p DailyPoint) Summary() (Summary, error) {
	if p.Low == nil {
		return Summary{}, &MissingFieldError{Name: "low"}
	}
	if p.High == nil {
		return Summary{}, &MissingFieldError{Name: "high"}
	}
	s := Summary{Date: p.Date, Low: *p.Low, High: *p.High, Precip: p.Precip}
	if p.Precip == PrecipNone {
		return s, nil
	}
	if p.Probability == nil {
		return Summary{}, &MissingFieldError{Name: "precip_probability"}
	}
	s.Probability = *p.Probability
	return s, nil
}

// Snapshot is one successfully parsed forecast. It is immutable once built;
// a newer fetch replaces it wholesale.
type Snapshot struct {
	FetchedAt time.Time
	Daily     []DailyPoint
}

// Point returns the daily point at i or ErrArrayIndex.
func (s *Snapshot) Point(i int) (DailyPoint, error) {
	if s == nil || i < 0 || i >= len(s.Daily) {
		return DailyPoint{}, ErrArrayIndex
	}
	return s.Daily[i], nil
}

func (s *Snapshot) Today() (DailyPoint, error)    { return s.Point(TodayIndex) }
func (s *Snapshot) Tomorrow() (DailyPoint, error) { return s.Point(TomorrowIndex) }

// Usable reports whether the snapshot can serve "tomorrow" reporting.
func (s *Snapshot) Usable() bool { return s != nil && len(s.Daily) > TomorrowIndex }
