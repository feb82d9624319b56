package engine

import (
	"fmt"
	"time"
)

const (
	DefaultMinGap   = 24 * time.Hour
	DefaultFromHour = 19
	DefaultToHour   = 21
	DefaultUTCShift = 2
)

// Gate decides whether a broadcast is due. Hours are inclusive and read in Zone.
type Gate struct {
	Zone     *time.Location
	FromHour int
	ToHour   int
	MinGap   time.Duration
}

func DefaultGate() Gate {
	return Gate{
		Zone:     FixedZone(DefaultUTCShift),
		FromHour: DefaultFromHour,
		ToHour:   DefaultToHour,
		MinGap:   DefaultMinGap,
	}
}

// FixedZone returns a location with a constant offset and no DST.
func FixedZone(hours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", hours), hours*3600)
}

// Due is true when strictly more than MinGap has passed since lastBroadcastAt
// and the hour of now in Zone is within [FromHour, ToHour].
func (g Gate) Due(now time.Time, lastBroadcastAt int64) bool {
	zone := g.Zone
	if zone == nil {
		zone = time.UTC
	}
	if now.Unix()-lastBroadcastAt <= int64(g.MinGap/time.Second) {
		return false
	}
	h := now.In(zone).Hour()
	return h >= g.FromHour && h <= g.ToHour
}

func (g Gate) Validate() error {
	if g.FromHour < 0 || g.FromHour > 23 || g.ToHour < 0 || g.ToHour > 23 {
		return fmt.Errorf("broadcast hours must be within 0..23 (got %d..%d)", g.FromHour, g.ToHour)
	}
	if g.FromHour > g.ToHour {
		return fmt.Errorf("broadcast from_hour %d is after to_hour %d", g.FromHour, g.ToHour)
	}
	if g.MinGap <= 0 {
		return fmt.Errorf("broadcast min_gap must be > 0")
	}
	return nil
}

// DueToBroadcast applies the default gate: more than 86400 s since the last
// broadcast and a local hour of 19, 20 or 21 at UTC+2.
func DueToBroadcast(now time.Time, lastBroadcastAt int64) bool {
	return DefaultGate().Due(now, lastBroadcastAt)
}
