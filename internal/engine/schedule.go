package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DebugInterval   = 6 * time.Second
	ReleaseInterval = 60 * time.Second
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns a tick schedule into a cron spec understood by the
// scheduler's parser.
//
// Accepted forms:
//   - Go duration: "60s", "2m"          -> "@every 60s"
//   - HH:MM interval: "00:05"           -> "@every 5m0s"
//   - cron expression or descriptor: "*/1 * * * *", "@every 1m", "cron:0 * * * * *"
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}
	if strings.HasPrefix(strings.ToLower(s), "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return "", fmt.Errorf("cron schedule required after 'cron:'")
		}
		return expr, nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return s, nil
	}
	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return "", err
		}
		return every(d), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q (use a duration like '60s', HH:MM like '00:05', or cron like '*/1 * * * *')", raw)
	}
	if d < time.Second {
		return "", fmt.Errorf("interval must be >= 1s")
	}
	return every(d), nil
}

// DefaultSchedule picks the tick interval for the build mode.
func DefaultSchedule(debug bool) string {
	if debug {
		return every(DebugInterval)
	}
	return every(ReleaseInterval)
}

func every(d time.Duration) string { return "@every " + d.String() }

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
