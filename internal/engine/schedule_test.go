package engine

import "testing"

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"60s", "@every 1m0s", true},
		{"6s", "@every 6s", true},
		{"00:05", "@every 5m0s", true},
		{"*/1 * * * *", "*/1 * * * *", true},
		{"@every 1m", "@every 1m", true},
		{"cron:0 * * * * *", "0 * * * * *", true},
		{"", "", false},
		{"cron:", "", false},
		{"500ms", "", false},
		{"00:75", "", false},
		{"soon", "", false},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseSchedule(%q) err=%v, want ok=%v", tc.in, err, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("ParseSchedule(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultSchedule(t *testing.T) {
	t.Parallel()
	if got := DefaultSchedule(true); got != "@every 6s" {
		t.Fatalf("debug schedule %q", got)
	}
	if got := DefaultSchedule(false); got != "@every 1m0s" {
		t.Fatalf("release schedule %q", got)
	}
}
