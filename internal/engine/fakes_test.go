package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"forecastbot/internal/forecast"
	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

var (
	kyiv    = FixedZone(2)
	logxNop = logx.Nop()
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, time.October, day, hour, min, 0, 0, kyiv)
}

func utcAt(day, hour, min int) time.Time {
	return time.Date(2026, time.October, day, hour, min, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

// snapshotFor builds four daily points stamped at local midnight the way the
// provider does, so index 1 falls on the given UTC day.
func snapshotFor(day int) *forecast.Snapshot {
	s := &forecast.Snapshot{FetchedAt: utcAt(day, 0, 0)}
	for i := 0; i < 4; i++ {
		s.Daily = append(s.Daily, forecast.DailyPoint{
			Date:        at(day+i, 0, 0).In(time.UTC),
			Low:         f(2),
			High:        f(7),
			Precip:      forecast.PrecipRain,
			Probability: f(0.6),
		})
	}
	return s
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*forecast.Snapshot, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*forecast.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	fn := f.fn
	f.mu.Unlock()
	return fn(n)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDirectory struct {
	mu      sync.Mutex
	calls   int
	members []kit.Member
	err     error
}

func (d *fakeDirectory) Members(ctx context.Context) ([]kit.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]kit.Member(nil), d.members...), nil
}

func (d *fakeDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type sent struct {
	To   string
	Text string
	KB   *kit.Keyboard
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	fail    map[string]int // recipient -> remaining failures (-1 = always)
	attempt int
}

func (s *fakeSender) SendText(ctx context.Context, to, text string, kb *kit.Keyboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt++
	if n, ok := s.fail[to]; ok && n != 0 {
		if n > 0 {
			s.fail[to] = n - 1
		}
		return errors.New("recipient unreachable")
	}
	s.sent = append(s.sent, sent{To: to, Text: text, KB: kb})
	return nil
}

func (s *fakeSender) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func (s *fakeSender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

type memStore struct {
	mu   sync.Mutex
	recs []storage.DispatchRecord
}

func (m *memStore) AppendDispatch(ctx context.Context, r storage.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) RecentDispatches(ctx context.Context, n int) ([]storage.DispatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.DispatchRecord
	for i := len(m.recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func members(ids ...string) []kit.Member {
	out := make([]kit.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, kit.Member{ID: id, Name: "user " + id, Role: "participant"})
	}
	return out
}

type harness struct {
	sched   *Scheduler
	fetcher *fakeFetcher
	dir     *fakeDirectory
	sender  *fakeSender
	audit   *memStore
	clock   time.Time
}

func newHarness(fetch func(call int) (*forecast.Snapshot, error), ids ...string) *harness {
	h := &harness{
		fetcher: &fakeFetcher{fn: fetch},
		dir:     &fakeDirectory{members: members(ids...)},
		sender:  &fakeSender{fail: map[string]int{}},
		audit:   &memStore{},
	}
	d := NewDispatcher(DispatchConfig{RatePerSec: 1000}, h.sender, h.audit, nil, logxNop)
	h.sched = NewScheduler(SchedulerConfig{Schedule: "1h"}, Deps{
		Guard:      NewGuard(),
		Fetcher:    h.fetcher,
		Directory:  h.dir,
		Dispatcher: d,
	}, logxNop)
	h.sched.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) tickAt(t time.Time) TickReport {
	h.clock = t
	return h.sched.Tick(context.Background())
}

func (h *harness) state() State { return h.sched.Guard().View() }
