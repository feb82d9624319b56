package engine

import (
	"context"
	"sync"
	"testing"

	"forecastbot/internal/forecast"
	kit "forecastbot/internal/transport"
)

func newResponder(g *Guard, s *fakeSender) *Responder {
	d := NewDispatcher(DispatchConfig{RatePerSec: 1000}, s, nil, nil, logxNop)
	kb := &kit.Keyboard{Buttons: []kit.Button{{ActionType: "reply", ActionBody: "forecast_kiev_tomorrow", Text: "Weather for tomorrow"}}}
	return NewResponder(g, d, kb, nil, logxNop)
}

func TestRespondWithoutSnapshotIsNoop(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	r := newResponder(NewGuard(), s)
	if err := r.Respond(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Attempts() != 0 {
		t.Fatalf("no send expected")
	}
}

func TestRespondWithShortSnapshotIsNoop(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	snap := snapshotFor(15)
	snap.Daily = snap.Daily[:2]
	g.InstallSnapshot(snap)

	s := &fakeSender{}
	if err := newResponder(g, s).Respond(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Attempts() != 0 {
		t.Fatalf("no send expected")
	}
}

func TestRespondSendsToRequesterOnly(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	g.InstallSnapshot(snapshotFor(15))
	g.ReplaceSubscribers(members("u1", "u2"), at(15, 9, 0))
	s := &fakeSender{}

	if err := newResponder(g, s).Respond(context.Background(), "u2"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	got := s.Sent()
	if len(got) != 1 || got[0].To != "u2" || got[0].KB == nil {
		t.Fatalf("sent=%+v", got)
	}
	if g.View().Book.LastBroadcastAt != 0 {
		t.Fatalf("responder must not touch broadcast bookkeeping")
	}
}

func TestRespondReportsDeliveryFailure(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	g.InstallSnapshot(snapshotFor(15))
	s := &fakeSender{fail: map[string]int{"u1": -1}}
	if err := newResponder(g, s).Respond(context.Background(), "u1"); err == nil {
		t.Fatalf("expected delivery error")
	}
	if err := newResponder(g, s).Respond(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestRespondConcurrentWithTicks(t *testing.T) {
	t.Parallel()
	h := newHarness(func(call int) (*forecast.Snapshot, error) { return snapshotFor(14 + call%3), nil }, "a", "b")
	r := newResponder(h.sched.Guard(), &fakeSender{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Respond(context.Background(), "a")
			}
		}()
	}
	h.clock = at(15, 20, 0)
	for i := 0; i < 50; i++ {
		h.sched.Tick(context.Background())
	}
	wg.Wait()
	if h.state().Book.LastBroadcastAt != at(15, 20, 0).Unix() {
		t.Fatalf("exactly one broadcast expected")
	}
}
