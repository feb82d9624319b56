package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"forecastbot/internal/forecast"
	kit "forecastbot/internal/transport"
)

// Registry is an immutable set of subscribers keyed by recipient id.
// It is replaced wholesale, never edited in place.
type Registry struct {
	byID map[string]kit.Member
}

// NewRegistry builds a registry. Members with an empty id are skipped;
// duplicates keep the last entry.
func NewRegistry(members []kit.Member) Registry {
	m := make(map[string]kit.Member, len(members))
	for _, mem := range members {
		id := strings.TrimSpace(mem.ID)
		if id == "" {
			continue
		}
		mem.ID = id
		m[id] = mem
	}
	return Registry{byID: m}
}

func (r Registry) Len() int { return len(r.byID) }

func (r Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns recipient ids in stable order.
func (r Registry) IDs() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r Registry) Members() []kit.Member {
	out := make([]kit.Member, 0, len(r.byID))
	for _, id := range r.IDs() {
		out = append(out, r.byID[id])
	}
	return out
}

// Bookkeeping timestamps are epoch seconds; 0 means never.
type Bookkeeping struct {
	LastBroadcastAt int64
	LastRefreshAt   int64
}

// State is the whole mutable engine state.
type State struct {
	Snapshot *forecast.Snapshot
	Book     Bookkeeping
	Registry Registry
}

// Guard owns State. The lock is held only for in-memory transitions;
// callers must not perform I/O inside Read or Update.
type Guard struct {
	mu sync.Mutex
	st State
}

func NewGuard() *Guard {
	return &Guard{st: State{Registry: NewRegistry(nil)}}
}

func (g *Guard) Read(fn func(st State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.st)
}

func (g *Guard) Update(fn func(st *State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.st)
}

// View returns a consistent copy. Snapshot and Registry are never mutated
// after installation, so sharing them is safe.
func (g *Guard) View() State {
	var out State
	g.Read(func(st State) { out = st })
	return out
}

func (g *Guard) InstallSnapshot(s *forecast.Snapshot) {
	if s == nil {
		return
	}
	g.Update(func(st *State) { st.Snapshot = s })
}

func (g *Guard) ReplaceSubscribers(members []kit.Member, at time.Time) {
	reg := NewRegistry(members)
	g.Update(func(st *State) {
		st.Registry = reg
		st.Book.LastRefreshAt = at.Unix()
	})
}

func (g *Guard) MarkBroadcast(at time.Time) {
	g.Update(func(st *State) { st.Book.LastBroadcastAt = at.Unix() })
}
