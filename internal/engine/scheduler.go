package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"forecastbot/internal/eventbus"
	"forecastbot/internal/forecast"
	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

// Audience selects broadcast recipients.
type Audience string

const (
	AudienceSubscribers Audience = "subscribers"
	AudienceAdmin       Audience = "admin"
)

// Fetcher is implemented by forecast.Client.
type Fetcher interface {
	Fetch(ctx context.Context) (*forecast.Snapshot, error)
}

// Directory lists the bot's current subscribers. kit.Messenger satisfies it.
type Directory interface {
	Members(ctx context.Context) ([]kit.Member, error)
}

type SchedulerConfig struct {
	// Schedule is a duration, HH:MM interval or cron spec (see ParseSchedule).
	Schedule string
	Audience Audience
	AdminID  string
	Gate     Gate
	// Location is the calendar zone for staleness and message dates. The
	// provider stamps points at local midnight, so the gate zone cannot serve.
	Location *time.Location
}

type Deps struct {
	Guard      *Guard
	Fetcher    Fetcher
	Directory  Directory
	Dispatcher *Dispatcher
	Bus        eventbus.Bus
	Keyboard   *kit.Keyboard
}

// TickReport describes what one tick did.
type TickReport struct {
	Stale             bool
	FetchAttempted    bool
	FetchErr          error
	RegistryRefreshed bool
	RegistryErr       error
	Due               bool
	Broadcast         *DispatchResult
	BroadcastErr      error
}

// Scheduler drives ticks from a single cron entry. Ticks never overlap.
type Scheduler struct {
	mu   sync.Mutex
	cfg  SchedulerConfig
	deps Deps
	log  logx.Logger
	now  func() time.Time

	parser    cron.Parser
	c         *cron.Cron
	entry     cron.EntryID
	spec      string
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	onTick    func()

	tickMu sync.Mutex
}

func NewScheduler(cfg SchedulerConfig, deps Deps, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Guard == nil {
		deps.Guard = NewGuard()
	}
	return &Scheduler{
		cfg:  normalizeSchedulerConfig(cfg),
		deps: deps,
		log:  log,
		now:  time.Now,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func normalizeSchedulerConfig(cfg SchedulerConfig) SchedulerConfig {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule(false)
	}
	if cfg.Audience == "" {
		cfg.Audience = AudienceSubscribers
	}
	if cfg.Gate.Zone == nil && cfg.Gate.MinGap == 0 && cfg.Gate.FromHour == 0 && cfg.Gate.ToHour == 0 {
		cfg.Gate = DefaultGate()
	}
	if cfg.Gate.Zone == nil {
		cfg.Gate.Zone = FixedZone(DefaultUTCShift)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return cfg
}

func (s *Scheduler) Guard() *Guard { return s.deps.Guard }

func (s *Scheduler) Config() SchedulerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetOnTick registers a hook run after every tick (watchdog pings).
func (s *Scheduler) SetOnTick(fn func()) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// ValidateSchedule checks that raw parses into a spec the scheduler accepts.
func (s *Scheduler) ValidateSchedule(raw string) error {
	spec, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

// Apply swaps the configuration. A changed schedule re-registers the cron entry.
func (s *Scheduler) Apply(cfg SchedulerConfig) error {
	cfg = normalizeSchedulerConfig(cfg)
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c == nil || spec == s.spec {
		return nil
	}
	runCtx := s.runCtx
	id, err := s.c.AddFunc(spec, func() { s.safeTick(runCtx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.c.Remove(s.entry)
	s.entry, s.spec = id, spec
	s.log.Info("tick schedule changed", logx.String("schedule", spec))
	return nil
}

// Start registers the tick and runs a first tick right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	spec, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
	)
	runCtx, cancel := context.WithCancel(ctx)
	id, err := c.AddFunc(spec, func() { s.safeTick(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.c, s.entry, s.spec = c, id, spec
	s.runCtx, s.runCancel = runCtx, cancel
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.safeTick(runCtx)
	}()

	s.log.Info("scheduler started", logx.String("schedule", spec), logx.String("audience", string(s.cfg.Audience)))
	return nil
}

// Stop prevents new ticks and waits for an in-flight tick until ctx is done.
// After that the tick's context is cancelled, abandoning any outbound call.
func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c, s.runCancel, s.runCtx, s.spec = nil, nil, nil, ""
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopped := c.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("in-flight tick abandoned", logx.Duration("waited", time.Since(start)))
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	s.Tick(ctx)

	s.mu.Lock()
	hook := s.onTick
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Tick runs one pass: staleness, optional fetch and registry refresh, gate,
// optional broadcast. The guard is never held across outbound calls.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	cfg := s.Config()
	g := s.deps.Guard
	now := s.now()
	var rep TickReport

	stale, err := NeedsRefresh(g.View().Snapshot, now, cfg.Location)
	if err != nil {
		s.log.Warn("cached forecast has too few points; refreshing", logx.Err(err))
	}
	rep.Stale = stale

	if stale {
		rep.FetchAttempted = true
		s.fetch(ctx, now, &rep)
		s.refreshRegistry(ctx, now, &rep)
	} else {
		s.log.Debug("forecast is current")
	}

	st := g.View()
	rep.Due = cfg.Gate.Due(now, st.Book.LastBroadcastAt)
	if !rep.Due {
		s.log.Debug("broadcast not due", logx.Int64("last_broadcast_at", st.Book.LastBroadcastAt))
		return rep
	}
	s.broadcast(ctx, cfg, st, now, &rep)
	return rep
}

func (s *Scheduler) fetch(ctx context.Context, now time.Time, rep *TickReport) {
	if s.deps.Fetcher == nil {
		rep.FetchErr = fmt.Errorf("no forecast fetcher configured")
		s.log.Error("forecast fetch skipped", logx.Err(rep.FetchErr))
		return
	}
	snap, err := s.deps.Fetcher.Fetch(ctx)
	if err != nil {
		rep.FetchErr = err
		s.log.Error("forecast fetch failed; keeping cached forecast", logx.Err(err))
		s.publish(eventbus.ForecastFetchFailed, err.Error())
		return
	}
	s.deps.Guard.InstallSnapshot(snap)
	s.log.Info("forecast refreshed", logx.Int("points", len(snap.Daily)), logx.Time("fetched_at", snap.FetchedAt))
	s.publish(eventbus.ForecastRefreshed, len(snap.Daily))
}

// refreshRegistry runs in every tick that attempted a fetch, whatever the fetch outcome.
func (s *Scheduler) refreshRegistry(ctx context.Context, now time.Time, rep *TickReport) {
	if s.deps.Directory == nil {
		s.log.Debug("no subscriber directory; registry unchanged")
		return
	}
	members, err := s.deps.Directory.Members(ctx)
	if err != nil {
		rep.RegistryErr = err
		s.log.Warn("subscriber refresh failed; keeping previous registry", logx.Err(err))
		return
	}
	s.deps.Guard.ReplaceSubscribers(members, now)
	rep.RegistryRefreshed = true
	s.log.Info("subscribers refreshed", logx.Int("count", len(members)))
	s.publish(eventbus.SubscribersReplaced, len(members))
}

func (s *Scheduler) broadcast(ctx context.Context, cfg SchedulerConfig, st State, now time.Time, rep *TickReport) {
	if !st.Snapshot.Usable() {
		rep.BroadcastErr = forecast.ErrArrayIndex
		s.log.Warn("broadcast due but no usable forecast cached")
		return
	}
	text, err := TomorrowMessage(st.Snapshot, cfg.Location)
	if err != nil {
		rep.BroadcastErr = err
		s.log.Error("broadcast aborted before sending", logx.Err(err))
		s.publish(eventbus.BroadcastAborted, err.Error())
		return
	}
	to := recipients(cfg, st)
	if len(to) == 0 {
		s.log.Warn("broadcast due but there are no recipients", logx.String("audience", string(cfg.Audience)))
		return
	}
	if s.deps.Dispatcher == nil {
		rep.BroadcastErr = fmt.Errorf("no dispatcher configured")
		s.log.Error("broadcast skipped", logx.Err(rep.BroadcastErr))
		return
	}

	res := s.deps.Dispatcher.Dispatch(ctx, storage.KindBroadcast, text, to, s.deps.Keyboard)
	rep.Broadcast = &res
	s.deps.Guard.MarkBroadcast(now)
}

func recipients(cfg SchedulerConfig, st State) []string {
	if cfg.Audience == AudienceAdmin {
		id := strings.TrimSpace(cfg.AdminID)
		if id == "" {
			return nil
		}
		return []string{id}
	}
	return st.Registry.IDs()
}

func (s *Scheduler) publish(typ string, data any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// cronLogger routes robfig/cron's logging through logx.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Trace(msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
