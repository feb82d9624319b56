package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"forecastbot/internal/eventbus"
	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

// Sender delivers one text message. kit.Messenger satisfies it.
type Sender interface {
	SendText(ctx context.Context, to, text string, kb *kit.Keyboard) error
}

type DispatchConfig struct {
	RatePerSec int
	// RetryMax is the number of extra attempts per recipient. 0 disables retry.
	RetryMax int
}

// DispatchResult summarizes one fan-out. Every recipient has been attempted
// once Dispatch returns.
type DispatchResult struct {
	ID       string
	Total    int
	Failed   int
	Failures []string
	Took     time.Duration
}

// Dispatcher sends one text to a list of recipients, throttled by a shared
// limiter. Per-recipient failures never stop the loop.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     DispatchConfig
	sender  Sender
	limiter *rate.Limiter

	audit storage.Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewDispatcher(cfg DispatchConfig, sender Sender, audit storage.Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{sender: sender, audit: audit, bus: bus, log: log}
	d.Apply(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg DispatchConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Dispatch sends text to every recipient and records the outcome under kind
// (storage.KindBroadcast or storage.KindReply).
func (d *Dispatcher) Dispatch(ctx context.Context, kind, text string, recipients []string, kb *kit.Keyboard) DispatchResult {
	start := time.Now()
	res := DispatchResult{ID: uuid.NewString(), Total: len(recipients)}
	log := d.log.With(logx.String("dispatch", res.ID), logx.String("kind", kind))
	log.Debug("dispatch started", logx.Int("total", res.Total))

	var lastErr error
	for _, to := range recipients {
		if err := d.sendOne(ctx, log, to, text, kb); err != nil {
			res.Failed++
			if len(res.Failures) < 200 {
				res.Failures = append(res.Failures, to)
			}
			lastErr = err
			log.Warn("send failed", logx.String("to", to), logx.Err(err))
		}
	}
	res.Took = time.Since(start)

	fields := []logx.Field{logx.Int("total", res.Total), logx.Int("failed", res.Failed), logx.Duration("took", res.Took)}
	if res.Failed > 0 {
		log.Warn("dispatch finished with failures", fields...)
	} else {
		log.Info("dispatch finished", fields...)
	}

	d.record(ctx, kind, start, res, lastErr)
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, log logx.Logger, to, text string, kb *kit.Keyboard) error {
	d.mu.Lock()
	lim := d.limiter
	retry := d.cfg.RetryMax
	sender := d.sender
	d.mu.Unlock()

	if sender == nil {
		return errors.New("no messenger configured")
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	var last error
	for i := 0; i <= retry; i++ {
		err := sender.SendText(ctx, to, text, kb)
		if err == nil {
			return nil
		}
		last = err
		if i == retry {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		log.Debug("send retry scheduled", logx.String("to", to), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	return last
}

func (d *Dispatcher) record(ctx context.Context, kind string, at time.Time, res DispatchResult, lastErr error) {
	typ := eventbus.BroadcastFinished
	if kind == storage.KindReply {
		typ = eventbus.ReplySent
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: res})
	}
	if d.audit == nil {
		return
	}
	rec := storage.DispatchRecord{
		ID:     res.ID,
		At:     at,
		Kind:   kind,
		Total:  res.Total,
		Failed: res.Failed,
		TookMS: res.Took.Milliseconds(),
	}
	if lastErr != nil {
		rec.Error = lastErr.Error()
	}
	// Recorded even when ctx is already cancelled.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.audit.AppendDispatch(actx, rec); err != nil {
		d.log.Warn("dispatch audit append failed", logx.String("dispatch", res.ID), logx.Err(err))
	}
}
