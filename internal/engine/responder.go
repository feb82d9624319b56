package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

// Responder answers on-demand forecast requests from the cached snapshot.
// It reads a view of the state and never touches broadcast bookkeeping.
type Responder struct {
	guard      *Guard
	dispatcher *Dispatcher
	keyboard   *kit.Keyboard
	loc        *time.Location
	log        logx.Logger
}

func NewResponder(g *Guard, d *Dispatcher, kb *kit.Keyboard, loc *time.Location, log logx.Logger) *Responder {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Responder{guard: g, dispatcher: d, keyboard: kb, loc: loc, log: log}
}

// Respond sends the "tomorrow" message to recipientID. Without a usable
// snapshot it only logs and returns nil.
func (r *Responder) Respond(ctx context.Context, recipientID string) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return errors.New("recipient id required")
	}
	log := r.log.With(logx.String("to", recipientID))

	snap := r.guard.View().Snapshot
	if !snap.Usable() {
		log.Info("forecast requested but none is cached yet")
		return nil
	}
	text, err := TomorrowMessage(snap, r.loc)
	if err != nil {
		log.Warn("cannot build forecast reply", logx.Err(err))
		return err
	}

	res := r.dispatcher.Dispatch(ctx, storage.KindReply, text, []string{recipientID}, r.keyboard)
	if res.Failed > 0 {
		return errors.New("forecast reply was not delivered")
	}
	return nil
}
