package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, ev kit.Event) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev kit.Event) error {
			if d <= 0 {
				return next(ctx, ev)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, ev)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev kit.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered", logx.String("event", string(ev.Kind)), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, ev)
		}
	}
}

func MWEventLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev kit.Event) error {
			start := time.Now()
			err := next(ctx, ev)
			fields := []logx.Field{
				logx.String("event", string(ev.Kind)),
				logx.String("from", ev.SenderID),
				logx.Duration("took", time.Since(start)),
			}
			if err != nil {
				log.Warn("event handling failed", append(fields, logx.Err(err))...)
				return err
			}
			log.Debug("event handled", fields...)
			return nil
		}
	}
}
