// Package webhook serves the inbound messenger callback and a status endpoint.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"forecastbot/internal/engine"
	"forecastbot/internal/runtime/supervisor"
	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

const (
	DefaultAddr = ":8080"
	DefaultPath = "/api/viber/webhook"
	StatusPath  = "/api/status"

	pprofPrefix = "/debug/pprof"

	signatureHeader = "X-Viber-Content-Signature"
)

type Config struct {
	Addr string
	Path string
	// Secret enables callback signature checks (HMAC-SHA256 of the body).
	Secret string
	// Pprof mounts /debug/pprof. A non-empty PprofToken must then be sent
	// as a bearer token.
	Pprof      bool
	PprofToken string
}

// Parser turns a raw callback body into an event.
type Parser func(body []byte) (kit.Event, error)

// Handler processes one event; bot.Router implements it.
type Handler interface {
	Handle(ctx context.Context, ev kit.Event) error
}

type Deps struct {
	Parse   Parser
	Handler Handler
	Guard   *engine.Guard
	Audit   storage.Store
	// Sup runs event handling off the request goroutine.
	Sup *supervisor.Supervisor
}

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	app  *fiber.App
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log}

	s.app = fiber.New(fiber.Config{
		AppName:               "forecastbot",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLog)

	if cfg.Pprof {
		s.app.Use(pprofPrefix, s.pprofAuth)
		s.app.Use(pprof.New())
	}

	s.app.Post(cfg.Path, s.callback)
	s.app.Get(StatusPath, s.status)
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("http request",
		logx.String("method", c.Method()),
		logx.String("path", c.Path()),
		logx.Int("status", c.Response().StatusCode()),
		logx.Duration("took", time.Since(start)),
	)
	return err
}

func (s *Server) pprofAuth(c *fiber.Ctx) error {
	if s.cfg.PprofToken == "" {
		return c.Next()
	}
	got := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !hmac.Equal([]byte(got), []byte(s.cfg.PprofToken)) {
		return fiber.ErrUnauthorized
	}
	return c.Next()
}

// callback always answers 200; the platform retries anything else.
func (s *Server) callback(c *fiber.Ctx) error {
	body := c.Body()
	if s.cfg.Secret != "" && !validSignature(body, c.Get(signatureHeader), s.cfg.Secret) {
		s.log.Warn("callback signature mismatch; ignoring")
		return c.SendStatus(fiber.StatusOK)
	}
	if s.deps.Parse == nil || s.deps.Handler == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	ev, err := s.deps.Parse(body)
	if err != nil {
		s.log.Debug("callback not understood", logx.Err(err))
		return c.SendStatus(fiber.StatusOK)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h := s.deps.Handler
	run := func(ctx context.Context) { _ = h.Handle(ctx, ev) }
	if s.deps.Sup != nil {
		s.deps.Sup.Go0("webhook."+string(ev.Kind), run)
	} else {
		go run(context.Background())
	}
	return c.SendStatus(fiber.StatusOK)
}

func validSignature(body []byte, got, secret string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(got))
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Status is the payload of GET /api/status.
type Status struct {
	LastBroadcastAt  *time.Time               `json:"last_broadcast_at"`
	LastRefreshAt    *time.Time               `json:"last_refresh_at"`
	Subscribers      int                      `json:"subscribers"`
	ForecastFetched  *time.Time               `json:"forecast_fetched_at"`
	ForecastDate     string                   `json:"forecast_date,omitempty"`
	RecentDispatches []storage.DispatchRecord `json:"recent_dispatches,omitempty"`
	Goroutines       supervisor.Counters      `json:"goroutines"`
}

func (s *Server) status(c *fiber.Ctx) error {
	var out Status
	if g := s.deps.Guard; g != nil {
		st := g.View()
		out.LastBroadcastAt = epoch(st.Book.LastBroadcastAt)
		out.LastRefreshAt = epoch(st.Book.LastRefreshAt)
		out.Subscribers = st.Registry.Len()
		if snap := st.Snapshot; snap != nil {
			t := snap.FetchedAt
			out.ForecastFetched = &t
			if p, err := snap.Today(); err == nil {
				out.ForecastDate = p.Date.UTC().Format("2006-01-02")
			}
		}
	}
	if s.deps.Audit != nil {
		recs, err := s.deps.Audit.RecentDispatches(c.UserContext(), 10)
		if err != nil {
			s.log.Warn("reading dispatch log failed", logx.Err(err))
		}
		out.RecentDispatches = recs
	}
	out.Goroutines = s.deps.Sup.Counters()
	return c.JSON(out)
}

func epoch(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Start listens in the background until Stop.
func (s *Server) Start(sup *supervisor.Supervisor) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.log.Info("webhook listening", logx.String("addr", ln.Addr().String()), logx.String("path", s.cfg.Path))
	sup.Go("webhook.listen", func(ctx context.Context) error {
		return s.app.Listener(ln)
	})
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
