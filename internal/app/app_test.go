package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forecastbot/internal/config"
	"forecastbot/internal/engine"
	"forecastbot/internal/runtime/supervisor"
	kit "forecastbot/internal/transport"
	logx "forecastbot/pkg/logx"
)

func testConfig(t *testing.T, provider, viberURL string) string {
	t.Helper()
	body := `
forecast:
  api_key: k
  base_url: ` + provider + `
viber:
  token: t
  base_url: ` + viberURL + `
webhook:
  addr: 127.0.0.1:0
scheduler:
  schedule: 1h
  stop_timeout: 1s
logging:
  level: error
`
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestStartStop(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer provider.Close()
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"status_message":"ok","members":[]}`))
	}))
	defer platform.Close()

	a, err := New(testConfig(t, provider.URL, platform.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := a.hook.App().Test(req, -1)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status=%d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatalf("supervisor context not canceled")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{"messenger":"viber"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(p); err == nil {
		t.Fatalf("expected error for missing secrets")
	}
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	var a App
	if err := a.Stop(context.Background(), StopUnknown); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed when never started")
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	from := 18
	cfg := &config.Config{
		AdminID:   "admin",
		Scheduler: config.SchedulerConfig{Schedule: "30s"},
		Broadcast: config.BroadcastConfig{Audience: "admin", FromHour: &from},
	}
	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if sc.Audience != engine.AudienceAdmin || sc.AdminID != "admin" || sc.Gate.FromHour != 18 {
		t.Fatalf("unexpected: %+v", sc)
	}
	if sc.Location != time.UTC || sc.Gate.Zone == time.UTC {
		t.Fatalf("calendar zone should be UTC, independent of the gate zone")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		wantErr string
	}{
		{"absent", nil, false, ""},
		{"none", &config.StorageConfig{Driver: "none"}, false, ""},
		{"file", &config.StorageConfig{Driver: "file", Path: "x"}, true, ""},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, true, ""},
		{"bad busy", &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "x"}, false, "busy_timeout"},
		{"unknown", &config.StorageConfig{Driver: "redis"}, false, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tc.sc})
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err=%v want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil || enabled != tc.enabled {
				t.Fatalf("enabled=%v err=%v", enabled, err)
			}
			if tc.name == "sqlite" && (got.Driver != "sqlite" || got.BusyTimeout != 2*time.Second) {
				t.Fatalf("unexpected: %+v", got)
			}
		})
	}
}

func TestMapWebhookConfigSecret(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Messenger: "viber", Viber: config.ViberConfig{Token: "tok", VerifySignature: true}}
	if got := mapWebhookConfig(cfg).Secret; got != "tok" {
		t.Fatalf("secret=%q", got)
	}
	cfg.Viber.VerifySignature = false
	if got := mapWebhookConfig(cfg).Secret; got != "" {
		t.Fatalf("secret=%q want empty", got)
	}
}

func TestMapDispatchConfigDefaultsRate(t *testing.T) {
	t.Parallel()
	if got := mapDispatchConfig(&config.Config{}).RatePerSec; got != defaultRatePerSec {
		t.Fatalf("rate=%d", got)
	}
}

type fakeListener struct {
	release chan struct{}
	exited  chan struct{}
}

func (l *fakeListener) Listen(ctx context.Context, out chan<- kit.Event) error {
	defer close(l.exited)
	if l.release != nil {
		<-l.release
		return nil
	}
	<-ctx.Done()
	return nil
}

func TestStopMessengerEndsListener(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop(), sup: supervisor.NewSupervisor(context.Background())}
	defer a.sup.Cancel()
	l := &fakeListener{exited: make(chan struct{})}
	a.startListener(l)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.stopMessenger(ctx); err != nil {
		t.Fatalf("stopMessenger: %v", err)
	}
	select {
	case <-l.exited:
	default:
		t.Fatalf("listener still running")
	}
	if a.sup.Context().Err() != nil {
		t.Fatalf("shared context must outlive the messenger step")
	}
}

func TestStopMessengerHonoursDeadline(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop(), sup: supervisor.NewSupervisor(context.Background())}
	defer a.sup.Cancel()
	l := &fakeListener{release: make(chan struct{}), exited: make(chan struct{})}
	defer close(l.release)
	a.startListener(l)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.stopMessenger(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
}

func TestStopMessengerWithoutListener(t *testing.T) {
	t.Parallel()
	var a App
	if err := a.stopMessenger(context.Background()); err != nil {
		t.Fatalf("stopMessenger: %v", err)
	}
}
