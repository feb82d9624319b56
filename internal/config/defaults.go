package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"forecastbot/internal/engine"
)

const (
	DefaultLatitude  = 50.4501
	DefaultLongitude = 30.5234
)

// Environment variables that override file values.
const (
	EnvForecastKey   = "FORECASTBOT_FORECAST_API_KEY"
	EnvViberToken    = "FORECASTBOT_VIBER_TOKEN"
	EnvTelegramToken = "FORECASTBOT_TELEGRAM_TOKEN"
	EnvAdminID       = "FORECASTBOT_ADMIN_ID"
	EnvPort          = "PORT"
)

var validate = validator.New()

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil && !isNotExist(err) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and the listen port from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Forecast.APIKey, EnvForecastKey)
	set(&cfg.Viber.Token, EnvViberToken)
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.AdminID, EnvAdminID)
	if v, ok := lookup(EnvPort); ok {
		if _, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Webhook.Addr = ":" + strings.TrimSpace(v)
		}
	}
}

// Defaults fills omitted values.
func Defaults(cfg *Config) {
	if strings.TrimSpace(cfg.Messenger) == "" {
		cfg.Messenger = "viber"
	}
	if cfg.Forecast.Latitude == 0 && cfg.Forecast.Longitude == 0 {
		cfg.Forecast.Latitude, cfg.Forecast.Longitude = DefaultLatitude, DefaultLongitude
	}
	if strings.TrimSpace(cfg.Scheduler.Schedule) == "" {
		cfg.Scheduler.Schedule = engine.DefaultSchedule(cfg.Debug)
	}
	if cfg.Broadcast.Audience == "" {
		cfg.Broadcast.Audience = string(engine.AudienceSubscribers)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Debug {
			cfg.Logging.Level = "debug"
		}
	}
}

// Validate checks struct tags, durations, the schedule and cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	durations := map[string]string{
		"forecast.timeout":       cfg.Forecast.Timeout,
		"viber.timeout":          cfg.Viber.Timeout,
		"telegram.poll_timeout":  cfg.Telegram.PollTimeout,
		"webhook.reply_timeout":  cfg.Webhook.ReplyTimeout,
		"scheduler.stop_timeout": cfg.Scheduler.StopTimeout,
		"broadcast.min_gap":      cfg.Broadcast.MinGap,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if _, err := engine.ParseSchedule(cfg.Scheduler.Schedule); err != nil {
		return fmt.Errorf("scheduler.schedule: %w", err)
	}
	if _, err := GateFrom(cfg.Broadcast); err != nil {
		return err
	}

	switch cfg.Messenger {
	case "telegram":
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return errors.New("telegram.token is required when messenger is telegram")
		}
	default:
		if strings.TrimSpace(cfg.Viber.Token) == "" {
			return errors.New("viber.token is required when messenger is viber")
		}
	}
	if cfg.Broadcast.Audience == string(engine.AudienceAdmin) && strings.TrimSpace(cfg.AdminID) == "" {
		return errors.New("admin_id is required when broadcast.audience is admin")
	}
	if cfg.Logging.Admin.Enabled && strings.TrimSpace(cfg.AdminID) == "" {
		return errors.New("admin_id is required when logging.admin is enabled")
	}
	// the webhook listener is public
	if cfg.Webhook.Pprof && strings.TrimSpace(cfg.Webhook.PprofToken) == "" {
		return errors.New("webhook.pprof_token is required when webhook.pprof is enabled")
	}
	if cfg.Storage != nil {
		d := strings.TrimSpace(cfg.Storage.Driver)
		if d != "" && d != "none" && strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required for driver " + d)
		}
	}
	return nil
}

// GateFrom builds the broadcast gate from config, falling back to defaults.
func GateFrom(b BroadcastConfig) (engine.Gate, error) {
	g := engine.DefaultGate()
	if b.FromHour != nil {
		g.FromHour = *b.FromHour
	}
	if b.ToHour != nil {
		g.ToHour = *b.ToHour
	}
	if b.UTCOffset != nil {
		g.Zone = engine.FixedZone(*b.UTCOffset)
	}
	gap, err := ParseDurationOrDefault("broadcast.min_gap", b.MinGap, engine.DefaultMinGap)
	if err != nil {
		return engine.Gate{}, err
	}
	g.MinGap = gap
	if err := g.Validate(); err != nil {
		return engine.Gate{}, err
	}
	return g, nil
}
