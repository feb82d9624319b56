package config

// Config is the on-disk configuration (JSON or YAML). Secrets may instead come
// from the environment; see ApplyEnv.
type Config struct {
	// Debug selects the short tick interval when scheduler.schedule is empty.
	Debug bool `json:"debug"`

	// Messenger is "viber" (default) or "telegram".
	Messenger string `json:"messenger" validate:"omitempty,oneof=viber telegram"`
	// AdminID is the administrative recipient id on the active messenger.
	AdminID string `json:"admin_id"`

	Forecast  ForecastConfig  `json:"forecast"`
	Viber     ViberConfig     `json:"viber"`
	Telegram  TelegramConfig  `json:"telegram"`
	Webhook   WebhookConfig   `json:"webhook"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// ForecastConfig describes the Dark Sky compatible provider request.
// Latitude/longitude default to Kyiv when both are zero.
type ForecastConfig struct {
	APIKey    string   `json:"api_key" validate:"required"`
	BaseURL   string   `json:"base_url,omitempty" validate:"omitempty,url"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Lang      string   `json:"lang,omitempty"`
	Units     string   `json:"units,omitempty"`
	Exclude   []string `json:"exclude,omitempty"`
	// Timeout is a Go duration string (e.g. "15s").
	Timeout string `json:"timeout,omitempty"`
}

type ViberConfig struct {
	Token        string `json:"token"`
	BaseURL      string `json:"base_url,omitempty" validate:"omitempty,url"`
	SenderName   string `json:"sender_name,omitempty" validate:"max=28"`
	SenderAvatar string `json:"sender_avatar,omitempty" validate:"omitempty,url"`
	Timeout      string `json:"timeout,omitempty"`
	// VerifySignature checks X-Viber-Content-Signature on callbacks.
	VerifySignature bool `json:"verify_signature,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string  `json:"poll_timeout,omitempty"`
	ChatIDs     []int64 `json:"chat_ids,omitempty"`
}

type WebhookConfig struct {
	Addr    string `json:"addr,omitempty"`
	Path    string `json:"path,omitempty" validate:"omitempty,startswith=/"`
	Welcome string `json:"welcome,omitempty"`
	// ReplyTimeout bounds handling of one inbound event.
	ReplyTimeout string `json:"reply_timeout,omitempty"`
	// Pprof mounts /debug/pprof on the webhook listener.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

// SchedulerConfig controls the tick timer.
//
// Schedule accepts a Go duration ("60s"), an HH:MM interval ("00:01") or a
// cron expression ("*/1 * * * *"). Empty means 60s, or 6s in debug mode.
type SchedulerConfig struct {
	Schedule string `json:"schedule,omitempty"`
	// StopTimeout bounds how long shutdown waits for an in-flight tick.
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// BroadcastConfig controls the daily broadcast gate and fan-out.
//
// Hours are pointers so an explicit 0 can be told apart from "omitted".
// Defaults: audience=subscribers, from_hour=19, to_hour=21, utc_offset=2,
// min_gap=24h, rate_per_sec=10, retry_max=0.
type BroadcastConfig struct {
	Audience   string `json:"audience,omitempty" validate:"omitempty,oneof=subscribers admin"`
	FromHour   *int   `json:"from_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	ToHour     *int   `json:"to_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	UTCOffset  *int   `json:"utc_offset,omitempty" validate:"omitempty,gte=-12,lte=14"`
	MinGap     string `json:"min_gap,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax   int    `json:"retry_max,omitempty" validate:"gte=0,lte=5"`
}

type LoggingConfig struct {
	Level   string       `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Admin   LoggingAdmin `json:"admin"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// LoggingAdmin forwards records at or above MinLevel to the admin recipient.
type LoggingAdmin struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// StorageConfig controls the dispatch audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/forecastbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
