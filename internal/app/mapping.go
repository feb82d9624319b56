package app

import (
	"time"

	"forecastbot/internal/bot"
	"forecastbot/internal/config"
	"forecastbot/internal/engine"
	"forecastbot/internal/forecast"
	"forecastbot/internal/transport/telegram"
	"forecastbot/internal/transport/viber"
	"forecastbot/internal/webhook"
)

const (
	defaultPollTimeout = 10 * time.Second
	defaultStopTimeout = 5 * time.Second
	defaultRatePerSec  = 10
)

func mapSchedulerConfig(cfg *config.Config) (engine.SchedulerConfig, error) {
	gate, err := config.GateFrom(cfg.Broadcast)
	if err != nil {
		return engine.SchedulerConfig{}, err
	}
	return engine.SchedulerConfig{
		Schedule: cfg.Scheduler.Schedule,
		Audience: engine.Audience(cfg.Broadcast.Audience),
		AdminID:  cfg.AdminID,
		Gate:     gate,
		Location: time.UTC,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) engine.DispatchConfig {
	rate := cfg.Broadcast.RatePerSec
	if rate <= 0 {
		rate = defaultRatePerSec
	}
	return engine.DispatchConfig{RatePerSec: rate, RetryMax: cfg.Broadcast.RetryMax}
}

func mapForecastConfig(cfg *config.Config) (forecast.Config, error) {
	timeout, err := config.ParseDurationOrDefault("forecast.timeout", cfg.Forecast.Timeout, forecast.DefaultTimeout)
	if err != nil {
		return forecast.Config{}, err
	}
	f := cfg.Forecast
	return forecast.Config{
		BaseURL:   f.BaseURL,
		APIKey:    f.APIKey,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Lang:      f.Lang,
		Units:     f.Units,
		Exclude:   f.Exclude,
		Timeout:   timeout,
		Location:  time.UTC,
	}, nil
}

func mapViberConfig(cfg *config.Config) (viber.Config, error) {
	timeout, err := config.ParseDurationOrDefault("viber.timeout", cfg.Viber.Timeout, viber.DefaultTimeout)
	if err != nil {
		return viber.Config{}, err
	}
	return viber.Config{
		Token:        cfg.Viber.Token,
		BaseURL:      cfg.Viber.BaseURL,
		SenderName:   cfg.Viber.SenderName,
		SenderAvatar: cfg.Viber.SenderAvatar,
		Timeout:      timeout,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		ChatIDs:     cfg.Telegram.ChatIDs,
	}, nil
}

func mapRouterConfig(cfg *config.Config) (bot.Config, error) {
	timeout, err := config.ParseDurationField("webhook.reply_timeout", cfg.Webhook.ReplyTimeout)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{Welcome: cfg.Webhook.Welcome, Timeout: timeout}, nil
}

func mapWebhookConfig(cfg *config.Config) webhook.Config {
	w := webhook.Config{
		Addr:       cfg.Webhook.Addr,
		Path:       cfg.Webhook.Path,
		Pprof:      cfg.Webhook.Pprof,
		PprofToken: cfg.Webhook.PprofToken,
	}
	// Viber signs callbacks with the account token.
	if cfg.Messenger != "telegram" && cfg.Viber.VerifySignature {
		w.Secret = cfg.Viber.Token
	}
	return w
}
