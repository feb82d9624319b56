package config

import (
	"reflect"
	"strings"

	logx "forecastbot/pkg/logx"
)

// Change describes a reload. Restart lists sections that only take effect
// after a process restart.
type Change struct {
	Sections []string
	Restart  []string
	Attrs    []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Summarize compares two configs. Attrs never carry secrets.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		c.Sections = append(c.Sections, section)
		if restart {
			c.Restart = append(c.Restart, section)
		}
		c.Attrs = append(c.Attrs, attrs...)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.admin", newCfg.Logging.Admin.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler", false, logx.String("scheduler.schedule", newCfg.Scheduler.Schedule))
	}
	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		mark("broadcast", false,
			logx.String("broadcast.audience", newCfg.Broadcast.Audience),
			logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
		)
	}
	if strings.TrimSpace(oldCfg.AdminID) != strings.TrimSpace(newCfg.AdminID) {
		mark("admin_id", false, logx.Bool("admin_id.set", strings.TrimSpace(newCfg.AdminID) != ""))
	}
	if oldCfg.Webhook.Welcome != newCfg.Webhook.Welcome || oldCfg.Webhook.ReplyTimeout != newCfg.Webhook.ReplyTimeout {
		mark("replies", false)
	}
	if oldCfg.Webhook.Addr != newCfg.Webhook.Addr || oldCfg.Webhook.Path != newCfg.Webhook.Path ||
		oldCfg.Webhook.Pprof != newCfg.Webhook.Pprof || oldCfg.Webhook.PprofToken != newCfg.Webhook.PprofToken {
		mark("webhook", true, logx.String("webhook.addr", newCfg.Webhook.Addr))
	}
	if oldCfg.Messenger != newCfg.Messenger ||
		!reflect.DeepEqual(oldCfg.Viber, newCfg.Viber) ||
		!reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		mark("messenger", true, logx.String("messenger", newCfg.Messenger))
	}
	if !reflect.DeepEqual(oldCfg.Forecast, newCfg.Forecast) {
		mark("forecast", true)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage", true)
	}
	if oldCfg.Debug != newCfg.Debug {
		mark("debug", false, logx.Bool("debug", newCfg.Debug))
	}
	return c
}
