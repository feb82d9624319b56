package config

import (
	logx "forecastbot/pkg/logx"
)

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Admin: logx.AdminConfig{
			Enabled:    l.Admin.Enabled,
			MinLevel:   l.Admin.MinLevel,
			RatePerSec: l.Admin.RatePerSec,
		},
	}
}
