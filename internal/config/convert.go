package config

import (
	"time"

	"nightbot/internal/observability/ops"
	"nightbot/internal/storage"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/transport/telegram/adapter"
	"nightbot/internal/transport/telegram/router"
	logx "nightbot/pkg/logx"
)

// The conversions below assume a validated config, so duration parse
// errors are ignored.

func dur(raw string) time.Duration {
	d, _ := parseDuration("", raw)
	return d
}

func (c *Config) LogxConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		Format:  l.Format,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertConfig{
			Enabled:    l.Alerts.Enabled,
			ChatID:     l.Alerts.ChatID,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:       c.Storage.Driver,
		Path:         c.Storage.Path,
		BusyTimeout:  dur(c.Storage.BusyTimeout),
		CompactEvery: c.Storage.CompactEvery,
	}
}

func (c *Config) EngineConfig() engine.Config {
	e := c.Engine
	return engine.Config{
		Workers:        e.Workers,
		QueueSize:      e.QueueSize,
		DefaultTimeout: dur(e.DefaultTimeout),
		MaxQueueDelay:  dur(e.MaxQueueDelay),
		HistorySize:    e.HistorySize,
		RetryMax:       e.RetryMax,
		RetryBase:      dur(e.RetryBase),
		RetryMaxDelay:  dur(e.RetryMaxDelay),
	}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		JobTimeout: dur(c.Scheduler.JobTimeout),
		RetryMax:   c.Scheduler.RetryMax,
	}
}

func (c *Config) RouterConfig() router.Config {
	return router.Config{
		Workers:   c.Router.Workers,
		QueueSize: c.Router.QueueSize,
		Timeout:   dur(c.Router.Timeout),
	}
}

func (c *Config) AdapterConfig() adapter.Config {
	t := c.Telegram
	return adapter.Config{
		Token:       t.Token,
		PollTimeout: dur(t.PollTimeout),
		SendRate:    t.SendRate,
		SendBurst:   t.SendBurst,
		APIURL:      t.APIURL,
	}
}


func (c *Config) OpsConfig() ops.Config {
	o := c.Ops
	return ops.Config{
		Addr:          o.Addr,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   dur(o.ReadTimeout),
		WriteTimeout:  dur(o.WriteTimeout),
		IdleTimeout:   dur(o.IdleTimeout),
	}
}
