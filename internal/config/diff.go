package config

import (
	"slices"
	"strings"

	logx "nightbot/pkg/logx"
)

// Change summarizes a reload. Secrets are never included in Attrs.
type Change struct {
	Sections []string
	Attrs    []logx.Field
	// RestartOnly lists changed settings that take effect only after a
	// restart.
	RestartOnly []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.AppID != newCfg.AppID {
		ch.Sections = append(ch.Sections, "app_id")
		ch.RestartOnly = append(ch.RestartOnly, "app_id")
		ch.Attrs = append(ch.Attrs, logx.String("app_id", newCfg.AppID))
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.APIURL != nt.APIURL ||
		ot.SendRate != nt.SendRate || ot.SendBurst != nt.SendBurst || !slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Attrs = append(ch.Attrs,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.poll_timeout", nt.PollTimeout),
		)
		if ot.Token != nt.Token {
			ch.RestartOnly = append(ch.RestartOnly, "telegram.token")
		}
		if ot.PollTimeout != nt.PollTimeout || ot.APIURL != nt.APIURL || ot.SendRate != nt.SendRate || ot.SendBurst != nt.SendBurst {
			ch.RestartOnly = append(ch.RestartOnly, "telegram.transport")
		}
	}

	if oldCfg.Storage != newCfg.Storage {
		ch.Sections = append(ch.Sections, "storage")
		ch.RestartOnly = append(ch.RestartOnly, "storage")
		ch.Attrs = append(ch.Attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Engine != newCfg.Engine || oldCfg.Scheduler != newCfg.Scheduler {
		ch.Sections = append(ch.Sections, "engine")
		ch.RestartOnly = append(ch.RestartOnly, "engine")
		ch.Attrs = append(ch.Attrs,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.retry_max", newCfg.Engine.RetryMax),
		)
	}

	if oldCfg.Router != newCfg.Router {
		ch.Sections = append(ch.Sections, "router")
		ch.RestartOnly = append(ch.RestartOnly, "router")
	}

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	if oo != no {
		ch.Sections = append(ch.Sections, "ops")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", no.Addr),
			logx.Bool("ops.token_set", no.Token != ""),
			logx.Bool("ops.pprof", no.Pprof),
		)
	}

	slices.Sort(ch.Sections)
	slices.Sort(ch.RestartOnly)
	return ch
}
