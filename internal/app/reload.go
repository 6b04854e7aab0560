package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"nightbot/internal/config"
	logx "nightbot/pkg/logx"
)

// reloadLoop applies published configs: logging, owners and the ops server
// change live; everything else waits for a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
		// Coalesce bursts.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}

		ch := config.SummarizeChange(last, next)
		last = next
		if ch.Empty() {
			a.log.Debug("config reload received, but no effective changes detected")
			continue
		}
		if len(ch.RestartOnly) > 0 {
			a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(ch.RestartOnly, ",")))
		}

		a.logs.Apply(next.LogxConfig())
		a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
		if slices.Contains(ch.Sections, "ops") {
			a.reconfigureOps(ctx, next)
		}

		fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
		a.log.Info("config reloaded", fields...)
	}
}

func (a *App) reconfigureOps(ctx context.Context, cfg *config.Config) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()

	if a.ops != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.ops.Stop(stopCtx)
		cancel()
		a.ops = nil
	}
	if !cfg.Ops.Enabled {
		a.log.Info("ops server disabled via config")
		return
	}
	s := a.newOps(cfg)
	if err := s.Start(ctx); err != nil {
		a.log.Warn("ops server not restarted", logx.Err(err))
		return
	}
	s.SetReady(true)
	a.ops = s
}
