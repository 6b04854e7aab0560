package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations are kept as strings in the file ("30s", "5m") and parsed on use.
// An empty string means "use the component default".

type durationSetting struct {
	path string
	raw  string
}

// durationSettings lists every duration in the config by its file path, so
// Validate reports bad values with the key the operator wrote.
func (c *Config) durationSettings() []durationSetting {
	return []durationSetting{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"engine.default_timeout", c.Engine.DefaultTimeout},
		{"engine.max_queue_delay", c.Engine.MaxQueueDelay},
		{"engine.retry_base", c.Engine.RetryBase},
		{"engine.retry_max_delay", c.Engine.RetryMaxDelay},
		{"scheduler.job_timeout", c.Scheduler.JobTimeout},
		{"router.timeout", c.Router.Timeout},
		{"ops.read_timeout", c.Ops.ReadTimeout},
		{"ops.write_timeout", c.Ops.WriteTimeout},
		{"ops.idle_timeout", c.Ops.IdleTimeout},
	}
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration, use a unit such as 30s or 5m", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}
