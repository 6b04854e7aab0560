package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	DefaultAppID   = "default-night-mode-bot"
	DefaultDBPath  = "data/nightbot.db"
	DefaultOpsAddr = "127.0.0.1:9090"
)

// ApplyDefaults fills omitted values in place.
func (c *Config) ApplyDefaults() {
	c.AppID = strings.TrimSpace(c.AppID)
	if c.AppID == "" {
		c.AppID = DefaultAppID
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" && !strings.EqualFold(c.Storage.Driver, "memory") {
		if strings.EqualFold(c.Storage.Driver, "file") {
			c.Storage.Path = "data/store"
		} else {
			c.Storage.Path = DefaultDBPath
		}
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 4
	}
	if c.Engine.QueueSize <= 0 {
		c.Engine.QueueSize = 256
	}
	if strings.TrimSpace(c.Engine.DefaultTimeout) == "" {
		c.Engine.DefaultTimeout = "30s"
	}
	if c.Engine.RetryMax == 0 {
		c.Engine.RetryMax = 3
	}
	if strings.TrimSpace(c.Telegram.PollTimeout) == "" {
		c.Telegram.PollTimeout = "10s"
	}
	if c.Telegram.SendRate <= 0 {
		c.Telegram.SendRate = 25
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3", "file", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Telegram.SendRate < 0 {
		errs = append(errs, errors.New("telegram.send_rate must be >= 0"))
	}
	for _, f := range c.durationSettings() {
		if _, err := parseDuration(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Logging.Alerts.Enabled && c.Logging.Alerts.ChatID == 0 {
		errs = append(errs, errors.New("logging.alerts.chat_id is required when alerts are enabled"))
	}
	if c.Ops.Enabled {
		if err := validateOpsBind(c.Ops); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateOpsBind(o OpsConfig) error {
	host, _, err := net.SplitHostPort(strings.TrimSpace(o.Addr))
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if IsLoopbackHost(host) || strings.TrimSpace(o.Token) != "" || o.AllowInsecure {
		return nil
	}
	return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", o.Addr)
}

// IsLoopbackHost reports whether host only accepts local connections. An
// empty host binds every interface.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
