package config

import (
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay lists the settings that may come from the environment.
// NIGHTBOT_TELEGRAM_TOKEN, NIGHTBOT_APP_ID, NIGHTBOT_STORAGE_DRIVER,
// NIGHTBOT_STORAGE_PATH, NIGHTBOT_LOG_LEVEL, NIGHTBOT_OPS_TOKEN.
type envOverlay struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	AppID         string `envconfig:"APP_ID"`
	StorageDriver string `envconfig:"STORAGE_DRIVER"`
	StoragePath   string `envconfig:"STORAGE_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	OpsToken      string `envconfig:"OPS_TOKEN"`
}

const envPrefix = "NIGHTBOT"

// ApplyEnv overlays environment values onto c. The unprefixed BOT_TOKEN
// and APP_ID are honored when the prefixed ones are unset.
func (c *Config) ApplyEnv() error {
	var e envOverlay
	if err := envconfig.Process(envPrefix, &e); err != nil {
		return err
	}
	if e.TelegramToken == "" {
		e.TelegramToken = os.Getenv("BOT_TOKEN")
	}
	if e.AppID == "" {
		e.AppID = os.Getenv("APP_ID")
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.Token, e.TelegramToken)
	set(&c.AppID, e.AppID)
	set(&c.Storage.Driver, e.StorageDriver)
	set(&c.Storage.Path, e.StoragePath)
	set(&c.Logging.Level, e.LogLevel)
	set(&c.Ops.Token, e.OpsToken)
	return nil
}
