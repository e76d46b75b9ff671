package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envConfig maps ZUULAC_* environment variables onto Config fields.
type envConfig struct {
	HTTPAddr         string        `split_words:"true"`
	StorePath        string        `split_words:"true"`
	DatabaseDSN      string        `envconfig:"DATABASE_DSN"`
	SharedSecret     string        `split_words:"true"`
	SecretKey        string        `split_words:"true"`
	SessionValidity  time.Duration `split_words:"true"`
	BotName          string        `split_words:"true"`
	AdminIDs         []string      `envconfig:"ADMIN_IDS"`
	DelegationDepth  int           `split_words:"true"`
	Retention        time.Duration ``
	OTPTimeout       time.Duration `envconfig:"OTP_TIMEOUT"`
	EventBuffer      int           `split_words:"true"`
	WalletPassphrase string        `split_words:"true"`
}

// parseEnv overlays values from the ZUULAC_* environment variables.
func parseEnv(config *Config) {
	var e envConfig
	if err := envconfig.Process("zuulac", &e); err != nil {
		panic(err)
	}

	if e.HTTPAddr != "" {
		config.HTTPAddr = e.HTTPAddr
	}
	if e.StorePath != "" {
		config.StorePath = e.StorePath
	}
	if e.DatabaseDSN != "" {
		config.DatabaseDSN = e.DatabaseDSN
	}
	if e.SharedSecret != "" {
		config.SharedSecret = e.SharedSecret
	}
	if e.SecretKey != "" {
		config.SecretKey = e.SecretKey
	}
	if e.SessionValidity != 0 {
		config.SessionValidity = e.SessionValidity
	}
	if e.BotName != "" {
		config.BotName = e.BotName
	}
	if len(e.AdminIDs) > 0 {
		config.AdminIDs = e.AdminIDs
	}
	if e.DelegationDepth != 0 {
		config.DelegationDepth = e.DelegationDepth
	}
	if e.Retention != 0 {
		config.Retention = e.Retention
	}
	if e.OTPTimeout != 0 {
		config.OTPTimeout = e.OTPTimeout
	}
	if e.EventBuffer != 0 {
		config.EventBuffer = e.EventBuffer
	}
	if e.WalletPassphrase != "" {
		config.WalletPassphrase = e.WalletPassphrase
	}
}
