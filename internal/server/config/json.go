package config

import (
	"encoding/json"
	"os"

	"github.com/stko/zuul-ac/internal/flagx"
	"github.com/stko/zuul-ac/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Duration
// fields accept both strings like "2s" and integer nanoseconds.
type JsonConfig struct {
	HTTPAddr         string         `json:"http_addr"`
	StorePath        string         `json:"store_path"`
	DatabaseDSN      string         `json:"database_dsn"`
	SharedSecret     string         `json:"shared_secret"`
	SecretKey        string         `json:"secret_key"`
	SessionValidity  timex.Duration `json:"session_validity"`
	BotName          string         `json:"bot_name"`
	AdminIDs         []string       `json:"admins"`
	DelegationDepth  int            `json:"delegation_depth"`
	Retention        timex.Duration `json:"retention"`
	OTPTimeout       timex.Duration `json:"otp_timeout"`
	EventBuffer      int            `json:"event_buffer"`
	WalletPassphrase string         `json:"wallet_passphrase"`
}

// parseJson overlays values from the JSON file named by the -c/-config
// flags, if any. An unreadable or invalid file is a startup error and
// panics.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.HTTPAddr != "" {
		config.HTTPAddr = jc.HTTPAddr
	}
	if jc.StorePath != "" {
		config.StorePath = jc.StorePath
	}
	if jc.DatabaseDSN != "" {
		config.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SharedSecret != "" {
		config.SharedSecret = jc.SharedSecret
	}
	if jc.SecretKey != "" {
		config.SecretKey = jc.SecretKey
	}
	if jc.SessionValidity.Duration != 0 {
		config.SessionValidity = jc.SessionValidity.Duration
	}
	if jc.BotName != "" {
		config.BotName = jc.BotName
	}
	if len(jc.AdminIDs) > 0 {
		config.AdminIDs = jc.AdminIDs
	}
	if jc.DelegationDepth != 0 {
		config.DelegationDepth = jc.DelegationDepth
	}
	if jc.Retention.Duration != 0 {
		config.Retention = jc.Retention.Duration
	}
	if jc.OTPTimeout.Duration != 0 {
		config.OTPTimeout = jc.OTPTimeout.Duration
	}
	if jc.EventBuffer != 0 {
		config.EventBuffer = jc.EventBuffer
	}
	if jc.WalletPassphrase != "" {
		config.WalletPassphrase = jc.WalletPassphrase
	}
}
