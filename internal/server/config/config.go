// Package config handles configuration for the zuul-ac server: defaults,
// JSON file overlay, environment overlay and command-line flags, applied
// in that order.
package config

import "time"

// Config holds runtime settings for the zuul-ac server.
//
// Fields:
//   - HTTPAddr: bind address for the HTTP transport surface.
//   - StorePath: JSON store file, used when DatabaseDSN is empty.
//   - DatabaseDSN: PostgreSQL DSN (pgx); selects the Postgres backend.
//   - SharedSecret: secret peers trade for a session token.
//   - SecretKey: HMAC secret for signing session JWTs (HS256).
//   - SessionValidity: peer session token lifetime.
//   - BotName: this deployment's identity in the federation protocol.
//   - AdminIDs: administrator roots written to the store at startup.
//   - DelegationDepth: slot TTL administrators start with.
//   - Retention: how long a retired schedule record keeps propagating.
//   - OTPTimeout: wait for the smart-home authority's approval.
//   - EventBuffer: queued authority events before drops.
//   - WalletPassphrase: seals wallet private keys at rest when set.
//   - PromptPassphrase: ask for the passphrase on the terminal instead.
type Config struct {
	HTTPAddr         string
	StorePath        string
	DatabaseDSN      string
	SharedSecret     string
	SecretKey        string
	SessionValidity  time.Duration
	BotName          string
	AdminIDs         []string
	DelegationDepth  int
	Retention        time.Duration
	OTPTimeout       time.Duration
	EventBuffer      int
	WalletPassphrase string
	PromptPassphrase bool
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The secrets are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.StorePath = "zuulac.json"
	c.DatabaseDSN = ""
	c.SharedSecret = "zuul"
	c.SecretKey = "secretKey"
	c.SessionValidity = 24 * time.Hour
	c.BotName = "zuul-ac"
	c.DelegationDepth = 7
	c.Retention = 30 * 24 * time.Hour
	c.OTPTimeout = 2 * time.Second
	c.EventBuffer = 16
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
