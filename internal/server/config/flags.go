package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/stko/zuul-ac/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-f string   JSON store file path
//	-d string   PostgreSQL DSN (selects the Postgres backend)
//	-w string   shared secret for peer sessions
//	-s string   JWT HMAC secret key
//	-b string   bot name (federation identity)
//	-n string   comma-separated administrator ids
//	-l int      delegation depth (administrator slot TTL)
//	-r int      retention for retired schedule records, days
//	-t int      authority approval timeout, seconds
//	-p string   wallet passphrase
//	-P          prompt for the wallet passphrase on the terminal
//
// The function first filters os.Args to only the flags it recognizes
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-d", "-w", "-s", "-b", "-n", "-l", "-r", "-t", "-p", "-P"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.StorePath, "f", config.StorePath, "JSON store file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SharedSecret, "w", config.SharedSecret, "shared peer secret")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.BotName, "b", config.BotName, "bot name")

	admins := fs.String("n", "", "comma-separated administrator ids")
	fs.IntVar(&config.DelegationDepth, "l", config.DelegationDepth, "delegation depth")
	retentionDays := fs.Int("r", int(config.Retention.Hours()/24), "retired record retention (in days)")
	otpTimeout := fs.Int("t", int(config.OTPTimeout.Seconds()), "authority approval timeout (in seconds)")

	fs.StringVar(&config.WalletPassphrase, "p", config.WalletPassphrase, "wallet passphrase")
	fs.BoolVar(&config.PromptPassphrase, "P", config.PromptPassphrase, "prompt for wallet passphrase")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *admins != "" {
		config.AdminIDs = strings.Split(*admins, ",")
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "r":
			config.Retention = time.Duration(*retentionDays) * 24 * time.Hour
		case "t":
			config.OTPTimeout = time.Duration(*otpTimeout) * time.Second
		}
	})
}
