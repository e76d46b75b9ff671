package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/stko/zuul-ac/internal/server"
	"github.com/stko/zuul-ac/internal/server/config"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
)

func main() {
	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)

	cfg := config.LoadConfig()

	if cfg.PromptPassphrase && cfg.WalletPassphrase == "" {
		fmt.Print("Wallet passphrase: ")
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read passphrase: %v\n", err)
			os.Exit(1)
		}
		cfg.WalletPassphrase = string(passphrase)
	}

	ctx := context.Background()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
