// Package server initializes and runs the zuul-ac application: storage
// backend selection, wallet setup, the propagation engine, the credential
// broker, the federation protocol and the HTTP transport, plus graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/cryptox"
	"github.com/stko/zuul-ac/internal/idcard"
	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
	"github.com/stko/zuul-ac/internal/otp"
	"github.com/stko/zuul-ac/internal/server/config"
	"github.com/stko/zuul-ac/internal/server/httpapi"
	"github.com/stko/zuul-ac/internal/storage"
)

const walletSaltConfigKey = "wallet_salt"

type App struct {
	config *config.Config
	logger logging.Logger
	core   *access.Core
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	if len(cfg.AdminIDs) > 0 {
		if err := store.SetAdmins(ctx, cfg.AdminIDs); err != nil {
			return nil, fmt.Errorf("administrator bootstrap error: %w", err)
		}
	}

	sealer, err := walletSealer(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	wallet := idcard.NewWallet(store, sealer, logger)
	federation := idcard.NewProtocol(wallet, cfg.BotName, logger)

	engine, err := access.NewEngine(ctx, store, logger, cfg.DelegationDepth, cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("engine init error: %w", err)
	}

	bus := httpapi.NewBus(cfg.EventBuffer, logger)
	broker := otp.NewBroker(engine, bus, federation, cfg.OTPTimeout, logger)

	core := access.NewCore(engine, broker, federation, store, newLogNotifier(logger), logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, core, bus, cfg.SharedSecret, cfg.SecretKey, cfg.SessionValidity, logger)

	return &App{config: cfg, logger: logger, core: core, server: srv}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (storage.Store, error) {
	if cfg.DatabaseDSN != "" {
		return storage.NewPostgresStore(ctx, cfg.DatabaseDSN, logger)
	}
	return storage.NewFileStore(cfg.StorePath, logger)
}

// walletSealer derives the at-rest sealer from the configured passphrase.
// The salt lives in the store so sealed keys survive restarts; it is
// created on first use.
func walletSealer(ctx context.Context, cfg *config.Config, store storage.Store) (*cryptox.Sealer, error) {
	if cfg.WalletPassphrase == "" {
		return nil, nil
	}

	var salt []byte
	err := store.ReadConfigValue(ctx, walletSaltConfigKey, &salt)
	if errors.Is(err, common.ErrNotFound) {
		salt, err = cryptox.MakeSalt()
		if err != nil {
			return nil, fmt.Errorf("wallet salt error: %w", err)
		}
		if err := store.WriteConfigValue(ctx, walletSaltConfigKey, salt); err != nil {
			return nil, fmt.Errorf("wallet salt error: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("wallet salt error: %w", err)
	}

	passphrase := []byte(cfg.WalletPassphrase)
	defer cryptox.WipeByteArray(passphrase)
	return cryptox.NewSealer(passphrase, salt), nil
}

// logNotifier reports entitlement changes to the log. Deployments with a
// messenger frontend replace it with one that messages the user.
type logNotifier struct {
	log logging.Logger
}

func newLogNotifier(log logging.Logger) *logNotifier {
	return &logNotifier{log: log.With("module", "notifier")}
}

func (n *logNotifier) AccessChanged(ctx context.Context, user models.Identity, entitled bool) {
	n.log.Info(ctx, "entitlement changed", "user_id", user.UserID, "name", user.DisplayName(), "entitled", entitled)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}
