package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/jaywantadh/TeleVault/config"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/storage"
	"github.com/jaywantadh/TeleVault/internal/telegram"
	"github.com/jaywantadh/TeleVault/internal/transfer"
	"github.com/jaywantadh/TeleVault/pkg/logging"
)

// session is everything a command needs, opened from config.
type session struct {
	cfg       *config.AppConfig
	store     storage.Storage
	manifests metadata.ManifestStore
	svc       *transfer.Service
}

func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.Debug || c.Bool("debug"))
	for _, w := range cfg.Warnings() {
		logging.Log.Warn("⚠️ " + w)
	}
	return cfg, nil
}

func newTelegramClient(cfg *config.AppConfig) (*telegram.Client, error) {
	return telegram.NewClient(telegram.Config{
		Token:             cfg.Telegram.BotToken,
		ChatID:            cfg.Telegram.ChannelID,
		Endpoint:          cfg.Telegram.APIEndpoint,
		LocalMode:         cfg.Telegram.LocalMode,
		RequestsPerSecond: cfg.Telegram.RequestsPerSecond,
		Burst:             cfg.Telegram.Burst,
		Logger:            logging.Log,
	})
}

func newStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		return storage.NewLocalStorage(cfg.Storage.LocalPath)
	case config.BackendTelegram:
		client, err := newTelegramClient(cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewTelegramStorage(client, logging.Log), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}
	manifests, err := metadata.OpenManifestStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open manifest store: %w", err)
	}

	logging.Log.WithFields(logrus.Fields{
		"backend": cfg.Storage.Backend,
		"store":   cfg.Store.Driver,
	}).Debug("session ready")

	return &session{
		cfg:       cfg,
		store:     store,
		manifests: manifests,
		svc:       transfer.NewService(store, manifests, cfg.TransferOptions(), logging.Log),
	}, nil
}

func (rt *session) Close() {
	if err := rt.manifests.Close(); err != nil {
		logging.Log.WithError(err).Warn("failed to close manifest store")
	}
	if err := rt.store.Close(); err != nil {
		logging.Log.WithError(err).Warn("failed to close storage")
	}
}
