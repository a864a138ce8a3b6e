package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jaywantadh/TeleVault/internal/chunker"
	"github.com/jaywantadh/TeleVault/internal/compressor"
	"github.com/jaywantadh/TeleVault/internal/metadata"
	"github.com/jaywantadh/TeleVault/internal/retry"
	"github.com/jaywantadh/TeleVault/internal/telegram"
	"github.com/jaywantadh/TeleVault/internal/transfer"
	"github.com/jaywantadh/TeleVault/internal/vaulterr"
)

// Storage backends.
const (
	BackendTelegram = "telegram"
	BackendLocal    = "local"
)

// PublicDownloadLimit is the largest file the public Bot API serves through
// getFile. Larger chunks need a local Bot API server.
const PublicDownloadLimit = 20 << 20

// TelegramConfig holds the bot credentials and API tuning.
type TelegramConfig struct {
	BotToken          string  `mapstructure:"bot_token"`
	ChannelID         string  `mapstructure:"channel_id"`
	APIEndpoint       string  `mapstructure:"api_endpoint"`
	LocalMode         bool    `mapstructure:"local_mode"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// TransferConfig tunes the orchestrators.
type TransferConfig struct {
	MaxChunkSize int64         `mapstructure:"max_chunk_size"`
	TempDir      string        `mapstructure:"temp_dir"`
	Concurrency  int           `mapstructure:"concurrency"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	FileTimeout  time.Duration `mapstructure:"file_timeout"`
	Compression  string        `mapstructure:"compression"`
	// ProgressRetention bounds how long finished transfers are listed.
	ProgressRetention time.Duration `mapstructure:"progress_retention"`
}

// RetryConfig is the per chunk retry policy.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	Jitter         float64       `mapstructure:"jitter"`
}

// StoreConfig selects the manifest database.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// StorageConfig selects where chunks go.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalPath string `mapstructure:"local_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AppConfig holds the application-level configuration
type AppConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Store    StoreConfig    `mapstructure:"store"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Debug    bool           `mapstructure:"debug"`
}

// LoadConfig reads config.yaml from path, overlays TELEVAULT_* and the
// TELEGRAM_* credential variables, and validates the result. A missing
// config file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("televault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.channel_id", "TELEGRAM_CHANNEL_ID")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var appConfig AppConfig
	if err := v.Unmarshal(&appConfig); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, err
	}
	return &appConfig, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org")
	v.SetDefault("telegram.local_mode", false)
	v.SetDefault("telegram.requests_per_second", 1.0)
	v.SetDefault("telegram.burst", 1)

	v.SetDefault("transfer.max_chunk_size", chunker.MaxRemoteChunkSize)
	v.SetDefault("transfer.temp_dir", os.TempDir())
	v.SetDefault("transfer.concurrency", 1)
	v.SetDefault("transfer.call_timeout", 10*time.Minute)
	v.SetDefault("transfer.file_timeout", time.Duration(0))
	v.SetDefault("transfer.compression", compressor.None)
	v.SetDefault("transfer.progress_retention", time.Hour)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.2)

	v.SetDefault("store.driver", metadata.DriverBadger)
	v.SetDefault("store.path", "./data/manifests")

	v.SetDefault("storage.backend", BackendTelegram)
	v.SetDefault("storage.local_path", "./data/objects")

	v.SetDefault("server.port", 8080)
	v.SetDefault("debug", false)
}

// Validate checks values that cannot be caught by decoding alone.
// Telegram credentials are checked when the client is built.
func (c *AppConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return vaulterr.Errorf(vaulterr.InvalidInput, "config", format, args...)
	}
	if err := chunker.ValidateChunkSize(c.Transfer.MaxChunkSize); err != nil {
		return err
	}
	if c.Transfer.Concurrency < 1 {
		return invalid("transfer.concurrency must be at least 1, got %d", c.Transfer.Concurrency)
	}
	if _, err := compressor.Resolve(c.Transfer.Compression, ""); err != nil {
		return invalid("transfer.compression: %v", err)
	}
	if c.Transfer.ProgressRetention < 0 {
		return invalid("transfer.progress_retention must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return invalid("retry.max_retries must not be negative")
	}
	switch c.Store.Driver {
	case metadata.DriverBadger, metadata.DriverBolt:
	default:
		return invalid("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Storage.Backend {
	case BackendTelegram, BackendLocal:
	default:
		return invalid("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// Warnings lists settings that pass validation but will fail at run time.
func (c *AppConfig) Warnings() []string {
	var warnings []string
	public := strings.TrimRight(c.Telegram.APIEndpoint, "/") == telegram.DefaultEndpoint
	if c.Storage.Backend == BackendTelegram && public && !c.Telegram.LocalMode && c.Transfer.MaxChunkSize > PublicDownloadLimit {
		warnings = append(warnings, fmt.Sprintf(
			"transfer.max_chunk_size is %s but %s only serves files up to %s; run a local Bot API server (telegram.api_endpoint, telegram.local_mode) or lower the chunk size",
			humanize.IBytes(uint64(c.Transfer.MaxChunkSize)), telegram.DefaultEndpoint, humanize.IBytes(PublicDownloadLimit)))
	}
	return warnings
}

// TransferOptions converts the transfer and retry sections.
func (c *AppConfig) TransferOptions() transfer.Options {
	return transfer.Options{
		MaxChunkSize:      c.Transfer.MaxChunkSize,
		TempDir:           c.Transfer.TempDir,
		Concurrency:       c.Transfer.Concurrency,
		CallTimeout:       c.Transfer.CallTimeout,
		FileTimeout:       c.Transfer.FileTimeout,
		Compression:       c.Transfer.Compression,
		ProgressRetention: c.Transfer.ProgressRetention,
		Retry: retry.Config{
			MaxRetries:     c.Retry.MaxRetries,
			InitialBackoff: c.Retry.InitialBackoff,
			MaxBackoff:     c.Retry.MaxBackoff,
			Multiplier:     c.Retry.Multiplier,
			JitterFraction: c.Retry.Jitter,
		},
	}
}
