package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	// DestBucket is the destination bucket for backups and state records.
	DestBucket string `env:"DEST_BUCKET,required,notEmpty"`

	// DestPrefix is the key prefix for backed-up packages.
	DestPrefix string `env:"DEST_PREFIX" envDefault:"lambda-code-backups"`

	// StatePrefix is the key prefix for per-function state records.
	// Defaults to "<DestPrefix>/.state".
	StatePrefix string `env:"STATE_PREFIX"`

	// TargetFunctions is the static target list for polling mode. Optional
	// when invocations carry an update event.
	TargetFunctions []string `env:"TARGET_FUNCTION" envSeparator:","`

	// DownloadTimeout bounds the package download.
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"60s"`

	// Endpoint overrides the S3 endpoint for S3-compatible storage.
	Endpoint string `env:"AWS_ENDPOINT"`

	EncryptionEnabled bool   `env:"S3_ENCRYPTION_ENABLED"`
	EncryptionType    string `env:"S3_ENCRYPTION_TYPE" envDefault:"AES256"`
	KMSKeyID          string `env:"S3_KMS_KEY_ID"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.StatePrefix == "" {
		cfg.StatePrefix = cfg.DestPrefix + "/.state"
	}
	cfg.TargetFunctions = lo.FilterMap(cfg.TargetFunctions, func(name string, _ int) (string, bool) {
		name = strings.TrimSpace(name)
		return name, name != ""
	})
	return &cfg, nil
}
