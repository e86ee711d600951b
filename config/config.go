// Package config loads bridge configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/pinksters/polkagodot-plugin/types"
)

// envPrefix namespaces every variable, e.g. POLKA_POLL_INTERVAL.
const envPrefix = "polka"

type envSpec struct {
	DefaultTimeout  time.Duration `envconfig:"DEFAULT_TIMEOUT"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL"`
	MaxPollAttempts int           `envconfig:"MAX_POLL_ATTEMPTS"`
	LegacyGrace     time.Duration `envconfig:"LEGACY_GRACE"`
	IPFSGateway     string        `envconfig:"IPFS_GATEWAY"`
	StoragePrefix   string        `envconfig:"STORAGE_PREFIX"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	EnableMetrics   bool          `envconfig:"ENABLE_METRICS"`
	RedisURL        string        `envconfig:"REDIS_URL"`
}

// FromEnv builds a BridgeConfig from POLKA_* environment variables, with
// defaults filled in for anything unset.
func FromEnv() (*types.BridgeConfig, error) {
	var spec envSpec
	if err := envconfig.Process(envPrefix, &spec); err != nil {
		return nil, err
	}
	cfg := &types.BridgeConfig{
		DefaultTimeout:  spec.DefaultTimeout,
		PollInterval:    spec.PollInterval,
		MaxPollAttempts: spec.MaxPollAttempts,
		LegacyGrace:     spec.LegacyGrace,
		IPFSGateway:     spec.IPFSGateway,
		StoragePrefix:   spec.StoragePrefix,
		LogLevel:        spec.LogLevel,
		EnableMetrics:   spec.EnableMetrics,
	}
	cfg.Normalize()
	return cfg, nil
}

// RedisURLFromEnv returns the optional POLKA_REDIS_URL for hosts that back
// credential storage with Redis.
func RedisURLFromEnv() (string, error) {
	var spec envSpec
	if err := envconfig.Process(envPrefix, &spec); err != nil {
		return "", err
	}
	return spec.RedisURL, nil
}
