package config

import (
	"time"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/retry"
)

// Settings are the materialized engine settings.
type Settings struct {
	// StorePath is the SQLite database path.
	StorePath string

	// PoolSize is the number of connections the store retains.
	PoolSize int

	// CacheCapacity bounds the response cache entry count.
	CacheCapacity int

	// CacheTTL is the lifetime of cached read responses.
	CacheTTL time.Duration

	// Retry is the policy applied to wrapped remote calls.
	Retry retry.Policy
}

// DefaultSettings returns the settings used when no config is given.
func DefaultSettings() Settings {
	return Settings{
		StorePath:     "vault.db",
		PoolSize:      4,
		CacheCapacity: 128,
		CacheTTL:      30 * time.Second,
		Retry:         retry.DefaultPolicy,
	}
}

// SettingsFrom materializes engine settings from a loaded Config.
//
// Expected layout:
//
//	store:
//	  path: vault.db
//	  pool_size: 4
//	cache:
//	  capacity: 128
//	  ttl: 30s
//	retry:
//	  max_retries: 3
//	  initial_delay: 300ms
//	  max_delay: 5s
//	  backoff_factor: 2.0
//	  attempt_timeout: 10s
func SettingsFrom(cfg Config) Settings {
	s := DefaultSettings()

	storeCfg := cfg.Section("store")
	s.StorePath = storeCfg.String("path", s.StorePath)
	s.PoolSize = storeCfg.Int("pool_size", s.PoolSize)

	cacheCfg := cfg.Section("cache")
	s.CacheCapacity = cacheCfg.Int("capacity", s.CacheCapacity)
	s.CacheTTL = cacheCfg.Duration("ttl", s.CacheTTL)

	retryCfg := cfg.Section("retry")
	s.Retry = retry.NewPolicy(
		retry.WithMaxRetries(retryCfg.Int("max_retries", s.Retry.MaxRetries)),
		retry.WithInitialDelay(retryCfg.Duration("initial_delay", s.Retry.InitialDelay)),
		retry.WithMaxDelay(retryCfg.Duration("max_delay", s.Retry.MaxDelay)),
		retry.WithBackoffFactor(retryCfg.Float("backoff_factor", s.Retry.BackoffFactor)),
		retry.WithAttemptTimeout(retryCfg.Duration("attempt_timeout", s.Retry.AttemptTimeout)),
	)

	return s
}
