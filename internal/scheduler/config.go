package scheduler

import (
	"time"
)

// Config controls job intervals and timeouts.
type Config struct {
	SyncInterval      time.Duration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	JobTimeout        time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		SyncInterval:      30 * time.Second,
		SweepInterval:     24 * time.Hour,
		ReconcileInterval: 5 * time.Minute,
		JobTimeout:        30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaults.ReconcileInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
