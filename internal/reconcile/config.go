package reconcile

import (
	"time"

	"github.com/natidev-sh/natiweb/internal/config"
)

// Config controls the orphan sweep loop.
type Config struct {
	Enabled      bool
	BatchSize    int
	PollInterval time.Duration
	Grace        time.Duration
	RunTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		BatchSize:    50,
		PollInterval: 10 * time.Minute,
		Grace:        15 * time.Minute,
		RunTimeout:   time.Minute,
	}
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Sweep.Enabled,
		BatchSize:    cfg.Sweep.BatchSize,
		PollInterval: cfg.Sweep.Interval,
		Grace:        cfg.Sweep.Grace,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Grace <= 0 {
		c.Grace = defaults.Grace
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
