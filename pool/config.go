package pool

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the pool limits and timeouts. Immutable after New.
type Config struct {
	// MaxSize is the maximum number of physical connections.
	MaxSize int `envconfig:"MAX_SIZE" default:"10"`
	// MinIdle is the number of idle connections maintenance keeps warm.
	MinIdle int `envconfig:"MIN_IDLE" default:"0"`
	// AcquireTimeout bounds how long Acquire blocks when the pool is full.
	AcquireTimeout time.Duration `envconfig:"ACQUIRE_TIMEOUT" default:"30s"`
	// IdleTimeout retires connections that sat idle too long. 0 disables.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT" default:"10m"`
	// MaxLifetime retires connections by age. 0 disables.
	MaxLifetime time.Duration `envconfig:"MAX_LIFETIME" default:"30m"`
	// LeakThreshold logs a warning for leases held longer than this.
	// 0 disables leak detection.
	LeakThreshold time.Duration `envconfig:"LEAK_THRESHOLD" default:"0"`
	// SweepInterval is how often background maintenance runs.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1s"`
}

// FromEnv loads a Config from environment variables with the given prefix,
// e.g. prefix "DB_POOL" reads DB_POOL_MAX_SIZE, DB_POOL_ACQUIRE_TIMEOUT...
func FromEnv(prefix string) (Config, error) {
	var cfg Config
	err := envconfig.Process(prefix, &cfg)
	return cfg, err
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	return c
}
