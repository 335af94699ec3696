package skdp

import (
	"errors"
	"time"
)

// PoolConfig holds configuration for the connector-side connection pool
// (SPEC_FULL.md Supplemented Features: connector-side pooling).
type PoolConfig struct {
	// MinConns is the minimum number of connections to maintain.
	MinConns int

	// MaxConns is the maximum number of connections allowed. NewPool
	// replaces 0 with the default (10).
	MaxConns int

	// IdleTimeout closes idle connections after this duration. NewPool
	// replaces 0 with the default (5 minutes).
	IdleTimeout time.Duration

	// MaxLifetime is the maximum lifetime of a connection, bounded above by
	// the device key's own expiration regardless of this setting.
	MaxLifetime time.Duration

	// HealthCheckInterval is the interval between background health checks.
	// NewPool replaces 0 with the default (30 seconds); on-acquire checks
	// run in addition.
	HealthCheckInterval time.Duration

	// WaitTimeout is how long Acquire waits when the pool is exhausted.
	WaitTimeout time.Duration

	// DialTimeout is the timeout for establishing and handshaking new
	// connections.
	DialTimeout time.Duration

	// ConnConfig is applied to every connection the pool creates.
	ConnConfig Config

	// Observer, if set, receives pool lifecycle and statistics events.
	Observer PoolObserver
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:            1,
		MaxConns:            10,
		IdleTimeout:         5 * time.Minute,
		MaxLifetime:         30 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		WaitTimeout:         30 * time.Second,
		DialTimeout:         10 * time.Second,
		ConnConfig:          DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *PoolConfig) Validate() error {
	if c.MinConns < 0 {
		return errors.New("skdp pool: MinConns cannot be negative")
	}
	if c.MaxConns < 0 {
		return errors.New("skdp pool: MaxConns cannot be negative")
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return errors.New("skdp pool: MinConns cannot exceed MaxConns")
	}
	if c.IdleTimeout < 0 {
		return errors.New("skdp pool: IdleTimeout cannot be negative")
	}
	if c.MaxLifetime < 0 {
		return errors.New("skdp pool: MaxLifetime cannot be negative")
	}
	if c.HealthCheckInterval < 0 {
		return errors.New("skdp pool: HealthCheckInterval cannot be negative")
	}
	if c.WaitTimeout < 0 {
		return errors.New("skdp pool: WaitTimeout cannot be negative")
	}
	if c.DialTimeout < 0 {
		return errors.New("skdp pool: DialTimeout cannot be negative")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *PoolConfig) applyDefaults() {
	defaults := DefaultPoolConfig()

	if c.MinConns == 0 {
		c.MinConns = defaults.MinConns
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaults.MaxConns
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = defaults.MaxLifetime
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = defaults.WaitTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
}
