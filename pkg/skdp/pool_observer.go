package skdp

import "time"

// PoolObserver receives pool lifecycle and statistics events, grounded on
// pkg/tunnel/pool_observer.go's PoolObserver interface.
type PoolObserver interface {
	// OnAcquire is called when a connection is acquired from the pool.
	OnAcquire(waitDuration time.Duration, reused bool)

	// OnAcquireTimeout is called when Acquire times out waiting for a connection.
	OnAcquireTimeout()

	// OnRelease is called when a connection is released back to the pool.
	OnRelease()

	// OnConnectionCreated is called when a new connection is established.
	OnConnectionCreated(dialDuration time.Duration)

	// OnConnectionClosed is called when a pooled connection is closed.
	OnConnectionClosed(reason string)

	// OnHealthCheck is called after each idle-connection health check.
	OnHealthCheck(healthy bool)

	// OnPoolStats is called with the authoritative stats snapshot after a
	// health-check pass.
	OnPoolStats(stats PoolStatsSnapshot)
}

// RateLimitObserver receives notifications when a listener's rate limiters
// reject a connection or handshake attempt.
type RateLimitObserver interface {
	// OnConnectionRateLimit is called when a connection is rejected due to
	// per-IP limits.
	OnConnectionRateLimit(remoteIP string)
	// OnHandshakeRateLimit is called when a handshake is rejected due to
	// global limits.
	OnHandshakeRateLimit(remoteIP string)
}
