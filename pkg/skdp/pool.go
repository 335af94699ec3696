package skdp

import (
	"context"
	"net"
	"sync"
	"time"

	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/handshake"
	"github.com/skdp/skdp/pkg/keyhierarchy"
)

// Pool manages a set of reusable Connections to one branch server,
// amortizing the handshake cost across repeated round trips from a
// single device (SPEC_FULL.md Supplemented Features: connector pooling).
// Grounded on pkg/tunnel/pool.go, repointed at *Connection/*session.Session
// in place of *Tunnel/*Session and KEM rekey.
type Pool struct {
	network string
	address string
	device  keyhierarchy.DeviceKeyRecord
	config  PoolConfig

	mu      sync.Mutex
	conns   []*pooledConn
	idle    []*pooledConn
	waiters []chan *pooledConn
	closed  bool
	stats   *PoolStats

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewPool creates a new connection pool dialing address as device. The
// pool is not started until Start is called.
func NewPool(network, address string, device keyhierarchy.DeviceKeyRecord, config PoolConfig) (*Pool, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Pool{
		network: network,
		address: address,
		device:  device,
		config:  config,
		conns:   make([]*pooledConn, 0, config.MaxConns),
		idle:    make([]*pooledConn, 0, config.MaxConns),
		waiters: make([]chan *pooledConn, 0),
		stats:   newPoolStats(),
	}, nil
}

// Start initializes the pool and establishes minimum connections, plus
// background health checking if configured.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return skdperrors.ErrPoolClosed
	}
	p.mu.Unlock()

	for i := 0; i < p.config.MinConns; i++ {
		pc, err := p.createConn(ctx)
		if err != nil {
			continue
		}
		p.mu.Lock()
		p.conns = append(p.conns, pc)
		p.idle = append(p.idle, pc)
		p.stats.setTotalCount(int64(len(p.conns)))
		p.stats.setIdleCount(int64(len(p.idle)))
		p.mu.Unlock()
	}

	if p.config.HealthCheckInterval > 0 {
		p.healthCtx, p.healthCancel = context.WithCancel(context.Background())
		p.healthWg.Add(1)
		go p.healthChecker()
	}

	return nil
}

// Close closes all connections in the pool and prevents new acquires.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.healthCancel != nil {
		p.healthCancel()
	}

	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil

	connsToClose := make([]*pooledConn, len(p.conns))
	copy(connsToClose, p.conns)
	p.conns = nil
	p.idle = nil
	p.mu.Unlock()

	p.healthWg.Wait()

	for _, pc := range connsToClose {
		_ = pc.conn.Close()
		p.notifyConnectionClosed("pool_closed")
	}

	return nil
}

// Acquire gets a connection from the pool, waiting up to WaitTimeout if
// necessary. The returned PoolConn must be released with Release() or
// closed with Close().
func (p *Pool) Acquire(ctx context.Context) (*PoolConn, error) {
	startTime := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, skdperrors.ErrPoolClosed
	}

	for len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if p.isHealthy(pc) {
			pc.inUse.Store(true)
			waitDuration := time.Since(startTime)
			p.stats.recordAcquire(waitDuration, true)
			p.mu.Unlock()
			p.notifyAcquire(waitDuration, true)
			return newPoolConn(pc), nil
		}

		p.removeConnLocked(pc)
		go func(pc *pooledConn) {
			_ = pc.conn.Close()
			p.notifyConnectionClosed("unhealthy")
		}(pc)
	}

	if p.config.MaxConns == 0 || len(p.conns) < p.config.MaxConns {
		p.mu.Unlock()
		return p.createAndAcquire(ctx, startTime)
	}

	if p.config.WaitTimeout == 0 {
		p.mu.Unlock()
		p.stats.recordAcquireTimeout()
		p.notifyAcquireTimeout()
		return nil, skdperrors.ErrPoolExhausted
	}

	ch := make(chan *pooledConn, 1)
	p.waiters = append(p.waiters, ch)
	p.stats.incrementWaiting()
	p.mu.Unlock()

	timeout := p.config.WaitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < timeout {
			timeout = remaining
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pc := <-ch:
		p.stats.decrementWaiting()
		if pc == nil {
			return nil, skdperrors.ErrPoolClosed
		}

		if !p.isHealthy(pc) {
			p.mu.Lock()
			p.removeConnLocked(pc)
			p.mu.Unlock()
			go func() {
				_ = pc.conn.Close()
				p.notifyConnectionClosed("unhealthy")
			}()
			return p.Acquire(ctx)
		}

		pc.inUse.Store(true)
		waitDuration := time.Since(startTime)
		p.stats.recordAcquire(waitDuration, true)
		p.notifyAcquire(waitDuration, true)
		return newPoolConn(pc), nil

	case <-timer.C:
		p.mu.Lock()
		p.removeWaiter(ch)
		p.mu.Unlock()
		p.stats.decrementWaiting()
		p.stats.recordAcquireTimeout()
		p.notifyAcquireTimeout()
		return nil, skdperrors.ErrPoolTimeout

	case <-ctx.Done():
		p.mu.Lock()
		p.removeWaiter(ch)
		p.mu.Unlock()
		p.stats.decrementWaiting()
		p.stats.recordAcquireTimeout()
		p.notifyAcquireTimeout()
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to get a connection without waiting.
func (p *Pool) TryAcquire() (*PoolConn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	p.mu.Lock()
	origTimeout := p.config.WaitTimeout
	p.config.WaitTimeout = 0
	p.mu.Unlock()

	conn, err := p.Acquire(ctx)

	p.mu.Lock()
	p.config.WaitTimeout = origTimeout
	p.mu.Unlock()

	return conn, err
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() PoolStatsSnapshot { return p.stats.Snapshot() }

// Size returns the current total number of connections (idle + in-use).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// IdleCount returns the current number of idle connections.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// InUseCount returns the current number of in-use connections.
func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) - len(p.idle)
}

// release returns a connection to the pool.
func (p *Pool) release(pc *pooledConn) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		go func() { _ = pc.conn.Close() }()
		return nil
	}

	pc.inUse.Store(false)

	if pc.unhealthy.Load() {
		p.removeConnLocked(pc)
		p.stats.recordConnectionClosed(false)
		go func() {
			_ = pc.conn.Close()
			p.notifyConnectionClosed("marked_unhealthy")
		}()
		return nil
	}

	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		pc.inUse.Store(true)
		ch <- pc
		return nil
	}

	p.idle = append(p.idle, pc)
	p.stats.recordRelease()
	p.notifyRelease()
	return nil
}

func (p *Pool) createAndAcquire(ctx context.Context, startTime time.Time) (*PoolConn, error) {
	pc, err := p.createConn(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = pc.conn.Close()
		return nil, skdperrors.ErrPoolClosed
	}

	pc.inUse.Store(true)
	p.conns = append(p.conns, pc)
	p.stats.setTotalCount(int64(len(p.conns)))
	waitDuration := time.Since(startTime)
	p.stats.recordAcquire(waitDuration, false)
	p.mu.Unlock()

	p.notifyAcquire(waitDuration, false)
	return newPoolConn(pc), nil
}

// createConn dials and handshakes a new Connection.
func (p *Pool) createConn(ctx context.Context) (*pooledConn, error) {
	dialStart := time.Now()

	var d net.Dialer
	if p.config.DialTimeout > 0 {
		d.Timeout = p.config.DialTimeout
	}

	netConn, err := d.DialContext(ctx, p.network, p.address)
	if err != nil {
		return nil, err
	}

	sess, err := handshake.InitiatorHandshake(netConn, p.device)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}

	conn := newConnection(sess, netConn, p.config.ConnConfig)
	pc := newPooledConn(conn, p)

	dialDuration := time.Since(dialStart)
	p.stats.recordConnectionCreated(dialDuration)
	p.notifyConnectionCreated(dialDuration)

	return pc, nil
}

// isHealthy performs a quick health check on a connection.
func (p *Pool) isHealthy(pc *pooledConn) bool {
	if pc.unhealthy.Load() {
		return false
	}
	if p.config.MaxLifetime > 0 && pc.age() > p.config.MaxLifetime {
		return false
	}
	if p.config.IdleTimeout > 0 && pc.idleTime() > p.config.IdleTimeout {
		return false
	}
	return !pc.conn.Session().Closed()
}

// removeConnLocked removes a connection from the pool (must hold lock).
func (p *Pool) removeConnLocked(pc *pooledConn) {
	for i, c := range p.conns {
		if c == pc {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	for i, c := range p.idle {
		if c == pc {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.stats.setTotalCount(int64(len(p.conns)))
	p.stats.setIdleCount(int64(len(p.idle)))
}

// removeWaiter removes a wait channel from the waiters list.
func (p *Pool) removeWaiter(ch chan *pooledConn) {
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// healthChecker runs periodic health checks on idle connections.
func (p *Pool) healthChecker() {
	defer p.healthWg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.healthCtx.Done():
			return
		case <-ticker.C:
			p.runHealthCheck()
		}
	}
}

// runHealthCheck checks all idle connections and removes unhealthy ones,
// then tries to restore the pool to MinConns.
func (p *Pool) runHealthCheck() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var unhealthy []*pooledConn
	newIdle := make([]*pooledConn, 0, len(p.idle))

	for _, pc := range p.idle {
		healthy := p.isHealthy(pc)
		p.notifyHealthCheck(healthy)
		p.stats.recordHealthCheck(healthy)
		if healthy {
			newIdle = append(newIdle, pc)
		} else {
			unhealthy = append(unhealthy, pc)
		}
	}

	p.idle = newIdle
	for _, pc := range unhealthy {
		p.removeConnLocked(pc)
	}
	p.stats.setIdleCount(int64(len(p.idle)))
	p.mu.Unlock()

	for _, pc := range unhealthy {
		_ = pc.conn.Close()
		p.notifyConnectionClosed("health_check_failed")
	}

	p.mu.Lock()
	deficit := p.config.MinConns - len(p.conns)
	p.mu.Unlock()

	if deficit > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.DialTimeout)
		defer cancel()

		for i := 0; i < deficit; i++ {
			pc, err := p.createConn(ctx)
			if err != nil {
				break
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				_ = pc.conn.Close()
				return
			}
			p.conns = append(p.conns, pc)
			p.idle = append(p.idle, pc)
			p.stats.setTotalCount(int64(len(p.conns)))
			p.stats.setIdleCount(int64(len(p.idle)))
			p.mu.Unlock()
		}
	}

	p.notifyPoolStats(p.stats.Snapshot())
}

func (p *Pool) notifyAcquire(wait time.Duration, reused bool) {
	if p.config.Observer != nil {
		p.config.Observer.OnAcquire(wait, reused)
	}
}

func (p *Pool) notifyAcquireTimeout() {
	if p.config.Observer != nil {
		p.config.Observer.OnAcquireTimeout()
	}
}

func (p *Pool) notifyRelease() {
	if p.config.Observer != nil {
		p.config.Observer.OnRelease()
	}
}

func (p *Pool) notifyConnectionCreated(dial time.Duration) {
	if p.config.Observer != nil {
		p.config.Observer.OnConnectionCreated(dial)
	}
}

func (p *Pool) notifyConnectionClosed(reason string) {
	if p.config.Observer != nil {
		p.config.Observer.OnConnectionClosed(reason)
	}
}

func (p *Pool) notifyHealthCheck(healthy bool) {
	if p.config.Observer != nil {
		p.config.Observer.OnHealthCheck(healthy)
	}
}

func (p *Pool) notifyPoolStats(stats PoolStatsSnapshot) {
	if p.config.Observer != nil {
		p.config.Observer.OnPoolStats(stats)
	}
}
