package skdp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/session"
)

// pooledConn is an internal representation of a connection in the pool.
type pooledConn struct {
	conn      *Connection
	pool      *Pool
	createdAt time.Time
	lastUsed  time.Time
	useMu     sync.Mutex
	inUse     atomic.Bool
	unhealthy atomic.Bool
}

func newPooledConn(conn *Connection, pool *Pool) *pooledConn {
	now := time.Now()
	return &pooledConn{conn: conn, pool: pool, createdAt: now, lastUsed: now}
}

func (pc *pooledConn) markUsed() {
	pc.useMu.Lock()
	pc.lastUsed = time.Now()
	pc.useMu.Unlock()
}

func (pc *pooledConn) getLastUsed() time.Time {
	pc.useMu.Lock()
	defer pc.useMu.Unlock()
	return pc.lastUsed
}

func (pc *pooledConn) age() time.Duration { return time.Since(pc.createdAt) }

func (pc *pooledConn) idleTime() time.Duration { return time.Since(pc.getLastUsed()) }

// PoolConn is the public handle returned to callers from Acquire.
type PoolConn struct {
	pc       *pooledConn
	released atomic.Bool
}

func newPoolConn(pc *pooledConn) *PoolConn { return &PoolConn{pc: pc} }

// Connection returns the underlying Connection. Returns nil once released.
func (c *PoolConn) Connection() *Connection {
	if c.released.Load() {
		return nil
	}
	return c.pc.conn
}

// Send sends data through the underlying connection.
func (c *PoolConn) Send(data []byte) error {
	if c.released.Load() {
		return ErrConnReleased
	}
	return c.pc.conn.Send(data)
}

// Receive receives data through the underlying connection.
func (c *PoolConn) Receive() ([]byte, error) {
	if c.released.Load() {
		return nil, ErrConnReleased
	}
	return c.pc.conn.Receive()
}

// SendKeepAlive sends a keepalive probe through the underlying connection.
func (c *PoolConn) SendKeepAlive() error {
	if c.released.Load() {
		return ErrConnReleased
	}
	return c.pc.conn.SendKeepAlive()
}

// Release returns the connection to the pool for reuse.
func (c *PoolConn) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.pc.markUsed()
	return c.pc.pool.release(c.pc)
}

// Close marks the connection unhealthy and removes it from the pool.
func (c *PoolConn) Close() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	c.pc.unhealthy.Store(true)
	return c.pc.pool.release(c.pc)
}

// KID returns the peer device's key identifier.
func (c *PoolConn) KID() keyhierarchy.KeyID {
	if c.released.Load() {
		return keyhierarchy.KeyID{}
	}
	return c.pc.conn.KID()
}

// Session returns the underlying Session for this connection.
func (c *PoolConn) Session() *session.Session {
	if c.released.Load() {
		return nil
	}
	return c.pc.conn.Session()
}

// CreatedAt returns when the connection was established.
func (c *PoolConn) CreatedAt() time.Time { return c.pc.createdAt }

// ErrConnReleased is returned when trying to use a released connection.
var ErrConnReleased = &poolError{msg: "skdp pool: connection already released"}

type poolError struct{ msg string }

func (e *poolError) Error() string { return e.msg }
