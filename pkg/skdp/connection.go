// Package skdp provides the connection-level API applications use once a
// device has been provisioned: dialing a branch server, listening for
// device connections, and sending/receiving application payloads over an
// established SKDP session. Grounded on pkg/tunnel/transport.go's
// Transport/Tunnel wrapper, with the KEM rekey and alert/ping-pong wire
// messages dropped in favor of the plain Session.Send/Receive exchange
// (spec §4.6) and the keepalive flags already defined on the wire format.
package skdp

import (
	"net"
	"sync"
	"time"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/session"
)

// Config holds per-connection tunables layered on top of a handshaken
// Session.
type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig

	// RateLimitObserver, if set, receives notifications when the listener's
	// rate limiters reject a connection or handshake attempt.
	RateLimitObserver RateLimitObserver
}

// RateLimitConfig configures the listener-side limiters (spec §8,
// Denial-of-service resistance).
type RateLimitConfig struct {
	// MaxConnectionsPerIP caps concurrent connections from one source IP.
	// 0 means unlimited.
	MaxConnectionsPerIP int

	// HandshakeRateLimit caps handshakes-per-second accepted globally.
	// 0 means unlimited.
	HandshakeRateLimit float64

	// HandshakeBurst is the token bucket burst size. Defaults to 1 when
	// HandshakeRateLimit is set and this is 0.
	HandshakeBurst int
}

// DefaultConfig returns sensible connection timeouts.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Connection is an established, post-handshake SKDP duplex connection: a
// network socket paired with its Session.
type Connection struct {
	sess *session.Session
	conn net.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex

	closed   bool
	closedMu sync.RWMutex
}

func newConnection(sess *session.Session, conn net.Conn, cfg Config) *Connection {
	return &Connection{
		sess:         sess,
		conn:         conn,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Send encrypts and transmits plaintext as one application packet.
func (c *Connection) Send(plaintext []byte) error {
	c.closedMu.RLock()
	if c.closed {
		c.closedMu.RUnlock()
		return skdperrors.ErrDisconnected
	}
	c.closedMu.RUnlock()

	if len(plaintext) > constants.MaxPayloadSize {
		return skdperrors.NewProtocolError("send", skdperrors.ErrPacketInvalid)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.sess.Send(c.conn, plaintext)
}

// Receive reads and decrypts the next application packet, skipping any
// keepalive packets transparently.
func (c *Connection) Receive() ([]byte, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	for {
		plaintext, err := c.sess.Receive(c.conn, c.conn)
		if err != nil {
			c.markClosed()
			return nil, err
		}
		if plaintext == nil {
			continue // keepalive packet, already acknowledged by Session
		}
		return plaintext, nil
	}
}

// SendKeepAlive writes a liveness probe (spec §4.6, FlagKeepAliveRequest).
func (c *Connection) SendKeepAlive() error {
	c.closedMu.RLock()
	if c.closed {
		c.closedMu.RUnlock()
		return skdperrors.ErrDisconnected
	}
	c.closedMu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.sess.SendKeepAlive(c.conn)
}

func (c *Connection) checkClosed() error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return skdperrors.ErrDisconnected
	}
	return nil
}

func (c *Connection) markClosed() {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()
}

// Close tears down the session and underlying socket.
func (c *Connection) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	_ = c.sess.Close()
	return c.conn.Close()
}

// Session returns the underlying duplex session.
func (c *Connection) Session() *session.Session { return c.sess }

// KID returns the peer device's key identifier.
func (c *Connection) KID() keyhierarchy.KeyID { return c.sess.KID() }

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
