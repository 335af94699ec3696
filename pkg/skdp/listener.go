package skdp

import (
	"net"
	"sync"

	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/handshake"
)

// Listen creates a listener that accepts incoming device connections and
// runs the responder side of the SKDP handshake against store.
func Listen(network, address string, store handshake.BranchStore) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{listener: ln, store: store, config: DefaultConfig()}, nil
}

// Listener accepts incoming SKDP device connections (spec §4, responder
// side), grounded on pkg/tunnel/transport.go's Listener.
type Listener struct {
	listener net.Listener
	store    handshake.BranchStore
	config   Config

	ipLimiter        *IPRateLimiter
	handshakeLimiter *HandshakeLimiter
}

// Accept waits for and returns the next established connection. A peer
// that fails the handshake (unknown device, expired key, proof mismatch)
// never reaches the caller as a Connection; Accept returns the handshake
// error instead. Callers that want a persistent accept loop should retry
// on error themselves, as with net.Listener.
func (l *Listener) Accept() (*Connection, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}

	remoteIP := extractRemoteIP(conn)

	conn, err = l.checkIPRateLimit(conn, remoteIP)
	if err != nil {
		return nil, err
	}

	if l.handshakeLimiter != nil && !l.handshakeLimiter.AllowHandshake() {
		_ = conn.Close()
		if l.config.RateLimitObserver != nil {
			l.config.RateLimitObserver.OnHandshakeRateLimit(remoteIP)
		}
		return nil, skdperrors.NewProtocolError("accept", skdperrors.ErrConnectFailure)
	}

	sess, err := handshake.ResponderHandshake(conn, l.store)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newConnection(sess, conn, l.config), nil
}

// extractRemoteIP extracts the IP address from a connection.
func extractRemoteIP(conn net.Conn) string {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err == nil {
		return host
	}
	return conn.RemoteAddr().String()
}

// checkIPRateLimit checks IP rate limiting and wraps the connection if needed.
func (l *Listener) checkIPRateLimit(conn net.Conn, remoteIP string) (net.Conn, error) {
	if l.ipLimiter == nil {
		return conn, nil
	}
	if !l.ipLimiter.AllowConnection(remoteIP) {
		_ = conn.Close()
		if l.config.RateLimitObserver != nil {
			l.config.RateLimitObserver.OnConnectionRateLimit(remoteIP)
		}
		return nil, skdperrors.NewProtocolError("accept", skdperrors.ErrConnectFailure)
	}
	return &rateLimitedConn{Conn: conn, limiter: l.ipLimiter, ip: remoteIP}, nil
}

// Close closes the listener.
func (l *Listener) Close() error { return l.listener.Close() }

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// SetConfig sets the connection configuration applied to future Accepts,
// rebuilding rate limiters from RateLimit.
func (l *Listener) SetConfig(cfg Config) {
	l.config = cfg
	if cfg.RateLimit.MaxConnectionsPerIP > 0 {
		l.ipLimiter = NewIPRateLimiter(cfg.RateLimit.MaxConnectionsPerIP)
	} else {
		l.ipLimiter = nil
	}
	if cfg.RateLimit.HandshakeRateLimit > 0 {
		burst := cfg.RateLimit.HandshakeBurst
		if burst <= 0 {
			burst = 1
		}
		l.handshakeLimiter = NewHandshakeLimiter(cfg.RateLimit.HandshakeRateLimit, burst)
	} else {
		l.handshakeLimiter = nil
	}
}

// rateLimitedConn wraps a net.Conn to release the IP rate limit on close.
type rateLimitedConn struct {
	net.Conn
	limiter   *IPRateLimiter
	ip        string
	closeOnce sync.Once
}

// Close closes the connection and releases the IP rate limit token.
func (c *rateLimitedConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		if c.limiter != nil {
			c.limiter.ReleaseConnection(c.ip)
		}
	})
	return err
}
