// Package session implements the SKDP duplex session object (spec §4.6):
// post-handshake send/receive over independent tx/rx AEAD channels, with
// strict sequence enforcement and session expiration. Grounded on
// pkg/tunnel/session.go's Session struct and Encrypt/Decrypt seq-as-AAD
// pattern, with the sliding-window ReplayWindow replaced by the spec's
// strict equality check and the ticket/mid-session-rekey machinery
// dropped (see DESIGN.md).
package session

import (
	"io"
	"sync"
	"time"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/packet"
	"github.com/skdp/skdp/pkg/skdpcrypto"
)

// Session is one duplex SKDP connection's post-handshake state: two
// symmetric halves (transmit, receive), each with its own AEAD channel
// and sequence counter (spec §3).
type Session struct {
	mu sync.Mutex

	kid  keyhierarchy.KeyID
	mode constants.SessionMode
	exp  uint64 // wall-clock seconds

	tx    *skdpcrypto.Channel
	rx    *skdpcrypto.Channel
	txSeq uint64
	rxSeq uint64

	closed bool
}

// New constructs a Session from the four direction-specific keys the
// handshake derived (spec §4.5 step 3/4): txKey/txNonce key the transmit
// channel, rxKey/rxNonce the receive channel. All must be K bytes.
func New(kid keyhierarchy.KeyID, mode constants.SessionMode, exp uint64, txKey, txNonce, rxKey, rxNonce []byte) (*Session, error) {
	tx, err := skdpcrypto.NewChannel(txKey, txNonce)
	if err != nil {
		return nil, err
	}
	rx, err := skdpcrypto.NewChannel(rxKey, rxNonce)
	if err != nil {
		return nil, err
	}
	return &Session{kid: kid, mode: mode, exp: exp, tx: tx, rx: rx}, nil
}

// KID returns the session's peer key identifier.
func (s *Session) KID() keyhierarchy.KeyID { return s.kid }

// Mode returns the session's directionality mode.
func (s *Session) Mode() constants.SessionMode { return s.mode }

// TxSeq returns the current transmit sequence counter (for tests and
// observability; not part of the wire protocol itself).
func (s *Session) TxSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txSeq
}

// RxSeq returns the current receive sequence counter.
func (s *Session) RxSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxSeq
}

func nowUnix() uint64 { return uint64(time.Now().Unix()) }

// Send encrypts plaintext and writes one EncryptedMessage packet to w
// (spec §4.6 Send).
func (s *Session) Send(w io.Writer, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return skdperrors.NewProtocolError("send", skdperrors.ErrChannelDown)
	}
	now := nowUnix()
	if now >= s.exp {
		s.closeLocked()
		return skdperrors.NewProtocolError("send", skdperrors.ErrExpiration)
	}
	if s.txSeq == ^uint64(0) {
		s.closeLocked()
		return skdperrors.NewProtocolError("send", skdperrors.ErrExpiration)
	}

	placeholder := packet.Packet{
		Flag:    constants.FlagEncryptedMessage,
		Seq:     s.txSeq,
		UTC:     now,
		Payload: make([]byte, len(plaintext)+skdpcrypto.K),
	}
	aad := packet.HeaderForMac(placeholder)

	sealed, err := s.tx.Seal(plaintext, aad)
	if err != nil {
		return skdperrors.NewProtocolError("send", err)
	}

	if err := packet.Write(w, packet.Packet{
		Flag:    constants.FlagEncryptedMessage,
		Seq:     s.txSeq,
		UTC:     now,
		Payload: sealed,
	}); err != nil {
		return err
	}
	s.txSeq++
	return nil
}

// Receive reads and decrypts the next EncryptedMessage packet from r,
// using w to send the peer an ErrorCondition packet when a fatal protocol
// or authentication failure tears down the session (spec §4.6 step 4, §7,
// §8 scenario 2 — the receiver MUST, when feasible, notify the peer before
// closing). w may be nil, in which case notification is skipped; the local
// error is always returned regardless of whether the write succeeds.
func (s *Session) Receive(r io.Reader, w io.Writer) ([]byte, error) {
	p, err := packet.Read(r)
	if err != nil {
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrChannelDown)
	}

	now := nowUnix()
	if now >= s.exp {
		s.sendErrorLocked(w, p.Seq, skdperrors.ErrExpiration)
		s.closeLocked()
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrExpiration)
	}

	switch p.Flag {
	case constants.FlagErrorCondition:
		s.closeLocked()
		code := constants.ErrorCode(0)
		if len(p.Payload) > 0 {
			code = constants.ErrorCode(p.Payload[0])
		}
		return nil, skdperrors.NewProtocolError("receive", skdperrors.FromCode(code))
	case constants.FlagKeepAliveRequest, constants.FlagKeepAliveResponse:
		return nil, nil
	case constants.FlagEncryptedMessage:
		// fall through to decrypt below
	default:
		s.sendErrorLocked(w, p.Seq, skdperrors.ErrUnexpectedPacket)
		s.closeLocked()
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrUnexpectedPacket)
	}

	if p.Seq != s.rxSeq {
		s.sendErrorLocked(w, p.Seq, skdperrors.ErrPacketUnsequenced)
		s.closeLocked()
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrPacketUnsequenced)
	}

	aad := packet.HeaderForMac(p)
	plaintext, err := s.rx.Open(p.Payload, aad)
	if err != nil {
		s.sendErrorLocked(w, p.Seq, skdperrors.ErrAuthenticationFailure)
		s.closeLocked()
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrAuthenticationFailure)
	}

	if s.rxSeq == ^uint64(0) {
		s.sendErrorLocked(w, p.Seq, skdperrors.ErrExpiration)
		s.closeLocked()
		return nil, skdperrors.NewProtocolError("receive", skdperrors.ErrExpiration)
	}
	s.rxSeq++
	return plaintext, nil
}

// sendErrorLocked writes a best-effort ErrorCondition packet mapping err to
// its wire ErrorCode via skdperrors.ToCode, mirroring
// pkg/handshake.sendError's handshake-phase notification for the
// post-handshake session. Called with s.mu held; a write failure here is
// swallowed since the session is already being torn down for the original
// error.
func (s *Session) sendErrorLocked(w io.Writer, seq uint64, err error) {
	if w == nil {
		return
	}
	_ = packet.Write(w, packet.Packet{
		Flag:    constants.FlagErrorCondition,
		Seq:     seq,
		UTC:     nowUnix(),
		Payload: []byte{byte(skdperrors.ToCode(err))},
	})
}

// SendKeepAlive writes a liveness probe packet (spec §4.6). Unlike
// application data it carries no ciphertext payload and does not consume
// a channel sequence number; the peer's Receive acknowledges it silently.
func (s *Session) SendKeepAlive(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return skdperrors.NewProtocolError("keepalive", skdperrors.ErrChannelDown)
	}
	return packet.Write(w, packet.Packet{
		Flag: constants.FlagKeepAliveRequest,
		Seq:  s.txSeq,
		UTC:  nowUnix(),
	})
}

// Close zeroizes both channels' key material and marks the session
// unusable. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.tx.Zeroize()
	s.rx.Zeroize()
	s.closed = true
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
