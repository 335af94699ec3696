// Package handshake implements the SKDP five-phase handshake state
// machine (spec §4.5) on both the client (initiator) and server
// (responder) sides, deriving per-session duplex keys from a
// device-key-wrapped ephemeral token pair. Grounded on
// pkg/tunnel/handshake.go's initiator/responder function-pair shape and
// writeEncryptedRecord/readEncryptedRecord framing idiom, with the
// CH-KEM shared secret replaced by the spec's stok/vtok exchange.
package handshake

import (
	"io"
	"time"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/packet"
	"github.com/skdp/skdp/pkg/session"
	"github.com/skdp/skdp/pkg/skdpcrypto"
)

// Conn is the transport capability the handshake needs: a byte stream
// with deadline support (net.Conn satisfies this). Spec §9 abstracts the
// transport as {read_exact(n), write_all(bytes), close()}; SetDeadline is
// the Go-idiomatic way to bound the handshake phase timeouts of §4.5/§5.
type Conn interface {
	io.Reader
	io.Writer
	SetDeadline(t time.Time) error
}

// BranchStore looks up the branch key record responsible for a given
// (mid, bid) pair, as held by a server. Returns ok=false if unknown
// (spec §4.5 step 2, §8 scenario 5 "unknown device").
type BranchStore interface {
	Lookup(mid, bid []byte) (keyhierarchy.BranchKeyRecord, bool)
}

func now() uint64 { return uint64(time.Now().Unix()) }

func withinSkew(utc uint64) bool {
	n := now()
	var delta uint64
	if utc > n {
		delta = utc - n
	} else {
		delta = n - utc
	}
	return delta <= uint64(constants.ClockSkewTolerance.Seconds())
}

func sendError(conn Conn, seq uint64, code constants.ErrorCode) {
	_ = packet.Write(conn, packet.Packet{
		Flag:    constants.FlagErrorCondition,
		Seq:     seq,
		UTC:     now(),
		Payload: []byte{byte(code)},
	})
}

func deadline() time.Time { return time.Now().Add(constants.HandshakePhaseTimeout) }

// sessionKeys are the four direction-specific keys derived from
// (stok, vtok, kid) for one side of the handshake (spec §4.5 step 3/4).
type sessionKeys struct {
	txKey, txNonce []byte
	rxKey, rxNonce []byte
}

func deriveKeys(stok, vtok, kid []byte, mirrored bool) sessionKeys {
	txKeyDomain, rxKeyDomain := constants.DomainSessionTxKey, constants.DomainSessionRxKey
	txNonceDomain, rxNonceDomain := constants.DomainSessionTxNonce, constants.DomainSessionRxNonce
	if mirrored {
		txKeyDomain, rxKeyDomain = rxKeyDomain, txKeyDomain
		txNonceDomain, rxNonceDomain = rxNonceDomain, txNonceDomain
	}
	info := func(domain string) []byte { return append([]byte(domain), kid...) }
	return sessionKeys{
		txKey:    skdpcrypto.Xof(stok, info(txKeyDomain), skdpcrypto.K),
		rxKey:    skdpcrypto.Xof(stok, info(rxKeyDomain), skdpcrypto.K),
		txNonce:  skdpcrypto.Xof(vtok, info(txNonceDomain), skdpcrypto.K),
		rxNonce:  skdpcrypto.Xof(vtok, info(rxNonceDomain), skdpcrypto.K),
	}
}

func establishProof(stok, vtok, kid []byte) []byte {
	data := append(append([]byte(nil), kid...), []byte(constants.DomainEstablishProof)...)
	return skdpcrypto.Mac(stok, vtok, data, skdpcrypto.K)
}

func confirmProof(stok, vtok, kid []byte) []byte {
	data := append(append([]byte(nil), kid...), []byte(constants.DomainConfirmProof)...)
	return skdpcrypto.Mac(vtok, stok, data, skdpcrypto.K)
}

// InitiatorHandshake drives the client side of the handshake to
// completion over conn using device, returning a populated duplex
// Session on success (spec §4.5 steps 1/3/5).
func InitiatorHandshake(conn Conn, device keyhierarchy.DeviceKeyRecord) (*session.Session, error) {
	kid := device.KID.Bytes()

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrConnectFailure)
	}
	if err := packet.Write(conn, packet.Packet{
		Flag: constants.FlagConnectRequest, Seq: 0, UTC: now(), Payload: kid,
	}); err != nil {
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrConnectFailure)
	}

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrConnectFailure)
	}
	exchange, err := packet.Read(conn)
	if err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrConnectFailure)
	}
	if exchange.Flag == constants.FlagErrorCondition {
		return nil, skdperrors.NewProtocolError("exchange", errFromPacket(exchange))
	}
	if exchange.Flag != constants.FlagExchangeRequest || exchange.Seq != 0 {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrUnexpectedPacket)
	}
	if !withinSkew(exchange.UTC) {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrPacketInvalid)
	}
	if len(exchange.Payload) != 2*skdpcrypto.K {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrPacketInvalid)
	}

	wk := skdpcrypto.Xof(device.DDK, kid, skdpcrypto.K)
	tokens, err := skdpcrypto.StreamXOR(wk, kid, exchange.Payload)
	if err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrInvalidKey)
	}
	stok, vtok := tokens[:skdpcrypto.K], tokens[skdpcrypto.K:]
	defer skdpcrypto.ZeroizeMultiple(wk, stok, vtok)

	keys := deriveKeys(stok, vtok, kid, false)

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectFailure)
	}
	if err := packet.Write(conn, packet.Packet{
		Flag: constants.FlagEstablishRequest, Seq: 1, UTC: now(),
		Payload: establishProof(stok, vtok, kid),
	}); err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectFailure)
	}

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectFailure)
	}
	resp, err := packet.Read(conn)
	if err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectFailure)
	}
	if resp.Flag == constants.FlagErrorCondition {
		return nil, skdperrors.NewProtocolError("establish", errFromPacket(resp))
	}
	if resp.Flag != constants.FlagEstablishResponse || resp.Seq != 1 {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrUnexpectedPacket)
	}
	if !withinSkew(resp.UTC) {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrPacketInvalid)
	}
	expected := confirmProof(stok, vtok, kid)
	if !skdpcrypto.ConstantTimeCompare(resp.Payload, expected) {
		sendError(conn, 2, constants.ErrCodeAuthenticationFailure)
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrAuthenticationFailure)
	}

	_ = conn.SetDeadline(time.Time{})
	return session.New(device.KID, constants.ModeDuplexClient, device.Expiration,
		keys.txKey, keys.txNonce, keys.rxKey, keys.rxNonce)
}

// ResponderHandshake drives the server side of the handshake to
// completion over conn, looking up the presented device's branch via
// store, returning a populated duplex Session on success.
func ResponderHandshake(conn Conn, store BranchStore) (*session.Session, error) {
	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrConnectionFailure)
	}
	connectReq, err := packet.Read(conn)
	if err != nil {
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrConnectionFailure)
	}
	if connectReq.Flag != constants.FlagConnectRequest || connectReq.Seq != 0 {
		sendError(conn, 0, constants.ErrCodeUnexpectedPacket)
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrUnexpectedPacket)
	}
	if !withinSkew(connectReq.UTC) || len(connectReq.Payload) != constants.KeyIDSize {
		sendError(conn, 0, constants.ErrCodePacketInvalid)
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrPacketInvalid)
	}

	var kidArr keyhierarchy.KeyID
	copy(kidArr[:], connectReq.Payload)
	kid := kidArr.Bytes()

	branch, ok := store.Lookup(kidArr.MID(), kidArr.BID())
	if !ok {
		sendError(conn, 0, constants.ErrCodeInvalidKey)
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrInvalidKey)
	}
	device, err := keyhierarchy.ReDeriveDevice(branch, kidArr)
	if err != nil {
		sendError(conn, 0, constants.ErrCodeInvalidKey)
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrInvalidKey)
	}
	device.Expiration = branch.Expiration
	if device.Expiration != 0 && now() >= device.Expiration {
		sendError(conn, 0, constants.ErrCodeExpiration)
		return nil, skdperrors.NewProtocolError("connect", skdperrors.ErrExpiration)
	}

	stok := skdpcrypto.MustSecureRandomBytes(skdpcrypto.K)
	vtok := skdpcrypto.MustSecureRandomBytes(skdpcrypto.K)
	wk := skdpcrypto.Xof(device.DDK, kid, skdpcrypto.K)
	defer skdpcrypto.ZeroizeMultiple(wk, stok, vtok, device.DDK)

	wrapped, err := skdpcrypto.StreamXOR(wk, kid, append(append([]byte(nil), stok...), vtok...))
	if err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrInvalidKey)
	}

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrConnectionFailure)
	}
	if err := packet.Write(conn, packet.Packet{
		Flag: constants.FlagExchangeRequest, Seq: 0, UTC: now(), Payload: wrapped,
	}); err != nil {
		return nil, skdperrors.NewProtocolError("exchange", skdperrors.ErrConnectionFailure)
	}

	keys := deriveKeys(stok, vtok, kid, true)

	if err := conn.SetDeadline(deadline()); err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectionFailure)
	}
	establishReq, err := packet.Read(conn)
	if err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectionFailure)
	}
	if establishReq.Flag != constants.FlagEstablishRequest || establishReq.Seq != 1 {
		sendError(conn, 0, constants.ErrCodeUnexpectedPacket)
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrUnexpectedPacket)
	}
	if !withinSkew(establishReq.UTC) {
		sendError(conn, 0, constants.ErrCodePacketInvalid)
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrPacketInvalid)
	}
	expected := establishProof(stok, vtok, kid)
	if !skdpcrypto.ConstantTimeCompare(establishReq.Payload, expected) {
		sendError(conn, 1, constants.ErrCodeAuthenticationFailure)
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrAuthenticationFailure)
	}

	if err := packet.Write(conn, packet.Packet{
		Flag: constants.FlagEstablishResponse, Seq: 1, UTC: now(),
		Payload: confirmProof(stok, vtok, kid),
	}); err != nil {
		return nil, skdperrors.NewProtocolError("establish", skdperrors.ErrConnectionFailure)
	}

	_ = conn.SetDeadline(time.Time{})
	exp := device.Expiration
	if exp == 0 {
		exp = uint64(time.Now().Add(constants.DefaultSessionDuration).Unix())
	}
	return session.New(kidArr, constants.ModeDuplexServer, exp,
		keys.txKey, keys.txNonce, keys.rxKey, keys.rxNonce)
}

func errFromPacket(p packet.Packet) error {
	code := constants.ErrorCode(0)
	if len(p.Payload) > 0 {
		code = constants.ErrorCode(p.Payload[0])
	}
	return skdperrors.FromCode(code)
}
