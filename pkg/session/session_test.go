package session

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/packet"
	"github.com/skdp/skdp/pkg/skdpcrypto"
)

func newTestPair(t *testing.T, exp uint64) (*Session, *Session) {
	t.Helper()
	kid := keyhierarchy.NewKeyID([]byte("MID\x00"), []byte("BID\x00"), []byte("DEVICE00"))
	txKey := bytes.Repeat([]byte{0x11}, skdpcrypto.K)
	txNonce := bytes.Repeat([]byte{0x22}, skdpcrypto.K)
	rxKey := bytes.Repeat([]byte{0x33}, skdpcrypto.K)
	rxNonce := bytes.Repeat([]byte{0x44}, skdpcrypto.K)

	client, err := New(kid, constants.ModeDuplexClient, exp, txKey, txNonce, rxKey, rxNonce)
	if err != nil {
		t.Fatalf("New(client): %v", err)
	}
	server, err := New(kid, constants.ModeDuplexServer, exp, rxKey, rxNonce, txKey, txNonce)
	if err != nil {
		t.Fatalf("New(server): %v", err)
	}
	return client, server
}

func futureExp() uint64 { return uint64(time.Now().Add(time.Hour).Unix()) }

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := newTestPair(t, futureExp())
	var wire bytes.Buffer

	if err := client.Send(&wire, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Receive(&wire, &wire)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestSequenceCountersAdvance(t *testing.T) {
	client, server := newTestPair(t, futureExp())
	var wire bytes.Buffer

	for i := 0; i < 5; i++ {
		if err := client.Send(&wire, []byte("msg")); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if _, err := server.Receive(&wire, &wire); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}
	if client.TxSeq() != 5 {
		t.Fatalf("client.TxSeq() = %d, want 5", client.TxSeq())
	}
	if server.RxSeq() != 5 {
		t.Fatalf("server.RxSeq() = %d, want 5", server.RxSeq())
	}
}

func TestTamperDetectionClosesSession(t *testing.T) {
	client, server := newTestPair(t, futureExp())
	var wire bytes.Buffer

	if err := client.Send(&wire, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	raw := wire.Bytes()
	raw[len(raw)-1] ^= 0x01 // flip a tag bit

	var toPeer bytes.Buffer
	_, err := server.Receive(bytes.NewReader(raw), &toPeer)
	if !skdperrors.Is(err, skdperrors.ErrAuthenticationFailure) {
		t.Fatalf("Receive after tamper = %v, want ErrAuthenticationFailure", err)
	}
	if !server.Closed() {
		t.Fatalf("session not closed after authentication failure")
	}

	errPkt, err := packet.Read(&toPeer)
	if err != nil {
		t.Fatalf("expected an ErrorCondition packet sent to the peer, got read error: %v", err)
	}
	if errPkt.Flag != constants.FlagErrorCondition {
		t.Fatalf("peer packet flag = %v, want FlagErrorCondition", errPkt.Flag)
	}
	if constants.ErrorCode(errPkt.Payload[0]) != constants.ErrCodeAuthenticationFailure {
		t.Fatalf("peer error code = %v, want ErrCodeAuthenticationFailure", errPkt.Payload[0])
	}
}

func TestReplayedPacketRejected(t *testing.T) {
	client, server := newTestPair(t, futureExp())

	var firstWire bytes.Buffer
	if err := client.Send(&firstWire, []byte("seq-zero")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	captured := append([]byte(nil), firstWire.Bytes()...)

	if _, err := server.Receive(bytes.NewReader(captured), io.Discard); err != nil {
		t.Fatalf("Receive original: %v", err)
	}

	var secondWire bytes.Buffer
	if err := client.Send(&secondWire, []byte("seq-one")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = secondWire // legitimate next packet is seq=1; server now expects seq=1

	_, err := server.Receive(bytes.NewReader(captured), io.Discard) // replay seq=0
	if !skdperrors.Is(err, skdperrors.ErrPacketUnsequenced) {
		t.Fatalf("Receive(replay) = %v, want ErrPacketUnsequenced", err)
	}
}

func TestExpiredSessionRejectsSend(t *testing.T) {
	client, _ := newTestPair(t, uint64(time.Now().Add(-time.Second).Unix()))
	var wire bytes.Buffer
	err := client.Send(&wire, []byte("too late"))
	if !skdperrors.Is(err, skdperrors.ErrExpiration) {
		t.Fatalf("Send on expired session = %v, want ErrExpiration", err)
	}
}

func TestEmptyPlaintextRoundTrips(t *testing.T) {
	client, server := newTestPair(t, futureExp())
	var wire bytes.Buffer
	if err := client.Send(&wire, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Receive(&wire, &wire)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}
