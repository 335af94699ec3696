package keyhierarchy

import (
	"bytes"
	"testing"

	"github.com/skdp/skdp/pkg/skdpcrypto"
)

func testMaster(t *testing.T) MasterKeyRecord {
	t.Helper()
	mid := []byte("MID\x00")
	kid := NewKeyID(mid, nil, nil)
	return MasterKeyRecord{
		KID:        kid,
		MDK:        bytes.Repeat([]byte{0x00}, skdpcrypto.K),
		Expiration: 0,
	}
}

func TestDeviceKeyDerivationIsPureAndDeterministic(t *testing.T) {
	master := testMaster(t)
	branch, err := IssueServer(master, []byte("BID\x00"), 1000)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	device1, err := IssueDevice(branch, []byte("DEVICE00"), 1000)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}
	device2, err := IssueDevice(branch, []byte("DEVICE00"), 1000)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}
	if !bytes.Equal(device1.DDK, device2.DDK) {
		t.Fatalf("device key derivation is not deterministic")
	}
}

func TestServerCanRederiveDeviceKeyFromKID(t *testing.T) {
	master := testMaster(t)
	branch, err := IssueServer(master, []byte("BID\x00"), 1000)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	issued, err := IssueDevice(branch, []byte("DEVICE00"), 1000)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}

	rederived, err := ReDeriveDevice(branch, issued.KID)
	if err != nil {
		t.Fatalf("ReDeriveDevice: %v", err)
	}
	if !bytes.Equal(issued.DDK, rederived.DDK) {
		t.Fatalf("server-rederived ddk does not match client-issued ddk")
	}
}

func TestDifferentDevicesGetDifferentKeys(t *testing.T) {
	master := testMaster(t)
	branch, err := IssueServer(master, []byte("BID\x00"), 1000)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	a, err := IssueDevice(branch, []byte("DEVICEAA"), 1000)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}
	b, err := IssueDevice(branch, []byte("DEVICEBB"), 1000)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}
	if bytes.Equal(a.DDK, b.DDK) {
		t.Fatalf("distinct devices derived identical keys")
	}
}

func TestKeyRecordEncodeDecodeRoundTrip(t *testing.T) {
	master := testMaster(t)
	branch, err := IssueServer(master, []byte("BID\x00"), 1000)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	device, err := IssueDevice(branch, []byte("DEVICE00"), 424242)
	if err != nil {
		t.Fatalf("IssueDevice: %v", err)
	}

	encoded, err := EncodeRecord(device.KID, device.DDK, device.Expiration)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	kid, key, exp, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if kid != device.KID {
		t.Fatalf("kid mismatch after round trip")
	}
	if !bytes.Equal(key, device.DDK) {
		t.Fatalf("key mismatch after round trip")
	}
	if exp != device.Expiration {
		t.Fatalf("expiration mismatch: got %d, want %d", exp, device.Expiration)
	}
}
