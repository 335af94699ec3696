package constants

import "testing"

func TestHeaderSizeIsTwentyOne(t *testing.T) {
	if HeaderSize != 21 {
		t.Fatalf("HeaderSize = %d, want 21", HeaderSize)
	}
}

func TestKeyIDSizeIsSixteen(t *testing.T) {
	if KeyIDSize != 16 {
		t.Fatalf("KeyIDSize = %d, want 16", KeyIDSize)
	}
	if MasterIDSize+BranchIDSize+DeviceIDSize != KeyIDSize {
		t.Fatalf("field sizes do not sum to KeyIDSize")
	}
}

func TestDomainSeparatorsArePrefixFree(t *testing.T) {
	domains := []string{
		DomainBranchKey, DomainDeviceKey, DomainWrapKey,
		DomainSessionTxKey, DomainSessionRxKey,
		DomainSessionTxNonce, DomainSessionRxNonce,
		DomainEstablishProof, DomainConfirmProof, DomainRekey,
	}
	for i, a := range domains {
		for j, b := range domains {
			if i == j {
				continue
			}
			if len(a) <= len(b) && b[:len(a)] == a {
				t.Fatalf("domain %q is a prefix of %q", a, b)
			}
		}
	}
}

func TestFlagStringCoversAllValues(t *testing.T) {
	for f := FlagNone; f <= FlagSessionEstablishVerify; f++ {
		if f.String() == "Unknown" {
			t.Fatalf("flag %d has no String() mapping", f)
		}
	}
}

func TestErrorCodeStringCoversAllValues(t *testing.T) {
	for e := ErrCodeNone; e <= ErrCodeUnexpectedPacket; e++ {
		if e.String() == "Unknown" {
			t.Fatalf("error code %d has no String() mapping", e)
		}
	}
}

func TestKeyFileRecordSize(t *testing.T) {
	want := KeyIDSize + KeySize + 8
	if got := KeyFileRecordSize(); got != want {
		t.Fatalf("KeyFileRecordSize() = %d, want %d", got, want)
	}
}
