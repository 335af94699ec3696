// Package keyhierarchy implements the SKDP three-level pre-shared key
// hierarchy (spec §3, §4.2): a master key held by an issuing authority,
// branch keys held by servers, and device keys held by clients, each
// derivable from its parent via a KMAC call over the child's kid.
package keyhierarchy

import (
	"encoding/binary"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
	"github.com/skdp/skdp/pkg/skdpcrypto"
)

// KeyID is the 16-byte kid = mid(4) || bid(4) || did(8). Identifiers are
// opaque byte strings, never interpreted numerically.
type KeyID [constants.KeyIDSize]byte

// NewKeyID builds a kid from its three fields. mid and bid are padded or
// truncated to their fixed field sizes; did likewise. Unused fields (e.g.
// a branch-only kid with no device) are left zero.
func NewKeyID(mid, bid, did []byte) KeyID {
	var kid KeyID
	copy(kid[0:constants.MasterIDSize], mid)
	copy(kid[constants.MasterIDSize:constants.MasterIDSize+constants.BranchIDSize], bid)
	copy(kid[constants.MasterIDSize+constants.BranchIDSize:], did)
	return kid
}

// MID returns the 4-byte master identifier prefix.
func (k KeyID) MID() []byte { return k[0:constants.MasterIDSize] }

// BID returns the 4-byte branch identifier.
func (k KeyID) BID() []byte {
	return k[constants.MasterIDSize : constants.MasterIDSize+constants.BranchIDSize]
}

// DID returns the 8-byte device identifier.
func (k KeyID) DID() []byte {
	return k[constants.MasterIDSize+constants.BranchIDSize:]
}

// Bytes returns the kid as a plain byte slice.
func (k KeyID) Bytes() []byte { return k[:] }

// MasterKeyRecord is held only by a key-issuing authority, never on the
// wire and never on a client or server in operation.
type MasterKeyRecord struct {
	KID        KeyID
	MDK        []byte // K bytes
	Expiration uint64
}

// BranchKeyRecord is held by a server; derived from a MasterKeyRecord.
type BranchKeyRecord struct {
	KID        KeyID
	BDK        []byte // K bytes
	Expiration uint64
}

// DeviceKeyRecord is held by one client device; derived from a
// BranchKeyRecord and re-derivable by the corresponding server.
type DeviceKeyRecord struct {
	KID        KeyID
	DDK        []byte // K bytes
	Expiration uint64
}

// DeriveBranchKey computes bdk = mac(mdk, kid, "branch", K) (spec §4.2).
// kid must carry mid and bid with did left zero.
func DeriveBranchKey(mdk []byte, kid KeyID) ([]byte, error) {
	if len(mdk) != skdpcrypto.K {
		return nil, skdperrors.NewCryptoError("DeriveBranchKey", skdperrors.ErrInvalidKey)
	}
	return skdpcrypto.Mac(mdk, []byte(constants.DomainBranchKey), kid.Bytes(), skdpcrypto.K), nil
}

// DeriveDeviceKey computes ddk = mac(bdk, kid, "device", K) (spec §4.2).
// kid must carry mid, bid, and did.
func DeriveDeviceKey(bdk []byte, kid KeyID) ([]byte, error) {
	if len(bdk) != skdpcrypto.K {
		return nil, skdperrors.NewCryptoError("DeriveDeviceKey", skdperrors.ErrInvalidKey)
	}
	return skdpcrypto.Mac(bdk, []byte(constants.DomainDeviceKey), kid.Bytes(), skdpcrypto.K), nil
}

// IssueServer derives a BranchKeyRecord from a master record for the given
// branch identifier, stamping expiration.
func IssueServer(master MasterKeyRecord, bid []byte, expiration uint64) (BranchKeyRecord, error) {
	kid := NewKeyID(master.KID.MID(), bid, nil)
	bdk, err := DeriveBranchKey(master.MDK, kid)
	if err != nil {
		return BranchKeyRecord{}, err
	}
	return BranchKeyRecord{KID: kid, BDK: bdk, Expiration: expiration}, nil
}

// IssueDevice derives a DeviceKeyRecord from a branch record for the given
// device identifier, stamping expiration.
func IssueDevice(branch BranchKeyRecord, did []byte, expiration uint64) (DeviceKeyRecord, error) {
	kid := NewKeyID(branch.KID.MID(), branch.KID.BID(), did)
	ddk, err := DeriveDeviceKey(branch.BDK, kid)
	if err != nil {
		return DeviceKeyRecord{}, err
	}
	return DeviceKeyRecord{KID: kid, DDK: ddk, Expiration: expiration}, nil
}

// ReDeriveDevice lets a server holding only a BranchKeyRecord reconstruct
// a presented device's ddk on demand from the device's kid, without ever
// storing per-device secrets (spec §4.2 rationale).
func ReDeriveDevice(branch BranchKeyRecord, kid KeyID) (DeviceKeyRecord, error) {
	ddk, err := DeriveDeviceKey(branch.BDK, kid)
	if err != nil {
		return DeviceKeyRecord{}, err
	}
	return DeviceKeyRecord{KID: kid, DDK: ddk}, nil
}

// Zeroize overwrites a device record's secret key material.
func (d *DeviceKeyRecord) Zeroize() { skdpcrypto.Zeroize(d.DDK) }

// Zeroize overwrites a branch record's secret key material.
func (b *BranchKeyRecord) Zeroize() { skdpcrypto.Zeroize(b.BDK) }

// Zeroize overwrites a master record's secret key material.
func (m *MasterKeyRecord) Zeroize() { skdpcrypto.Zeroize(m.MDK) }

// EncodeRecord serializes a (kid, key, expiration) triple into the
// fixed-width persistent key file layout (spec §6):
// kid(16) || key(K) || expiration(8, LE).
func EncodeRecord(kid KeyID, key []byte, expiration uint64) ([]byte, error) {
	if len(key) != skdpcrypto.K {
		return nil, skdperrors.NewCryptoError("EncodeRecord", skdperrors.ErrInvalidKey)
	}
	out := make([]byte, constants.KeyFileRecordSize())
	copy(out[0:constants.KeyIDSize], kid.Bytes())
	copy(out[constants.KeyIDSize:constants.KeyIDSize+skdpcrypto.K], key)
	binary.LittleEndian.PutUint64(out[constants.KeyIDSize+skdpcrypto.K:], expiration)
	return out, nil
}

// DecodeRecord parses the fixed-width persistent key file layout back into
// a (kid, key, expiration) triple.
func DecodeRecord(b []byte) (kid KeyID, key []byte, expiration uint64, err error) {
	if len(b) != constants.KeyFileRecordSize() {
		return KeyID{}, nil, 0, skdperrors.NewCryptoError("DecodeRecord", skdperrors.ErrPacketInvalid)
	}
	copy(kid[:], b[0:constants.KeyIDSize])
	key = append([]byte(nil), b[constants.KeyIDSize:constants.KeyIDSize+skdpcrypto.K]...)
	expiration = binary.LittleEndian.Uint64(b[constants.KeyIDSize+skdpcrypto.K:])
	return kid, key, expiration, nil
}
