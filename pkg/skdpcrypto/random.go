package skdpcrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	skdperrors "github.com/skdp/skdp/internal/errors"
)

// SecureRandom reads cryptographically secure random bytes into b, sourced
// from the OS CSPRNG via crypto/rand. An error here is a critical system
// failure (spec §7: ErrRandomFailure).
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return skdperrors.NewCryptoError("SecureRandom", skdperrors.ErrRandomFailure)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandomBytes returns n cryptographically secure random bytes,
// panicking on CSPRNG failure. Used only for the server's per-handshake
// stok/vtok generation, where failure is unrecoverable anyway.
func MustSecureRandomBytes(n int) []byte {
	b, err := SecureRandomBytes(n)
	if err != nil {
		panic("skdpcrypto: CSPRNG failure: " + err.Error())
	}
	return b
}

// ConstantTimeCompare reports whether a and b are equal, in time
// independent of where they first differ (spec §3 invariant 5, §8
// testable property 6). Delegates to crypto/subtle, the standard
// library's constant-time primitive — no pack repo imports a third-party
// constant-time-compare library, so this one function stays on stdlib
// (see DESIGN.md).
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites b with zeros. The Go runtime may have already copied
// the data elsewhere and the compiler may in principle optimize this away;
// it is best-effort hygiene, not a hard guarantee.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple zeroizes each slice in slices.
func ZeroizeMultiple(slices ...[]byte) {
	for _, s := range slices {
		Zeroize(s)
	}
}
