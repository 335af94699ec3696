package skdpcrypto

import (
	"sync"

	"golang.org/x/crypto/chacha20"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
)

// streamKeySize and streamNonceSize are the sizes golang.org/x/crypto/chacha20
// requires of the underlying XChaCha20 keystream generator, independent of
// K. The channel's own K-byte (k, n) state is mapped down to these via Xof
// (see deriveStream).
const (
	streamKeySize   = chacha20.KeySize    // 32
	streamNonceSize = chacha20.NonceSizeX // 24
)

// Channel is one direction of a duplex session's AEAD channel cipher
// (spec §4.4): a keyed stream cipher XORed with the plaintext, plus an
// independent KMAC tag over aad‖ciphertext, rekeying deterministically
// after RekeyByteThreshold bytes. Grounded on pkg/crypto/aead.go's role
// (nonce/byte-counter tracking, threshold-triggered rekey) but the
// underlying primitive is a hand-composed stream+MAC pair, not an
// off-the-shelf cipher.AEAD, per spec.md §4.4.
type Channel struct {
	mu          sync.Mutex
	k           []byte // current K-byte channel key
	n           []byte // current K-byte channel nonce/personalization
	byteCounter uint64 // bytes processed since last rekey
}

// NewChannel constructs a Channel bound to key k and nonce n, both K bytes.
// The caller retains ownership of k/n's backing arrays; NewChannel copies
// them so the channel can rekey independently of the caller's buffers.
func NewChannel(k, n []byte) (*Channel, error) {
	if len(k) != K || len(n) != K {
		return nil, skdperrors.NewCryptoError("NewChannel", skdperrors.ErrInvalidKey)
	}
	c := &Channel{
		k: append([]byte(nil), k...),
		n: append([]byte(nil), n...),
	}
	return c, nil
}

// deriveStream narrows the channel's K-byte (k, n) state down to the
// 32-byte key / 24-byte nonce XChaCha20 requires.
func deriveStream(k, n []byte) (streamKey, streamNonce []byte) {
	streamKey = Xof(k, []byte(constants.DomainChannelStreamKey), streamKeySize)
	streamNonce = Xof(n, []byte(constants.DomainChannelStreamNonce), streamNonceSize)
	return
}

// keystream produces n bytes of keystream starting at byte offset pos in
// the channel's current (k, n) stream, by seeking an XChaCha20 cipher to
// the containing block and discarding the leading partial block.
func keystream(k, n []byte, pos uint64, out []byte) error {
	streamKey, streamNonce := deriveStream(k, n)
	cipher, err := chacha20.NewUnauthenticatedCipher(streamKey, streamNonce)
	if err != nil {
		return skdperrors.NewCryptoError("keystream", skdperrors.ErrInvalidKey)
	}
	blockOffset := pos / 64
	intraBlock := pos % 64
	if blockOffset > 0xFFFFFFFF {
		return skdperrors.NewCryptoError("keystream", skdperrors.ErrChannelDown)
	}
	cipher.SetCounter(uint32(blockOffset))
	if intraBlock > 0 {
		discard := make([]byte, intraBlock)
		cipher.XORKeyStream(discard, discard)
	}
	cipher.XORKeyStream(out, out)
	return nil
}

// Seal encrypts plaintext under the channel's current key, authenticates
// aad‖ciphertext with a KMAC tag, and returns ciphertext‖tag. It rekeys
// after the call if the byte budget has been crossed.
func (c *Channel) Seal(plaintext, aad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	if err := keystream(c.k, c.n, c.byteCounter, out); err != nil {
		return nil, err
	}

	tagInput := make([]byte, 0, len(aad)+len(out))
	tagInput = append(tagInput, aad...)
	tagInput = append(tagInput, out...)
	tag := Mac(c.k, c.n, tagInput, K)

	c.advance(uint64(len(plaintext)))

	return append(out, tag...), nil
}

// Open verifies and decrypts ciphertextWithTag (ciphertext‖tag) under the
// channel's current key, using aad as associated data. Returns
// ErrAuthenticationFailure without emitting any plaintext if the tag does
// not match.
func (c *Channel) Open(ciphertextWithTag, aad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ciphertextWithTag) < K {
		return nil, skdperrors.NewCryptoError("Open", skdperrors.ErrPacketInvalid)
	}
	ciphertext := ciphertextWithTag[:len(ciphertextWithTag)-K]
	tag := ciphertextWithTag[len(ciphertextWithTag)-K:]

	tagInput := make([]byte, 0, len(aad)+len(ciphertext))
	tagInput = append(tagInput, aad...)
	tagInput = append(tagInput, ciphertext...)
	expected := Mac(c.k, c.n, tagInput, K)

	if !ConstantTimeCompare(tag, expected) {
		return nil, skdperrors.NewCryptoError("Open", skdperrors.ErrAuthenticationFailure)
	}

	plaintext := make([]byte, len(ciphertext))
	copy(plaintext, ciphertext)
	if err := keystream(c.k, c.n, c.byteCounter, plaintext); err != nil {
		return nil, err
	}

	c.advance(uint64(len(ciphertext)))

	return plaintext, nil
}

// advance accounts for n bytes processed and rekeys if the threshold was
// crossed, matching the teacher's NeedsRekey-on-threshold idiom but
// applied unconditionally and deterministically rather than as a
// caller-polled check (spec §4.4: both peers must rekey at the same
// boundary with no wire exchange).
func (c *Channel) advance(n uint64) {
	c.byteCounter += n
	if c.byteCounter >= constants.RekeyByteThreshold {
		c.rekeyLocked()
	}
}

// rekeyLocked replaces k with xof(k, n, K) and resets the stream position.
// Caller must hold c.mu.
func (c *Channel) rekeyLocked() {
	next := Xof(c.k, c.n, K)
	Zeroize(c.k)
	c.k = next
	c.byteCounter = 0
}

// Zeroize overwrites the channel's key and nonce state with zeros. Call
// on session close or fatal error.
func (c *Channel) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	Zeroize(c.k)
	Zeroize(c.n)
}

// StreamXOR XORs data with keystream derived from (key, nonce) starting at
// stream position 0. Used by the handshake to wrap stok‖vtok under the
// device-key-derived wrapping key (spec §4.5 step 2) — a one-shot use of
// the same stream construction the duplex channel uses continuously.
func StreamXOR(key, nonce, data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	if err := keystream(key, nonce, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}
