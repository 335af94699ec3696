// Package skdpcrypto implements the cSHAKE/KMAC key-derivation primitives
// and the AEAD channel cipher that the SKDP protocol builds on (spec
// §4.1, §4.4), plus the random/zeroize/constant-time helpers the rest of
// the protocol needs.
package skdpcrypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/skdp/skdp/internal/constants"
)

// K is the build-selected key/tag/nonce length in bytes (32 for SKDP_L1,
// 64 for SKDP_L5).
const K = constants.KeySize

// Xof is a cSHAKE-256-backed extendable-output function keyed by key and
// personalized by info, producing outLen bytes (spec §4.1: xof(key, info,
// out_len)). info must be one of the byte-exact domain separators in
// internal/constants.
func Xof(key, info []byte, outLen int) []byte {
	h := sha3.NewCShake256(nil, info)
	h.Write(key)
	out := make([]byte, outLen)
	if _, err := h.Read(out); err != nil {
		panic("skdpcrypto: cshake read failed: " + err.Error())
	}
	return out
}

// Mac is a KMAC-256-backed keyed MAC, customized by nonce, over data,
// producing tagLen bytes (spec §4.1: mac(key, nonce, data, tag_len)).
func Mac(key, nonce, data []byte, tagLen int) []byte {
	h := sha3.NewKMAC256(key, tagLen, nonce)
	h.Write(data)
	tag := make([]byte, tagLen)
	if _, err := h.Read(tag); err != nil {
		panic("skdpcrypto: kmac read failed: " + err.Error())
	}
	return tag
}
