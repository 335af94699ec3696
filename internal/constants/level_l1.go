//go:build !skdp_l5

// Package constants: this file is compiled when the "skdp_l5" build tag is
// NOT specified, selecting SKDP_L1 (256-bit symmetric strength).
package constants

// KeySize is K, the chosen key/tag/nonce length in bytes for this build.
const KeySize = 32

// SecurityLevel names the build-time security level.
const SecurityLevel = "SKDP_L1"
