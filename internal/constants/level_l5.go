//go:build skdp_l5

// Package constants: this file is compiled when the "skdp_l5" build tag IS
// specified, selecting SKDP_L5 (512-bit symmetric strength).
package constants

// KeySize is K, the chosen key/tag/nonce length in bytes for this build.
const KeySize = 64

// SecurityLevel names the build-time security level.
const SecurityLevel = "SKDP_L5"
