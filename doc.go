// Package skdp implements the Symmetric Key Distribution Protocol (SKDP), a
// quantum-resistant key establishment and secure-messaging protocol built on
// a three-level pre-shared symmetric key hierarchy (master, branch, device)
// rather than public-key cryptography.
//
// # Quick Start
//
// For a complete device connection with handshake:
//
//	import "github.com/skdp/skdp/pkg/skdp"
//
//	// Server (branch)
//	listener, _ := skdp.Listen("tcp", ":8443", branchStore)
//	conn, _ := listener.Accept()
//	data, _ := conn.Receive()
//
//	// Client (device)
//	conn, _ := skdp.Dial("tcp", "localhost:8443", deviceKeyRecord)
//	conn.Send([]byte("hello"))
//
// For the symmetric key hierarchy underlying every connection:
//
//	import "github.com/skdp/skdp/pkg/keyhierarchy"
//
//	branch, _ := keyhierarchy.IssueServer(master, branchID, expiration)
//	device, _ := keyhierarchy.IssueDevice(branch, deviceID, expiration)
//
// # Package Structure
//
//   - pkg/keyhierarchy: master/branch/device key derivation (spec §2)
//   - pkg/skdpcrypto: Xof/Mac KDF primitives and the duplex AEAD channel cipher (spec §4.3-§4.4)
//   - pkg/packet: wire packet header encoding/decoding (spec §5)
//   - pkg/handshake: the five-phase Connect/Exchange/Establish handshake (spec §4)
//   - pkg/session: the post-handshake duplex send/receive session (spec §4.6)
//   - pkg/skdp: connection-level Dial/Listen API, rate limiting, and connection pooling
//   - pkg/hybridkem: X25519 + ML-KEM-1024 hybrid KEM, kept for reference but not used by SKDP
//   - internal/constants: protocol constants and security parameters
//   - internal/errors: the SKDP error taxonomy (spec §7)
//
// # Security Properties
//
//   - Quantum resistance: security rests on symmetric-key primitives (cSHAKE/KMAC,
//     ChaCha20), never on a number-theoretic hard problem
//   - Key separation: branch and device keys are one-way derivations of their
//     parent; compromise of a device key does not expose the branch or master key
//   - Mutual authentication: both handshake proofs are keyed by secrets only the
//     legitimate peer can derive
//   - Strict anti-replay: each direction enforces an exact sequence match, not a
//     sliding window
//   - Deterministic rekey: the channel cipher rekeys itself at a fixed byte
//     threshold with no additional handshake round trip
//
// For more information, see: https://github.com/skdp/skdp
package skdp
