// Package constants defines security parameters and protocol constants for
// the SKDP key distribution and secure messaging protocol.
//
// Security level (L1 or L5) is fixed at build time via the "skdp_l5" build
// tag; see level_l1.go and level_l5.go.
package constants

import "time"

// Protocol identification.
const (
	// ProtocolVersion is the current version of the SKDP wire protocol.
	ProtocolVersion uint16 = 0x0001

	// ProtocolName is used for domain separation in key derivation.
	ProtocolName = "SKDP-v1"
)

// Identifier field sizes. kid = mid || bid || did.
const (
	MasterIDSize = 4
	BranchIDSize = 4
	DeviceIDSize = 8
	KeyIDSize    = MasterIDSize + BranchIDSize + DeviceIDSize
)

// Packet header layout (spec §4.3/§6): flag(1) || msg_len(4,LE) || seq(8,LE) || utc(8,LE).
const (
	HeaderFlagOffset   = 0
	HeaderFlagSize     = 1
	HeaderLenOffset    = HeaderFlagOffset + HeaderFlagSize
	HeaderLenSize      = 4
	HeaderSeqOffset    = HeaderLenOffset + HeaderLenSize
	HeaderSeqSize      = 8
	HeaderUTCOffset    = HeaderSeqOffset + HeaderSeqSize
	HeaderUTCSize      = 8
	HeaderSize         = HeaderUTCOffset + HeaderUTCSize // 21 bytes
	MaxPayloadSize     = 1 << 20                          // 1 MiB, generous over MaxMessageSize
	MaxMessageSize     = 65536
)

// Key-derivation domain separators. Byte-exact, prefix-free ASCII tags
// passed as the info/nonce argument to Xof/Mac. None is a prefix of
// another: each ends in a distinct non-hyphen discriminator.
const (
	DomainBranchKey     = "skdp-v1-branch-key"
	DomainDeviceKey      = "skdp-v1-device-key"
	DomainWrapKey        = "skdp-v1-wrap-key"
	DomainSessionTxKey   = "skdp-v1-sess-tx-key"
	DomainSessionRxKey   = "skdp-v1-sess-rx-key"
	DomainSessionTxNonce = "skdp-v1-sess-tx-nonce"
	DomainSessionRxNonce = "skdp-v1-sess-rx-nonce"
	DomainEstablishProof = "skdp-v1-establish-proof"
	DomainConfirmProof   = "skdp-v1-confirm-proof"
	DomainRekey          = "skdp-v1-rekey"

	// Internal to the channel cipher construction: derive a stream-cipher
	// key/nonce pair of the sizes the underlying XChaCha20 primitive
	// requires from the K-byte (k, n) channel state.
	DomainChannelStreamKey   = "skdp-v1-channel-stream-key"
	DomainChannelStreamNonce = "skdp-v1-channel-stream-nonce"
)

// Session and handshake timing parameters.
const (
	// RekeyByteThreshold is the per-direction byte budget before the
	// channel cipher deterministically rekeys (spec §4.4). Chosen small
	// enough that a rekey boundary is reachable without streaming a
	// gigabyte of test traffic; see DESIGN.md Open Question decisions.
	RekeyByteThreshold = 1 << 24 // 16 MiB

	// HandshakePhaseTimeout bounds how long a single handshake phase may
	// remain pending; when it elapses the pending read or write fails and
	// the handshake ends with a connect (client) or connection (server)
	// failure.
	HandshakePhaseTimeout = 5 * time.Second

	// ClockSkewTolerance bounds how far a packet's utc field may drift
	// from the local wall clock before it is rejected as stale.
	ClockSkewTolerance = 30 * time.Second

	// DefaultSessionDuration is the session expiration horizon the
	// responder uses when the branch key record carries no expiration.
	DefaultSessionDuration = 1 * time.Hour
)

// Flag identifies a packet's role on the wire (spec §6). Values are a
// contiguous enumeration in the declaration order spec.md lists; a
// conforming build must keep these stable, but the numeric values
// themselves are implementation-defined (spec.md §9).
type Flag uint8

const (
	FlagNone Flag = iota
	FlagConnectRequest
	FlagConnectResponse
	FlagExchangeRequest
	FlagExchangeResponse
	FlagEstablishRequest
	FlagEstablishResponse
	FlagEncryptedMessage
	FlagErrorCondition
	FlagKeepAliveRequest
	FlagKeepAliveResponse
	FlagSessionEstablishVerify
)

// String returns a human-readable flag name.
func (f Flag) String() string {
	switch f {
	case FlagNone:
		return "None"
	case FlagConnectRequest:
		return "ConnectRequest"
	case FlagConnectResponse:
		return "ConnectResponse"
	case FlagExchangeRequest:
		return "ExchangeRequest"
	case FlagExchangeResponse:
		return "ExchangeResponse"
	case FlagEstablishRequest:
		return "EstablishRequest"
	case FlagEstablishResponse:
		return "EstablishResponse"
	case FlagEncryptedMessage:
		return "EncryptedMessage"
	case FlagErrorCondition:
		return "ErrorCondition"
	case FlagKeepAliveRequest:
		return "KeepAliveRequest"
	case FlagKeepAliveResponse:
		return "KeepAliveResponse"
	case FlagSessionEstablishVerify:
		return "SessionEstablishVerify"
	default:
		return "Unknown"
	}
}

// ErrorCode is the single-byte payload of an ErrorCondition packet
// (spec §6/§7).
type ErrorCode uint8

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeAuthenticationFailure
	ErrCodeBadKeepAlive
	ErrCodeChannelDown
	ErrCodeConnectionFailure
	ErrCodeConnectFailure
	ErrCodeDisconnected
	ErrCodeExpiration
	ErrCodeHashInvalid
	ErrCodeInvalidInput
	ErrCodeInvalidKey
	ErrCodeInvalidRequest
	ErrCodePacketHeaderInvalid
	ErrCodePacketInvalid
	ErrCodePacketUnsequenced
	ErrCodeReceiveFailure
	ErrCodeRandomFailure
	ErrCodeUnknownProtocol
	ErrCodeUnexpectedPacket
)

// String returns a human-readable error code name.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeNone:
		return "None"
	case ErrCodeAuthenticationFailure:
		return "AuthenticationFailure"
	case ErrCodeBadKeepAlive:
		return "BadKeepAlive"
	case ErrCodeChannelDown:
		return "ChannelDown"
	case ErrCodeConnectionFailure:
		return "ConnectionFailure"
	case ErrCodeConnectFailure:
		return "ConnectFailure"
	case ErrCodeDisconnected:
		return "Disconnected"
	case ErrCodeExpiration:
		return "Expiration"
	case ErrCodeHashInvalid:
		return "HashInvalid"
	case ErrCodeInvalidInput:
		return "InvalidInput"
	case ErrCodeInvalidKey:
		return "InvalidKey"
	case ErrCodeInvalidRequest:
		return "InvalidRequest"
	case ErrCodePacketHeaderInvalid:
		return "PacketHeaderInvalid"
	case ErrCodePacketInvalid:
		return "PacketInvalid"
	case ErrCodePacketUnsequenced:
		return "PacketUnsequenced"
	case ErrCodeReceiveFailure:
		return "ReceiveFailure"
	case ErrCodeRandomFailure:
		return "RandomFailure"
	case ErrCodeUnknownProtocol:
		return "UnknownProtocol"
	case ErrCodeUnexpectedPacket:
		return "UnexpectedPacket"
	default:
		return "Unknown"
	}
}

// SessionMode describes the directionality a session was established with.
type SessionMode uint8

const (
	ModeNone SessionMode = iota
	ModeSimplexClient
	ModeSimplexServer
	ModeDuplexClient
	ModeDuplexServer
)

// String returns a human-readable session mode name.
func (m SessionMode) String() string {
	switch m {
	case ModeSimplexClient:
		return "SimplexClient"
	case ModeSimplexServer:
		return "SimplexServer"
	case ModeDuplexClient:
		return "DuplexClient"
	case ModeDuplexServer:
		return "DuplexServer"
	default:
		return "None"
	}
}

// KeyFileRecordSize is the fixed-width on-disk size of a stored key record:
// kid (KeyIDSize) || key (KeySize) || expiration (8, LE).
func KeyFileRecordSize() int {
	return KeyIDSize + KeySize + 8
}
