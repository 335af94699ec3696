// Package errors defines the SKDP error taxonomy (spec §7): one sentinel
// per wire-visible error code, plus small wrapper types that attach an
// operation or protocol phase to an underlying error without leaking key
// material in the message text.
package errors

import (
	"errors"
	"fmt"

	"github.com/skdp/skdp/internal/constants"
)

// Protocol errors: peer misbehaved or the stream was corrupted.
var (
	ErrPacketInvalid       = errors.New("skdp: packet invalid")
	ErrPacketHeaderInvalid = errors.New("skdp: packet header invalid")
	ErrPacketUnsequenced   = errors.New("skdp: packet unsequenced")
	ErrUnexpectedPacket    = errors.New("skdp: unexpected packet for current state")
	ErrUnknownProtocol     = errors.New("skdp: unknown protocol")
)

// Cryptographic errors.
var (
	ErrAuthenticationFailure = errors.New("skdp: authentication failure")
	ErrHashInvalid           = errors.New("skdp: hash invalid")
	ErrInvalidKey            = errors.New("skdp: invalid key")
)

// Lifecycle errors.
var (
	ErrExpiration       = errors.New("skdp: expired")
	ErrDisconnected     = errors.New("skdp: disconnected")
	ErrChannelDown      = errors.New("skdp: channel down")
	ErrConnectionFailure = errors.New("skdp: connection failure")
	ErrConnectFailure   = errors.New("skdp: connect failure")
)

// Input errors: local misuse, never sent to a peer.
var (
	ErrInvalidInput   = errors.New("skdp: invalid input")
	ErrInvalidRequest = errors.New("skdp: invalid request")
)

// Resource errors.
var (
	ErrRandomFailure  = errors.New("skdp: random source failure")
	ErrReceiveFailure = errors.New("skdp: receive failure")
)

// Liveness errors.
var (
	ErrBadKeepAlive = errors.New("skdp: bad keep-alive")
)

// Pool errors, carried over from the ambient connection-pooling layer.
var (
	ErrPoolClosed    = errors.New("pool: pool is closed")
	ErrPoolTimeout   = errors.New("pool: acquire timed out")
	ErrPoolExhausted = errors.New("pool: no connections available")
)

// codeToErr maps each wire ErrorCode to its sentinel, the single source of
// truth for FromCode. Keep in sync with ToCode.
var codeToErr = map[constants.ErrorCode]error{
	constants.ErrCodeAuthenticationFailure: ErrAuthenticationFailure,
	constants.ErrCodeBadKeepAlive:          ErrBadKeepAlive,
	constants.ErrCodeChannelDown:           ErrChannelDown,
	constants.ErrCodeConnectionFailure:     ErrConnectionFailure,
	constants.ErrCodeConnectFailure:        ErrConnectFailure,
	constants.ErrCodeDisconnected:          ErrDisconnected,
	constants.ErrCodeExpiration:            ErrExpiration,
	constants.ErrCodeHashInvalid:           ErrHashInvalid,
	constants.ErrCodeInvalidInput:          ErrInvalidInput,
	constants.ErrCodeInvalidKey:            ErrInvalidKey,
	constants.ErrCodeInvalidRequest:        ErrInvalidRequest,
	constants.ErrCodePacketHeaderInvalid:   ErrPacketHeaderInvalid,
	constants.ErrCodePacketInvalid:         ErrPacketInvalid,
	constants.ErrCodePacketUnsequenced:     ErrPacketUnsequenced,
	constants.ErrCodeReceiveFailure:        ErrReceiveFailure,
	constants.ErrCodeRandomFailure:         ErrRandomFailure,
	constants.ErrCodeUnknownProtocol:       ErrUnknownProtocol,
	constants.ErrCodeUnexpectedPacket:      ErrUnexpectedPacket,
}

// FromCode returns the sentinel error associated with a wire ErrorCode, or
// ErrUnknownProtocol if the code is not recognized.
func FromCode(code constants.ErrorCode) error {
	if err, ok := codeToErr[code]; ok {
		return err
	}
	return ErrUnknownProtocol
}

// ToCode maps an error (matched via errors.Is against the chain) to its
// wire ErrorCode. Returns ErrCodeNone if err is nil, ErrCodeUnknownProtocol
// if no taxonomy entry matches.
func ToCode(err error) constants.ErrorCode {
	if err == nil {
		return constants.ErrCodeNone
	}
	for code, sentinel := range codeToErr {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return constants.ErrCodeUnknownProtocol
}

// CryptoError wraps a cryptographic error with an operation tag.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("skdp crypto %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a protocol error with the handshake/session phase it
// occurred in.
type ProtocolError struct {
	Phase string
	Err   error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("skdp protocol %s: %v", e.Phase, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }
