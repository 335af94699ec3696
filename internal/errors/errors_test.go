package errors

import (
	stderrors "errors"
	"testing"

	"github.com/skdp/skdp/internal/constants"
)

func TestToCodeRoundTripsThroughFromCode(t *testing.T) {
	for code := range codeToErr {
		err := FromCode(code)
		if got := ToCode(err); got != code {
			t.Fatalf("ToCode(FromCode(%v)) = %v, want %v", code, got, code)
		}
	}
}

func TestToCodeUnknownForUnrelatedError(t *testing.T) {
	if got := ToCode(stderrors.New("not in taxonomy")); got != constants.ErrCodeUnknownProtocol {
		t.Fatalf("ToCode(unrelated) = %v, want ErrCodeUnknownProtocol", got)
	}
}

func TestToCodeNoneForNil(t *testing.T) {
	if got := ToCode(nil); got != constants.ErrCodeNone {
		t.Fatalf("ToCode(nil) = %v, want ErrCodeNone", got)
	}
}

func TestCryptoErrorUnwrap(t *testing.T) {
	base := ErrInvalidKey
	wrapped := NewCryptoError("derive-branch-key", base)
	if !stderrors.Is(wrapped, base) {
		t.Fatalf("errors.Is did not see through CryptoError wrapping")
	}
}

func TestProtocolErrorUnwrap(t *testing.T) {
	base := ErrUnexpectedPacket
	wrapped := NewProtocolError("establish", base)
	if !stderrors.Is(wrapped, base) {
		t.Fatalf("errors.Is did not see through ProtocolError wrapping")
	}
}

func TestErrorsThroughWrappingMatchToCode(t *testing.T) {
	wrapped := NewProtocolError("exchange", ErrAuthenticationFailure)
	if got := ToCode(wrapped); got != constants.ErrCodeAuthenticationFailure {
		t.Fatalf("ToCode(wrapped) = %v, want ErrCodeAuthenticationFailure", got)
	}
}
