package packet

import (
	"encoding/binary"
	"io"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
)

// Read reads exactly one packet from r: the 21-byte header, then its
// declared payload. Grounded on pkg/protocol/codec.go's ReadMessage,
// restructured for the little-endian 21-byte header.
func Read(r io.Reader) (Packet, error) {
	header := make([]byte, constants.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Packet{}, skdperrors.NewProtocolError("read-header", skdperrors.ErrReceiveFailure)
	}
	msgLen := binary.LittleEndian.Uint32(header[constants.HeaderLenOffset:])
	if msgLen > constants.MaxPayloadSize {
		return Packet{}, skdperrors.NewProtocolError("read-header", skdperrors.ErrPacketInvalid)
	}
	payload := make([]byte, msgLen)
	if msgLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, skdperrors.NewProtocolError("read-payload", skdperrors.ErrReceiveFailure)
		}
	}
	return Packet{
		Flag:    constants.Flag(header[constants.HeaderFlagOffset]),
		Seq:     binary.LittleEndian.Uint64(header[constants.HeaderSeqOffset:]),
		UTC:     binary.LittleEndian.Uint64(header[constants.HeaderUTCOffset:]),
		Payload: payload,
	}, nil
}

// Write serializes p and writes it to w in a single call.
func Write(w io.Writer, p Packet) error {
	if _, err := w.Write(Serialize(p)); err != nil {
		return skdperrors.NewProtocolError("write", skdperrors.ErrChannelDown)
	}
	return nil
}
