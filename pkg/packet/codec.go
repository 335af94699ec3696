// Package packet implements the SKDP wire codec (spec §4.3/§6): a fixed
// 21-byte little-endian header followed by a variable payload. The codec
// is oblivious to cryptography; it only frames bytes, the same separation
// of concerns pkg/protocol draws in the teacher.
package packet

import (
	"encoding/binary"

	"github.com/skdp/skdp/internal/constants"
	skdperrors "github.com/skdp/skdp/internal/errors"
)

// Packet is a parsed SKDP wire packet: a header plus its payload.
type Packet struct {
	Flag    constants.Flag
	Seq     uint64
	UTC     uint64
	Payload []byte
}

// Serialize writes p's header followed by its payload, returning
// HeaderSize + len(Payload) bytes total.
func Serialize(p Packet) []byte {
	out := make([]byte, constants.HeaderSize+len(p.Payload))
	out[constants.HeaderFlagOffset] = byte(p.Flag)
	binary.LittleEndian.PutUint32(out[constants.HeaderLenOffset:], uint32(len(p.Payload)))
	binary.LittleEndian.PutUint64(out[constants.HeaderSeqOffset:], p.Seq)
	binary.LittleEndian.PutUint64(out[constants.HeaderUTCOffset:], p.UTC)
	copy(out[constants.HeaderSize:], p.Payload)
	return out
}

// Deserialize parses buf into a Packet. It validates msg_len against
// MaxPayloadSize and that buf is long enough to hold the declared payload
// before allocating or copying it, failing with ErrPacketInvalid /
// ErrPacketHeaderInvalid otherwise (spec §4.3).
func Deserialize(buf []byte) (Packet, error) {
	if len(buf) < constants.HeaderSize {
		return Packet{}, skdperrors.NewProtocolError("deserialize", skdperrors.ErrPacketHeaderInvalid)
	}
	msgLen := binary.LittleEndian.Uint32(buf[constants.HeaderLenOffset:])
	if msgLen > constants.MaxPayloadSize {
		return Packet{}, skdperrors.NewProtocolError("deserialize", skdperrors.ErrPacketInvalid)
	}
	if len(buf) < constants.HeaderSize+int(msgLen) {
		return Packet{}, skdperrors.NewProtocolError("deserialize", skdperrors.ErrPacketInvalid)
	}
	p := Packet{
		Flag: constants.Flag(buf[constants.HeaderFlagOffset]),
		Seq:  binary.LittleEndian.Uint64(buf[constants.HeaderSeqOffset:]),
		UTC:  binary.LittleEndian.Uint64(buf[constants.HeaderUTCOffset:]),
	}
	p.Payload = append([]byte(nil), buf[constants.HeaderSize:constants.HeaderSize+int(msgLen)]...)
	return p, nil
}

// HeaderForMac returns the 21-byte header of p, independent of payload
// contents, as the AAD fed to the channel cipher's MAC (spec §4.3).
func HeaderForMac(p Packet) []byte {
	out := make([]byte, constants.HeaderSize)
	out[constants.HeaderFlagOffset] = byte(p.Flag)
	binary.LittleEndian.PutUint32(out[constants.HeaderLenOffset:], uint32(len(p.Payload)))
	binary.LittleEndian.PutUint64(out[constants.HeaderSeqOffset:], p.Seq)
	binary.LittleEndian.PutUint64(out[constants.HeaderUTCOffset:], p.UTC)
	return out
}

// HeaderSize is re-exported for callers that need to size read buffers
// without importing internal/constants directly.
const HeaderSize = constants.HeaderSize
