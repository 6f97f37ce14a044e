// Package wire implements the framed, magic-tagged wire protocol spoken
// on both the data and meta sockets: spec.md 4.1 (frame codec) and 6
// (external interfaces). Three header shapes are supported, selected
// either by the negotiated protocol version or, during the handshake
// before a version is agreed, auto-detected from the magic at offset 0.
//
// Grounded on the teacher's small-package-per-concern layout
// (pkg/mcast/types for wire-shaped data, pkg/mcast/core for behavior);
// the codec itself has no direct teacher analogue since the teacher
// speaks JSON over a group-multicast transport (core/transport.go's
// json.Marshal/Unmarshal of types.Message) rather than a raw byte-stream
// framing. All multi-byte fields are big-endian per spec.md 6.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
)

// HeaderVariant identifies one of the three historical header shapes.
type HeaderVariant int

const (
	HeaderV80 HeaderVariant = iota
	HeaderV95
	HeaderV100
)

const (
	magicV80  uint32 = 0x83740267
	magicV95  uint16 = 0x5BE4
	magicV100 uint32 = 0xD0E9A33B
)

// HeaderSize returns the on-wire size, in bytes, of the given variant's
// header (magic included, payload excluded).
func HeaderSize(v HeaderVariant) int {
	switch v {
	case HeaderV80:
		return 8 // magic(4) + command(2) + length(2)
	case HeaderV95:
		return 8 // magic(2) + command(2) + length(4)
	case HeaderV100:
		return 14 // magic(4) + command(2) + length(4) + volume(2) + pad(2)
	default:
		return 0
	}
}

// PacketInfo is the decoded form of a frame header plus its payload.
// Volume is -1 when the header variant carries no volume index.
type PacketInfo struct {
	Command Command
	Size    uint32
	Volume  int16
	Payload []byte
}

// DetectVariant inspects the magic at the start of buf (which must be at
// least 4 bytes) and returns which header shape produced it. Used only
// during the handshake, before a protocol version pins the variant.
func DetectVariant(buf []byte) (HeaderVariant, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("%w: need at least 4 bytes to detect magic, got %d", drbderr.ErrMalformedFrame, len(buf))
	}
	if binary.BigEndian.Uint32(buf[0:4]) == magicV100 {
		return HeaderV100, nil
	}
	if binary.BigEndian.Uint32(buf[0:4]) == magicV80 {
		return HeaderV80, nil
	}
	if binary.BigEndian.Uint16(buf[0:2]) == magicV95 {
		return HeaderV95, nil
	}
	return 0, fmt.Errorf("%w: unrecognized magic % x", drbderr.ErrMalformedFrame, buf[0:4])
}

// VariantForVersion returns the header shape a negotiated protocol
// version uses on the wire. Versions below 95 use the oldest, smallest
// header; 95 up to (but not including) 100 use the "big magic" 32-bit
// length header; 100 and above carry an explicit volume index.
func VariantForVersion(version int) HeaderVariant {
	switch {
	case version >= 100:
		return HeaderV100
	case version >= 95:
		return HeaderV95
	default:
		return HeaderV80
	}
}

// EncodeHeader serializes pi's header (not its payload) for the given
// variant. Callers write the returned bytes followed by pi.Payload.
func EncodeHeader(v HeaderVariant, pi PacketInfo) ([]byte, error) {
	buf := make([]byte, HeaderSize(v))
	switch v {
	case HeaderV80:
		binary.BigEndian.PutUint32(buf[0:4], magicV80)
		binary.BigEndian.PutUint16(buf[4:6], uint16(pi.Command))
		binary.BigEndian.PutUint16(buf[6:8], uint16(pi.Size))
	case HeaderV95:
		binary.BigEndian.PutUint16(buf[0:2], magicV95)
		binary.BigEndian.PutUint16(buf[2:4], uint16(pi.Command))
		binary.BigEndian.PutUint32(buf[4:8], pi.Size)
	case HeaderV100:
		binary.BigEndian.PutUint32(buf[0:4], magicV100)
		binary.BigEndian.PutUint16(buf[4:6], uint16(pi.Command))
		binary.BigEndian.PutUint32(buf[6:10], pi.Size)
		binary.BigEndian.PutUint16(buf[10:12], uint16(pi.Volume))
		binary.BigEndian.PutUint16(buf[12:14], 0)
	default:
		return nil, fmt.Errorf("unknown header variant %d", v)
	}
	return buf, nil
}

// DecodeHeader parses a header-sized buffer for the given variant,
// validating magic and (for v100) the reserved pad field. Payload is
// left nil; the caller reads pi.Size bytes separately and assigns them.
func DecodeHeader(v HeaderVariant, buf []byte) (PacketInfo, error) {
	if len(buf) < HeaderSize(v) {
		return PacketInfo{}, fmt.Errorf("%w: short header, need %d bytes got %d", drbderr.ErrMalformedFrame, HeaderSize(v), len(buf))
	}
	pi := PacketInfo{Volume: -1}
	switch v {
	case HeaderV80:
		if got := binary.BigEndian.Uint32(buf[0:4]); got != magicV80 {
			return PacketInfo{}, fmt.Errorf("%w: v80 magic mismatch, got %#x", drbderr.ErrMalformedFrame, got)
		}
		pi.Command = Command(binary.BigEndian.Uint16(buf[4:6]))
		pi.Size = uint32(binary.BigEndian.Uint16(buf[6:8]))
	case HeaderV95:
		if got := binary.BigEndian.Uint16(buf[0:2]); got != magicV95 {
			return PacketInfo{}, fmt.Errorf("%w: v95 magic mismatch, got %#x", drbderr.ErrMalformedFrame, got)
		}
		pi.Command = Command(binary.BigEndian.Uint16(buf[2:4]))
		pi.Size = binary.BigEndian.Uint32(buf[4:8])
	case HeaderV100:
		if got := binary.BigEndian.Uint32(buf[0:4]); got != magicV100 {
			return PacketInfo{}, fmt.Errorf("%w: v100 magic mismatch, got %#x", drbderr.ErrMalformedFrame, got)
		}
		pi.Command = Command(binary.BigEndian.Uint16(buf[4:6]))
		pi.Size = binary.BigEndian.Uint32(buf[6:10])
		pi.Volume = int16(binary.BigEndian.Uint16(buf[10:12]))
		if pad := binary.BigEndian.Uint16(buf[12:14]); pad != 0 {
			return PacketInfo{}, fmt.Errorf("%w: v100 pad must be zero, got %#x", drbderr.ErrMalformedFrame, pad)
		}
	default:
		return PacketInfo{}, fmt.Errorf("unknown header variant %d", v)
	}
	return pi, nil
}
