package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
)

// This file defines the small fixed-shape headers that ride inside a
// frame's payload for each command this core handles (spec.md 6's
// command set). A command that also carries variable-length data (a
// write's bytes, a bitmap run, ...) encodes its header first; the
// remaining bytes of PacketInfo.Payload are that variable data.

// BlockID is the opaque cookie spec.md 9 replaces the original
// pointer-as-id scheme with: a (generation, slot) pair minted by
// core.CookieTable and echoed back verbatim by the peer in acks.
type BlockID uint64

// DataHeader is P_DATA / P_DATA_REPLY / P_RS_DATA_REPLY's fixed prefix.
type DataHeader struct {
	Sector  uint64
	BlockID BlockID
	SeqNum  uint32 // peer_seq, spec.md 4.7
	Flags   uint32
	Digest  []byte // present iff integrity is enabled; length is algorithm-specific
}

const dataHeaderFixedSize = 8 + 8 + 4 + 4 + 2 // + u16 digest length prefix

func (h DataHeader) Marshal() []byte {
	buf := make([]byte, dataHeaderFixedSize+len(h.Digest))
	binary.BigEndian.PutUint64(buf[0:8], h.Sector)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.BlockID))
	binary.BigEndian.PutUint32(buf[16:20], h.SeqNum)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint16(buf[24:26], uint16(len(h.Digest)))
	copy(buf[26:], h.Digest)
	return buf
}

func UnmarshalDataHeader(buf []byte) (DataHeader, []byte, error) {
	if len(buf) < dataHeaderFixedSize {
		return DataHeader{}, nil, fmt.Errorf("%w: short P_DATA header", drbderr.ErrMalformedFrame)
	}
	h := DataHeader{
		Sector:  binary.BigEndian.Uint64(buf[0:8]),
		BlockID: BlockID(binary.BigEndian.Uint64(buf[8:16])),
		SeqNum:  binary.BigEndian.Uint32(buf[16:20]),
		Flags:   binary.BigEndian.Uint32(buf[20:24]),
	}
	digestLen := int(binary.BigEndian.Uint16(buf[24:26]))
	rest := buf[26:]
	if len(rest) < digestLen {
		return DataHeader{}, nil, fmt.Errorf("%w: short P_DATA digest", drbderr.ErrMalformedFrame)
	}
	h.Digest = rest[:digestLen]
	return h, rest[digestLen:], nil
}

// DataHeader flag bits.
const (
	DPFUA uint32 = 1 << iota
	DPFlush
	DPDiscard
	DPSendReceiveAck // ack class B: send RecvAck immediately
)

// BarrierHeader is P_BARRIER's payload.
type BarrierHeader struct {
	BarrierNr uint32
}

func (h BarrierHeader) Marshal() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, h.BarrierNr)
	return buf
}

func UnmarshalBarrierHeader(buf []byte) (BarrierHeader, error) {
	if len(buf) < 4 {
		return BarrierHeader{}, fmt.Errorf("%w: short P_BARRIER header", drbderr.ErrMalformedFrame)
	}
	return BarrierHeader{BarrierNr: binary.BigEndian.Uint32(buf[0:4])}, nil
}

// BarrierAckHeader is P_BARRIER_ACK's payload.
type BarrierAckHeader struct {
	BarrierNr uint32
	SetSize   uint32
}

func (h BarrierAckHeader) Marshal() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], h.BarrierNr)
	binary.BigEndian.PutUint32(buf[4:8], h.SetSize)
	return buf
}

func UnmarshalBarrierAckHeader(buf []byte) (BarrierAckHeader, error) {
	if len(buf) < 8 {
		return BarrierAckHeader{}, fmt.Errorf("%w: short P_BARRIER_ACK header", drbderr.ErrMalformedFrame)
	}
	return BarrierAckHeader{
		BarrierNr: binary.BigEndian.Uint32(buf[0:4]),
		SetSize:   binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// BlockAckHeader covers P_RECV_ACK / P_WRITE_ACK / P_RS_WRITE_ACK /
// P_SUPERSEDED / P_NEG_ACK / P_NEG_DREPLY / P_NEG_RS_DREPLY /
// P_RETRY_WRITE / P_RS_IS_IN_SYNC, which all share the same shape.
type BlockAckHeader struct {
	Sector  uint64
	Size    uint32
	BlockID BlockID
	SeqNum  uint32
}

func (h BlockAckHeader) Marshal() []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], h.Sector)
	binary.BigEndian.PutUint32(buf[8:12], h.Size)
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.BlockID))
	binary.BigEndian.PutUint32(buf[20:24], h.SeqNum)
	return buf
}

func UnmarshalBlockAckHeader(buf []byte) (BlockAckHeader, error) {
	if len(buf) < 24 {
		return BlockAckHeader{}, fmt.Errorf("%w: short block-ack header", drbderr.ErrMalformedFrame)
	}
	return BlockAckHeader{
		Sector:  binary.BigEndian.Uint64(buf[0:8]),
		Size:    binary.BigEndian.Uint32(buf[8:12]),
		BlockID: BlockID(binary.BigEndian.Uint64(buf[12:20])),
		SeqNum:  binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// DataRequestHeader is P_DATA_REQUEST / P_RS_DATA_REQUEST /
// P_CSUM_RS_REQUEST / P_OV_REQUEST's payload.
type DataRequestHeader struct {
	Sector  uint64
	Size    uint32
	BlockID BlockID
	Digest  []byte // present for checksum-resync requests
}

func (h DataRequestHeader) Marshal() []byte {
	buf := make([]byte, 8+4+8+2+len(h.Digest))
	binary.BigEndian.PutUint64(buf[0:8], h.Sector)
	binary.BigEndian.PutUint32(buf[8:12], h.Size)
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.BlockID))
	binary.BigEndian.PutUint16(buf[20:22], uint16(len(h.Digest)))
	copy(buf[22:], h.Digest)
	return buf
}

func UnmarshalDataRequestHeader(buf []byte) (DataRequestHeader, error) {
	if len(buf) < 22 {
		return DataRequestHeader{}, fmt.Errorf("%w: short data-request header", drbderr.ErrMalformedFrame)
	}
	h := DataRequestHeader{
		Sector:  binary.BigEndian.Uint64(buf[0:8]),
		Size:    binary.BigEndian.Uint32(buf[8:12]),
		BlockID: BlockID(binary.BigEndian.Uint64(buf[12:20])),
	}
	digestLen := int(binary.BigEndian.Uint16(buf[20:22]))
	if len(buf[22:]) < digestLen {
		return DataRequestHeader{}, fmt.Errorf("%w: short data-request digest", drbderr.ErrMalformedFrame)
	}
	h.Digest = buf[22 : 22+digestLen]
	return h, nil
}

// OVResultHeader is P_OV_RESULT's payload (verify compare outcome).
type OVResultHeader struct {
	Sector    uint64
	Size      uint32
	InSync    bool
}

func (h OVResultHeader) Marshal() []byte {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint64(buf[0:8], h.Sector)
	binary.BigEndian.PutUint32(buf[8:12], h.Size)
	if h.InSync {
		buf[12] = 1
	}
	return buf
}

func UnmarshalOVResultHeader(buf []byte) (OVResultHeader, error) {
	if len(buf) < 13 {
		return OVResultHeader{}, fmt.Errorf("%w: short P_OV_RESULT header", drbderr.ErrMalformedFrame)
	}
	return OVResultHeader{
		Sector: binary.BigEndian.Uint64(buf[0:8]),
		Size:   binary.BigEndian.Uint32(buf[8:12]),
		InSync: buf[12] != 0,
	}, nil
}

// PeerAckHeader is P_PEER_ACK's payload (spec.md 4.8): a dagtag plus a
// per-peer in-sync bitmask.
type PeerAckHeader struct {
	DagtagSector uint64
	InSyncMask   uint64
}

func (h PeerAckHeader) Marshal() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], h.DagtagSector)
	binary.BigEndian.PutUint64(buf[8:16], h.InSyncMask)
	return buf
}

func UnmarshalPeerAckHeader(buf []byte) (PeerAckHeader, error) {
	if len(buf) < 16 {
		return PeerAckHeader{}, fmt.Errorf("%w: short P_PEER_ACK header", drbderr.ErrMalformedFrame)
	}
	return PeerAckHeader{
		DagtagSector: binary.BigEndian.Uint64(buf[0:8]),
		InSyncMask:   binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// TwoPCHeader is P_TWOPC_PREPARE / P_TWOPC_ABORT / P_TWOPC_COMMIT's
// payload (spec.md 4.10).
type TwoPCHeader struct {
	TID             uint32
	InitiatorNodeID uint32
	TargetNodeID    uint32
	ReachableNodes  uint64
	PrimaryNodes    uint64
	WeakNodes       uint64
	IsDisconnect    bool
}

func (h TwoPCHeader) Marshal() []byte {
	buf := make([]byte, 37)
	binary.BigEndian.PutUint32(buf[0:4], h.TID)
	binary.BigEndian.PutUint32(buf[4:8], h.InitiatorNodeID)
	binary.BigEndian.PutUint32(buf[8:12], h.TargetNodeID)
	binary.BigEndian.PutUint64(buf[12:20], h.ReachableNodes)
	binary.BigEndian.PutUint64(buf[20:28], h.PrimaryNodes)
	binary.BigEndian.PutUint64(buf[28:36], h.WeakNodes)
	if h.IsDisconnect {
		buf[36] = 1
	}
	return buf
}

func UnmarshalTwoPCHeader(buf []byte) (TwoPCHeader, error) {
	if len(buf) < 37 {
		return TwoPCHeader{}, fmt.Errorf("%w: short two-PC header", drbderr.ErrMalformedFrame)
	}
	return TwoPCHeader{
		TID:             binary.BigEndian.Uint32(buf[0:4]),
		InitiatorNodeID: binary.BigEndian.Uint32(buf[4:8]),
		TargetNodeID:    binary.BigEndian.Uint32(buf[8:12]),
		ReachableNodes:  binary.BigEndian.Uint64(buf[12:20]),
		PrimaryNodes:    binary.BigEndian.Uint64(buf[20:28]),
		WeakNodes:       binary.BigEndian.Uint64(buf[28:36]),
		IsDisconnect:    buf[36] != 0,
	}, nil
}

// TwoPCReplyHeader is P_TWOPC_YES / P_TWOPC_NO / P_TWOPC_RETRY's payload.
type TwoPCReplyHeader struct {
	TID            uint32
	NodeID         uint32
	ReachableNodes uint64
	PrimaryNodes   uint64
}

func (h TwoPCReplyHeader) Marshal() []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint32(buf[0:4], h.TID)
	binary.BigEndian.PutUint32(buf[4:8], h.NodeID)
	binary.BigEndian.PutUint64(buf[8:16], h.ReachableNodes)
	binary.BigEndian.PutUint64(buf[16:24], h.PrimaryNodes)
	return buf
}

func UnmarshalTwoPCReplyHeader(buf []byte) (TwoPCReplyHeader, error) {
	if len(buf) < 24 {
		return TwoPCReplyHeader{}, fmt.Errorf("%w: short two-PC reply header", drbderr.ErrMalformedFrame)
	}
	return TwoPCReplyHeader{
		TID:            binary.BigEndian.Uint32(buf[0:4]),
		NodeID:         binary.BigEndian.Uint32(buf[4:8]),
		ReachableNodes: binary.BigEndian.Uint64(buf[8:16]),
		PrimaryNodes:   binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// PingHeader covers P_PING / P_PING_ACK, which carry no payload.
type PingHeader struct{}

func (PingHeader) Marshal() []byte { return nil }
