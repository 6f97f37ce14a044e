package wire

// Command identifies the kind of a framed message. Mirrors the teacher's
// types.MessageType enum (core/peer.go's Initial/External), generalized
// to the full receive-side command set from spec.md 6.
type Command uint16

const (
	CmdNone Command = iota

	// Data plane.
	PData
	PDataReply
	PRSDataReply
	PBarrier
	PBitmap
	PCompressedBitmap
	PUnplugRemote
	PDataRequest
	PRSDataRequest
	PSyncParam89
	PProtocol
	PUUIDs
	PUUIDs110
	PSizes
	PState
	PStateChgReq
	PConnStChgReq
	PSyncUUID
	POVRequest
	POVReply
	PCsumRSRequest
	PDelayProbe
	POutOfSync
	PProtocolUpdate
	PTwoPCPrepare
	PTwoPCAbort
	PTwoPCCommit
	PDagTag
	PPeerDagTag
	PCurrentUUID
	PTrim
	PPriReachable

	// Ack channel (meta socket).
	PPing
	PPingAck
	PRecvAck
	PWriteAck
	PRSWriteAck
	PSuperseded
	PNegAck
	PNegDReply
	PNegRSDReply
	POVResult
	PBarrierAck
	PStateChgReply
	PConnStChgReply
	PRSIsInSync
	PRSCancel
	PRetryWrite
	PPeerAck
	PPeersInSync
	PTwoPCYes
	PTwoPCNo
	PTwoPCRetry
)

var names = map[Command]string{
	PData:             "P_DATA",
	PDataReply:        "P_DATA_REPLY",
	PRSDataReply:      "P_RS_DATA_REPLY",
	PBarrier:          "P_BARRIER",
	PBitmap:           "P_BITMAP",
	PCompressedBitmap: "P_COMPRESSED_BITMAP",
	PUnplugRemote:     "P_UNPLUG_REMOTE",
	PDataRequest:      "P_DATA_REQUEST",
	PRSDataRequest:    "P_RS_DATA_REQUEST",
	PSyncParam89:      "P_SYNC_PARAM",
	PProtocol:         "P_PROTOCOL",
	PUUIDs:            "P_UUIDS",
	PUUIDs110:         "P_UUIDS110",
	PSizes:            "P_SIZES",
	PState:            "P_STATE",
	PStateChgReq:      "P_STATE_CHG_REQ",
	PConnStChgReq:     "P_CONN_ST_CHG_REQ",
	PSyncUUID:         "P_SYNC_UUID",
	POVRequest:        "P_OV_REQUEST",
	POVReply:          "P_OV_REPLY",
	PCsumRSRequest:    "P_CSUM_RS_REQUEST",
	PDelayProbe:       "P_DELAY_PROBE",
	POutOfSync:        "P_OUT_OF_SYNC",
	PProtocolUpdate:   "P_PROTOCOL_UPDATE",
	PTwoPCPrepare:     "P_TWOPC_PREPARE",
	PTwoPCAbort:       "P_TWOPC_ABORT",
	PTwoPCCommit:      "P_TWOPC_COMMIT",
	PDagTag:           "P_DAGTAG",
	PPeerDagTag:       "P_PEER_DAGTAG",
	PCurrentUUID:      "P_CURRENT_UUID",
	PTrim:             "P_TRIM",
	PPriReachable:     "P_PRI_REACHABLE",
	PPing:             "P_PING",
	PPingAck:          "P_PING_ACK",
	PRecvAck:          "P_RECV_ACK",
	PWriteAck:         "P_WRITE_ACK",
	PRSWriteAck:       "P_RS_WRITE_ACK",
	PSuperseded:       "P_SUPERSEDED",
	PNegAck:           "P_NEG_ACK",
	PNegDReply:        "P_NEG_DREPLY",
	PNegRSDReply:      "P_NEG_RS_DREPLY",
	POVResult:         "P_OV_RESULT",
	PBarrierAck:       "P_BARRIER_ACK",
	PStateChgReply:    "P_STATE_CHG_REPLY",
	PConnStChgReply:   "P_CONN_ST_CHG_REPLY",
	PRSIsInSync:       "P_RS_IS_IN_SYNC",
	PRSCancel:         "P_RS_CANCEL",
	PRetryWrite:       "P_RETRY_WRITE",
	PPeerAck:          "P_PEER_ACK",
	PPeersInSync:      "P_PEERS_IN_SYNC",
	PTwoPCYes:         "P_TWOPC_YES",
	PTwoPCNo:          "P_TWOPC_NO",
	PTwoPCRetry:       "P_TWOPC_RETRY",
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "P_UNKNOWN"
}

// IsAckChannel reports whether c is normally carried on the meta socket
// (the acknowledgement reader's dispatch table, spec.md 4.8).
func (c Command) IsAckChannel() bool {
	switch c {
	case PPing, PPingAck, PRecvAck, PWriteAck, PRSWriteAck, PSuperseded,
		PNegAck, PNegDReply, PNegRSDReply, POVResult, PBarrierAck,
		PStateChgReply, PConnStChgReply, PRSIsInSync, PRSCancel,
		PRetryWrite, PPeerAck, PPeersInSync, PTwoPCYes, PTwoPCNo, PTwoPCRetry:
		return true
	default:
		return false
	}
}

// FeatureFlag is a connection-negotiated capability bit (spec.md 6).
type FeatureFlag uint32

const (
	FFTrim FeatureFlag = 1 << iota
)
