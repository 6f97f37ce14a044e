package core

import (
	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// HandshakeResult is the sync handshake's outcome (spec.md 4.9): the
// replication state both sides settle into, and, for a split-brain
// candidate, the policy decision that was applied.
type HandshakeResult struct {
	State       types.ReplState
	Outcome     types.CompareOutcome
	SplitBrain  *types.SplitBrainDecision
}

// RunHandshake implements spec.md 4.9: apply any pending protocol-
// version-gated UUID fixups, compare UUID vectors, and, for a
// split-brain candidate, resolve it against the configured after-sb-*p
// policy. myID/peerID identify the two sides for bitmap-slot lookups.
func RunHandshake(pd *PeerDevice, myID, peerID types.NodeID, peerProtocolVersion int, policy types.SplitBrainPolicy, sbInput types.SplitBrainInput) (HandshakeResult, error) {
	local := pd.Local
	peer := pd.Peer

	if code, ok := types.FixupResyncEnd(&local, peerProtocolVersion, wire.MinUUIDFixupResync); !ok {
		return HandshakeResult{}, drbderr.ProtocolIncompatible("handshake-fixup-resync-end", errProtocolShortfall(code))
	}
	if code, ok := types.FixupResyncStart1(&local, peerProtocolVersion, wire.MinUUIDFixupResync); !ok {
		return HandshakeResult{}, drbderr.ProtocolIncompatible("handshake-fixup-resync-start1", errProtocolShortfall(code))
	}
	if bitmapUUID, ok := peer.Bitmap[myID]; ok {
		if code, ok2 := types.FixupResyncStart2(peerID, &local, bitmapUUID, peerProtocolVersion, wire.MinUUIDFixupResync); !ok2 {
			return HandshakeResult{}, drbderr.ProtocolIncompatible("handshake-fixup-resync-start2", errProtocolShortfall(code))
		}
	}
	pd.Local = local

	outcome := types.CompareUUIDs(myID, peerID, local, peer, pd.CrashedPrimary, pd.PeerCrashedPrimary, pd.Connection.Flags.Has(FlagResolveConflicts))

	result := HandshakeResult{Outcome: outcome}

	if outcome.IsSplitBrain() {
		decision := types.ResolveSplitBrain(policy, sbInput)
		result.SplitBrain = &decision
		switch decision {
		case types.DecisionDisconnect:
			return result, drbderr.SplitBrain("handshake", "after-sb-*p policy resolved to disconnect")
		case types.DecisionCallHelper:
			return result, drbderr.SplitBrain("handshake", "after-sb-*p policy requires external helper decision")
		case types.DecisionSyncSource:
			result.State = types.ReplWFBitmapS
		case types.DecisionSyncTarget:
			result.State = types.ReplWFBitmapT
		}
		return result, nil
	}

	switch outcome.Code {
	case types.ResultNoSyncEstablished:
		result.State = types.ReplEstablished
	case types.ResultSourceNormal, types.ResultSourceSetBitmap, types.ResultSourceCopySlot:
		result.State = types.ReplWFBitmapS
	case types.ResultTargetNormal, types.ResultTargetSetBitmap, types.ResultTargetCopySlot:
		result.State = types.ReplWFBitmapT
	case types.ResultUnrelated:
		return result, drbderr.StateConflict("handshake", errUnrelatedData)
	case types.ResultNeedsNewerProtocolFixupEnd, types.ResultNeedsNewerProtocolFixupStart:
		return result, drbderr.ProtocolIncompatible("handshake", errProtocolShortfall(outcome.Code))
	}
	return result, nil
}

type protocolShortfallError struct{ code types.CompareResult }

func errProtocolShortfall(code types.CompareResult) error { return protocolShortfallError{code} }

func (e protocolShortfallError) Error() string {
	return "peer protocol version too old for required UUID fixup"
}

type unrelatedDataError struct{}

func (unrelatedDataError) Error() string { return "device data is unrelated, cannot determine sync direction" }

var errUnrelatedData = unrelatedDataError{}
