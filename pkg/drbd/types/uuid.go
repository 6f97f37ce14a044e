package types

// NodeID identifies one node in a (possibly multi-node) replication
// cluster. 0 is a valid node id; there is no reserved "no node" value,
// callers use a separate bool/pointer where absence matters.
type NodeID uint32

// HistoryDepth is the bounded ring size for the history-UUID vector
// (spec.md 3: "history UUIDs (bounded ring)").
const HistoryDepth = 32

// UUIDFlags records crash/consistency bits that steer the handshake
// rules (r40's "crashed-primary flags") and the protocol-version-gated
// UUID fixups (spec.md 4.9).
type UUIDFlags uint32

const (
	// FlagCrashedPrimary: this side was Primary when it last lost
	// contact with its peer without a clean shutdown.
	FlagCrashedPrimary UUIDFlags = 1 << iota
	// FlagResyncEndPending: a resync completed locally but the ack that
	// should have advanced the peer's view of our UUIDs may have been
	// lost across a crash; uuid_fixup_resync_end must run before compare.
	FlagResyncEndPending
	// FlagSyncStartPending: a resync is about to start and the
	// corresponding UUID bump (uuid_fixup_resync_start{1,2}) has not yet
	// been observed to land on the peer.
	FlagSyncStartPending
)

func (f UUIDFlags) Has(bit UUIDFlags) bool { return f&bit != 0 }

// UUIDSet is one side's view of a device's UUID vector: the current
// generation, one bitmap-UUID per peer node this side has ever
// replicated with, and a bounded history ring (spec.md 3).
type UUIDSet struct {
	Current UUID
	Bitmap  map[NodeID]UUID
	History [HistoryDepth]UUID
	HistLen int
	Flags   UUIDFlags
}

// UUID is DRBD's 64-bit generation identifier; zero means "just
// created", i.e. no write has ever happened on this side of this
// device.
type UUID uint64

func NewUUIDSet() UUIDSet {
	return UUIDSet{Bitmap: make(map[NodeID]UUID)}
}

func (u UUIDSet) justCreated() bool {
	return u.Current == 0 && u.HistLen == 0 && len(u.Bitmap) == 0
}

// PushHistory records cur as the set's current UUID and pushes the
// previous current value onto the bounded history ring, evicting the
// oldest entry once HistoryDepth is reached. Used whenever a state
// transition bumps the current UUID (new data generation).
func (u *UUIDSet) PushHistory(newCurrent UUID) {
	if u.Current != 0 {
		if u.HistLen < HistoryDepth {
			u.History[u.HistLen] = u.Current
			u.HistLen++
		} else {
			copy(u.History[:], u.History[1:])
			u.History[HistoryDepth-1] = u.Current
		}
	}
	u.Current = newCurrent
}

func (u UUIDSet) historyContains(v UUID) bool {
	if v == 0 {
		return false
	}
	for i := 0; i < u.HistLen; i++ {
		if u.History[i] == v {
			return true
		}
	}
	return false
}

// CompareResult is the rule-encoded handshake outcome (spec.md 4.9):
// positive values mean the local side should become SyncSource,
// negative values SyncTarget; magnitude 2 means "set (mark fully
// out-of-sync) the bitmap then sync", magnitude 3 means "copy the
// bitmap from another peer slot first", magnitude 100 flags a
// split-brain candidate, and the two sentinel values below flag a
// protocol-version shortfall.
type CompareResult int

const (
	ResultUnrelated                    CompareResult = -1000
	ResultTargetCopySlot               CompareResult = -3
	ResultTargetSetBitmap              CompareResult = -2
	ResultTargetNormal                 CompareResult = -1
	ResultNoSyncEstablished            CompareResult = 0
	ResultSourceNormal                 CompareResult = 1
	ResultSourceSetBitmap              CompareResult = 2
	ResultSourceCopySlot               CompareResult = 3
	ResultSplitBrainSource             CompareResult = 100
	ResultSplitBrainTarget             CompareResult = -100
	ResultNeedsNewerProtocolFixupEnd   CompareResult = -1091
	ResultNeedsNewerProtocolFixupStart CompareResult = -1096
)

// IsSplitBrain reports whether the result requires the after-sb-*p
// policy ladder instead of a direct resync decision.
func (r CompareResult) IsSplitBrain() bool {
	return r == ResultSplitBrainSource || r == ResultSplitBrainTarget
}

// CompareOutcome is CompareResult plus the extra data some rules need:
// r52/r72's copy-slot-from node id.
type CompareOutcome struct {
	Code         CompareResult
	CopySlotFrom NodeID
	Rule         string // which rule fired, for logging/tests (e.g. "r60")
}

// CompareUUIDs implements the sync-handshake UUID comparison rules from
// spec.md 4.9, in the documented order (first match wins). myID/peerID
// identify the two sides in Bitmap maps keyed by NodeID.
func CompareUUIDs(myID, peerID NodeID, local, peer UUIDSet, localCrashedPrimary, peerCrashedPrimary, resolveConflicts bool) CompareOutcome {
	// r10: both just-created, nothing to sync.
	if local.justCreated() && peer.justCreated() {
		return CompareOutcome{Code: ResultNoSyncEstablished, Rule: "r10"}
	}
	// r20: local just-created, peer has data -> local is target, full copy.
	if local.justCreated() && !peer.justCreated() {
		return CompareOutcome{Code: ResultTargetSetBitmap, Rule: "r20"}
	}
	// r30: peer just-created, local has data -> local is source, full copy.
	if peer.justCreated() && !local.justCreated() {
		return CompareOutcome{Code: ResultSourceSetBitmap, Rule: "r30"}
	}
	// r40: equal current generation.
	if local.Current != 0 && local.Current == peer.Current {
		switch {
		case localCrashedPrimary && peerCrashedPrimary:
			if resolveConflicts {
				return CompareOutcome{Code: ResultSplitBrainSource, Rule: "r40"}
			}
			return CompareOutcome{Code: ResultSplitBrainTarget, Rule: "r40"}
		case localCrashedPrimary:
			return CompareOutcome{Code: ResultTargetNormal, Rule: "r40"}
		case peerCrashedPrimary:
			return CompareOutcome{Code: ResultSourceNormal, Rule: "r40"}
		default:
			return CompareOutcome{Code: ResultNoSyncEstablished, Rule: "r40"}
		}
	}
	// r50: my current equals peer's bitmap-for-me.
	if v, ok := peer.Bitmap[myID]; ok && v != 0 && v == local.Current {
		return CompareOutcome{Code: ResultTargetNormal, Rule: "r50"}
	}
	// r52: my current equals peer's bitmap-for-some-other-node.
	for node, v := range peer.Bitmap {
		if node == myID || v == 0 {
			continue
		}
		if v == local.Current {
			return CompareOutcome{Code: ResultTargetCopySlot, CopySlotFrom: node, Rule: "r52"}
		}
	}
	// r60: my current is in peer's history.
	if peer.historyContains(local.Current) {
		return CompareOutcome{Code: ResultTargetSetBitmap, Rule: "r60"}
	}
	// r70: peer's current equals my bitmap-for-peer.
	if v, ok := local.Bitmap[peerID]; ok && v != 0 && v == peer.Current {
		return CompareOutcome{Code: ResultSourceNormal, Rule: "r70"}
	}
	// r72: peer's current equals my bitmap-for-some-other-node.
	for node, v := range local.Bitmap {
		if node == peerID || v == 0 {
			continue
		}
		if v == peer.Current {
			return CompareOutcome{Code: ResultSourceCopySlot, CopySlotFrom: node, Rule: "r72"}
		}
	}
	// r80: peer's current is in my history.
	if local.historyContains(peer.Current) {
		return CompareOutcome{Code: ResultSourceSetBitmap, Rule: "r80"}
	}
	// r90: both bitmap UUIDs (for each other) equal and non-zero.
	if v, ok := local.Bitmap[peerID]; ok && v != 0 {
		if pv, ok2 := peer.Bitmap[myID]; ok2 && pv == v {
			return CompareOutcome{Code: ResultSplitBrainSource, Rule: "r90"}
		}
	}
	// r100: any history-vs-history equality.
	for i := 0; i < local.HistLen; i++ {
		if local.History[i] == 0 {
			continue
		}
		for j := 0; j < peer.HistLen; j++ {
			if local.History[i] == peer.History[j] {
				return CompareOutcome{Code: ResultSplitBrainTarget, Rule: "r100"}
			}
		}
	}
	return CompareOutcome{Code: ResultUnrelated, Rule: "unrelated"}
}

// FixupResyncEnd corrects local's UUID vector when a resync-end ack may
// have been lost across a crash (spec.md 4.9's
// uuid_fixup_resync_end). Protocol dialects <= 110 need this applied
// before CompareUUIDs is called; on an older peer that cannot carry the
// fixup information at all, report the version shortfall instead.
func FixupResyncEnd(local *UUIDSet, peerProtocolVersion, minRequired int) (CompareResult, bool) {
	if !local.Flags.Has(FlagResyncEndPending) {
		return 0, true
	}
	if peerProtocolVersion < minRequired {
		return ResultNeedsNewerProtocolFixupEnd, false
	}
	// The resync-end bump landed locally but may not have reached the
	// peer's bitmap-UUID slot for us; fold it into history so a
	// subsequent compare still finds the relationship via r60/r80
	// instead of declaring the data unrelated.
	local.PushHistory(local.Current)
	local.Flags &^= FlagResyncEndPending
	return 0, true
}

// FixupResyncStart1 and FixupResyncStart2 correct the two sides' UUID
// vectors before a resync that is about to begin, covering the case
// where the UUID bump that should accompany WFBitmapS/WFBitmapT was
// itself lost across a crash (spec.md 4.9's uuid_fixup_resync_start{1,2}).
func FixupResyncStart1(local *UUIDSet, peerProtocolVersion, minRequired int) (CompareResult, bool) {
	if !local.Flags.Has(FlagSyncStartPending) {
		return 0, true
	}
	if peerProtocolVersion < minRequired {
		return ResultNeedsNewerProtocolFixupStart, false
	}
	local.PushHistory(local.Current)
	return 0, true
}

func FixupResyncStart2(peerID NodeID, local *UUIDSet, peerBitmapUUID UUID, peerProtocolVersion, minRequired int) (CompareResult, bool) {
	if !local.Flags.Has(FlagSyncStartPending) {
		return 0, true
	}
	if peerProtocolVersion < minRequired {
		return ResultNeedsNewerProtocolFixupStart, false
	}
	local.Bitmap[peerID] = peerBitmapUUID
	local.Flags &^= FlagSyncStartPending
	return 0, true
}
