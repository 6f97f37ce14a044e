package types

// SplitBrainPolicy is one of the after-sb-[012]p configuration values
// (spec.md 4.9).
type SplitBrainPolicy int

const (
	SBDisconnect SplitBrainPolicy = iota
	SBDiscardYounger
	SBDiscardOlder
	SBDiscardZeroChanges
	SBDiscardLeastChanges
	SBDiscardLocal
	SBDiscardRemote
	SBConsensus
	SBViolently
	SBCallHelper
	SBDiscardSecondary
)

// SplitBrainDecision is the result of resolving a split-brain candidate
// against a configured policy.
type SplitBrainDecision int

const (
	DecisionDisconnect SplitBrainDecision = iota
	DecisionSyncSource
	DecisionSyncTarget
	DecisionCallHelper
)

// SplitBrainInput bundles the facts a policy needs to pick a direction.
// ChangesSelf/ChangesPeer are the out-of-sync-since-divergence change
// counts (spec.md 8 scenario 6); YoungerSelf reports whether the local
// current UUID's generation is newer than the peer's; SelfIsSecondary
// reports the local role, for SBDiscardSecondary.
type SplitBrainInput struct {
	ChangesSelf    uint64
	ChangesPeer    uint64
	YoungerSelf    bool
	SelfIsSecondary bool
}

// ResolveSplitBrain applies policy to a split-brain candidate and
// returns the direction to take. Matches spec.md 8 scenario 6:
// policy=discard-least-changes with ChangesSelf=10, ChangesPeer=3
// returns DecisionSyncSource (discarding the peer's smaller change set).
func ResolveSplitBrain(policy SplitBrainPolicy, in SplitBrainInput) SplitBrainDecision {
	switch policy {
	case SBDisconnect:
		return DecisionDisconnect
	case SBDiscardYounger:
		if in.YoungerSelf {
			return DecisionSyncTarget
		}
		return DecisionSyncSource
	case SBDiscardOlder:
		if in.YoungerSelf {
			return DecisionSyncSource
		}
		return DecisionSyncTarget
	case SBDiscardZeroChanges:
		switch {
		case in.ChangesSelf == 0 && in.ChangesPeer == 0:
			return DecisionDisconnect
		case in.ChangesSelf == 0:
			return DecisionSyncTarget
		case in.ChangesPeer == 0:
			return DecisionSyncSource
		default:
			return DecisionDisconnect
		}
	case SBDiscardLeastChanges:
		if in.ChangesSelf == in.ChangesPeer {
			return DecisionDisconnect
		}
		if in.ChangesSelf > in.ChangesPeer {
			return DecisionSyncSource
		}
		return DecisionSyncTarget
	case SBDiscardLocal:
		return DecisionSyncTarget
	case SBDiscardRemote:
		return DecisionSyncSource
	case SBDiscardSecondary:
		if in.SelfIsSecondary {
			return DecisionSyncTarget
		}
		return DecisionSyncSource
	case SBConsensus:
		// Requires a quorum vote from a third party; the receive-side
		// core alone cannot decide, defer to the external helper.
		return DecisionCallHelper
	case SBViolently:
		if in.YoungerSelf {
			return DecisionSyncSource
		}
		return DecisionSyncTarget
	case SBCallHelper:
		return DecisionCallHelper
	default:
		return DecisionDisconnect
	}
}
