package types

import "testing"

// Boundary scenario 1 (spec.md 8): fresh pairing, identical current
// UUIDs, no crashed-primary flags: compare returns 0 (rule 40, case 0).
func TestCompareUUIDs_EqualCurrentNoCrash(t *testing.T) {
	local := NewUUIDSet()
	local.Current = 42
	peer := NewUUIDSet()
	peer.Current = 42

	outcome := CompareUUIDs(1, 2, local, peer, false, false, false)
	if outcome.Code != ResultNoSyncEstablished {
		t.Fatalf("expected ResultNoSyncEstablished, got %d (%s)", outcome.Code, outcome.Rule)
	}
	if outcome.Rule != "r40" {
		t.Errorf("expected rule r40, got %s", outcome.Rule)
	}
}

// Boundary scenario 2 (spec.md 8): device A (UUID X, history [Y]) vs
// device B (UUID Y): rule 60 returns -2 (SyncTarget, set bitmap).
func TestCompareUUIDs_CurrentInPeerHistory(t *testing.T) {
	local := NewUUIDSet()
	local.Current = 0xB // device B in the scenario, current = Y

	peer := NewUUIDSet()
	peer.Current = 0xA // device A, current = X
	peer.HistLen = 1
	peer.History[0] = 0xB // history = [Y]

	outcome := CompareUUIDs(2, 1, local, peer, false, false, false)
	if outcome.Code != ResultTargetSetBitmap {
		t.Fatalf("expected ResultTargetSetBitmap (-2), got %d (%s)", outcome.Code, outcome.Rule)
	}
	if outcome.Rule != "r60" {
		t.Errorf("expected rule r60, got %s", outcome.Rule)
	}
}

func TestCompareUUIDs_Symmetry(t *testing.T) {
	// compare(A,B) = -compare(B,A) for rules 10-80 (spec.md 8). Exercise
	// r50/r70 which are direct mirrors of one another.
	local := NewUUIDSet()
	local.Current = 7
	peer := NewUUIDSet()
	peer.Current = 9
	peer.Bitmap[1] = 7 // peer's bitmap-for-me equals my current -> r50, target

	ab := CompareUUIDs(1, 2, local, peer, false, false, false)
	if ab.Code != ResultTargetNormal {
		t.Fatalf("expected ResultTargetNormal, got %d", ab.Code)
	}

	// Mirrored: now "local" plays peer's former role.
	mirroredLocal := NewUUIDSet()
	mirroredLocal.Current = 9
	mirroredLocal.Bitmap[1] = 7
	mirroredPeer := NewUUIDSet()
	mirroredPeer.Current = 7

	ba := CompareUUIDs(2, 1, mirroredLocal, mirroredPeer, false, false, false)
	if ba.Code != ResultSourceNormal {
		t.Fatalf("expected ResultSourceNormal (mirror of target-normal), got %d", ba.Code)
	}
	if int(ab.Code) != -int(ba.Code) {
		t.Errorf("compare(A,B)=%d should equal -compare(B,A)=%d", ab.Code, -ba.Code)
	}
}

// Boundary scenario 6 (spec.md 8): split-brain, both sides crashed
// primary, equal current UUIDs, policy=discard-least-changes with
// ch_self=10, ch_peer=3 => return 1 (SyncSource).
func TestResolveSplitBrain_DiscardLeastChanges(t *testing.T) {
	decision := ResolveSplitBrain(SBDiscardLeastChanges, SplitBrainInput{ChangesSelf: 10, ChangesPeer: 3})
	if decision != DecisionSyncSource {
		t.Fatalf("expected DecisionSyncSource, got %d", decision)
	}
}

func TestResolveSplitBrain_DiscardLeastChangesTie(t *testing.T) {
	decision := ResolveSplitBrain(SBDiscardLeastChanges, SplitBrainInput{ChangesSelf: 5, ChangesPeer: 5})
	if decision != DecisionDisconnect {
		t.Fatalf("expected a tie to fall back to disconnect, got %d", decision)
	}
}

func TestCompareUUIDs_BothJustCreated(t *testing.T) {
	outcome := CompareUUIDs(1, 2, NewUUIDSet(), NewUUIDSet(), false, false, false)
	if outcome.Code != ResultNoSyncEstablished || outcome.Rule != "r10" {
		t.Fatalf("expected r10/0, got %d (%s)", outcome.Code, outcome.Rule)
	}
}

func TestCompareUUIDs_BothCrashedSplitBrain(t *testing.T) {
	local := NewUUIDSet()
	local.Current = 99
	peer := NewUUIDSet()
	peer.Current = 99

	resolver := CompareUUIDs(1, 2, local, peer, true, true, true)
	if resolver.Code != ResultSplitBrainSource {
		t.Fatalf("expected split-brain source when resolveConflicts=true, got %d", resolver.Code)
	}

	other := CompareUUIDs(1, 2, local, peer, true, true, false)
	if other.Code != ResultSplitBrainTarget {
		t.Fatalf("expected split-brain target when resolveConflicts=false, got %d", other.Code)
	}
}
