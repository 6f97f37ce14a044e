package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

func alwaysYes(TwoPCPacket) TwoPCReplyVerdict { return VerdictYes }

// A fresh transaction is evaluated and, on Yes, armed as the active
// transaction (spec.md 4.10).
func TestTwoPC_PrepareArmsActiveTransaction(t *testing.T) {
	s := newTwoPCState()
	pkt := TwoPCPacket{TID: 1, InitiatorNodeID: 2}

	v := s.Prepare(pkt, alwaysYes, time.Second, nil)
	if v != VerdictYes {
		t.Fatalf("expected VerdictYes, got %v", v)
	}
	if s.active == nil || s.active.TID != 1 {
		t.Fatalf("expected transaction 1 to be armed as active")
	}
}

// A duplicate Prepare for the already-active (tid, initiator) re-acks
// Yes without re-evaluating or replacing the transaction.
func TestTwoPC_PrepareDuplicateReacksYes(t *testing.T) {
	s := newTwoPCState()
	pkt := TwoPCPacket{TID: 1, InitiatorNodeID: 2}
	s.Prepare(pkt, alwaysYes, time.Second, nil)

	evaluated := false
	evaluate := func(TwoPCPacket) TwoPCReplyVerdict { evaluated = true; return VerdictYes }

	v := s.Prepare(pkt, evaluate, time.Second, nil)
	if v != VerdictYes {
		t.Fatalf("expected duplicate Prepare to re-ack Yes, got %v", v)
	}
	if evaluated {
		t.Fatalf("expected a duplicate (tid, initiator) to skip re-evaluation")
	}
}

// A different (tid, initiator) arriving while a transaction is active
// replies Retry instead of evaluating (spec.md 4.10, 5: serializable
// per resource).
func TestTwoPC_PrepareConflictingTransactionRetries(t *testing.T) {
	s := newTwoPCState()
	s.Prepare(TwoPCPacket{TID: 1, InitiatorNodeID: 2}, alwaysYes, time.Second, nil)

	v := s.Prepare(TwoPCPacket{TID: 99, InitiatorNodeID: 3}, alwaysYes, time.Second, nil)
	if v != VerdictRetry {
		t.Fatalf("expected VerdictRetry while another transaction is active, got %v", v)
	}
}

// Commit clears the active transaction and reports propagate=true only
// when it matches the currently-active (tid, initiator); a mismatched
// Commit is a no-op.
func TestTwoPC_CommitClearsActiveTransaction(t *testing.T) {
	s := newTwoPCState()
	s.Prepare(TwoPCPacket{TID: 1, InitiatorNodeID: 2}, alwaysYes, time.Second, nil)

	if propagate := s.Commit(1, 2); !propagate {
		t.Fatalf("expected Commit to report propagate=true for the active transaction")
	}
	if s.active != nil {
		t.Fatalf("expected Commit to clear the active transaction")
	}

	if propagate := s.Commit(1, 2); propagate {
		t.Fatalf("expected a second Commit of the same transaction to be a no-op")
	}
}

// Abort behaves like Commit for bookkeeping purposes: it clears the
// active transaction without applying any state.
func TestTwoPC_AbortClearsActiveTransaction(t *testing.T) {
	s := newTwoPCState()
	s.Prepare(TwoPCPacket{TID: 5, InitiatorNodeID: 9}, alwaysYes, time.Second, nil)

	if propagate := s.Abort(5, 9); !propagate {
		t.Fatalf("expected Abort to report propagate=true for the active transaction")
	}
	if s.active != nil {
		t.Fatalf("expected Abort to clear the active transaction")
	}
}

// A Prepare that times out before Commit/Abort arrives clears the
// active slot on its own and invokes the timeout callback.
func TestTwoPC_PrepareTimesOutAndClearsActive(t *testing.T) {
	s := newTwoPCState()
	timedOut := make(chan uint32, 1)

	s.Prepare(TwoPCPacket{TID: 7, InitiatorNodeID: 1}, alwaysYes, 20*time.Millisecond, func(tid uint32) {
		timedOut <- tid
	})

	select {
	case tid := <-timedOut:
		if tid != 7 {
			t.Fatalf("expected timeout callback for tid 7, got %d", tid)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected the transaction to time out")
	}

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil {
		t.Fatalf("expected the active transaction to be cleared after timeout")
	}
}

// recordReply reports allReplied only once every expected participant
// has replied, and OR's reachability/primary bitmaps in along the way.
func TestTwoPC_RecordReplyTracksCompletionAndBitmaps(t *testing.T) {
	s := newTwoPCState()
	s.Prepare(TwoPCPacket{TID: 3, InitiatorNodeID: 1}, alwaysYes, time.Second, nil)
	s.ArmExpectedReplies(2)

	if all := s.recordReply(3, types.NodeID(2), replyYes, 0b01, 0b10); all {
		t.Fatalf("expected allReplied=false after only one of two replies")
	}
	if all := s.recordReply(3, types.NodeID(4), replyYes, 0b10, 0b00); !all {
		t.Fatalf("expected allReplied=true after both replies are in")
	}

	if s.active.ReachableNodes != 0b11 {
		t.Fatalf("expected ReachableNodes to OR across replies, got %b", s.active.ReachableNodes)
	}
	if s.active.PrimaryNodes != 0b10 {
		t.Fatalf("expected PrimaryNodes to OR across replies, got %b", s.active.PrimaryNodes)
	}
}

// recordReply for a tid that isn't the active transaction is ignored.
func TestTwoPC_RecordReplyIgnoresUnknownTID(t *testing.T) {
	s := newTwoPCState()
	s.Prepare(TwoPCPacket{TID: 3, InitiatorNodeID: 1}, alwaysYes, time.Second, nil)
	s.ArmExpectedReplies(1)

	if all := s.recordReply(999, types.NodeID(2), replyYes, 0, 0); all {
		t.Fatalf("expected recordReply to ignore a reply for an unknown transaction")
	}
}
