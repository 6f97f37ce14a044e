package core

import (
	"sync"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// twoPCReplyKind is one participant's verdict on a Prepare (spec.md
// 4.10).
type twoPCReplyKind int

const (
	replyYes twoPCReplyKind = iota
	replyNo
	replyRetry
)

// TwoPCPacket is the decoded payload of P_TWOPC_PREPARE / _ABORT /
// _COMMIT (spec.md 4.10), independent of wire.TwoPCHeader's exact byte
// layout.
type TwoPCPacket struct {
	TID             uint32
	InitiatorNodeID types.NodeID
	TargetNodeID    types.NodeID
	ReachableNodes  uint64
	PrimaryNodes    uint64
	WeakNodes       uint64
	IsDisconnect    bool
}

// TwoPCReplyVerdict is what the local state-change evaluation decided
// to reply to a Prepare.
type TwoPCReplyVerdict int

const (
	VerdictYes TwoPCReplyVerdict = iota
	VerdictNo
	VerdictRetry
)

// twoPCTransaction is the per-resource transaction record (spec.md
// 4.10's twopc_reply: {tid, initiator_node_id, target_node_id,
// reachable_nodes, primary_nodes, weak_nodes, is_disconnect}).
type twoPCTransaction struct {
	TID             uint32
	InitiatorNodeID types.NodeID
	TargetNodeID    types.NodeID
	ReachableNodes  uint64
	PrimaryNodes    uint64
	WeakNodes       uint64
	IsDisconnect    bool

	repliesNeeded int
	repliesSeen   map[types.NodeID]twoPCReplyKind

	timer *time.Timer
	done  chan struct{}
}

// twoPCState is the per-resource remote_state_change bit plus the
// current transaction, if any (spec.md 4.10, 5: "globally serializable
// per resource via remote_state_change").
type twoPCState struct {
	mu     sync.Mutex
	active *twoPCTransaction
}

func newTwoPCState() *twoPCState {
	return &twoPCState{}
}

// StateEvaluator decides whether the local side accepts a proposed
// state change and returns only that verdict; it reports no
// reachable/primary node sets.
type StateEvaluator func(pkt TwoPCPacket) TwoPCReplyVerdict

// Prepare implements spec.md 4.10's Prepare handling: a duplicate
// (initiator,tid) of the active transaction re-acks Yes; a different
// (initiator,tid) while one is active replies Retry; otherwise the
// state change is evaluated locally and the transaction armed with a
// timeout.
func (s *twoPCState) Prepare(pkt TwoPCPacket, evaluate StateEvaluator, timeout time.Duration, onTimeout func(tid uint32)) TwoPCReplyVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if s.active.TID == pkt.TID && s.active.InitiatorNodeID == pkt.InitiatorNodeID {
			return VerdictYes
		}
		return VerdictRetry
	}

	verdict := evaluate(pkt)
	if verdict != VerdictYes {
		return verdict
	}

	txn := &twoPCTransaction{
		TID:             pkt.TID,
		InitiatorNodeID: pkt.InitiatorNodeID,
		TargetNodeID:    pkt.TargetNodeID,
		ReachableNodes:  pkt.ReachableNodes,
		PrimaryNodes:    pkt.PrimaryNodes,
		WeakNodes:       pkt.WeakNodes,
		IsDisconnect:    pkt.IsDisconnect,
		repliesSeen:     make(map[types.NodeID]twoPCReplyKind),
		done:            make(chan struct{}),
	}
	txn.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		if s.active == txn {
			s.active = nil
		}
		s.mu.Unlock()
		if onTimeout != nil {
			onTimeout(pkt.TID)
		}
	})
	s.active = txn
	return VerdictYes
}

// Commit implements spec.md 4.10's Commit/Abort handling: clear
// remote_state_change, cancel the timer, and report whether this
// transaction should be propagated (nested twopc) to this node's other
// directly-connected peers.
func (s *twoPCState) Commit(tid uint32, initiator types.NodeID) (propagate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.TID != tid || s.active.InitiatorNodeID != initiator {
		return false
	}
	s.active.timer.Stop()
	close(s.active.done)
	s.active = nil
	return true
}

// Abort is Commit's counterpart: same bookkeeping, no state is applied.
func (s *twoPCState) Abort(tid uint32, initiator types.NodeID) (propagate bool) {
	return s.Commit(tid, initiator)
}

// recordReply folds one participant's Yes/No/Retry into the active
// transaction, OR-ing reachability/primary bitmaps in, and reports
// whether every expected participant has now replied (spec.md 4.8's
// "wake the state-change waiter once all participants have replied").
func (s *twoPCState) recordReply(tid uint32, node types.NodeID, kind twoPCReplyKind, reachable, primary uint64) (allReplied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.TID != tid {
		return false
	}
	s.active.repliesSeen[node] = kind
	s.active.ReachableNodes |= reachable
	s.active.PrimaryNodes |= primary
	return s.active.repliesNeeded > 0 && len(s.active.repliesSeen) >= s.active.repliesNeeded
}

// ArmExpectedReplies records how many participant replies the
// initiator of this transaction is waiting for, used by recordReply's
// completion check.
func (s *twoPCState) ArmExpectedReplies(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.repliesNeeded = n
	}
}
