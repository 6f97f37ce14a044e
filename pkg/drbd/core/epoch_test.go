package core

import (
	"testing"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// A single write with no barrier never finishes: the epoch has no
// barrier number yet, so canFinish must hold it open (spec.md 4.4).
func TestEpoch_NoFinishWithoutBarrierNumber(t *testing.T) {
	c := NewConnection(1, nil)
	pr := &PeerRequest{}
	e := c.AttachWrite(pr, types.OrderDrainIO)

	var acked bool
	c.Put(e, types.OrderDrainIO, func(barrierNr, size uint32) { acked = true }, nil)

	if acked {
		t.Fatalf("epoch finished before a barrier number was ever attached")
	}
	if e.Flags.has(EpochIsFinishing) {
		t.Fatalf("epoch marked finishing while still missing its barrier number")
	}
}

// Put-then-barrier (write completes before the BARRIER frame arrives)
// still finishes once both have happened and the epoch is the list
// head, firing the BarrierAck callback with the final size.
func TestEpoch_FinishesOnceWriteDoneAndBarrierSeen(t *testing.T) {
	c := NewConnection(1, nil)
	pr := &PeerRequest{}
	e := c.AttachWrite(pr, types.OrderDrainIO)

	var gotNr, gotSize uint32
	ack := func(barrierNr, size uint32) { gotNr, gotSize = barrierNr, size }

	c.Put(e, types.OrderDrainIO, ack, nil)
	if gotSize != 0 {
		t.Fatalf("epoch finished before its barrier number arrived")
	}

	c.GotBarrierNr(e, 42, types.OrderDrainIO, ack, nil)
	if gotNr != 42 || gotSize != 1 {
		t.Fatalf("expected ack(42, 1), got ack(%d, %d)", gotNr, gotSize)
	}
}

// Write-ordering BIO_BARRIER defers the finish until BarrierDone
// reports the asynchronous flush has completed; every other ordering
// mode finishes as soon as the ordinary conditions hold.
func TestEpoch_BioBarrierWaitsForFlush(t *testing.T) {
	c := NewConnection(1, nil)
	pr1 := &PeerRequest{}
	e := c.AttachWrite(pr1, types.OrderBioBarrier)
	if !e.Flags.has(EpochContainsBarrier) {
		t.Fatalf("expected a new epoch opened under BIO_BARRIER ordering to be marked ContainsBarrier")
	}
	pr2 := &PeerRequest{}
	c.AttachWrite(pr2, types.OrderBioBarrier) // second write: size>1, so the size==1 shortcut doesn't apply

	c.Put(e, types.OrderBioBarrier, nil, nil)
	c.Put(e, types.OrderBioBarrier, nil, nil)

	var flushed bool
	issueFlush := func(*Epoch) { flushed = true }

	var acked bool
	c.GotBarrierNr(e, 7, types.OrderBioBarrier, func(uint32, uint32) { acked = true }, issueFlush)
	if acked {
		t.Fatalf("expected a multi-write barrier epoch to wait for BarrierDone, not finish on GotBarrierNr alone")
	}
	if !e.Flags.has(EpochBarrierInNextIssued) {
		t.Fatalf("expected the pending flush to be armed (EpochBarrierInNextIssued)")
	}
	if !flushed {
		t.Fatalf("expected issueFlush to be called once the flush was armed")
	}

	c.BarrierDone(e, types.OrderBioBarrier, func(uint32, uint32) { acked = true }, issueFlush)
	if !acked {
		t.Fatalf("expected BarrierDone to finish the epoch")
	}
}

// Finishing the head epoch cascades into the successor that becomes
// the new head (spec.md 4.4's BecameLast).
func TestEpoch_FinishCascadesToNextEpoch(t *testing.T) {
	c := NewConnection(1, nil)

	prA := &PeerRequest{}
	eA := c.AttachWrite(prA, types.OrderDrainIO)

	c.epochMu.Lock()
	c.current = nil // force a second, distinct epoch for the next write
	c.epochMu.Unlock()

	prB := &PeerRequest{}
	eB := c.AttachWrite(prB, types.OrderDrainIO)

	c.Put(eB, types.OrderDrainIO, nil, nil)
	c.GotBarrierNr(eB, 2, types.OrderDrainIO, nil, nil)

	var acks []uint32
	ack := func(barrierNr, size uint32) { acks = append(acks, barrierNr) }

	// eB can't finish yet: eA is still the head and hasn't finished.
	c.Put(eA, types.OrderDrainIO, ack, nil)
	if len(acks) != 0 {
		t.Fatalf("expected eA to still be missing its barrier number, got acks=%v", acks)
	}

	c.GotBarrierNr(eA, 1, types.OrderDrainIO, ack, nil)
	if len(acks) != 2 || acks[0] != 1 || acks[1] != 2 {
		t.Fatalf("expected eA then eB to finish in order, got acks=%v", acks)
	}
}

// Cleanup finishes an epoch whose writes have all drained even though
// it is still missing its barrier number, the one condition it waives.
func TestEpoch_CleanupForcesFinish(t *testing.T) {
	c := NewConnection(1, nil)
	pr := &PeerRequest{}
	e := c.AttachWrite(pr, types.OrderDrainIO)
	c.Put(e, types.OrderDrainIO, nil, nil)

	var acked bool
	c.Cleanup(types.OrderDrainIO, func(uint32, uint32) { acked = true })
	if !acked {
		t.Fatalf("expected Cleanup to force-finish an epoch missing its barrier number")
	}
}
