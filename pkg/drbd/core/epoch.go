package core

import (
	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// EpochFlags are the per-epoch bits spec.md 4.4 names.
type EpochFlags uint32

const (
	EpochHasBarrierNumber EpochFlags = 1 << iota
	EpochContainsBarrier
	EpochBarrierInNextIssued
	EpochBarrierInNextDone
	EpochIsFinishing
)

func (f EpochFlags) has(bit EpochFlags) bool { return f&bit != 0 }

// Epoch is an ordered group of peer writes delimited by BARRIER frames
// (spec.md 3/4.4). Epochs of one connection are linked in a FIFO list;
// finishing the head epoch may cascade into its successor.
type Epoch struct {
	BarrierNr uint32
	Size      uint32 // number of writes attached
	Active    uint32 // unsubmitted+unacked count
	Flags     EpochFlags
}

// OnBarrierAck is called once per epoch that finishes, with the barrier
// number and the epoch's final size (spec.md 4.4: "send BarrierAck
// (barrier_nr, size)"). Wired by ackreader.go / write.go's caller.
type OnBarrierAck func(barrierNr, size uint32)

// OnIssueFlush is called when an epoch's ordinary finish conditions
// hold under BIO_BARRIER write-ordering but it still needs its
// asynchronous device flush issued before it can actually finish
// (spec.md 4.4). The caller is responsible for issuing the flush and
// eventually calling Connection.BarrierDone for e once it completes.
type OnIssueFlush func(e *Epoch)

// AttachWrite attaches pr to the connection's current epoch, creating
// one if none is open, and increments its size/active counters
// (spec.md 4.5 step 3). Returns the epoch the request was attached to.
func (c *Connection) AttachWrite(pr *PeerRequest, ordering types.WriteOrdering) *Epoch {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()
	isNew := c.current == nil
	if isNew {
		c.current = &Epoch{}
		c.epochs = append(c.epochs, c.current)
	}
	e := c.current
	e.Size++
	e.Active++
	if isNew && ordering == types.OrderBioBarrier {
		e.Flags |= EpochContainsBarrier
	}
	pr.Epoch = e
	return e
}

// CurrentEpoch returns the connection's currently-open epoch, creating
// one if none is open yet (same as AttachWrite's lazy-open, for a
// BARRIER frame that arrives with no preceding write in this epoch).
func (c *Connection) CurrentEpoch() *Epoch {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()
	if c.current == nil {
		c.current = &Epoch{}
		c.epochs = append(c.epochs, c.current)
	}
	return c.current
}

// GotBarrierNr records that a BARRIER frame for e arrived, attaching
// the barrier number and attempting to finish the epoch (spec.md 4.4's
// GotBarrierNr event).
func (c *Connection) GotBarrierNr(e *Epoch, barrierNr uint32, ordering types.WriteOrdering, ack OnBarrierAck, issueFlush OnIssueFlush) {
	c.epochMu.Lock()
	e.BarrierNr = barrierNr
	e.Flags |= EpochHasBarrierNumber
	c.epochMu.Unlock()
	c.tryFinish(e, ordering, ack, issueFlush, false)
}

// Put records that one write of e has drained from active (spec.md
// 4.4's Put event: a write completed and its ack was issued).
func (c *Connection) Put(e *Epoch, ordering types.WriteOrdering, ack OnBarrierAck, issueFlush OnIssueFlush) {
	c.epochMu.Lock()
	if e.Active > 0 {
		e.Active--
	}
	c.epochMu.Unlock()
	c.tryFinish(e, ordering, ack, issueFlush, false)
}

// BarrierDone records that the asynchronous device flush issued for a
// BIO_BARRIER epoch has completed (spec.md 4.4's BarrierDone event).
func (c *Connection) BarrierDone(e *Epoch, ordering types.WriteOrdering, ack OnBarrierAck, issueFlush OnIssueFlush) {
	c.epochMu.Lock()
	e.Flags |= EpochBarrierInNextDone
	if e.Active > 0 {
		e.Active--
	}
	c.epochMu.Unlock()
	c.tryFinish(e, ordering, ack, issueFlush, false)
}

// Cleanup re-runs the finish check on every open epoch on the connection
// with the barrier-number condition waived, as part of disconnect
// teardown (spec.md 4.4's Cleanup modifier). The other finish conditions
// still apply: an epoch with active writes, with no writes, or not at
// the head of the list is not finished.
func (c *Connection) Cleanup(ordering types.WriteOrdering, ack OnBarrierAck) {
	c.epochMu.Lock()
	pending := append([]*Epoch(nil), c.epochs...)
	c.epochMu.Unlock()
	for _, e := range pending {
		c.tryFinish(e, ordering, ack, nil, true)
	}
}

// tryFinish checks e's finish conditions (spec.md 4.4) and, if they
// hold, finishes it and cascades into the epoch that became the new
// head (BecameLast). EpochIsFinishing is only latched once the epoch
// is actually about to finish (the immediate branch below); an epoch
// parked in the deferred BIO_BARRIER branch, waiting on BarrierDone,
// must NOT be marked finishing yet, or canFinish would reject the
// very BarrierDone call that is supposed to let it proceed.
func (c *Connection) tryFinish(e *Epoch, ordering types.WriteOrdering, ack OnBarrierAck, issueFlush OnIssueFlush, cleanup bool) {
	c.epochMu.Lock()
	if !c.canFinish(e, cleanup) {
		c.epochMu.Unlock()
		return
	}
	// Only BIO_BARRIER ordering takes the asynchronous-flush path below;
	// every other mode (None, DrainIO, BdevFlush) finishes the epoch as
	// soon as the ordinary finish conditions hold, and no device flush
	// is issued for it.
	immediate := ordering != types.OrderBioBarrier ||
		e.Flags.has(EpochBarrierInNextDone) ||
		(e.Size == 1 && e.Flags.has(EpochContainsBarrier)) ||
		cleanup

	if !immediate {
		newlyArmed := false
		if !e.Flags.has(EpochBarrierInNextIssued) {
			e.Flags |= EpochBarrierInNextIssued
			e.Active++ // extra count held until the flush returns as BarrierDone
			newlyArmed = true
		}
		c.epochMu.Unlock()
		if newlyArmed && issueFlush != nil {
			issueFlush(e)
		}
		return
	}

	e.Flags |= EpochIsFinishing
	isCurrent := e == c.current
	c.epochMu.Unlock()

	if ack != nil {
		ack(e.BarrierNr, e.Size)
	}

	c.epochMu.Lock()
	if isCurrent {
		// Recycle: the current epoch is reset in place rather than
		// destroyed, since a connection always needs an open epoch to
		// attach the next write to.
		*e = Epoch{}
		c.epochMu.Unlock()
		return
	}
	c.epochs = removeEpoch(c.epochs, e)
	var next *Epoch
	if len(c.epochs) > 0 {
		next = c.epochs[0]
	}
	c.epochMu.Unlock()

	if next != nil {
		// BecameLast: the epoch ahead of next was just destroyed: retry
		// its finish conditions, since "head of the list" may now hold.
		c.tryFinish(next, ordering, ack, issueFlush, cleanup)
	}
}

// canFinish evaluates spec.md 4.4's finish conditions. Caller must hold
// c.epochMu.
func (c *Connection) canFinish(e *Epoch, cleanup bool) bool {
	if e.Flags.has(EpochIsFinishing) {
		return false
	}
	if e.Size == 0 || e.Active != 0 {
		return false
	}
	if !e.Flags.has(EpochHasBarrierNumber) && !cleanup {
		return false
	}
	if len(c.epochs) == 0 || c.epochs[0] != e {
		return false
	}
	return true
}

func removeEpoch(list []*Epoch, e *Epoch) []*Epoch {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
