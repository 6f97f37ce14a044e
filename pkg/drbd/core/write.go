package core

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// WriteRequest bundles what ReceiveData needs from a decoded P_DATA
// frame, keeping this file's signature independent of the exact wire
// layout (wire.DataHeader) so tests can build one directly.
type WriteRequest struct {
	Sector  types.Sector
	Size    uint32
	Payload []byte
	PeerSeq uint32

	// ReceivedDigest is the digest the peer sent alongside the payload;
	// empty when integrity checking is disabled. ComputedDigest is what
	// the caller computed locally over Payload via types.HashVerifier
	// before calling ReceiveData — kept out of this package so it has no
	// direct dependency on the hash collaborator.
	ReceivedDigest []byte
	ComputedDigest []byte
}

// WriteOutcome tells the caller what happened so it can send the right
// ack and decide whether to tear down the connection.
type WriteOutcome struct {
	Ack      ConflictAck
	Proceed  bool
	PeerReq  *PeerRequest
	AckClass types.AckClass
}

// ReceiveData implements spec.md 4.5's receive_Data pipeline, steps
// 1-9, in order; step 10 is SubmitWrite. ctx bounds the peer_seq/resync-overlap waits; conn is
// the connection the frame arrived on; pd is the (connection, device)
// pair; protoLetter is 'A'/'B'/'C', the negotiated replication
// protocol; minRetryWriteProtocol gates the conflict-resolution ack
// choice (spec.md 4.6).
func ReceiveData(ctx context.Context, conn *Connection, pd *PeerDevice, req WriteRequest, protoLetter byte, ordering types.WriteOrdering, pingTimeout time.Duration, minRetryWriteProtocol int, onBarrierAck OnBarrierAck, issueFlush OnIssueFlush) (WriteOutcome, error) {
	dev := pd.Device

	// Step 1: verify digest if integrity is enabled.
	if len(req.ReceivedDigest) > 0 && !bytes.Equal(req.ReceivedDigest, req.ComputedDigest) {
		return WriteOutcome{}, drbderr.NetworkFatal("verify-digest", fmt.Errorf("digest mismatch at sector %d", req.Sector))
	}

	pr := &PeerRequest{
		Sector:  req.Sector,
		Size:    req.Size,
		Payload: req.Payload,
		Digest:  req.ReceivedDigest,
	}
	pr.PeerDevice = pd
	conn.Cookies.Mint(pr)

	// Step 2: assign dagtag_sector.
	pr.Dagtag = conn.NextDagtag(req.Size)

	// Step 3-4: attach to current epoch; AttachWrite marks a new
	// BIO_BARRIER epoch as containing a barrier. No FUA/flush bits are
	// added here: SubmitWrite takes its flags from the caller.
	_ = conn.AttachWrite(pr, ordering)

	outcome := WriteOutcome{Proceed: true, PeerReq: pr}

	// Step 5/6: two-primaries conflict path vs. plain monotonic update.
	if conn.Flags.Has(FlagResolveConflicts) {
		if err := conn.WaitForPeerSeq(ctx, req.PeerSeq-1, pingTimeout); err != nil {
			return outcome, err
		}
		dev.Tree.InsertPeer(pr)
		result, ack, err := ResolveConflicts(ctx, dev, pr, conn, minRetryWriteProtocol)
		if err != nil {
			return outcome, drbderr.NetworkFatal("resolve-conflicts", err)
		}
		outcome.Ack = ack
		if result != ConflictProceed {
			outcome.Proceed = false
			conn.Put(pr.Epoch, ordering, onBarrierAck, issueFlush)
			return outcome, nil
		}
	} else {
		conn.UpdatePeerSeq(req.PeerSeq)
	}

	// Step 7: SyncTarget must wait for any overlapping resync write.
	if pd.State() == types.ReplSyncTarget {
		waitForResyncOverlap(ctx, dev, pr)
	}

	// Step 8: ack class from protocol letter; protocol B acks now.
	switch protoLetter {
	case 'C':
		outcome.AckClass = types.AckClassC
	case 'B':
		outcome.AckClass = types.AckClassB
		outcome.Ack = ConflictAck{Send: true, Command: wire.PRecvAck}
	default:
		outcome.AckClass = types.AckClassA
	}

	// Step 9: begin activity-log coverage.
	if dev.ActivityLog != nil {
		if err := dev.ActivityLog.BeginIO(ctx, req.Sector, req.Size); err != nil {
			return outcome, drbderr.LocalIO("activity-log-begin-io", err)
		}
	}

	dev.AddActive(pr)
	return outcome, nil
}

// SubmitWrite performs step 10: hand the request to the block layer,
// tearing down the connection's view of the request on failure.
func SubmitWrite(ctx context.Context, dev *Device, pr *PeerRequest, flags types.SubmitFlags, completion func(error)) error {
	if dev.Block == nil {
		return drbderr.LocalIO("submit", fmt.Errorf("no block layer configured"))
	}
	wrapped := func(err error) {
		if dev.ActivityLog != nil {
			dev.ActivityLog.CompleteIO(pr.Sector, pr.Size)
		}
		completion(err)
	}
	if err := dev.Block.Submit(ctx, pr.Sector, pr.Size, pr.Payload, flags, wrapped); err != nil {
		dev.DetachActive(pr)
		return drbderr.LocalIO("submit", err)
	}
	return nil
}

// waitForResyncOverlap blocks until no resync write in sync_ee overlaps
// pr's range (spec.md 4.5 step 7).
func waitForResyncOverlap(ctx context.Context, dev *Device, pr *PeerRequest) {
	for {
		dev.mu.Lock()
		conflict := false
		for _, sw := range dev.SyncEE {
			if rangesOverlap(sw, pr) {
				conflict = true
				break
			}
		}
		dev.mu.Unlock()
		if !conflict {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func rangesOverlap(a, b *PeerRequest) bool {
	aStart, aEnd := uint64(a.Sector), uint64(a.Sector)+uint64(a.Size>>9)
	bStart, bEnd := uint64(b.Sector), uint64(b.Sector)+uint64(b.Size>>9)
	return aStart < bEnd && bStart < aEnd
}
