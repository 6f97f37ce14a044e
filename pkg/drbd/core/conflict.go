package core

import (
	"context"

	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// ConflictOutcome is what the caller of ResolveConflicts should do with
// the peer request once resolution finishes.
type ConflictOutcome int

const (
	// ConflictProceed: no unresolved conflict remains, submit pr.
	ConflictProceed ConflictOutcome = iota
	// ConflictDiscarded: pr was discarded and acked; do not submit.
	ConflictDiscarded
	// ConflictRetryLater: pr must be resubmitted once the local request
	// it raced against completes (EE_RESTART_REQUESTS).
	ConflictRetryLater
)

// ConflictAck is how conflict.go reports its ack decision back to the
// write pipeline, which owns the actual wire send.
type ConflictAck struct {
	Send    bool
	Command wire.Command // PRetryWrite or PSuperseded
}

// ResolveConflicts applies spec.md 4.6, only ever called when
// two-primaries is enabled. It walks every existing interval
// overlapping pr's range; a remote overlap is waited out and retried,
// a local overlap is resolved by whichever side the handshake
// designated FlagResolveConflicts on.
func ResolveConflicts(ctx context.Context, dev *Device, pr *PeerRequest, conn *Connection, minRetryWriteProtocol int) (ConflictOutcome, ConflictAck, error) {
	for {
		overlaps := dev.Tree.Overlapping(pr.Sector, pr.Size)
		var localOverlap *intervalNode
		var remoteOverlap *intervalNode
		for _, n := range overlaps {
			if n == pr.interval {
				continue
			}
			if n.Local {
				localOverlap = n
				break
			}
			remoteOverlap = n
		}

		if remoteOverlap != nil {
			// "Overlap with a remote request... should not normally
			// happen in a two-node topology" — wait for it to drain and
			// re-check.
			remoteOverlap.Waiting = true
			remoteOverlap.Wait(ctx.Done())
			select {
			case <-ctx.Done():
				return ConflictProceed, ConflictAck{}, ctx.Err()
			default:
			}
			continue
		}

		if localOverlap == nil {
			return ConflictProceed, ConflictAck{}, nil
		}

		if conn.Flags.Has(FlagResolveConflicts) {
			contained := localOverlap.start <= uint64(pr.Sector) &&
				localOverlap.end >= uint64(pr.Sector)+uint64(pr.Size>>9)
			// Discard/retry releases the incoming peer request's own
			// node, not the overlapping local request's: the local write
			// is still in flight and stays in the tree (mapping
			// local=true to a live local request, spec.md 3) until its
			// own completion path (ackreader.go's DispatchBlockAck)
			// removes it.
			dev.Tree.Remove(pr.interval)
			if contained {
				return ConflictDiscarded, ConflictAck{Send: true, Command: wire.PSuperseded}, nil
			}
			if conn.ProtocolVersion >= minRetryWriteProtocol {
				return ConflictRetryLater, ConflictAck{Send: true, Command: wire.PRetryWrite}, nil
			}
			return ConflictRetryLater, ConflictAck{Send: true, Command: wire.PSuperseded}, nil
		}

		// Not the designated resolver: the peer owns the decision. Wait
		// for the local overlapping request to leave the tree (it will,
		// once the peer's BlockAck/RetryWrite/Superseded arrives and the
		// local caller honors it), marking this request for restart.
		pr.Flags |= EERestartRequests
		localOverlap.Waiting = true
		localOverlap.Wait(ctx.Done())
		select {
		case <-ctx.Done():
			return ConflictProceed, ConflictAck{}, ctx.Err()
		default:
		}
	}
}
