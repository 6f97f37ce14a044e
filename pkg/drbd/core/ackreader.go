package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// LocalWriteCompletion is the callback a local write's interval-tree
// node carries (intervalNode.LocalRef), invoked by the ack reader once
// a matching BlockAck arrives (spec.md 4.8: "apply a request-state-
// machine event, possibly complete the original master bio").
type LocalWriteCompletion func(ack wire.Command)

// AckReader dispatches frames arriving on one connection's meta socket
// (spec.md 4.8). It is run as its own goroutine per connection,
// alongside the data-socket receiver and sender.
type AckReader struct {
	Conn     *Connection
	Resource *Resource

	lastActivity time.Time
}

func NewAckReader(conn *Connection, res *Resource) *AckReader {
	return &AckReader{Conn: conn, Resource: res, lastActivity: time.Now()}
}

// DispatchBlockAck implements the BlockAck family: P_RECV_ACK,
// P_WRITE_ACK, P_RS_WRITE_ACK, P_SUPERSEDED, P_NEG_ACK, P_NEG_DREPLY,
// P_NEG_RS_DREPLY, P_RETRY_WRITE, P_RS_IS_IN_SYNC. All share
// wire.BlockAckHeader's shape; cmd disambiguates the event applied.
func (a *AckReader) DispatchBlockAck(dev *Device, cmd wire.Command, h wire.BlockAckHeader) error {
	overlaps := dev.Tree.Overlapping(types.Sector(h.Sector), h.Size)
	for _, n := range overlaps {
		if !n.Local {
			continue
		}
		if n.start != h.Sector || n.end != h.Sector+uint64(h.Size>>9) {
			continue
		}
		if cb, ok := n.LocalRef.(LocalWriteCompletion); ok && cb != nil {
			cb(cmd)
		}
		dev.Tree.Remove(n)
		return nil
	}
	a.logf("block-ack for unknown local request at sector %d size %d (%s)", h.Sector, h.Size, cmd)
	return nil
}

// DispatchBarrierAck releases every entry in the per-connection
// transmit log up to barrierNr (spec.md 4.8). In this receive-side
// core the "transmit log" is the connection's epoch list itself: a
// BarrierAck finishes the epoch that carries barrierNr.
func (a *AckReader) DispatchBarrierAck(h wire.BarrierAckHeader, ordering types.WriteOrdering, onAck OnBarrierAck, issueFlush OnIssueFlush) {
	a.Conn.epochMu.Lock()
	var target *Epoch
	for _, e := range a.Conn.epochs {
		if e.BarrierNr == h.BarrierNr {
			target = e
			break
		}
	}
	a.Conn.epochMu.Unlock()
	if target == nil {
		return
	}
	a.Conn.GotBarrierNr(target, h.BarrierNr, ordering, onAck, issueFlush)
}

// DispatchPeerAck finds the peer request with matching dagtag and sets
// in-sync bits on the bitmap according to h.InSyncMask (spec.md 4.8).
func (a *AckReader) DispatchPeerAck(dev *Device, h wire.PeerAckHeader) {
	dev.mu.Lock()
	var pr *PeerRequest
	for _, e := range dev.NetEE {
		if e.Dagtag == h.DagtagSector {
			pr = e
			break
		}
	}
	dev.mu.Unlock()
	if pr == nil {
		a.logf("peer-ack for unknown dagtag %d", h.DagtagSector)
		return
	}
	if dev.Bitmap != nil {
		if h.InSyncMask != 0 {
			dev.Bitmap.ClearOutOfSync(pr.Sector, pr.Size)
		} else {
			dev.Bitmap.SetOutOfSync(pr.Sector, pr.Size)
		}
	}
	dev.Free(pr)
	a.Conn.Cookies.Release(pr.BlockID)
}

// DispatchTwoPCReply applies a P_TWOPC_YES/NO/RETRY frame to the
// resource's in-flight transaction (spec.md 4.8, 4.10).
func (a *AckReader) DispatchTwoPCReply(cmd wire.Command, h wire.TwoPCReplyHeader) {
	var kind twoPCReplyKind
	switch cmd {
	case wire.PTwoPCYes:
		kind = replyYes
	case wire.PTwoPCNo:
		kind = replyNo
	case wire.PTwoPCRetry:
		kind = replyRetry
	default:
		return
	}
	a.Resource.twoPC.recordReply(h.TID, types.NodeID(h.NodeID), kind, h.ReachableNodes, h.PrimaryNodes)
}

// Dispatch routes a decoded ack-channel frame to the right handler. It
// is the single entry point the per-connection meta-socket loop calls;
// errors propagate up to the frame loop per spec.md 7.
func (a *AckReader) Dispatch(dev *Device, pi wire.PacketInfo, ordering types.WriteOrdering, onBarrierAck OnBarrierAck, issueFlush OnIssueFlush) error {
	a.lastActivity = time.Now()
	switch pi.Command {
	case wire.PPing:
		return nil // caller replies with PPingAck; no state here
	case wire.PPingAck:
		a.Conn.pingOutstanding = false
		return nil
	case wire.PRecvAck, wire.PWriteAck, wire.PRSWriteAck, wire.PSuperseded,
		wire.PNegAck, wire.PNegDReply, wire.PNegRSDReply, wire.PRetryWrite, wire.PRSIsInSync:
		h, err := wire.UnmarshalBlockAckHeader(pi.Payload)
		if err != nil {
			return drbderr.NetworkFatal("dispatch-block-ack", err)
		}
		return a.DispatchBlockAck(dev, pi.Command, h)
	case wire.PBarrierAck:
		h, err := wire.UnmarshalBarrierAckHeader(pi.Payload)
		if err != nil {
			return drbderr.NetworkFatal("dispatch-barrier-ack", err)
		}
		a.DispatchBarrierAck(h, ordering, onBarrierAck, issueFlush)
		return nil
	case wire.PPeerAck:
		h, err := wire.UnmarshalPeerAckHeader(pi.Payload)
		if err != nil {
			return drbderr.NetworkFatal("dispatch-peer-ack", err)
		}
		a.DispatchPeerAck(dev, h)
		return nil
	case wire.PTwoPCYes, wire.PTwoPCNo, wire.PTwoPCRetry:
		h, err := wire.UnmarshalTwoPCReplyHeader(pi.Payload)
		if err != nil {
			return drbderr.NetworkFatal("dispatch-twopc-reply", err)
		}
		a.DispatchTwoPCReply(pi.Command, h)
		return nil
	case wire.POVResult:
		h, err := wire.UnmarshalOVResultHeader(pi.Payload)
		if err != nil {
			return drbderr.NetworkFatal("dispatch-ov-result", err)
		}
		ReceiveOVResult(dev, types.Sector(h.Sector), h.Size, h.InSync)
		return nil
	default:
		return drbderr.ProtocolIncompatible("dispatch", fmt.Errorf("unexpected ack-channel command %s", pi.Command))
	}
}

func (a *AckReader) logf(format string, args ...interface{}) {
	if a.Conn.Log != nil {
		a.Conn.Log.Warnf(format, args...)
	}
}

// RunPingScheduler sends P_PING whenever the meta socket has been idle
// for PingInterval and expects a P_PingAck within PingTimeout; raw data
// traffic on the data socket also counts as liveness, so callers should
// call NoteDataActivity whenever a frame arrives there (spec.md 4.8).
func (a *AckReader) RunPingScheduler(ctx context.Context, sendPing func() error) error {
	interval := a.Conn.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := a.Conn.PingTimeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(a.lastActivity) < interval {
				continue
			}
			if a.Conn.pingOutstanding && time.Since(a.Conn.lastPingSent) > timeout {
				return drbderr.NetworkFatal("ping-timeout", fmt.Errorf("no ping-ack within %s", timeout))
			}
			if !a.Conn.pingOutstanding {
				if err := sendPing(); err != nil {
					return drbderr.NetworkTransient("send-ping", err)
				}
				a.Conn.pingOutstanding = true
				a.Conn.lastPingSent = time.Now()
			}
		}
	}
}

// NoteDataActivity records that a frame arrived on the data socket,
// counting as liveness for the ping scheduler.
func (a *AckReader) NoteDataActivity() {
	a.lastActivity = time.Now()
}
