package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/helper"
)

// WaitForPeerSeq blocks until the connection's observed peer_seq
// reaches target, or pingTimeout elapses (spec.md 4.5 step 5a, 4.7).
// Only called when two-primaries/resolve-conflicts is enabled. A
// timeout is reported as a NetworkFatal error, matching spec.md 7's
// "disconnects on timeout".
func (c *Connection) WaitForPeerSeq(ctx context.Context, target uint32, pingTimeout time.Duration) error {
	deadline := time.Now().Add(pingTimeout)
	// A timer broadcasts on timeout so the waiter below (parked in
	// cond.Wait) re-checks its deadline instead of blocking forever.
	timer := time.AfterFunc(pingTimeout, c.peerSeqCond.Broadcast)
	defer timer.Stop()

	// ctx.Done() alone doesn't wake a parked cond.Wait; broadcast so the
	// loop below re-checks ctx.Err() promptly instead of waiting out the
	// full ping-timeout.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.peerSeqCond.Broadcast()
		case <-stop:
		}
	}()

	c.peerSeqMu.Lock()
	defer c.peerSeqMu.Unlock()
	for !helper.SeqGreaterOrEqual(c.peerSeq, target) {
		if time.Now().After(deadline) {
			return drbderr.NetworkFatal("wait-for-peer-seq", fmt.Errorf("timed out waiting for peer_seq %d (have %d)", target, c.peerSeq))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.peerSeqCond.Wait()
	}
	return nil
}
