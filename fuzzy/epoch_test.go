// Package fuzzy runs scenario-level tests against the in-process
// engine primitives, mirroring the teacher's fuzzy.Test_* style: build
// a small setup, drive it concurrently, then assert on the end state
// and verify no goroutines were left behind.
package fuzzy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/core"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/test"
	"go.uber.org/goleak"
)

// A sequence of barrier-delimited epochs, each one's Put and
// GotBarrierNr raced against each other from separate goroutines in
// either order, must still finish every epoch exactly once and fire
// its BarrierAck with the right barrier number (spec.md 4.4: finishing
// only depends on both events having happened, not their order).
func Test_EpochsFinishRegardlessOfEventOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := test.NewPeerConnection(types.NodeID(2))

	const epochs = 20
	var mu sync.Mutex
	var order []uint32
	ack := func(barrierNr, size uint32) {
		mu.Lock()
		order = append(order, barrierNr)
		mu.Unlock()
	}

	for i := 1; i <= epochs; i++ {
		pr := &core.PeerRequest{}
		e := conn.AttachWrite(pr, types.OrderDrainIO)

		group := sync.WaitGroup{}
		group.Add(2)
		if i%2 == 0 {
			go func() { defer group.Done(); conn.Put(e, types.OrderDrainIO, ack, nil) }()
			go func(nr uint32) { defer group.Done(); conn.GotBarrierNr(e, nr, types.OrderDrainIO, ack, nil) }(uint32(i))
		} else {
			go func(nr uint32) { defer group.Done(); conn.GotBarrierNr(e, nr, types.OrderDrainIO, ack, nil) }(uint32(i))
			go func() { defer group.Done(); conn.Put(e, types.OrderDrainIO, ack, nil) }()
		}
		group.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != epochs {
		t.Fatalf("expected %d barrier acks, got %d: %v", epochs, len(order), order)
	}
	seen := make(map[uint32]bool)
	for _, nr := range order {
		if seen[nr] {
			t.Fatalf("epoch %d acked more than once: %v", nr, order)
		}
		seen[nr] = true
	}
	for i := 1; i <= epochs; i++ {
		if !seen[uint32(i)] {
			t.Fatalf("epoch %d never acked: %v", i, order)
		}
	}
}

// A goroutine blocked in WaitForPeerSeq for a target that never
// arrives must be released when its caller cancels the context it
// passed in, rather than leaking forever past teardown.
func Test_PeerSeqWaiterReleasedOnTeardown(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := test.NewPeerConnection(types.NodeID(3))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- conn.WaitForPeerSeq(ctx, 1000, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitForPeerSeq did not release its waiter on teardown")
	}
}
