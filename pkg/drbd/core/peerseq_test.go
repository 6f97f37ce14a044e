package core

import (
	"context"
	"testing"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
)

// A waiter already satisfied by the current peer_seq returns
// immediately without blocking (spec.md 4.5 step 5a).
func TestWaitForPeerSeq_AlreadySatisfied(t *testing.T) {
	c := NewConnection(1, nil)
	c.UpdatePeerSeq(5)

	err := c.WaitForPeerSeq(context.Background(), 5, time.Second)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

// UpdatePeerSeq wakes a blocked waiter once the target is reached.
func TestWaitForPeerSeq_WokenByUpdate(t *testing.T) {
	c := NewConnection(1, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.WaitForPeerSeq(context.Background(), 10, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond) // give the goroutine a chance to park in Wait
	c.UpdatePeerSeq(10)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitForPeerSeq did not wake after UpdatePeerSeq reached the target")
	}
}

// A waiter that never gets its target seq times out and reports a
// NetworkFatal error (spec.md 4.7, 7: "disconnects on timeout").
func TestWaitForPeerSeq_TimesOut(t *testing.T) {
	c := NewConnection(1, nil)

	err := c.WaitForPeerSeq(context.Background(), 1, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error, got nil")
	}
	if !drbderr.Is(err, drbderr.KindNetworkFatal) {
		t.Fatalf("expected a NetworkFatal error, got %v", err)
	}
}

// A canceled context unblocks a waiter even before the ping-timeout
// deadline.
func TestWaitForPeerSeq_ContextCanceled(t *testing.T) {
	c := NewConnection(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.WaitForPeerSeq(ctx, 1, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitForPeerSeq did not observe context cancellation")
	}
}
