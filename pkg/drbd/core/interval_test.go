package core

import (
	"testing"
	"time"
)

const blockBytes = 4096 // 8 sectors

func TestIntervalTree_OverlappingFindsInsertedRange(t *testing.T) {
	tree := NewIntervalTree()
	n := tree.InsertLocal(100, blockBytes, "ref-a")
	defer tree.Remove(n)

	overlaps := tree.Overlapping(104, blockBytes)
	if len(overlaps) != 1 || overlaps[0] != n {
		t.Fatalf("expected to find the inserted node, got %v", overlaps)
	}
}

func TestIntervalTree_NonOverlappingRangeNotFound(t *testing.T) {
	tree := NewIntervalTree()
	n := tree.InsertLocal(100, blockBytes, "ref-a")
	defer tree.Remove(n)

	overlaps := tree.Overlapping(1000, blockBytes)
	if len(overlaps) != 0 {
		t.Fatalf("expected no overlaps, got %v", overlaps)
	}
}

func TestIntervalTree_RemoveUnblocksWaiter(t *testing.T) {
	tree := NewIntervalTree()
	n := tree.InsertLocal(0, blockBytes, nil)
	n.Waiting = true

	done := make(chan struct{})
	go func() {
		n.Wait(nil)
		close(done)
	}()

	tree.Remove(n)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after Remove closed the wake channel")
	}
}

func TestIntervalTree_MultipleOverlapsAllReturned(t *testing.T) {
	tree := NewIntervalTree()
	a := tree.InsertLocal(0, blockBytes, "a")
	b := tree.InsertLocal(4, blockBytes, "b")
	c := tree.InsertLocal(1000, blockBytes, "c")
	defer tree.Remove(a)
	defer tree.Remove(b)
	defer tree.Remove(c)

	overlaps := tree.Overlapping(2, blockBytes)
	if len(overlaps) != 2 {
		t.Fatalf("expected 2 overlapping nodes, got %d", len(overlaps))
	}
}
