package core

import "testing"

// Mint assigns a fresh cookie that Resolve round-trips back to the
// same request, and stamps the request's own BlockID field.
func TestCookieTable_MintResolveRoundTrip(t *testing.T) {
	table := NewCookieTable()
	pr := &PeerRequest{}

	id := table.Mint(pr)

	got, ok := table.Resolve(id)
	if !ok || got != pr {
		t.Fatalf("expected Resolve(%v) to return the minted request, got %v, %v", id, got, ok)
	}
	if pr.BlockID != id {
		t.Fatalf("expected PeerRequest.BlockID to be stamped with its cookie, got %v want %v", pr.BlockID, id)
	}
}

// Every Mint produces a distinct cookie, even across different
// requests, so one ack can never resolve to the wrong request.
func TestCookieTable_MintIsUnique(t *testing.T) {
	table := NewCookieTable()
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := table.Mint(&PeerRequest{})
		if seen[uint64(id)] {
			t.Fatalf("Mint produced a duplicate cookie %v", id)
		}
		seen[uint64(id)] = true
	}
}

// Release removes the cookie's slot; a later Resolve of the same id
// reports not-found rather than resurrecting a freed request.
func TestCookieTable_ReleaseThenResolveFails(t *testing.T) {
	table := NewCookieTable()
	pr := &PeerRequest{}
	id := table.Mint(pr)

	table.Release(id)

	if _, ok := table.Resolve(id); ok {
		t.Fatalf("expected Resolve to fail for a released cookie")
	}
}

// Resolving a cookie that was never minted (e.g. a stale ack from a
// prior connection generation) reports not-found instead of panicking
// or resolving to an unrelated request.
func TestCookieTable_ResolveUnknownCookieFails(t *testing.T) {
	table := NewCookieTable()
	if _, ok := table.Resolve(12345); ok {
		t.Fatalf("expected Resolve to fail for a cookie that was never minted")
	}
}
