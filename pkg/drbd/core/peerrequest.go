package core

import (
	"sync"
	"sync/atomic"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/jabolina/go-drbd/pkg/drbd/wire"
)

// PeerRequestFlags are the EE_* bits spec.md 3/4.6 attach to a peer
// request.
type PeerRequestFlags uint32

const (
	EEMayDiscard PeerRequestFlags = 1 << iota
	EERestartRequests
	EESubmitted
	EEWasError
	EEIsRead
	EEIsTrim
)

func (f PeerRequestFlags) Has(bit PeerRequestFlags) bool { return f&bit != 0 }

// PeerRequest is one inbound write/read/discard/checksum request
// (spec.md 3). BlockID is the opaque cookie echoed back in acks
// (spec.md 9's cookie-table redesign, replacing pointer-as-id).
type PeerRequest struct {
	Sector  types.Sector
	Size    uint32
	Payload []byte
	BlockID wire.BlockID

	PeerDevice *PeerDevice
	Epoch      *Epoch

	Flags PeerRequestFlags

	interval *intervalNode
	Dagtag   uint64
	Digest   []byte

	netRef int32 // reference count of in-flight sends holding this request's pages
}

// NetRefActive reports whether any outbound send still references this
// request's payload pages (spec.md 4.3's pool-reclaim check).
func (pr *PeerRequest) NetRefActive() bool {
	return atomic.LoadInt32(&pr.netRef) != 0
}

func (pr *PeerRequest) NetRefAdd(delta int32) {
	atomic.AddInt32(&pr.netRef, delta)
}

// CookieTable mints and resolves BlockID cookies, spec.md 9's
// replacement for "pointer as id": a generation-tagged slot table
// instead of handing the peer a raw local pointer to echo back.
type CookieTable struct {
	mu         sync.Mutex
	generation uint64
	slots      map[wire.BlockID]*PeerRequest
	next       uint64
}

func NewCookieTable() *CookieTable {
	return &CookieTable{
		generation: uint64(1) << 32,
		slots:      make(map[wire.BlockID]*PeerRequest),
	}
}

// Mint allocates a fresh cookie for pr. Cookies are never reused within
// a generation, so a stale ack for a freed request resolves to "not
// found" rather than silently hitting an unrelated request.
func (t *CookieTable) Mint(pr *PeerRequest) wire.BlockID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := wire.BlockID(t.generation | t.next)
	t.slots[id] = pr
	pr.BlockID = id
	return id
}

func (t *CookieTable) Resolve(id wire.BlockID) (*PeerRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pr, ok := t.slots[id]
	return pr, ok
}

func (t *CookieTable) Release(id wire.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, id)
}
