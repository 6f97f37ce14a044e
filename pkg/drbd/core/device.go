package core

import (
	"sync"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// Device is one replicated volume (spec.md 3). It owns the interval
// tree of in-flight requests, the typed peer-request queues, and the
// buffer-pool counters that gate backpressure.
type Device struct {
	ID   string
	Disk types.DiskState

	mu       sync.Mutex
	Tree     *IntervalTree
	ActiveEE []*PeerRequest // submitted, not yet completed
	SyncEE   []*PeerRequest // resync writes in flight
	ReadEE   []*PeerRequest // resync/verify reads in flight
	DoneEE   []*PeerRequest // completed locally, ack pending
	NetEE    []*PeerRequest // acked, payload pages may still be in flight on the net

	PendingBitmapWrites []bitmapWriteRange

	PoolInUse      uint64 // pp_in_use
	PoolInUseByNet uint64 // pp_in_use_by_net

	Block        types.BlockLayer
	Bitmap       types.Bitmap
	ActivityLog  types.ActivityLog
	Metadata     types.MetadataStore
	RateLimiter  *RateLimiter
}

type bitmapWriteRange struct {
	BitOffset uint64
	Length    uint64
}

func NewDevice(id string, block types.BlockLayer, bitmap types.Bitmap, al types.ActivityLog, md types.MetadataStore) *Device {
	return &Device{
		ID:          id,
		Tree:        NewIntervalTree(),
		Block:       block,
		Bitmap:      bitmap,
		ActivityLog: al,
		Metadata:    md,
	}
}

func removeRequest(list []*PeerRequest, pr *PeerRequest) []*PeerRequest {
	for i, e := range list {
		if e == pr {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// moveQueue transfers pr's ownership between the device's typed queues
// (spec.md 3's PeerRequest lifecycle: active_ee -> done_ee -> net_ee ->
// freed), mirroring spec.md 9's "typed-queue ownership transfer"
// redesign in place of an intrusive linked list.
func (d *Device) moveQueue(pr *PeerRequest, from, to *[]*PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	*from = removeRequest(*from, pr)
	*to = append(*to, pr)
}

func (d *Device) AddActive(pr *PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ActiveEE = append(d.ActiveEE, pr)
}

func (d *Device) AddSync(pr *PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SyncEE = append(d.SyncEE, pr)
}

func (d *Device) AddRead(pr *PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ReadEE = append(d.ReadEE, pr)
}

// DetachActive removes pr from active_ee without moving it anywhere,
// used when a submit call itself fails (spec.md 4.5 step 10: "the peer
// request is detached and the connection is torn down").
func (d *Device) DetachActive(pr *PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ActiveEE = removeRequest(d.ActiveEE, pr)
	if pr.interval != nil {
		d.Tree.Remove(pr.interval)
	}
}

// CompleteActive moves pr from active_ee to done_ee, the transition
// spec.md 3 fires "on completion" (the block layer's submit callback).
func (d *Device) CompleteActive(pr *PeerRequest) {
	d.moveQueue(pr, &d.ActiveEE, &d.DoneEE)
}

// Ack moves pr from done_ee to net_ee once its acknowledgement has been
// sent but its payload pages may still be referenced by an in-flight
// send on the wire.
func (d *Device) Ack(pr *PeerRequest) {
	d.moveQueue(pr, &d.DoneEE, &d.NetEE)
}

// Free removes pr from net_ee entirely, releasing its pages back to the
// pool. Called once the pool detects the send has completed (spec.md
// 4.3's reclaim-from-net_ee path).
func (d *Device) Free(pr *PeerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NetEE = removeRequest(d.NetEE, pr)
}

// ReclaimableFromNet returns the net_ee entries whose pages are no
// longer referenced by any in-flight send, per spec.md 4.3.
func (d *Device) ReclaimableFromNet() []*PeerRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*PeerRequest
	for _, pr := range d.NetEE {
		if !pr.NetRefActive() {
			out = append(out, pr)
		}
	}
	return out
}
