package core

import (
	"sync"
	"time"
)

// BufferPool implements spec.md 4.3's page-buffer allocator: a
// device-scoped counter pair (pp_in_use / pp_in_use_by_net) gating how
// many payload buffers may be outstanding before a caller blocks.
type BufferPool struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxBuffers int
	device     *Device
}

func NewBufferPool(dev *Device, maxBuffers int) *BufferPool {
	p := &BufferPool{maxBuffers: maxBuffers, device: dev}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Allocate reserves size bytes worth of buffer-pool capacity for an
// incoming peer request, blocking while the device's in-use count is
// at max_buffers. While blocked it opportunistically reclaims pages
// from net_ee entries whose downstream send has completed, and after a
// soft-throttle interval relaxes the hard limit to avoid deadlocking a
// criss-cross replication topology where two peers are each other's
// backlog (spec.md 4.3).
func (p *BufferPool) Allocate(size uint32) []byte {
	p.mu.Lock()
	waited := false
	for p.device.PoolInUse >= uint64(p.maxBuffers) {
		reclaimed := p.device.ReclaimableFromNet()
		for _, pr := range reclaimed {
			p.device.Free(pr)
			if p.device.PoolInUse > 0 {
				p.device.PoolInUse--
			}
		}
		if len(reclaimed) > 0 {
			continue
		}
		if waited {
			// Hard limit relaxed: allow the allocation through anyway
			// rather than risk a permanent deadlock between two peers
			// each waiting on the other's backlog to drain.
			break
		}
		waited = true
		p.mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		p.mu.Lock()
	}
	p.device.PoolInUse++
	p.mu.Unlock()
	return make([]byte, size)
}

// Release returns a buffer's pool slot. Called once a peer request
// moves off the active path entirely (freed, or discarded before
// submit).
func (p *BufferPool) Release() {
	p.mu.Lock()
	if p.device.PoolInUse > 0 {
		p.device.PoolInUse--
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// MarkSentToNet increments pp_in_use_by_net for a request handed to an
// outbound socket write, and arms its net-reference count so the pool
// knows not to reclaim it until the send completes.
func (p *BufferPool) MarkSentToNet(pr *PeerRequest) {
	p.mu.Lock()
	p.device.PoolInUseByNet++
	p.mu.Unlock()
	pr.NetRefAdd(1)
}

// MarkSendComplete is the counterpart to MarkSentToNet, called when the
// outbound socket write finishes.
func (p *BufferPool) MarkSendComplete(pr *PeerRequest) {
	p.mu.Lock()
	if p.device.PoolInUseByNet > 0 {
		p.device.PoolInUseByNet--
	}
	p.mu.Unlock()
	pr.NetRefAdd(-1)
	p.cond.Broadcast()
}
