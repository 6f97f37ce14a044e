package core

import (
	"sync"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// intervalNode is one element of the per-device interval tree
// (spec.md 3): a [start, end) sector range carrying either a local
// request back-pointer or a peer request. Waiting signals that some
// task must be woken when the interval leaves the tree.
type intervalNode struct {
	start, end uint64
	maxEnd     uint64

	left, right, parent *intervalNode

	Local    bool
	LocalRef interface{}
	Peer     *PeerRequest

	Waiting bool
	wake    chan struct{}
}

// IntervalTree is an augmented binary search tree keyed by
// [sector, sector+size), carrying a max-endpoint annotation at every
// node so overlap queries run in O(log n + k) instead of a linear scan
// (spec.md 3's explicit invariant). It is not self-balancing: the
// receive path's access pattern (mostly sequential dagtag order) keeps
// it shallow in practice, and no pack example carries a balanced-tree
// library this core could reach for instead.
type IntervalTree struct {
	mu   sync.Mutex
	root *intervalNode
}

func NewIntervalTree() *IntervalTree {
	return &IntervalTree{}
}

func newNode(start, end uint64) *intervalNode {
	return &intervalNode{start: start, end: end, maxEnd: end, wake: make(chan struct{})}
}

// InsertPeer inserts pr's sector range and returns the node so callers
// (conflict.go) can later remove it via Remove.
func (t *IntervalTree) InsertPeer(pr *PeerRequest) *intervalNode {
	start := uint64(pr.Sector)
	end := start + uint64(pr.Size>>9)
	n := newNode(start, end)
	n.Peer = pr
	pr.interval = n
	t.mu.Lock()
	t.root = insertNode(t.root, nil, n)
	t.mu.Unlock()
	return n
}

// InsertLocal inserts a local-write placeholder range, used so a peer
// request racing against a still-in-flight local write is detected by
// Overlapping (spec.md 4.6: "Overlap with a local request").
func (t *IntervalTree) InsertLocal(sector types.Sector, size uint32, ref interface{}) *intervalNode {
	start := uint64(sector)
	end := start + uint64(size>>9)
	n := newNode(start, end)
	n.Local = true
	n.LocalRef = ref
	t.mu.Lock()
	t.root = insertNode(t.root, nil, n)
	t.mu.Unlock()
	return n
}

func insertNode(root, parent, n *intervalNode) *intervalNode {
	if root == nil {
		n.parent = parent
		return n
	}
	if n.end > root.maxEnd {
		root.maxEnd = n.end
	}
	if n.start < root.start {
		root.left = insertNode(root.left, root, n)
	} else {
		root.right = insertNode(root.right, root, n)
	}
	return root
}

// Overlapping returns every node whose range intersects
// [sector, sector+size), using the max-endpoint annotation to prune
// subtrees that cannot contain a match.
func (t *IntervalTree) Overlapping(sector types.Sector, size uint32) []*intervalNode {
	start := uint64(sector)
	end := start + uint64(size>>9)
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*intervalNode
	collectOverlaps(t.root, start, end, &out)
	return out
}

func collectOverlaps(n *intervalNode, start, end uint64, out *[]*intervalNode) {
	if n == nil || n.maxEnd <= start {
		return
	}
	collectOverlaps(n.left, start, end, out)
	if n.start < end && n.end > start {
		*out = append(*out, n)
	}
	if n.start < end {
		collectOverlaps(n.right, start, end, out)
	}
}

// Remove deletes n from the tree (spec.md 3: "waiting=true signals that
// some task must be woken when the interval leaves the tree") and wakes
// any waiter registered on it.
func (t *IntervalTree) Remove(n *intervalNode) {
	t.mu.Lock()
	t.root = deleteNode(t.root, n)
	waiting := n.Waiting
	t.mu.Unlock()
	if waiting {
		close(n.wake)
	}
}

// Wait blocks the calling goroutine until n leaves the tree via Remove,
// or ctx-equivalent cancellation is signalled by the caller closing
// done. Callers set n.Waiting=true before calling Wait.
func (n *intervalNode) Wait(done <-chan struct{}) {
	select {
	case <-n.wake:
	case <-done:
	}
}

func deleteNode(root, target *intervalNode) *intervalNode {
	if root == nil {
		return nil
	}
	if root == target {
		return spliceOut(root)
	}
	if target.start < root.start {
		root.left = deleteNode(root.left, target)
	} else {
		root.right = deleteNode(root.right, target)
	}
	recomputeMax(root)
	return root
}

func spliceOut(n *intervalNode) *intervalNode {
	switch {
	case n.left == nil && n.right == nil:
		return nil
	case n.left == nil:
		return n.right
	case n.right == nil:
		return n.left
	default:
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		succ.right = deleteNode(n.right, succ)
		succ.left = n.left
		succ.parent = n.parent
		if succ.left != nil {
			succ.left.parent = succ
		}
		if succ.right != nil {
			succ.right.parent = succ
		}
		recomputeMax(succ)
		return succ
	}
}

func recomputeMax(n *intervalNode) {
	max := n.end
	if n.left != nil && n.left.maxEnd > max {
		max = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd > max {
		max = n.right.maxEnd
	}
	n.maxEnd = max
}
