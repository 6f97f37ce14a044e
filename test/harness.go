// Package test provides small cluster/connection builders shared by
// the fuzzy scenario tests, mirroring the teacher's own test.CreateCluster
// helper for package fuzzy.
package test

import (
	"github.com/jabolina/go-drbd/pkg/drbd/core"
	"github.com/jabolina/go-drbd/pkg/drbd/definition"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"github.com/prometheus/client_golang/prometheus"
)

// NewResource builds a single-device Resource backed entirely by the
// in-memory collaborators, good enough to drive the epoch/conflict
// engine in a test without a real block device or socket.
func NewResource(name string, ordering types.WriteOrdering) (*core.Resource, *core.Device) {
	metrics := definition.NewMetrics(prometheus.NewRegistry())
	res := core.NewResource(name, ordering, nil, metrics)
	dev := core.NewDevice(
		name,
		definition.NewInMemoryBlockLayer(),
		definition.NewInMemoryBitmap(1<<16, 4096),
		definition.NewInMemoryActivityLog(),
		definition.NewInMemoryMetadataStore(),
	)
	res.AddDevice(dev)
	return res, dev
}

// NewPeerConnection builds a Connection for nodeID with no real
// sockets attached, for tests that only exercise in-process engine
// state (epochs, peer_seq, two-PC) rather than wire I/O.
func NewPeerConnection(nodeID types.NodeID) *core.Connection {
	return core.NewConnection(nodeID, nil)
}
