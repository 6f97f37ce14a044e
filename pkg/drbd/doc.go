// Package drbd wires the pkg/drbd/core engine, pkg/drbd/wire codec,
// and pkg/drbd/config loader together into a runnable receive-side
// replication node: one Server per resource, one Engine per peer
// connection. cmd/drbd-recv is the thin CLI shell around this package.
package drbd
