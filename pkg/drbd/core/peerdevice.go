package core

import (
	"sync"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// PeerDevice is the (connection, device) pair (spec.md 3): the unit
// that carries a replication state, a UUID view, and resync
// bookkeeping independently per peer.
type PeerDevice struct {
	Connection *Connection
	Device     *Device

	mu    sync.Mutex
	Repl  types.ReplState
	PeerDisk types.DiskState

	Local types.UUIDSet // this side's view
	Peer  types.UUIDSet // last UUID set the peer advertised

	ResyncOutOfSync uint64
	RateLimiter     *RateLimiter

	BitmapSlot int // this peer's index into other peers' per-slot bitmap-UUID arrays

	CrashedPrimary     bool
	PeerCrashedPrimary bool
}

func NewPeerDevice(conn *Connection, dev *Device) *PeerDevice {
	return &PeerDevice{
		Connection: conn,
		Device:     dev,
		Repl:       types.ReplOff,
		Local:      types.NewUUIDSet(),
		Peer:       types.NewUUIDSet(),
	}
}

func (pd *PeerDevice) State() types.ReplState {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.Repl
}

func (pd *PeerDevice) SetState(s types.ReplState) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.Connection.Log != nil {
		pd.Connection.Log.Debugf("peer-device %s/%d: %s -> %s", pd.Device.ID, pd.Connection.PeerNodeID, pd.Repl, s)
	}
	pd.Repl = s
}
