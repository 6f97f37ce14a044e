package types

// ReplState is the PeerDevice replication state (spec.md 3). Naming
// follows the spec's own vocabulary so the code reads the same as the
// spec.
type ReplState int

const (
	ReplOff ReplState = iota
	ReplEstablished
	ReplWFBitmapS
	ReplWFBitmapT
	ReplWFSyncUUID
	ReplSyncSource
	ReplSyncTarget
	ReplPausedSyncS
	ReplPausedSyncT
	ReplVerifyS
	ReplVerifyT
	ReplBehind
	ReplAhead
)

func (s ReplState) String() string {
	switch s {
	case ReplOff:
		return "Off"
	case ReplEstablished:
		return "Established"
	case ReplWFBitmapS:
		return "WFBitmapS"
	case ReplWFBitmapT:
		return "WFBitmapT"
	case ReplWFSyncUUID:
		return "WFSyncUUID"
	case ReplSyncSource:
		return "SyncSource"
	case ReplSyncTarget:
		return "SyncTarget"
	case ReplPausedSyncS:
		return "PausedSyncS"
	case ReplPausedSyncT:
		return "PausedSyncT"
	case ReplVerifyS:
		return "VerifyS"
	case ReplVerifyT:
		return "VerifyT"
	case ReplBehind:
		return "Behind"
	case ReplAhead:
		return "Ahead"
	default:
		return "Unknown"
	}
}

// IsSyncing reports whether s is one of the active resync/verify states.
func (s ReplState) IsSyncing() bool {
	switch s {
	case ReplSyncSource, ReplSyncTarget, ReplPausedSyncS, ReplPausedSyncT, ReplVerifyS, ReplVerifyT:
		return true
	default:
		return false
	}
}

// ConnState is the Connection lifecycle state (spec.md 3's Connection
// lifecycle: Connecting -> handshake -> Connected -> NetworkFailure ->
// Connecting, or -> Standalone / Disconnecting).
type ConnState int

const (
	ConnStandalone ConnState = iota
	ConnConnecting
	ConnHandshake
	ConnConnected
	ConnNetworkFailure
	ConnDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnStandalone:
		return "StandAlone"
	case ConnConnecting:
		return "Connecting"
	case ConnHandshake:
		return "Handshake"
	case ConnConnected:
		return "Connected"
	case ConnNetworkFailure:
		return "NetworkFailure"
	case ConnDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// DiskState is the local (or peer-seen) disk state for a device.
type DiskState int

const (
	DiskDiskless DiskState = iota
	DiskInconsistent
	DiskOutdated
	DiskConsistent
	DiskUpToDate
)

func (s DiskState) String() string {
	switch s {
	case DiskDiskless:
		return "Diskless"
	case DiskInconsistent:
		return "Inconsistent"
	case DiskOutdated:
		return "Outdated"
	case DiskConsistent:
		return "Consistent"
	case DiskUpToDate:
		return "UpToDate"
	default:
		return "Unknown"
	}
}

// WriteOrdering is the device's write-ordering mode (spec.md 4.4). The
// total order None < DrainIO < BdevFlush < BioBarrier lets a device
// degrade monotonically when a capability is missing (e.g. a flush
// failure on a BdevFlush device drops it to DrainIO).
type WriteOrdering int

const (
	OrderNone WriteOrdering = iota
	OrderDrainIO
	OrderBdevFlush
	OrderBioBarrier
)

func (o WriteOrdering) String() string {
	switch o {
	case OrderNone:
		return "none"
	case OrderDrainIO:
		return "drain"
	case OrderBdevFlush:
		return "flush"
	case OrderBioBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// Degrade returns the next-weaker write-ordering mode, used when a
// device lacks a capability (spec.md 4.4: "on any device that lacks a
// capability the mode degrades monotonically"). Degrading OrderNone
// returns OrderNone.
func (o WriteOrdering) Degrade() WriteOrdering {
	if o == OrderNone {
		return OrderNone
	}
	return o - 1
}

// AckClass is the class of acknowledgement a write expects, derived
// from the negotiated replication protocol letter (spec.md 4.5 step 8).
type AckClass int

const (
	AckClassC AckClass = iota // WriteAck only after local completion
	AckClassB                 // RecvAck immediately, WriteAck never
	AckClassA                 // no per-write ack (not used by this core's receive path)
)
