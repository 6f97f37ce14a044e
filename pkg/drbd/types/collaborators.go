package types

import "context"

// Sector is a 512-byte-unit offset into a device, matching DRBD's own
// on-wire sector addressing.
type Sector uint64

// BlockLayer is the narrow interface to the "submit/complete primitives"
// spec.md 1 declares external. The receive-side core never touches a
// block device directly; it only ever calls through this interface.
type BlockLayer interface {
	// Submit hands a write (or, when data is nil, a discard/trim) to the
	// backing device. completion is invoked exactly once, asynchronously,
	// when the IO finishes (successfully or not).
	Submit(ctx context.Context, sector Sector, size uint32, data []byte, flags SubmitFlags, completion func(error)) error

	// Read services a resync/verify data request synchronously up to
	// ctx's deadline.
	Read(ctx context.Context, sector Sector, size uint32) ([]byte, error)

	// Flush requests a full device barrier (cache flush). Used by the
	// epoch engine's BioBarrier write-ordering mode only; epochs under
	// BdevFlush finish without a device flush.
	Flush(ctx context.Context) error
}

// SubmitFlags mirrors the bits the epoch engine may OR into a submit
// call (spec.md 4.5 step 4: "OR barrier flush+FUA into the submit
// flags").
type SubmitFlags uint32

const (
	SubmitFUA SubmitFlags = 1 << iota
	SubmitFlush
	SubmitDiscard
)

// Bitmap is the opaque on-disk out-of-sync tracker spec.md 1 declares
// external ("opaque out-of-sync... APIs").
type Bitmap interface {
	SetOutOfSync(sector Sector, size uint32)
	ClearOutOfSync(sector Sector, size uint32)
	IsInSync(sector Sector, size uint32) bool
	// SetAll marks the entire device out of sync, used when a full
	// resync is selected by the handshake (spec.md 4.9 rules r20/r30/r60).
	SetAll()
	// Count returns the number of out-of-sync bits currently set.
	Count() uint64
	// ApplyRun sets (set=true) or clears (set=false) a contiguous run of
	// bits starting at bitOffset. Used by the bitmap transfer receiver
	// (spec.md 4.11).
	ApplyRun(bitOffset, length uint64, set bool)
	TotalBits() uint64
}

// ActivityLog is the opaque "begin/complete IO for range" collaborator
// spec.md 1 declares external.
type ActivityLog interface {
	// BeginIO registers coverage for [sector, sector+size) and blocks
	// until any extent transition it requires (activating a new log
	// slot) has completed.
	BeginIO(ctx context.Context, sector Sector, size uint32) error
	// CompleteIO releases the coverage registered by BeginIO.
	CompleteIO(sector Sector, size uint32)
}

// MetadataStore is the opaque UUID/bitmap persistence collaborator
// spec.md 6 mentions ("not defined here beyond the opaque get/set
// operations the core uses").
type MetadataStore interface {
	LoadUUIDs(deviceID string) (UUIDSet, error)
	SaveUUIDs(deviceID string, set UUIDSet) error
}

// HelperInvoker runs the pluggable policy-hook process (split-brain,
// fencing) spec.md 1 declares external.
type HelperInvoker interface {
	Run(ctx context.Context, name string, env map[string]string) (exitCode int, err error)
}

// HashVerifier is the narrow cryptographic collaborator spec.md 1
// declares external (integrity digests and HMAC authentication use it,
// but the algorithms themselves are not this core's concern).
type HashVerifier interface {
	// Sum returns algo's digest of data.
	Sum(algo string, data []byte) []byte
	// HMAC returns the keyed-hash of data under algo and secret.
	HMAC(algo string, secret, data []byte) []byte
	// Supported reports whether algo is a usable digest name.
	Supported(algo string) bool
}
