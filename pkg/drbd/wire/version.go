package wire

// LatestProtocolVersion is the highest protocol version this receiver
// speaks. Mirrors the teacher's protocol.go LatestProtocolVersion
// constant (checked in checkRPCHeader before dispatch).
const LatestProtocolVersion = 112

// Protocol-version gates. spec.md 4.9/6 scatter these as prose; this
// table is the supplemented single source of truth (SPEC_FULL.md F.3).
const (
	MinMultiConnection   = 110 // multi-connection topologies
	MinTwoPC             = 110 // two-phase commit state changes
	MinCompressedBitmap  = 90  // RLE-compressed bitmap transfer
	MinChecksumResync    = 89  // checksum-based resync (P_CSUM_RS_REQUEST)
	MinUUIDFixupResync   = 96  // uuid_fixup_resync_end/start gating
	MinUUID110           = 110 // P_UUIDS110 payload shape
	MinNodeIDInAuth      = 110 // HMAC digest includes local node id
	MinRetryWrite        = 96  // P_RETRY_WRITE vs. P_SUPERSEDED on conflict discard
)

// Supports reports whether version is new enough to use the feature
// gated at minVersion.
func Supports(version, minVersion int) bool {
	return version >= minVersion
}
