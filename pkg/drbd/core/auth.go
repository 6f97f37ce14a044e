package core

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/jabolina/go-drbd/pkg/drbd/drbderr"
	"github.com/jabolina/go-drbd/pkg/drbd/types"
)

// challengeSize is the fixed random challenge length spec.md 4.12
// specifies.
const challengeSize = 64

// GenerateChallenge returns a fresh random challenge to send to the
// peer (spec.md 4.12).
func GenerateChallenge() ([]byte, error) {
	buf := make([]byte, challengeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, drbderr.LocalIO("generate-challenge", err)
	}
	return buf, nil
}

// ComputeDigest computes this side's HMAC response to a peer challenge
// (spec.md 4.12): HMAC(secret, peerChallenge [|| localNodeID for
// protocol >= 110]).
func ComputeDigest(verifier types.HashVerifier, algo string, secret, peerChallenge []byte, localNodeID types.NodeID, protocolVersion int) ([]byte, error) {
	if !verifier.Supported(algo) {
		return nil, drbderr.ProtocolIncompatible("auth-compute-digest", fmt.Errorf("unsupported auth algorithm %q", algo))
	}
	data := peerChallenge
	if protocolVersion >= 110 {
		suffix := make([]byte, 4)
		suffix[0] = byte(localNodeID)
		suffix[1] = byte(localNodeID >> 8)
		suffix[2] = byte(localNodeID >> 16)
		suffix[3] = byte(localNodeID >> 24)
		data = append(append([]byte{}, peerChallenge...), suffix...)
	}
	return verifier.HMAC(algo, secret, data), nil
}

// VerifyDigest checks a peer's HMAC response against what this side
// expects, given the challenge this side sent. Mismatch is fatal per
// spec.md 4.12 ("go standalone"). peerNodeID is the node id the peer's
// digest must have been keyed with, preventing a reflected digest from
// a different connection in the multi-connection fleet from verifying.
func VerifyDigest(verifier types.HashVerifier, algo string, secret, localChallenge []byte, peerDigest []byte, peerNodeID types.NodeID, protocolVersion int) error {
	expected, err := ComputeDigest(verifier, algo, secret, localChallenge, peerNodeID, protocolVersion)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected, peerDigest) {
		return drbderr.ProtocolIncompatible("auth-verify-digest", fmt.Errorf("HMAC mismatch, authentication failed"))
	}
	return nil
}
