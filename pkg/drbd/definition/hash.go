package definition

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// DefaultHashVerifier implements types.HashVerifier over the standard
// library's hash algorithms. spec.md 1 keeps "cryptographic hash and
// HMAC primitives" an external collaborator; this is the narrow stdlib
// adapter the core calls through, never crypto/* directly.
type DefaultHashVerifier struct{}

func NewDefaultHashVerifier() *DefaultHashVerifier {
	return &DefaultHashVerifier{}
}

func newHash(algo string) hash.Hash {
	switch algo {
	case "sha256":
		return sha256.New()
	case "sha512":
		return sha512.New()
	case "sha1":
		return sha1.New()
	case "md5":
		return md5.New()
	default:
		return nil
	}
}

func (DefaultHashVerifier) Supported(algo string) bool {
	return newHash(algo) != nil
}

func (DefaultHashVerifier) Sum(algo string, data []byte) []byte {
	h := newHash(algo)
	if h == nil {
		return nil
	}
	h.Write(data)
	return h.Sum(nil)
}

func (DefaultHashVerifier) HMAC(algo string, secret, data []byte) []byte {
	if !NewDefaultHashVerifier().Supported(algo) {
		return nil
	}
	mac := hmac.New(func() hash.Hash { return newHash(algo) }, secret)
	mac.Write(data)
	return mac.Sum(nil)
}
