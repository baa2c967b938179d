// Package commitment implements the hash commit/decommit scheme used by
// both keygen engines' round 1/2 (spec §4.3 "commit"/"decommit", §4.4
// "Commit"/"Decommit"): commit to arbitrary round data with a random
// salt, reveal the salt later, and verify the pair reproduces the
// original commitment.
//
// Grounded on internal/crypto/commitment/commitment.go's C = H(salt,
// data) shape, swapping the hash for blake3 per SPEC_FULL.md's
// domain-stack commitment (the same swap pkg/zkp makes to its
// transcript hash).
package commitment

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/zeebo/blake3"
)

// SaltSize is the random salt length in bytes.
const SaltSize = 32

// Commitment is the output of New: the public hash C and the secret
// decommitment salt D.
type Commitment struct {
	C []byte
	D []byte
}

// New commits to data with a fresh random salt.
func New(data []byte) (*Commitment, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return &Commitment{C: hash(salt, data), D: salt}, nil
}

// Verify checks that c == H(d, data) in constant time.
func Verify(c, d, data []byte) bool {
	if len(d) != SaltSize {
		return false
	}
	return subtle.ConstantTimeCompare(c, hash(d, data)) == 1
}

func hash(salt, data []byte) []byte {
	h := blake3.New()
	h.Write(salt)
	h.Write(data)
	return h.Sum(nil)
}
