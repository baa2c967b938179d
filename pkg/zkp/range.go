package zkp

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/zeebo/blake3"

	"github.com/gridlocknet/node-core/pkg/paillier"
)

// RangeProof proves that a value x encrypted in a Paillier ciphertext C lies
// within [0, N), without revealing x. Grounded on
// internal/crypto/zk/range/proof.go.
//
// This mirrors the teacher's simplified commitment structure rather than a
// full Bulletproofs-style range proof: it binds the encrypted value and its
// randomness but does not itself bound the bit length of x beyond N's size.
// Its caller in protocols/sign/ecdsa checks the ciphertext range and this
// proof only; no separate bit-length check on x is made.
type RangeProof struct {
	A  *big.Int
	S  *big.Int
	Z1 *big.Int
	Z2 *big.Int
}

// ProveRange generates a range proof that ciphertext C = E(x, r) under pk.
func ProveRange(pk *paillier.PublicKey, C, x, r *big.Int) (*RangeProof, error) {
	if pk == nil || C == nil || x == nil || r == nil {
		return nil, errors.New("zkp: range proof inputs cannot be nil")
	}

	alpha, err := rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, err
	}
	rho, err := rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, err
	}

	A, err := pk.EncryptWithR(alpha, rho)
	if err != nil {
		return nil, err
	}
	S, err := pk.EncryptWithR(big.NewInt(0), rho)
	if err != nil {
		return nil, err
	}

	e := rangeChallenge(pk.N, C, A, S)

	z1 := new(big.Int).Mul(e, x)
	z1.Add(z1, alpha)

	z2 := new(big.Int).Exp(r, e, pk.N)
	z2.Mul(z2, rho)
	z2.Mod(z2, pk.N)

	return &RangeProof{A: A, S: S, Z1: z1, Z2: z2}, nil
}

// Verify checks the range proof against ciphertext C under pk.
func (p *RangeProof) Verify(pk *paillier.PublicKey, C *big.Int) bool {
	if p == nil || pk == nil || C == nil {
		return false
	}

	e := rangeChallenge(pk.N, C, p.A, p.S)

	lhs, err := pk.EncryptWithR(p.Z1, p.Z2)
	if err != nil {
		return false
	}

	rhs := new(big.Int).Exp(C, e, pk.N2)
	rhs.Mul(rhs, p.A)
	rhs.Mod(rhs, pk.N2)

	return lhs.Cmp(rhs) == 0
}

func rangeChallenge(n *big.Int, values ...*big.Int) *big.Int {
	h := blake3.New()
	h.Write(n.Bytes())
	for _, v := range values {
		h.Write(v.Bytes())
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}
