// Package paillier implements the Paillier cryptosystem used as the
// additively homomorphic encryption scheme in the ECDSA MtA protocol (spec
// §4.5 phase 2-3). Grounded on the teacher's internal/crypto/paillier
// (key generation shape, Decrypt's L(u)*mu mod n structure) but the
// modular exponentiations run over github.com/cronokirby/saferith's Nat/
// Modulus types instead of variable-time math/big.Exp, matching how
// luxfi-threshold's lss protocols route MtA-adjacent arithmetic through
// saferith.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/saferith"
)

var (
	one    = big.NewInt(1)
	oneNat = new(saferith.Nat).SetUint64(1)
)

// smallPrimeBound is the CVE-2023-33241 guard bound: a sound Paillier
// modulus must not be divisible by any prime below 2^16. tss-lib's
// advisory showed that a modulus with a small factor lets a malicious
// party forge range proofs during MtA and recover a co-signer's share.
const smallPrimeBound = 1 << 16

var smallPrimes = sieve(smallPrimeBound)

func sieve(limit int) []uint64 {
	composite := make([]bool, limit)
	var primes []uint64
	for n := 2; n < limit; n++ {
		if composite[n] {
			continue
		}
		primes = append(primes, uint64(n))
		for m := n * n; m < limit && m > 0; m += n {
			composite[m] = true
		}
	}
	return primes
}

// ValidateModulus rejects any N divisible by a prime below 2^16
// (CVE-2023-33241). Call this on both locally generated keys and any
// Paillier public key received from a peer during keygen round 1.
func ValidateModulus(n *big.Int) error {
	if n.Sign() <= 0 {
		return errors.New("paillier: modulus must be positive")
	}
	nNat := natFromBig(n)
	for _, p := range smallPrimes {
		m := saferith.ModulusFromNat(new(saferith.Nat).SetUint64(p))
		r := new(saferith.Nat).Mod(nNat, m)
		if r.Big().Sign() == 0 {
			return fmt.Errorf("paillier: modulus divisible by small prime %d (CVE-2023-33241)", p)
		}
	}
	return nil
}

func natFromBig(b *big.Int) *saferith.Nat {
	return new(saferith.Nat).SetBytes(b.Bytes())
}

// PublicKey is a Paillier public key: the modulus N.
type PublicKey struct {
	N  *big.Int
	N2 *big.Int

	n  *saferith.Modulus
	n2 *saferith.Modulus
}

// PrivateKey is a Paillier private key: lambda = lcm(p-1,q-1) and its
// inverse mod N.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int

	lambdaNat *saferith.Nat
	muNat     *saferith.Nat
}

// NewPublicKey wraps a modulus N into a usable PublicKey, validating it
// against the CVE-2023-33241 small-prime guard.
func NewPublicKey(n *big.Int) (*PublicKey, error) {
	if err := ValidateModulus(n); err != nil {
		return nil, err
	}
	n2 := new(big.Int).Mul(n, n)
	return &PublicKey{
		N:  n,
		N2: n2,
		n:  saferith.ModulusFromNat(natFromBig(n)),
		n2: saferith.ModulusFromNat(natFromBig(n2)),
	}, nil
}

// GenerateKey generates a Paillier key pair with the given bit length for
// the modulus n. bits must be at least 1024.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < 1024 {
		return nil, errors.New("paillier: bits must be at least 1024")
	}

	p, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	q, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	for p.Cmp(q) == 0 {
		if q, err = rand.Prime(random, bits/2); err != nil {
			return nil, err
		}
	}

	n := new(big.Int).Mul(p, q)
	if err := ValidateModulus(n); err != nil {
		return nil, err
	}

	pk, err := NewPublicKey(n)
	if err != nil {
		return nil, err
	}

	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Mul(pMinus1, qMinus1)
	lambda.Div(lambda, gcd)

	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, errors.New("paillier: failed to compute modular inverse for mu")
	}

	return &PrivateKey{
		PublicKey: *pk,
		Lambda:    lambda,
		Mu:        mu,
		lambdaNat: natFromBig(lambda),
		muNat:     natFromBig(mu),
	}, nil
}

// Encrypt encrypts a plaintext message m into a ciphertext c, returning
// the randomness r used so callers building ZK proofs can retain it.
func (pk *PublicKey) Encrypt(m *big.Int) (c, r *big.Int, err error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, nil, errors.New("paillier: message m must be in range [0, n)")
	}
	r, err = rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, nil, err
	}
	if r.Sign() == 0 {
		r = big.NewInt(1)
	}
	c, err = pk.EncryptWithR(m, r)
	return c, r, err
}

// EncryptWithR encrypts m using a caller-supplied randomness r, useful
// when constructing zero-knowledge proofs that must reveal r.
func (pk *PublicKey) EncryptWithR(m, r *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, errors.New("paillier: message m must be in range [0, n)")
	}

	gm := natFromBig(new(big.Int).Add(one, new(big.Int).Mul(pk.N, m)))
	rn := pk.n2.Exp(natFromBig(r), natFromBig(pk.N))
	c := new(saferith.Nat).ModMul(gm, rn, pk.n2)
	return c.Big(), nil
}

// EncryptWithNonce is an alias of EncryptWithR kept for parity with the
// teacher's API surface used throughout the range/MtA proofs.
func (pk *PublicKey) EncryptWithNonce(m, r *big.Int) (*big.Int, error) {
	return pk.EncryptWithR(m, r)
}

// Add performs homomorphic addition of two ciphertexts: E(m1)*E(m2) = E(m1+m2).
func (pk *PublicKey) Add(c1, c2 *big.Int) *big.Int {
	c := new(saferith.Nat).ModMul(natFromBig(c1), natFromBig(c2), pk.n2)
	return c.Big()
}

// Mul performs homomorphic scalar multiplication: E(m)^k = E(m*k).
func (pk *PublicKey) Mul(c1, k *big.Int) *big.Int {
	return pk.n2.Exp(natFromBig(c1), natFromBig(k)).Big()
}

// ValidateCiphertext checks that c lies in the valid range [0, n^2).
func (pk *PublicKey) ValidateCiphertext(c *big.Int) error {
	if c.Sign() < 0 || c.Cmp(pk.N2) >= 0 {
		return errors.New("paillier: ciphertext out of range")
	}
	return nil
}

// Decrypt recovers the plaintext m from ciphertext c.
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if err := sk.PublicKey.ValidateCiphertext(c); err != nil {
		return nil, err
	}

	u := sk.n2.Exp(natFromBig(c), sk.lambdaNat)
	l := new(saferith.Nat).Sub(u, oneNat, -1)
	l.Div(l, sk.n, -1)
	m := new(saferith.Nat).ModMul(l, sk.muNat, sk.n)
	return m.Big(), nil
}
