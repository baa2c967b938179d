// Package vss implements Feldman verifiable secret sharing over a
// curve.Group: polynomial generation, share evaluation, public commitments,
// and share verification against those commitments. Grounded on the
// teacher's internal/crypto/polynomial (Horner evaluation) and
// internal/crypto/commitment packages, generalized from raw *big.Int
// arithmetic to the curve.Group abstraction so the same code drives both
// the Secp256k1 and Ed25519 keygen engines (spec §9 "Polymorphism by
// curve").
package vss

import (
	"errors"
	"fmt"

	"github.com/gridlocknet/node-core/pkg/curve"
)

// Polynomial is f(x) = a_0 + a_1*x + ... + a_t*x^t over the group's scalar
// field, with a_0 the shared secret.
type Polynomial struct {
	Group        curve.Group
	Coefficients []curve.Scalar
}

// New generates a random polynomial of the given degree. If secret is nil a
// random constant term is chosen; otherwise secret becomes a_0.
func New(g curve.Group, degree int, secret curve.Scalar) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.New("vss: degree must be non-negative")
	}
	coeffs := make([]curve.Scalar, degree+1)
	if secret == nil {
		s, err := g.NewScalar()
		if err != nil {
			return nil, err
		}
		coeffs[0] = s
	} else {
		coeffs[0] = secret
	}
	for i := 1; i <= degree; i++ {
		c, err := g.NewScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Polynomial{Group: g, Coefficients: coeffs}, nil
}

// Evaluate computes f(x) via Horner's method.
func (p *Polynomial) Evaluate(x curve.Scalar) curve.Scalar {
	degree := len(p.Coefficients) - 1
	result := p.Coefficients[degree]
	for i := degree - 1; i >= 0; i-- {
		result = result.Mul(x).Add(p.Coefficients[i])
	}
	return result
}

// Secret returns the constant term a_0.
func (p *Polynomial) Secret() curve.Scalar { return p.Coefficients[0] }

// Commitments returns the Feldman VSS commitment vector: g^{a_0}, g^{a_1}, ...
func (p *Polynomial) Commitments() []curve.Point {
	out := make([]curve.Point, len(p.Coefficients))
	for i, c := range p.Coefficients {
		out[i] = c.ActOnBase()
	}
	return out
}

// CommitmentAt evaluates the public commitment polynomial at x without
// knowledge of the coefficients: sum_k commitments[k] * x^k. Used to verify
// a received share, and by recovery to check a reconstructed share against
// the dealer's published commitments (spec §4.8 invariant (b)).
func CommitmentAt(g curve.Group, commitments []curve.Point, x curve.Scalar) curve.Point {
	acc := g.Identity()
	xPow := g.ScalarFromInt(1)
	for _, c := range commitments {
		acc = acc.Add(c.ScalarMult(xPow))
		xPow = xPow.Mul(x)
	}
	return acc
}

// VerifyShare checks that g^share == CommitmentAt(commitments, x).
func VerifyShare(g curve.Group, commitments []curve.Point, x curve.Scalar, share curve.Scalar) error {
	expected := CommitmentAt(g, commitments, x)
	if !share.ActOnBase().Equal(expected) {
		return fmt.Errorf("vss: share does not match published commitments at evaluation point")
	}
	return nil
}

// Reconstruct performs Lagrange interpolation at 0 given shares indexed by
// their evaluation points (1-based party_index, or 0 for Sr25519 root
// shares), recovering the underlying secret. Used by the eject engine
// (spec §4.9) and to verify invariant 1(b) in tests.
func Reconstruct(g curve.Group, shares map[int64]curve.Scalar) curve.Scalar {
	indices := make([]int64, 0, len(shares))
	for idx := range shares {
		indices = append(indices, idx)
	}
	sum := g.ScalarFromInt(0)
	for _, idx := range indices {
		lambda := curve.Lagrange(g, indices, idx, 0)
		sum = sum.Add(lambda.Mul(shares[idx]))
	}
	return sum
}
