// Package curve abstracts the two elliptic-curve groups the protocol engine
// runs over: Secp256k1 (ECDSA/GG20) and Ed25519 (EdDSA/Schnorr/Sr25519).
//
// The host language lacks the trait bounds to express one generic engine
// parametric over {random scalar, scalar mul, point add, canonical bytes,
// Shamir share, Feldman verify} cleanly, so per §9 of the design notes we
// keep two monomorphic implementations behind this shared interface rather
// than a stringly-typed union.
package curve

import "math/big"

// Scalar is a finite-field element of a curve's scalar field.
type Scalar interface {
	Add(Scalar) Scalar
	Sub(Scalar) Scalar
	Mul(Scalar) Scalar
	Negate() Scalar
	Invert() Scalar
	Equal(Scalar) bool
	IsZero() bool
	BigInt() *big.Int
	Bytes() []byte
	ActOnBase() Point
}

// Point is a group element.
type Point interface {
	Add(Point) Point
	Negate() Point
	ScalarMult(Scalar) Point
	Equal(Point) bool
	IsIdentity() bool
	Bytes() []byte
}

// Group is a curve together with its generator and scalar field.
type Group interface {
	// Name identifies the curve for cross-version wire compatibility.
	Name() string

	// NewScalar returns a cryptographically random scalar.
	NewScalar() (Scalar, error)

	// ScalarFromInt reduces n modulo the group order and returns a scalar.
	// Used for constructing party-index evaluation points (1, 2, 3, ...).
	ScalarFromInt(n int64) Scalar

	// ScalarFromBytes decodes a scalar from canonical bytes.
	ScalarFromBytes(b []byte) (Scalar, error)

	// PointFromBytes decodes a point from canonical bytes.
	PointFromBytes(b []byte) (Point, error)

	// Generator returns the group's base point G.
	Generator() Point

	// Identity returns the group's identity element.
	Identity() Point

	// Order returns the order of the generator.
	Order() *big.Int
}

// Lagrange computes the Lagrange coefficient for party index `self` relative
// to the full index set `all`, evaluated at x = at. Shared by VSS
// verification, recovery, and eject so every caller agrees on the convention:
// indices are curve scalars derived from 1-based party_index values (or 0,
// for the Sr25519 root share).
func Lagrange(g Group, all []int64, self int64, at int64) Scalar {
	num := g.ScalarFromInt(1)
	den := g.ScalarFromInt(1)
	atS := g.ScalarFromInt(at)
	selfS := g.ScalarFromInt(self)
	for _, j := range all {
		if j == self {
			continue
		}
		jS := g.ScalarFromInt(j)
		num = num.Mul(atS.Sub(jS))
		den = den.Mul(selfS.Sub(jS))
	}
	return num.Mul(den.Invert())
}
