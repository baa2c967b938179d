// Package ed25519 implements curve.Group over the Ed25519 curve, used by the
// Feldman-VSS EdDSA/Schnorr and Sr25519 protocols, grounded on the teacher's
// internal/crypto/curves/ed25519.go wrapper around filippo.io/edwards25519.
package ed25519

import (
	"crypto/rand"
	"errors"
	"math/big"

	"filippo.io/edwards25519"

	"github.com/gridlocknet/node-core/pkg/curve"
)

type group struct{}

// Group is the shared Ed25519 curve.Group instance.
var Group curve.Group = group{}

func (group) Name() string { return "ed25519" }

// order is l = 2^252 + 27742317777372353535851937790883648493, the Ed25519
// scalar field order.
var order, _ = new(big.Int).SetString(
	"7237005577332262213973186563042994240857116359379907606001950938285454250989", 10)

func (group) Order() *big.Int { return new(big.Int).Set(order) }

func (group) NewScalar() (curve.Scalar, error) {
	var b [64]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(b[:])
	if err != nil {
		return nil, err
	}
	return &scalar{s: s}, nil
}

func (g group) ScalarFromInt(n int64) curve.Scalar {
	v := big.NewInt(n)
	v.Mod(v, order)
	if v.Sign() < 0 {
		v.Add(v, order)
	}
	return scalarFromBigInt(v)
}

func scalarFromBigInt(v *big.Int) curve.Scalar {
	be := v.Bytes()
	var le [32]byte
	for i := 0; i < len(be) && i < 32; i++ {
		le[31-i] = be[len(be)-1-i]
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(le[:])
	if err != nil {
		// Reduce non-canonical representations via wide reduction.
		var wide [64]byte
		copy(wide[:32], le[:])
		s, _ = edwards25519.NewScalar().SetUniformBytes(wide[:])
	}
	return &scalar{s: s}
}

func (group) ScalarFromBytes(b []byte) (curve.Scalar, error) {
	if len(b) != 32 {
		return nil, errors.New("ed25519: scalar must be 32 bytes")
	}
	var wide [64]byte
	copy(wide[:32], b)
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, err
	}
	return &scalar{s: s}, nil
}

func (group) PointFromBytes(b []byte) (curve.Point, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(b)
	if err != nil {
		return nil, err
	}
	return &point{p: p}, nil
}

func (group) Generator() curve.Point {
	return &point{p: edwards25519.NewGeneratorPoint()}
}

func (group) Identity() curve.Point {
	return &point{p: edwards25519.NewIdentityPoint()}
}

type scalar struct {
	s *edwards25519.Scalar
}

func (s *scalar) Add(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	return &scalar{s: edwards25519.NewScalar().Add(s.s, o.s)}
}

func (s *scalar) Sub(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	return &scalar{s: edwards25519.NewScalar().Subtract(s.s, o.s)}
}

func (s *scalar) Mul(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	return &scalar{s: edwards25519.NewScalar().Multiply(s.s, o.s)}
}

func (s *scalar) Negate() curve.Scalar {
	return &scalar{s: edwards25519.NewScalar().Negate(s.s)}
}

func (s *scalar) Invert() curve.Scalar {
	return &scalar{s: edwards25519.NewScalar().Invert(s.s)}
}

func (s *scalar) Equal(other curve.Scalar) bool {
	o, ok := other.(*scalar)
	if !ok {
		return false
	}
	return s.s.Equal(o.s) == 1
}

func (s *scalar) IsZero() bool {
	zero := edwards25519.NewScalar()
	return s.s.Equal(zero) == 1
}

func (s *scalar) BigInt() *big.Int {
	le := s.s.Bytes()
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

func (s *scalar) Bytes() []byte { return s.s.Bytes() }

func (s *scalar) ActOnBase() curve.Point {
	return &point{p: edwards25519.NewIdentityPoint().ScalarBaseMult(s.s)}
}

type point struct {
	p *edwards25519.Point
}

func (p *point) Add(other curve.Point) curve.Point {
	o := other.(*point)
	return &point{p: edwards25519.NewIdentityPoint().Add(p.p, o.p)}
}

func (p *point) Negate() curve.Point {
	return &point{p: edwards25519.NewIdentityPoint().Negate(p.p)}
}

func (p *point) ScalarMult(s curve.Scalar) curve.Point {
	sc := s.(*scalar)
	return &point{p: edwards25519.NewIdentityPoint().ScalarMult(sc.s, p.p)}
}

func (p *point) Equal(other curve.Point) bool {
	o, ok := other.(*point)
	return ok && p.p.Equal(o.p) == 1
}

func (p *point) IsIdentity() bool {
	return p.p.Equal(edwards25519.NewIdentityPoint()) == 1
}

// Bytes returns the 32-byte little-endian compressed encoding.
func (p *point) Bytes() []byte { return p.p.Bytes() }
