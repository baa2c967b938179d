// Package secp256k1 implements curve.Group over the Secp256k1 curve used by
// the GG20-style ECDSA protocols, grounded on the teacher's
// internal/crypto/curves.go wrapper around decred's constant-time field
// arithmetic.
package secp256k1

import (
	"crypto/rand"
	"errors"
	"math/big"

	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/gridlocknet/node-core/pkg/curve"
)

type group struct{}

// Group is the shared Secp256k1 curve.Group instance.
var Group curve.Group = group{}

func (group) Name() string { return "secp256k1" }

func (group) Order() *big.Int {
	return new(big.Int).Set(dcrec.S256().N)
}

func (g group) NewScalar() (curve.Scalar, error) {
	n := g.Order()
	k, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, err
	}
	if k.Sign() == 0 {
		k.SetInt64(1)
	}
	return newScalar(k), nil
}

func (g group) ScalarFromInt(n int64) curve.Scalar {
	v := big.NewInt(n)
	v.Mod(v, g.Order())
	if v.Sign() < 0 {
		v.Add(v, g.Order())
	}
	return newScalar(v)
}

func (g group) ScalarFromBytes(b []byte) (curve.Scalar, error) {
	v := new(big.Int).SetBytes(b)
	v.Mod(v, g.Order())
	return newScalar(v), nil
}

func (group) PointFromBytes(b []byte) (curve.Point, error) {
	if len(b) != 64 {
		return nil, errors.New("secp256k1: point must be 64 bytes (x||y)")
	}
	x := new(big.Int).SetBytes(b[:32])
	y := new(big.Int).SetBytes(b[32:])
	var fx, fy dcrec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	var p dcrec.JacobianPoint
	p.X = fx
	p.Y = fy
	p.Z.SetInt(1)
	return &point{p: p}, nil
}

func (group) Generator() curve.Point {
	var p dcrec.JacobianPoint
	one := new(dcrec.ModNScalar).SetInt(1)
	dcrec.ScalarBaseMultNonConst(one, &p)
	p.ToAffine()
	return &point{p: p}
}

func (group) Identity() curve.Point {
	var p dcrec.JacobianPoint
	p.X.SetInt(0)
	p.Y.SetInt(0)
	p.Z.SetInt(0)
	return &point{p: p}
}

type scalar struct {
	v *big.Int
	s *dcrec.ModNScalar
}

func newScalar(v *big.Int) *scalar {
	v = new(big.Int).Mod(v, Group.Order())
	s := new(dcrec.ModNScalar)
	s.SetByteSlice(padTo32(v.Bytes()))
	return &scalar{v: v, s: s}
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func (s *scalar) Add(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	r := new(big.Int).Add(s.v, o.v)
	r.Mod(r, Group.Order())
	return newScalar(r)
}

func (s *scalar) Sub(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	r := new(big.Int).Sub(s.v, o.v)
	r.Mod(r, Group.Order())
	return newScalar(r)
}

func (s *scalar) Mul(other curve.Scalar) curve.Scalar {
	o := other.(*scalar)
	r := new(big.Int).Mul(s.v, o.v)
	r.Mod(r, Group.Order())
	return newScalar(r)
}

func (s *scalar) Negate() curve.Scalar {
	r := new(big.Int).Neg(s.v)
	r.Mod(r, Group.Order())
	return newScalar(r)
}

func (s *scalar) Invert() curve.Scalar {
	r := new(big.Int).ModInverse(s.v, Group.Order())
	if r == nil {
		return newScalar(big.NewInt(0))
	}
	return newScalar(r)
}

func (s *scalar) Equal(other curve.Scalar) bool {
	o, ok := other.(*scalar)
	return ok && s.v.Cmp(o.v) == 0
}

func (s *scalar) IsZero() bool { return s.v.Sign() == 0 }

func (s *scalar) BigInt() *big.Int { return new(big.Int).Set(s.v) }

func (s *scalar) Bytes() []byte { return padTo32(s.v.Bytes()) }

func (s *scalar) ActOnBase() curve.Point {
	var p dcrec.JacobianPoint
	dcrec.ScalarBaseMultNonConst(s.s, &p)
	p.ToAffine()
	return &point{p: p}
}

type point struct {
	p dcrec.JacobianPoint
}

func (p *point) affine() dcrec.JacobianPoint {
	q := p.p
	q.ToAffine()
	return q
}

func (p *point) Add(other curve.Point) curve.Point {
	o := other.(*point)
	var r dcrec.JacobianPoint
	a, b := p.affine(), o.affine()
	dcrec.AddNonConst(&a, &b, &r)
	r.ToAffine()
	return &point{p: r}
}

// fieldPrime is the Secp256k1 base field prime p = 2^256 - 2^32 - 977.
var fieldPrime, _ = new(big.Int).SetString(
	"fffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)

func (p *point) Negate() curve.Point {
	a := p.affine()
	xb := a.X.Bytes()
	yb := a.Y.Bytes()
	y := new(big.Int).SetBytes(yb[:])
	negY := new(big.Int).Sub(fieldPrime, y)
	negY.Mod(negY, fieldPrime)
	var fx, fy dcrec.FieldVal
	fx.SetByteSlice(xb[:])
	fy.SetByteSlice(padTo32(negY.Bytes()))
	var r dcrec.JacobianPoint
	r.X = fx
	r.Y = fy
	r.Z = a.Z
	r.ToAffine()
	return &point{p: r}
}

func (p *point) ScalarMult(s curve.Scalar) curve.Point {
	sc := s.(*scalar)
	a := p.affine()
	var r dcrec.JacobianPoint
	dcrec.ScalarMultNonConst(sc.s, &a, &r)
	r.ToAffine()
	return &point{p: r}
}

func (p *point) Equal(other curve.Point) bool {
	o, ok := other.(*point)
	if !ok {
		return false
	}
	a, b := p.affine(), o.affine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y) && a.Z.IsZero() == b.Z.IsZero()
}

func (p *point) IsIdentity() bool {
	a := p.affine()
	return a.Z.IsZero() || (a.X.IsZero() && a.Y.IsZero())
}

// Bytes returns the 64-byte uncompressed x||y encoding used as canonical
// bytes for hashing and VSS commitment transcripts.
func (p *point) Bytes() []byte {
	a := p.affine()
	out := make([]byte, 64)
	xb := a.X.Bytes()
	yb := a.Y.Bytes()
	copy(out[32-len(xb):32], xb[:])
	copy(out[64-len(yb):], yb[:])
	return out
}

// XY exposes affine coordinates for the keyshare codec's {x: hex, y: hex}
// encoding (spec §6), which is a concern of pkg/keyshare, not this package.
func (p *point) XY() (*big.Int, *big.Int) {
	a := p.affine()
	xb := a.X.Bytes()
	yb := a.Y.Bytes()
	return new(big.Int).SetBytes(xb[:]), new(big.Int).SetBytes(yb[:])
}

// XY is the exported accessor used by pkg/keyshare.
func XY(p curve.Point) (*big.Int, *big.Int, bool) {
	pp, ok := p.(*point)
	if !ok {
		return nil, nil, false
	}
	x, y := pp.XY()
	return x, y, true
}

// PointFromXY reconstructs a point from affine coordinates, used by
// pkg/keyshare when loading the hex {x,y} wire format.
func PointFromXY(x, y *big.Int) curve.Point {
	var fx, fy dcrec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	var p dcrec.JacobianPoint
	p.X = fx
	p.Y = fy
	p.Z.SetInt(1)
	return &point{p: p}
}
