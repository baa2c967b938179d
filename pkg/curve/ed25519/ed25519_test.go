package ed25519_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
)

func TestScalarArithmeticRoundTrips(t *testing.T) {
	g := ed25519.Group

	a, err := g.NewScalar()
	require.NoError(t, err)
	b, err := g.NewScalar()
	require.NoError(t, err)

	sum := a.Add(b)
	back := sum.Sub(b)
	require.True(t, back.Equal(a))

	inv := a.Invert()
	require.True(t, a.Mul(inv).Equal(g.ScalarFromInt(1)))
}

func TestPointArithmetic(t *testing.T) {
	g := ed25519.Group
	G := g.Generator()

	two := g.ScalarFromInt(2)
	require.True(t, G.ScalarMult(two).Equal(G.Add(G)))

	identity := G.Add(G.Negate())
	require.True(t, identity.IsIdentity())
}

func TestPointBytesRoundTrip(t *testing.T) {
	g := ed25519.Group
	s, err := g.NewScalar()
	require.NoError(t, err)
	p := s.ActOnBase()

	p2, err := g.PointFromBytes(p.Bytes())
	require.NoError(t, err)
	require.True(t, p.Equal(p2))
}
