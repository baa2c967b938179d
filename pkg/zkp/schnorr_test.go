package zkp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/zkp"
)

func TestSchnorrProveVerify(t *testing.T) {
	g := secp256k1.Group
	x, err := g.NewScalar()
	require.NoError(t, err)
	X := x.ActOnBase()

	proof, err := zkp.ProveSchnorr(g, x, X, []byte("session-1"))
	require.NoError(t, err)
	require.True(t, proof.Verify(g, X, []byte("session-1")))
}

func TestSchnorrRejectsWrongContext(t *testing.T) {
	g := secp256k1.Group
	x, err := g.NewScalar()
	require.NoError(t, err)
	X := x.ActOnBase()

	proof, err := zkp.ProveSchnorr(g, x, X, []byte("session-1"))
	require.NoError(t, err)
	require.False(t, proof.Verify(g, X, []byte("session-2")))
}

func TestSchnorrRejectsWrongKey(t *testing.T) {
	g := secp256k1.Group
	x, err := g.NewScalar()
	require.NoError(t, err)
	X := x.ActOnBase()

	other, err := g.NewScalar()
	require.NoError(t, err)

	proof, err := zkp.ProveSchnorr(g, x, X, []byte("session-1"))
	require.NoError(t, err)
	require.False(t, proof.Verify(g, other.ActOnBase(), []byte("session-1")))
}
