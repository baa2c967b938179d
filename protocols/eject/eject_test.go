package eject_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/vss"
	"github.com/gridlocknet/node-core/protocols/eject"
)

// TestReconstructPrivateKeyRecoversEdDSARoot covers spec scenario S5:
// three Ed25519 share scalars at distinct indices reconstruct the
// original root secret.
func TestReconstructPrivateKeyRecoversEdDSARoot(t *testing.T) {
	g := ed25519.Group
	poly, err := vss.New(g, 2, nil)
	require.NoError(t, err)

	shares := []eject.ShareInfo{
		{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(1)), Index: 1},
		{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(2)), Index: 2},
		{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(3)), Index: 3},
	}

	recovered, err := eject.ReconstructPrivateKey(shares)
	require.NoError(t, err)
	require.True(t, recovered.Equal(poly.Secret()))
}

func TestReconstructPrivateKeyRejectsBelowThreshold(t *testing.T) {
	g := secp256k1.Group
	poly, err := vss.New(g, 2, nil)
	require.NoError(t, err)

	shares := []eject.ShareInfo{
		{Curve: eject.CurveSecp256k1, Share: poly.Evaluate(g.ScalarFromInt(1)), Index: 1},
		{Curve: eject.CurveSecp256k1, Share: poly.Evaluate(g.ScalarFromInt(2)), Index: 2},
	}

	_, err = eject.ReconstructPrivateKey(shares)
	require.Error(t, err)
}

func TestReconstructPrivateKeyIgnoresMismatchedCurveShares(t *testing.T) {
	g := secp256k1.Group
	poly, err := vss.New(g, 2, nil)
	require.NoError(t, err)
	other := ed25519.Group
	otherPoly, err := vss.New(other, 2, nil)
	require.NoError(t, err)

	shares := []eject.ShareInfo{
		{Curve: eject.CurveSecp256k1, Share: poly.Evaluate(g.ScalarFromInt(1)), Index: 1},
		{Curve: eject.CurveSecp256k1, Share: poly.Evaluate(g.ScalarFromInt(2)), Index: 2},
		{Curve: eject.CurveSecp256k1, Share: poly.Evaluate(g.ScalarFromInt(3)), Index: 3},
		{Curve: eject.CurveEd25519, Share: otherPoly.Evaluate(other.ScalarFromInt(1)), Index: 1},
	}

	recovered, err := eject.ReconstructPrivateKey(shares)
	require.NoError(t, err)
	require.True(t, recovered.Equal(poly.Secret()))
}

func TestCombineAndReconstructCombinesMultipleDeviceSets(t *testing.T) {
	g := ed25519.Group
	polyA, err := vss.New(g, 2, nil)
	require.NoError(t, err)
	polyB, err := vss.New(g, 2, nil)
	require.NoError(t, err)

	// This device's own shares for two keys.
	own := []eject.Info{
		{KeyID: "key-a", ShareInfo: eject.ShareInfo{Curve: eject.CurveEd25519, Share: polyA.Evaluate(g.ScalarFromInt(1)), Index: 1}},
		{KeyID: "key-b", ShareInfo: eject.ShareInfo{Curve: eject.CurveEd25519, Share: polyB.Evaluate(g.ScalarFromInt(1)), Index: 1}},
	}
	// Two other devices, each contributing one more share of key-a only;
	// key-b never reaches threshold and should be silently dropped.
	deviceTwo := []eject.Info{
		{KeyID: "key-a", ShareInfo: eject.ShareInfo{Curve: eject.CurveEd25519, Share: polyA.Evaluate(g.ScalarFromInt(2)), Index: 2}},
	}
	deviceThree := []eject.Info{
		{KeyID: "key-a", ShareInfo: eject.ShareInfo{Curve: eject.CurveEd25519, Share: polyA.Evaluate(g.ScalarFromInt(3)), Index: 3}},
	}

	results := eject.CombineAndReconstruct([]string{"key-a", "key-b"}, [][]eject.Info{deviceTwo, deviceThree, own})
	require.Len(t, results, 1)
	require.Equal(t, "key-a", results[0].KeyID)

	require.Equal(t, hex.EncodeToString(polyA.Secret().Bytes()), results[0].Key)
}
