package vss_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/vss"
)

func TestSharesReconstructSecret(t *testing.T) {
	g := secp256k1.Group

	poly, err := vss.New(g, 2, nil) // threshold 3
	require.NoError(t, err)

	indices := []int64{1, 2, 3, 4, 5}
	shares := make(map[int64]curve.Scalar)
	for _, idx := range indices {
		shares[idx] = poly.Evaluate(g.ScalarFromInt(idx))
	}

	// Any 3 of the 5 shares must reconstruct the secret.
	subset := map[int64]curve.Scalar{1: shares[1], 3: shares[3], 5: shares[5]}
	recovered := vss.Reconstruct(g, subset)
	require.True(t, recovered.Equal(poly.Secret()))
}

func TestVerifyShareAgainstCommitments(t *testing.T) {
	g := secp256k1.Group
	poly, err := vss.New(g, 1, nil)
	require.NoError(t, err)
	commitments := poly.Commitments()

	share := poly.Evaluate(g.ScalarFromInt(3))
	require.NoError(t, vss.VerifyShare(g, commitments, g.ScalarFromInt(3), share))

	tampered := share.Add(g.ScalarFromInt(1))
	require.Error(t, vss.VerifyShare(g, commitments, g.ScalarFromInt(3), tampered))
}

func TestYSumEqualsSumOfConstantCommitments(t *testing.T) {
	g := secp256k1.Group
	var ySum curve.Point = g.Identity()
	var wantSecretSum curve.Scalar = g.ScalarFromInt(0)

	parties := []struct{ secret curve.Scalar }{}
	for i := 0; i < 3; i++ {
		poly, err := vss.New(g, 1, nil)
		require.NoError(t, err)
		parties = append(parties, struct{ secret curve.Scalar }{poly.Secret()})
		ySum = ySum.Add(poly.Commitments()[0])
		wantSecretSum = wantSecretSum.Add(poly.Secret())
	}

	require.True(t, ySum.Equal(wantSecretSum.ActOnBase()))
}
