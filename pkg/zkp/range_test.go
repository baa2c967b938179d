package zkp_test

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/paillier"
	"github.com/gridlocknet/node-core/pkg/zkp"
)

func TestRangeProveVerify(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	x := big.NewInt(777)
	C, r, err := sk.PublicKey.Encrypt(x)
	require.NoError(t, err)

	proof, err := zkp.ProveRange(&sk.PublicKey, C, x, r)
	require.NoError(t, err)
	require.True(t, proof.Verify(&sk.PublicKey, C))
}

func TestRangeRejectsWrongCiphertext(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	x := big.NewInt(777)
	C, r, err := sk.PublicKey.Encrypt(x)
	require.NoError(t, err)
	proof, err := zkp.ProveRange(&sk.PublicKey, C, x, r)
	require.NoError(t, err)

	otherC, _, err := sk.PublicKey.Encrypt(big.NewInt(778))
	require.NoError(t, err)
	require.False(t, proof.Verify(&sk.PublicKey, otherC))
}
