package paillier_test

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/paillier"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	m := big.NewInt(424242)
	c, _, err := sk.PublicKey.Encrypt(m)
	require.NoError(t, err)

	got, err := sk.Decrypt(c)
	require.NoError(t, err)
	require.Equal(t, 0, m.Cmp(got))
}

func TestHomomorphicAdd(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	m1 := big.NewInt(11)
	m2 := big.NewInt(31)
	c1, _, err := sk.PublicKey.Encrypt(m1)
	require.NoError(t, err)
	c2, _, err := sk.PublicKey.Encrypt(m2)
	require.NoError(t, err)

	sum := sk.PublicKey.Add(c1, c2)
	got, err := sk.Decrypt(sum)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), got)
}

func TestHomomorphicMul(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	m := big.NewInt(6)
	k := big.NewInt(7)
	c, _, err := sk.PublicKey.Encrypt(m)
	require.NoError(t, err)

	product := sk.PublicKey.Mul(c, k)
	got, err := sk.Decrypt(product)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), got)
}

func TestValidateModulusRejectsSmallPrimeFactor(t *testing.T) {
	// N with an obvious small factor (3) must be rejected per CVE-2023-33241.
	n := new(big.Int).Mul(big.NewInt(3), big.NewInt(1000000007))
	err := paillier.ValidateModulus(n)
	require.Error(t, err)
}

func TestValidateModulusAcceptsGeneratedKey(t *testing.T) {
	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	require.NoError(t, paillier.ValidateModulus(sk.PublicKey.N))
}
