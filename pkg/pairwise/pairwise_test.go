package pairwise_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/pairwise"
)

func randomIdentity(t *testing.T) (seed [32]byte, pub [32]byte) {
	t.Helper()
	_, err := rand.Read(seed[:])
	require.NoError(t, err)
	pub, err = pairwise.PublicKey(seed)
	require.NoError(t, err)
	return seed, pub
}

func TestSharedKeyIsSymmetric(t *testing.T) {
	seedA, pubA := randomIdentity(t)
	seedB, pubB := randomIdentity(t)

	keyAB, err := pairwise.SharedKey(seedA, pubB)
	require.NoError(t, err)
	keyBA, err := pairwise.SharedKey(seedB, pubA)
	require.NoError(t, err)

	require.Equal(t, keyAB, keyBA)
}

func TestSealOpenRoundTrip(t *testing.T) {
	seedA, _ := randomIdentity(t)
	_, pubB := randomIdentity(t)

	key, err := pairwise.SharedKey(seedA, pubB)
	require.NoError(t, err)

	msg := []byte("feldman share payload")
	sealed, err := pairwise.Seal(key, msg)
	require.NoError(t, err)

	opened, err := pairwise.Open(key, sealed)
	require.NoError(t, err)
	require.Equal(t, msg, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	seedA, _ := randomIdentity(t)
	_, pubB := randomIdentity(t)

	key, err := pairwise.SharedKey(seedA, pubB)
	require.NoError(t, err)

	sealed, err := pairwise.Seal(key, []byte("hello"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = pairwise.Open(key, sealed)
	require.Error(t, err)
}
