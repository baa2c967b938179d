package commitment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/commitment"
)

func TestCommitVerifyRoundTrip(t *testing.T) {
	data := []byte("paillier N || vss commitments")
	c, err := commitment.New(data)
	require.NoError(t, err)
	require.True(t, commitment.Verify(c.C, c.D, data))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	c, err := commitment.New([]byte("original"))
	require.NoError(t, err)
	require.False(t, commitment.Verify(c.C, c.D, []byte("tampered")))
}

func TestVerifyRejectsWrongSalt(t *testing.T) {
	c, err := commitment.New([]byte("original"))
	require.NoError(t, err)
	other, err := commitment.New([]byte("original"))
	require.NoError(t, err)
	require.False(t, commitment.Verify(c.C, other.D, []byte("original")))
}
