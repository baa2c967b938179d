package keyshare_test

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/paillier"
)

func TestECDSAKeyShareRoundTrip(t *testing.T) {
	g := secp256k1.Group
	xi, err := g.NewScalar()
	require.NoError(t, err)
	c0, err := g.NewScalar()
	require.NoError(t, err)

	sk, err := paillier.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	real := &keyshare.ECDSAKeyShare{
		KeyID:          "k1",
		ShareIndex:     2,
		Threshold:      2,
		PartyCount:     3,
		Xi:             xi,
		PublicKey:      c0.ActOnBase(),
		VSSCommitments: nil,
		PaillierSK:     sk,
		PeerPaillierPK: map[int64]*paillier.PublicKey{1: &sk.PublicKey},
	}

	data, err := json.Marshal(real)
	require.NoError(t, err)

	var loaded keyshare.ECDSAKeyShare
	require.NoError(t, json.Unmarshal(data, &loaded))

	require.Equal(t, real.KeyID, loaded.KeyID)
	require.Equal(t, real.ShareIndex, loaded.ShareIndex)
	require.True(t, real.Xi.Equal(loaded.Xi))
	require.True(t, real.PublicKey.Equal(loaded.PublicKey))
	require.Equal(t, 0, real.PaillierSK.PublicKey.N.Cmp(loaded.PaillierSK.PublicKey.N))
}

func TestEdDSAKeyShareRoundTrip(t *testing.T) {
	g := ed25519.Group
	xi, err := g.NewScalar()
	require.NoError(t, err)

	share := &keyshare.EdDSAKeyShare{
		KeyID:      "k2",
		ShareIndex: 1,
		Threshold:  2,
		PartyCount: 3,
		Xi:         xi,
		PublicKey:  xi.ActOnBase(),
	}

	data, err := json.Marshal(share)
	require.NoError(t, err)

	var loaded keyshare.EdDSAKeyShare
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.True(t, share.Xi.Equal(loaded.Xi))
	require.True(t, share.PublicKey.Equal(loaded.PublicKey))
}

func TestSr25519KeyShareAllowsIndexZero(t *testing.T) {
	g := ed25519.Group
	xi, err := g.NewScalar()
	require.NoError(t, err)

	share := &keyshare.Sr25519KeyShare{
		KeyID:      "k3",
		ShareIndex: 0,
		Threshold:  2,
		PartyCount: 3,
		Xi:         xi,
		PublicKey:  xi.ActOnBase(),
	}

	data, err := json.Marshal(share)
	require.NoError(t, err)

	var loaded keyshare.Sr25519KeyShare
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.Equal(t, int64(0), loaded.ShareIndex)
}

func TestDetectKindAndFamily(t *testing.T) {
	kind, err := keyshare.DetectKind([]byte(`{"kind":"EdDSA_V3"}`))
	require.NoError(t, err)
	require.Equal(t, keyshare.KindEdDSAV3, kind)
	require.Equal(t, "eddsa", keyshare.Family(kind))
	require.True(t, keyshare.IsLatest(kind))
}
