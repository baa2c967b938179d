package ecdsa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
	ecdsakeygen "github.com/gridlocknet/node-core/protocols/keygen/ecdsa"
)

type partyResult struct {
	idx   int64
	share *keyshare.ECDSAKeyShare
	err   error
}

func runThreeParty(t *testing.T, cfg ecdsakeygen.Config) []partyResult {
	t.Helper()
	allIndices := []int64{1, 2, 3}
	b := bus.NewInProcess()

	out := make(chan partyResult, len(allIndices))
	for _, idx := range allIndices {
		go func(idx int64) {
			info := session.Info{SessionID: "sess-ecdsa-keygen", PartyIndex: idx, PartyCount: len(allIndices), AllIndices: allIndices}
			m := session.NewMessenger(b, "keygen-ecdsa", info)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			share, err := ecdsakeygen.Run(ctx, m, cfg)
			out <- partyResult{idx: idx, share: share, err: err}
		}(idx)
	}

	results := make([]partyResult, 0, len(allIndices))
	for range allIndices {
		select {
		case r := <-out:
			results = append(results, r)
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for keygen parties")
		}
	}
	return results
}

func TestThreeOfThreeECDSAKeygenAgreesOnPublicKeyAndShares(t *testing.T) {
	results := runThreeParty(t, ecdsakeygen.Config{KeyID: "key-1", Threshold: 3})

	var pubKeys [][]byte
	shares := make(map[int64]*keyshare.ECDSAKeyShare)
	for _, r := range results {
		require.NoError(t, r.err)
		pubKeys = append(pubKeys, r.share.PublicKey.Bytes())
		shares[r.idx] = r.share
	}
	for i := 1; i < len(pubKeys); i++ {
		require.Equal(t, pubKeys[0], pubKeys[i], "all parties must agree on the joint public key")
	}

	for idx, s := range shares {
		require.Equal(t, idx, s.ShareIndex)
		require.Equal(t, 3, s.PartyCount)
		require.Equal(t, 3, s.Threshold)
		require.Len(t, s.PeerPaillierPK, 2)

		expected := vss.CommitmentAt(secp256k1.Group, s.VSSCommitments, secp256k1.Group.ScalarFromInt(idx))
		require.True(t, s.Xi.ActOnBase().Equal(expected), "xi must match the joint VSS commitment vector at its own index")
	}

	// Reconstructing from all three shares recovers a secret whose public
	// counterpart is the published joint public key.
	scalarShares := map[int64]curve.Scalar{1: shares[1].Xi, 2: shares[2].Xi, 3: shares[3].Xi}
	secret := vss.Reconstruct(secp256k1.Group, scalarShares)
	require.Equal(t, pubKeys[0], secret.ActOnBase().Bytes())
}
